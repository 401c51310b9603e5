// Package wallet produces canonical on-chain addresses for identities that do
// and do not own a real keypair.
package wallet

import (
	"strings"

	"github.com/0xsequence/ethkit/go-ethereum/common"
	"github.com/0xsequence/ethkit/go-ethereum/crypto"
)

// derivationDomain separates derived addresses from any other keccak use.
// Changing it changes every derived address, so it is frozen.
const derivationDomain = "walletgate/identity/v1"

// Derive maps (provider, subject) to a stable 20-byte hex address. It is a
// pure function: no randomness, no external state, identical inputs produce
// the identical address across calls and process restarts. It is used only
// for identity methods that have no real signing keypair.
func Derive(provider, subject string) string {
	tag := strings.ToLower(strings.TrimSpace(provider))
	hash := crypto.Keccak256([]byte(derivationDomain + ":" + tag + ":" + subject))
	return strings.ToLower(common.BytesToAddress(hash[12:]).Hex())
}
