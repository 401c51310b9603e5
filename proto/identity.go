package proto

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/0xsequence/ethkit/go-ethereum/common"
)

// Identity names an external identity: the method that proved it, the provider
// that vouches for it, and the provider-scoped subject.
type Identity struct {
	Method   Method `json:"method"`
	Provider string `json:"provider"`
	Subject  string `json:"subject"`
}

func (id Identity) Validate() error {
	if !id.Method.IsValid() {
		return fmt.Errorf("invalid identity method: %s", id.Method)
	}
	if id.Provider == "" {
		return fmt.Errorf("identity provider cannot be empty")
	}
	if id.Method == Method_Wallet && id.Provider != ProviderWallet {
		return fmt.Errorf("wallet identities are pinned to provider %q", ProviderWallet)
	}
	if id.Subject == "" {
		return fmt.Errorf("identity subject cannot be empty")
	}
	if strings.Contains(id.Provider, "#") {
		return fmt.Errorf("identity provider cannot contain fragment (#)")
	}
	return nil
}

func (id Identity) Encode() (string, error) {
	if err := id.Validate(); err != nil {
		return "", err
	}
	return string(id.Method) + ":" + id.Provider + "#" + id.Subject, nil
}

func (id *Identity) FromString(s string) error {
	// Split on the first ':' and '#' only, the others may occur naturally in
	// the subject
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return fmt.Errorf("invalid identity format: %s", s)
	}
	innerParts := strings.SplitN(parts[1], "#", 2)
	if len(innerParts) != 2 {
		return fmt.Errorf("invalid identity format: %s", parts[1])
	}

	id.Method = Method(parts[0])
	id.Provider = innerParts[0]
	id.Subject = innerParts[1]

	if err := id.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

func (id Identity) Hash() (string, error) {
	encoded, err := id.Encode()
	if err != nil {
		return "", fmt.Errorf("encode identity: %w", err)
	}
	hash := sha256.Sum256([]byte(encoded))
	return hex.EncodeToString(hash[:]), nil
}

// ResolvedIdentity is the resolver's output: a proven external identity bound
// to its canonical wallet address. It is transient and never persisted as-is.
type ResolvedIdentity struct {
	WalletAddress string `json:"walletAddress"`
	Provider      string `json:"provider"`
	Subject       string `json:"subject"`
	Method        Method `json:"method"`
}

func (r ResolvedIdentity) Identity() Identity {
	return Identity{Method: r.Method, Provider: r.Provider, Subject: r.Subject}
}

// IsValidAddress reports whether s is a 20-byte 0x-prefixed hex address.
func IsValidAddress(s string) bool {
	return common.IsHexAddress(s)
}

// NormalizeAddress lowercases an address so comparisons and storage keys are
// case-insensitive.
func NormalizeAddress(s string) string {
	return strings.ToLower(common.HexToAddress(s).Hex())
}

// AddressesEqual compares two hex addresses case-insensitively.
func AddressesEqual(a, b string) bool {
	return strings.EqualFold(a, b)
}
