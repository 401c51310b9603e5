// Package walletsig verifies control of a wallet keypair via a personal-sign
// signature over the challenge text.
package walletsig

import (
	"context"
	"errors"
	"fmt"

	"github.com/0xsequence/ethkit/go-ethereum/common"
	"github.com/0xsequence/ethkit/go-ethereum/crypto"

	"github.com/halyardhq/walletgate/auth"
	"github.com/halyardhq/walletgate/proto"
)

type Verifier struct{}

var _ auth.Verifier = (*Verifier)(nil)

func NewVerifier() *Verifier {
	return &Verifier{}
}

func (*Verifier) Supports(method proto.Method) bool {
	return method == proto.Method_Wallet
}

func (v *Verifier) Verify(ctx context.Context, req *auth.VerifyRequest) (proto.ResolvedIdentity, error) {
	if req.ExpectedAddress == "" {
		return proto.ResolvedIdentity{}, errors.New("expected wallet address is required")
	}
	if !proto.IsValidAddress(req.ExpectedAddress) {
		return proto.ResolvedIdentity{}, errors.New("invalid expected wallet address")
	}

	recovered, err := RecoverAddress(req.Challenge, req.Proof)
	if err != nil {
		return proto.ResolvedIdentity{}, err
	}
	if !proto.AddressesEqual(recovered, req.ExpectedAddress) {
		return proto.ResolvedIdentity{}, errors.New("recovered address mismatch")
	}

	address := proto.NormalizeAddress(recovered)
	return proto.ResolvedIdentity{
		WalletAddress: address,
		Provider:      proto.ProviderWallet,
		Subject:       address,
		Method:        proto.Method_Wallet,
	}, nil
}

// RecoverAddress recovers the signer of a personal-sign signature over
// message. The signature is 65 bytes hex, recovery byte either 0/1 or 27/28.
func RecoverAddress(message string, signature string) (string, error) {
	prefixedHash := crypto.Keccak256([]byte(fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)))

	sigBytes := common.FromHex(signature)
	if len(sigBytes) != 65 {
		return "", errors.New("invalid signature length")
	}

	// handle recovery byte
	if sigBytes[64] == 27 || sigBytes[64] == 28 {
		sigBytes = append([]byte{}, sigBytes...)
		sigBytes[64] -= 27
	}

	pubKey, err := crypto.Ecrecover(prefixedHash, sigBytes)
	if err != nil {
		return "", fmt.Errorf("failed to recover public key: %w", err)
	}
	addr := common.BytesToAddress(crypto.Keccak256(pubKey[1:])[12:])
	return addr.Hex(), nil
}

// SignMessage produces a personal-sign signature for message with the given
// private key. Test helper; clients normally sign in their own wallet.
func SignMessage(privateKeyHex string, message string) (string, error) {
	key, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return "", fmt.Errorf("parse private key: %w", err)
	}
	prefixedHash := crypto.Keccak256([]byte(fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)))
	sig, err := crypto.Sign(prefixedHash, key)
	if err != nil {
		return "", fmt.Errorf("sign: %w", err)
	}
	return "0x" + common.Bytes2Hex(sig), nil
}
