package passkey

import (
	"encoding/base64"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// COSE key map labels, per RFC 9052.
const (
	coseLabelKty = 1
	coseLabelAlg = 3
)

// NormalizeCredentialID canonicalizes a credential id to unpadded base64url.
// Clients report ids in whichever base64 variant their platform produced.
func NormalizeCredentialID(id string) (string, error) {
	if id == "" {
		return "", fmt.Errorf("credential id is empty")
	}
	for _, enc := range []*base64.Encoding{
		base64.RawURLEncoding,
		base64.URLEncoding,
		base64.RawStdEncoding,
		base64.StdEncoding,
	} {
		if raw, err := enc.DecodeString(id); err == nil {
			return base64.RawURLEncoding.EncodeToString(raw), nil
		}
	}
	return "", fmt.Errorf("credential id is not base64")
}

// ValidateCOSEKey checks that the public key bytes decode as a COSE key map
// carrying a key type and algorithm. Full signature verification is the
// ceremony verifier's job; this guards against persisting garbage.
func ValidateCOSEKey(publicKey []byte) error {
	if len(publicKey) == 0 {
		return fmt.Errorf("public key is empty")
	}
	var key map[int]cbor.RawMessage
	if err := cbor.Unmarshal(publicKey, &key); err != nil {
		return fmt.Errorf("public key is not a COSE key: %w", err)
	}
	if _, ok := key[coseLabelKty]; !ok {
		return fmt.Errorf("COSE key has no kty")
	}
	if _, ok := key[coseLabelAlg]; !ok {
		return fmt.Errorf("COSE key has no alg")
	}
	return nil
}

// EncodePublicKey is the storage form of a COSE public key.
func EncodePublicKey(publicKey []byte) string {
	return base64.RawURLEncoding.EncodeToString(publicKey)
}

func DecodePublicKey(encoded string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(encoded)
}
