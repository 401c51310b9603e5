// Package localproof implements the keyed local proof scheme used when no
// remote verifier serves a passkey or social identity. The proof is an
// HMAC-SHA256 over a fixed canonical payload, keyed by a secret shared with
// the trusted proof producer.
package localproof

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// version prefixes the signed payload so the scheme can rotate without
// ambiguity between old and new proofs.
const version = "v1:"

// Payload builds the canonical payload:
//
//	method:provider:subject:challenge[:aud=<audience>]
func Payload(method, provider, subject, challenge, audience string) string {
	payload := method + ":" + provider + ":" + subject + ":" + challenge
	if audience != "" {
		payload += ":aud=" + audience
	}
	return payload
}

// Compute returns the hex-encoded expected proof for a payload.
func Compute(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(version + payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify compares a provided proof with the expected value in constant time.
func Verify(secret, payload, proof string) bool {
	expected := Compute(secret, payload)
	return hmac.Equal([]byte(expected), []byte(proof))
}
