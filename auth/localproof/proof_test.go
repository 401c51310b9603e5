package localproof

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeDeterministic(t *testing.T) {
	payload := Payload("social", "google", "sub-1", "challenge-text", "")
	a := Compute("secret", payload)
	b := Compute("secret", payload)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64, "hex-encoded sha256 mac")
}

func TestComputeInputSensitivity(t *testing.T) {
	base := Compute("secret", Payload("social", "google", "sub-1", "challenge", ""))

	variants := []string{
		Compute("other-secret", Payload("social", "google", "sub-1", "challenge", "")),
		Compute("secret", Payload("passkey", "google", "sub-1", "challenge", "")),
		Compute("secret", Payload("social", "github", "sub-1", "challenge", "")),
		Compute("secret", Payload("social", "google", "sub-2", "challenge", "")),
		Compute("secret", Payload("social", "google", "sub-1", "other-challenge", "")),
		Compute("secret", Payload("social", "google", "sub-1", "challenge", "app.example.com")),
	}
	for i, v := range variants {
		assert.NotEqual(t, base, v, "variant %d must differ", i)
	}
}

func TestVerify(t *testing.T) {
	payload := Payload("passkey", "passkey", "cred-9", "nonce", "aud-1")
	proof := Compute("secret", payload)

	assert.True(t, Verify("secret", payload, proof))
	assert.False(t, Verify("secret", payload, proof+"00"))
	assert.False(t, Verify("secret", payload, ""))
	assert.False(t, Verify("wrong", payload, proof))
}

func TestPayloadAudienceSuffix(t *testing.T) {
	assert.Equal(t, "social:google:s:c", Payload("social", "google", "s", "c", ""))
	assert.Equal(t, "social:google:s:c:aud=api", Payload("social", "google", "s", "c", "api"))
}
