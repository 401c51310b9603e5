package proto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentityEncodeDecode(t *testing.T) {
	testCases := []Identity{
		{Method: Method_Social, Provider: "google", Subject: "108177572385"},
		{Method: Method_Social, Provider: "github", Subject: "octo#cat"},
		{Method: Method_Passkey, Provider: "passkey", Subject: "lV2ZkXJ3aQ"},
		{Method: Method_Wallet, Provider: "wallet", Subject: "0x9b7e4a4b6e9e3d4c8a1f2e3d4c5b6a7988776655"},
	}

	for _, tc := range testCases {
		encoded, err := tc.Encode()
		require.NoError(t, err)

		var decoded Identity
		require.NoError(t, decoded.FromString(encoded))
		assert.Equal(t, tc, decoded)
	}
}

func TestIdentityValidate(t *testing.T) {
	assert.Error(t, Identity{Method: "sms", Provider: "x", Subject: "y"}.Validate())
	assert.Error(t, Identity{Method: Method_Social, Provider: "", Subject: "y"}.Validate())
	assert.Error(t, Identity{Method: Method_Social, Provider: "google", Subject: ""}.Validate())
	assert.Error(t, Identity{Method: Method_Wallet, Provider: "google", Subject: "y"}.Validate())
	assert.NoError(t, Identity{Method: Method_Wallet, Provider: "wallet", Subject: "0xabc"}.Validate())
}

func TestIdentityHashStable(t *testing.T) {
	id := Identity{Method: Method_Social, Provider: "google", Subject: "108177572385"}
	h1, err := id.Hash()
	require.NoError(t, err)
	h2, err := id.Hash()
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	other := Identity{Method: Method_Social, Provider: "google", Subject: "108177572386"}
	h3, err := other.Hash()
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}

func TestAddressHelpers(t *testing.T) {
	assert.True(t, IsValidAddress("0x742d35Cc6634C0532925a3b844Bc454e4438f44e"))
	assert.False(t, IsValidAddress("742d35cc"))
	assert.False(t, IsValidAddress(""))

	assert.Equal(t,
		"0x742d35cc6634c0532925a3b844bc454e4438f44e",
		NormalizeAddress("0x742d35Cc6634C0532925a3b844Bc454e4438f44e"))

	assert.True(t, AddressesEqual(
		"0x742d35Cc6634C0532925a3b844Bc454e4438f44e",
		"0x742d35cc6634c0532925a3b844bc454e4438f44e"))
}
