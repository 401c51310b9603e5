package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halyardhq/walletgate/proto"
)

func TestIssueAndParse(t *testing.T) {
	issuer := NewIssuer("secret", "walletgate", time.Hour)

	user := &proto.User{
		ID:            "user-1",
		WalletAddress: "0x9af0e55b38bafdd4ec443ad0bf5b7149f0eff93e",
		Handle:        "alice",
	}
	token, err := issuer.Issue(user, proto.Method_Wallet)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := issuer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, user.WalletAddress, claims.WalletAddress)
	assert.Equal(t, proto.Method_Wallet, claims.Method)
	assert.Equal(t, "alice", claims.Handle)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt, time.Minute)
}

func TestParseRejectsWrongKey(t *testing.T) {
	issuer := NewIssuer("secret", "walletgate", time.Hour)
	other := NewIssuer("other-secret", "walletgate", time.Hour)

	token, err := issuer.Issue(&proto.User{ID: "user-1"}, proto.Method_Social)
	require.NoError(t, err)

	_, err = other.Parse(token)
	assert.Error(t, err)
}

func TestParseRejectsExpired(t *testing.T) {
	issuer := NewIssuer("secret", "walletgate", -time.Minute)

	token, err := issuer.Issue(&proto.User{ID: "user-1"}, proto.Method_Wallet)
	require.NoError(t, err)

	_, err = issuer.Parse(token)
	assert.Error(t, err)
}

func TestParseRejectsWrongIssuer(t *testing.T) {
	issuer := NewIssuer("secret", "walletgate", time.Hour)
	other := NewIssuer("secret", "someone-else", time.Hour)

	token, err := issuer.Issue(&proto.User{ID: "user-1"}, proto.Method_Wallet)
	require.NoError(t, err)

	_, err = other.Parse(token)
	assert.Error(t, err)
}
