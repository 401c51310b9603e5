package account

import (
	"context"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halyardhq/walletgate/data"
	"github.com/halyardhq/walletgate/proto"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	ctx := context.Background()

	db, err := data.OpenSQL(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	users, err := data.NewUserStore(ctx, db)
	require.NoError(t, err)
	bindings, err := data.NewBindingStore(ctx, db)
	require.NoError(t, err)
	return NewManager(users, bindings, zerolog.Nop())
}

func googleIdentity(subject, address string) proto.ResolvedIdentity {
	return proto.ResolvedIdentity{
		WalletAddress: address,
		Provider:      "google",
		Subject:       subject,
		Method:        proto.Method_Social,
	}
}

func TestLoginCreatesThenReuses(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	ident := googleIdentity("sub-1", "0x1111111111111111111111111111111111111111")

	first, err := m.Login(ctx, ident, &Profile{Handle: "alice", Email: "alice@example.com", EmailVerified: true})
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, "alice", first.Handle)
	assert.Equal(t, "alice@example.com", first.Email)

	second, err := m.Login(ctx, ident, nil)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.WalletAddress, second.WalletAddress)
}

func TestLoginAddressDisagreementIsCollision(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	_, err := m.Login(ctx, googleIdentity("sub-1", "0x1111111111111111111111111111111111111111"), nil)
	require.NoError(t, err)

	// Same identity resolving to a different address never rebinds.
	_, err = m.Login(ctx, googleIdentity("sub-1", "0x2222222222222222222222222222222222222222"), nil)
	assert.ErrorIs(t, err, proto.ErrBindingCollision)
}

func TestHandleRules(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	// Ill-formed handles are dropped, not fatal.
	user, err := m.Login(ctx, googleIdentity("sub-1", "0x1111111111111111111111111111111111111111"),
		&Profile{Handle: "Not Valid!"})
	require.NoError(t, err)
	assert.Empty(t, user.Handle)

	// Taken handles are dropped too.
	_, err = m.Login(ctx, googleIdentity("sub-2", "0x2222222222222222222222222222222222222222"),
		&Profile{Handle: "taken_handle"})
	require.NoError(t, err)
	user, err = m.Login(ctx, googleIdentity("sub-3", "0x3333333333333333333333333333333333333333"),
		&Profile{Handle: "taken_handle"})
	require.NoError(t, err)
	assert.Empty(t, user.Handle)
}

func TestProfileFillsInLater(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	ident := googleIdentity("sub-1", "0x1111111111111111111111111111111111111111")

	user, err := m.Login(ctx, ident, nil)
	require.NoError(t, err)
	assert.Empty(t, user.Handle)

	// A later login may contribute the missing handle and email.
	user, err = m.Login(ctx, ident, &Profile{Handle: "late_handle", Email: "late@example.com", EmailVerified: true})
	require.NoError(t, err)
	assert.Equal(t, "late_handle", user.Handle)
	assert.Equal(t, "late@example.com", user.Email)

	// But never overwrites what is already set.
	user, err = m.Login(ctx, ident, &Profile{Handle: "other_handle", Email: "other@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "late_handle", user.Handle)
	assert.Equal(t, "late@example.com", user.Email)
}

func TestLookupUser(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	created, err := m.Login(ctx, googleIdentity("sub-1", "0x1111111111111111111111111111111111111111"),
		&Profile{Handle: "findme"})
	require.NoError(t, err)

	byID, err := m.LookupUser(ctx, created.ID, "")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byID.ID)

	byHandle, err := m.LookupUser(ctx, "", "findme")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byHandle.ID)

	_, err = m.LookupUser(ctx, "", "missing")
	assert.ErrorIs(t, err, proto.ErrUserNotFound)
}
