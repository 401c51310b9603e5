// Package account turns resolved identities into user accounts: first-seen
// identities create a user and bind to it, returning identities land on the
// user they are already bound to.
package account

import (
	"context"
	"regexp"
	"time"

	"github.com/rs/zerolog"

	"github.com/halyardhq/walletgate/data"
	"github.com/halyardhq/walletgate/proto"
)

// handlePattern is the well-formedness rule for handles. Ill-formed requested
// handles are dropped silently rather than failing the login.
var handlePattern = regexp.MustCompile(`^[a-z0-9_]{3,24}$`)

// Profile carries the optional account fields a login may contribute.
type Profile struct {
	Handle        string
	Email         string
	EmailVerified bool

	TermsVersion    string
	TermsAcceptedAt *time.Time
}

type Manager struct {
	users    *data.UserStore
	bindings *data.BindingStore
	log      zerolog.Logger
}

func NewManager(users *data.UserStore, bindings *data.BindingStore, log zerolog.Logger) *Manager {
	return &Manager{
		users:    users,
		bindings: bindings,
		log:      log,
	}
}

// Login resolves the identity to its user, creating account and binding on
// first contact. The wallet address of an existing binding is authoritative:
// a resolved address that disagrees with it is a collision, never a rebind.
func (m *Manager) Login(ctx context.Context, resolved proto.ResolvedIdentity, profile *Profile) (*proto.User, error) {
	ident := resolved.Identity()
	if err := ident.Validate(); err != nil {
		return nil, proto.ErrInvalidRequest.WithCause(err)
	}

	binding, found, err := m.bindings.Get(ctx, ident)
	if err != nil {
		return nil, proto.ErrDatabaseError.WithCausef("get binding: %w", err)
	}
	if found {
		if !proto.AddressesEqual(binding.WalletAddress, resolved.WalletAddress) {
			return nil, proto.ErrBindingCollision
		}
		if err := m.bindings.Touch(ctx, ident.Method, ident.Provider, ident.Subject); err != nil {
			m.log.Warn().Err(err).Msg("account: touch binding failed")
		}
		return m.existingUser(ctx, binding.UserID, profile)
	}

	user, err := m.createUser(ctx, resolved.WalletAddress, profile)
	if err != nil {
		return nil, err
	}

	err = m.bindings.Bind(ctx, &data.IdentityBinding{
		Method:        ident.Method,
		Provider:      ident.Provider,
		Subject:       ident.Subject,
		WalletAddress: resolved.WalletAddress,
		UserID:        user.ID,
	})
	if err != nil {
		// Lost the first-login race: the identity is bound to another user.
		return nil, err
	}
	return user.Proto(), nil
}

func (m *Manager) existingUser(ctx context.Context, userID string, profile *Profile) (*proto.User, error) {
	user, found, err := m.users.GetByID(ctx, userID)
	if err != nil {
		return nil, proto.ErrDatabaseError.WithCausef("get user: %w", err)
	}
	if !found {
		return nil, proto.ErrUserNotFound
	}
	if m.applyProfile(ctx, user, profile) {
		if err := m.users.Update(ctx, user); err != nil {
			m.log.Warn().Err(err).Str("user_id", user.ID).Msg("account: profile update failed")
		}
	}
	return user.Proto(), nil
}

func (m *Manager) createUser(ctx context.Context, walletAddress string, profile *Profile) (*data.User, error) {
	user := &data.User{
		WalletAddress: walletAddress,
	}
	if profile != nil {
		user.Handle = m.assignableHandle(ctx, profile.Handle)
		user.Email = profile.Email
		user.EmailVerified = profile.Email != "" && profile.EmailVerified
		user.TermsVersion = profile.TermsVersion
		user.TermsAcceptedAt = profile.TermsAcceptedAt
	}
	if err := m.users.Create(ctx, user); err != nil {
		return nil, proto.ErrDatabaseError.WithCausef("create user: %w", err)
	}
	return user, nil
}

// applyProfile fills in fields the account does not have yet. It reports
// whether anything changed.
func (m *Manager) applyProfile(ctx context.Context, user *data.User, profile *Profile) bool {
	if profile == nil {
		return false
	}
	changed := false
	if user.Handle == "" {
		if handle := m.assignableHandle(ctx, profile.Handle); handle != "" {
			user.Handle = handle
			changed = true
		}
	}
	if user.Email == "" && profile.Email != "" {
		user.Email = profile.Email
		user.EmailVerified = profile.EmailVerified
		changed = true
	} else if user.Email == profile.Email && profile.EmailVerified && !user.EmailVerified {
		user.EmailVerified = true
		changed = true
	}
	if profile.TermsVersion != "" && user.TermsVersion != profile.TermsVersion {
		user.TermsVersion = profile.TermsVersion
		user.TermsAcceptedAt = profile.TermsAcceptedAt
		changed = true
	}
	return changed
}

// assignableHandle returns the handle if it is well-formed and free, else "".
func (m *Manager) assignableHandle(ctx context.Context, handle string) string {
	if handle == "" || !handlePattern.MatchString(handle) {
		return ""
	}
	taken, err := m.users.HandleTaken(ctx, handle)
	if err != nil {
		m.log.Warn().Err(err).Str("handle", handle).Msg("account: handle check failed")
		return ""
	}
	if taken {
		return ""
	}
	return handle
}

// LookupUser finds a user by id or handle for login-options flows.
func (m *Manager) LookupUser(ctx context.Context, userID, handle string) (*proto.User, error) {
	switch {
	case userID != "":
		user, found, err := m.users.GetByID(ctx, userID)
		if err != nil {
			return nil, proto.ErrDatabaseError.WithCausef("get user: %w", err)
		}
		if !found {
			return nil, proto.ErrUserNotFound
		}
		return user.Proto(), nil
	case handle != "":
		user, found, err := m.users.GetByHandle(ctx, handle)
		if err != nil {
			return nil, proto.ErrDatabaseError.WithCausef("get user by handle: %w", err)
		}
		if !found {
			return nil, proto.ErrUserNotFound
		}
		return user.Proto(), nil
	default:
		return nil, proto.ErrInvalidRequest.WithCausef("userId or handle is required")
	}
}
