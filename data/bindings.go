package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/halyardhq/walletgate/proto"
)

// IdentityBinding maps a proven external identity to exactly one user. The
// composite primary key carries the invariant: a second binding for the same
// (method, provider, subject) can never overwrite the first.
type IdentityBinding struct {
	bun.BaseModel `bun:"table:identity_bindings,alias:ib"`

	Method   proto.Method `bun:",pk"`
	Provider string       `bun:",pk"`
	Subject  string       `bun:",pk"`

	WalletAddress string    `bun:",notnull"`
	UserID        string    `bun:",notnull"`
	LinkedAt      time.Time `bun:",notnull"`
	LastSeenAt    time.Time `bun:",notnull"`
}

type BindingStore struct {
	db *bun.DB
}

func NewBindingStore(ctx context.Context, db *bun.DB) (*BindingStore, error) {
	s := &BindingStore{db: db}
	_, err := db.NewCreateTable().
		Model((*IdentityBinding)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("create identity_bindings table: %w", err)
	}
	return s, nil
}

func (s *BindingStore) Get(ctx context.Context, ident proto.Identity) (*IdentityBinding, bool, error) {
	b := new(IdentityBinding)
	err := s.db.NewSelect().
		Model(b).
		Where("method = ?", ident.Method).
		Where("provider = ?", ident.Provider).
		Where("subject = ?", ident.Subject).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get binding: %w", err)
	}
	return b, true, nil
}

// Bind inserts the binding for a first-seen identity. When the insert loses a
// race or the identity is already bound, the existing row decides the outcome:
// same user means the bind is idempotent, a different user is a collision and
// the stored row is never touched.
func (s *BindingStore) Bind(ctx context.Context, b *IdentityBinding) error {
	now := time.Now()
	if b.LinkedAt.IsZero() {
		b.LinkedAt = now
	}
	b.LastSeenAt = now
	b.WalletAddress = proto.NormalizeAddress(b.WalletAddress)

	_, err := s.db.NewInsert().Model(b).Exec(ctx)
	if err == nil {
		return nil
	}

	existing, found, getErr := s.Get(ctx, proto.Identity{Method: b.Method, Provider: b.Provider, Subject: b.Subject})
	if getErr != nil {
		return proto.ErrDatabaseError.WithCausef("bind identity: %w", err)
	}
	if !found {
		return proto.ErrDatabaseError.WithCausef("bind identity: %w", err)
	}
	if existing.UserID != b.UserID {
		return proto.ErrBindingCollision
	}
	return s.Touch(ctx, b.Method, b.Provider, b.Subject)
}

// Touch refreshes LastSeenAt after a successful verification for an identity
// that is already bound.
func (s *BindingStore) Touch(ctx context.Context, method proto.Method, provider, subject string) error {
	_, err := s.db.NewUpdate().
		Model((*IdentityBinding)(nil)).
		Set("last_seen_at = ?", time.Now()).
		Where("method = ?", method).
		Where("provider = ?", provider).
		Where("subject = ?", subject).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("touch binding: %w", err)
	}
	return nil
}

func (s *BindingStore) ListByUser(ctx context.Context, userID string) ([]IdentityBinding, error) {
	var bindings []IdentityBinding
	err := s.db.NewSelect().
		Model(&bindings).
		Where("user_id = ?", userID).
		Order("linked_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list bindings: %w", err)
	}
	return bindings, nil
}
