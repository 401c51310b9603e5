package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

// PasskeyCredential is a registered WebAuthn credential. CredentialID is the
// canonical base64url form and globally unique; Counter is the verifier
// reported signature counter, expected to be non-decreasing across logins.
type PasskeyCredential struct {
	bun.BaseModel `bun:"table:passkey_credentials,alias:pc"`

	CredentialID string `bun:",pk"`
	UserID       string `bun:",notnull"`
	PublicKey    string `bun:",notnull"`
	Counter      uint32
	RPID         string `bun:"rp_id,notnull"`

	CreatedAt  time.Time  `bun:",notnull"`
	LastUsedAt *time.Time `bun:",nullzero"`
}

type PasskeyStore struct {
	db *bun.DB
}

func NewPasskeyStore(ctx context.Context, db *bun.DB) (*PasskeyStore, error) {
	s := &PasskeyStore{db: db}
	_, err := db.NewCreateTable().
		Model((*PasskeyCredential)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("create passkey_credentials table: %w", err)
	}
	return s, nil
}

func (s *PasskeyStore) Create(ctx context.Context, cred *PasskeyCredential) error {
	cred.CreatedAt = time.Now()
	if _, err := s.db.NewInsert().Model(cred).Exec(ctx); err != nil {
		return fmt.Errorf("insert credential: %w", err)
	}
	return nil
}

func (s *PasskeyStore) GetByCredentialID(ctx context.Context, credentialID string) (*PasskeyCredential, bool, error) {
	cred := new(PasskeyCredential)
	err := s.db.NewSelect().Model(cred).Where("credential_id = ?", credentialID).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get credential: %w", err)
	}
	return cred, true, nil
}

func (s *PasskeyStore) ListByUser(ctx context.Context, userID string) ([]PasskeyCredential, error) {
	var creds []PasskeyCredential
	err := s.db.NewSelect().
		Model(&creds).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	return creds, nil
}

// UpdateCounter stores the verifier-reported counter after a successful login.
// The stored value only ever moves forward.
func (s *PasskeyStore) UpdateCounter(ctx context.Context, credentialID string, counter uint32) error {
	now := time.Now()
	_, err := s.db.NewUpdate().
		Model((*PasskeyCredential)(nil)).
		Set("counter = ?", counter).
		Set("last_used_at = ?", now).
		Where("credential_id = ?", credentialID).
		Where("counter < ?", counter).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update counter: %w", err)
	}
	return nil
}

// TouchLastUsed records a login that did not advance the counter.
func (s *PasskeyStore) TouchLastUsed(ctx context.Context, credentialID string) error {
	now := time.Now()
	_, err := s.db.NewUpdate().
		Model((*PasskeyCredential)(nil)).
		Set("last_used_at = ?", now).
		Where("credential_id = ?", credentialID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("touch credential: %w", err)
	}
	return nil
}
