package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/halyardhq/walletgate/proto"
)

type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID            string `bun:",pk"`
	WalletAddress string `bun:",notnull,unique"`
	Handle        string `bun:",nullzero,unique"`
	Email         string `bun:",nullzero"`
	EmailVerified bool

	TermsVersion    string     `bun:",nullzero"`
	TermsAcceptedAt *time.Time `bun:",nullzero"`

	CreatedAt time.Time `bun:",notnull"`
	UpdatedAt time.Time `bun:",notnull"`
}

func (u *User) Proto() *proto.User {
	return &proto.User{
		ID:            u.ID,
		WalletAddress: u.WalletAddress,
		Handle:        u.Handle,
		Email:         u.Email,
	}
}

type UserStore struct {
	db *bun.DB
}

func NewUserStore(ctx context.Context, db *bun.DB) (*UserStore, error) {
	s := &UserStore{db: db}
	_, err := db.NewCreateTable().
		Model((*User)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("create users table: %w", err)
	}
	return s, nil
}

func (s *UserStore) Create(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.WalletAddress = proto.NormalizeAddress(u.WalletAddress)
	now := time.Now()
	u.CreatedAt = now
	u.UpdatedAt = now

	if _, err := s.db.NewInsert().Model(u).Exec(ctx); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *UserStore) GetByID(ctx context.Context, id string) (*User, bool, error) {
	u := new(User)
	err := s.db.NewSelect().Model(u).Where("id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get user: %w", err)
	}
	return u, true, nil
}

func (s *UserStore) GetByWalletAddress(ctx context.Context, address string) (*User, bool, error) {
	u := new(User)
	err := s.db.NewSelect().Model(u).Where("wallet_address = ?", proto.NormalizeAddress(address)).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get user by wallet: %w", err)
	}
	return u, true, nil
}

func (s *UserStore) GetByHandle(ctx context.Context, handle string) (*User, bool, error) {
	u := new(User)
	err := s.db.NewSelect().Model(u).Where("handle = ?", handle).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get user by handle: %w", err)
	}
	return u, true, nil
}

func (s *UserStore) HandleTaken(ctx context.Context, handle string) (bool, error) {
	exists, err := s.db.NewSelect().Model((*User)(nil)).Where("handle = ?", handle).Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("check handle: %w", err)
	}
	return exists, nil
}

func (s *UserStore) Update(ctx context.Context, u *User) error {
	u.UpdatedAt = time.Now()
	_, err := s.db.NewUpdate().Model(u).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return nil
}
