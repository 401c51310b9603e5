package data

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/halyardhq/walletgate/proto"
)

// CustodialKey holds a provisioned custodial wallet key. Local deployments
// keep the material here; production deployments put a KMS-backed vault in
// front and this table never sees plaintext keys.
type CustodialKey struct {
	bun.BaseModel `bun:"table:custodial_keys,alias:ck"`

	Address    string    `bun:",pk"`
	PrivateKey string    `bun:",notnull"`
	CreatedAt  time.Time `bun:",notnull"`
}

type KeyVaultStore struct {
	db *bun.DB
}

func NewKeyVaultStore(ctx context.Context, db *bun.DB) (*KeyVaultStore, error) {
	s := &KeyVaultStore{db: db}
	_, err := db.NewCreateTable().
		Model((*CustodialKey)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("create custodial_keys table: %w", err)
	}
	return s, nil
}

func (s *KeyVaultStore) Store(ctx context.Context, address string, privateKey []byte) error {
	key := &CustodialKey{
		Address:    proto.NormalizeAddress(address),
		PrivateKey: hex.EncodeToString(privateKey),
		CreatedAt:  time.Now(),
	}
	if _, err := s.db.NewInsert().Model(key).Exec(ctx); err != nil {
		return fmt.Errorf("insert custodial key: %w", err)
	}
	return nil
}

func (s *KeyVaultStore) Has(ctx context.Context, address string) (bool, error) {
	exists, err := s.db.NewSelect().
		Model((*CustodialKey)(nil)).
		Where("address = ?", proto.NormalizeAddress(address)).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("check custodial key: %w", err)
	}
	return exists, nil
}
