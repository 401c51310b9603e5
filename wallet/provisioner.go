package wallet

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"
	"strings"

	"github.com/0xsequence/ethkit/go-ethereum/crypto"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// Provisioner mints a fresh custodial wallet for a new account and returns
// its address. Key custody is the collaborator's concern; nothing here ever
// returns or retains private key material beyond the vault handoff.
type Provisioner interface {
	Provision(ctx context.Context) (address string, err error)
}

// KeyVault receives freshly generated custodial key material. Key custody
// stops at this boundary.
type KeyVault interface {
	Store(ctx context.Context, address string, privateKey []byte) error
}

type LocalProvisioner struct {
	vault KeyVault
}

func NewLocalProvisioner(vault KeyVault) *LocalProvisioner {
	return &LocalProvisioner{vault: vault}
}

func (p *LocalProvisioner) Provision(ctx context.Context) (string, error) {
	key, err := ecdsa.GenerateKey(secp256k1.S256(), rand.Reader)
	if err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}

	address := strings.ToLower(crypto.PubkeyToAddress(key.PublicKey).Hex())
	if p.vault != nil {
		if err := p.vault.Store(ctx, address, crypto.FromECDSA(key)); err != nil {
			return "", fmt.Errorf("store key: %w", err)
		}
	}
	return address, nil
}
