// Package session mints and parses the short-lived session tokens returned
// after a successful verification.
package session

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/halyardhq/walletgate/proto"
)

const (
	claimWallet = "wallet"
	claimMethod = "method"
	claimHandle = "handle"
)

type Issuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

func NewIssuer(secret string, issuer string, ttl time.Duration) *Issuer {
	return &Issuer{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
	}
}

// Issue mints an HS256 session token for the user. The subject is the user
// id; the wallet address and resolution method ride along as claims.
func (i *Issuer) Issue(user *proto.User, method proto.Method) (string, error) {
	now := time.Now()

	builder := jwt.NewBuilder().
		JwtID(uuid.NewString()).
		Issuer(i.issuer).
		Subject(user.ID).
		IssuedAt(now).
		Expiration(now.Add(i.ttl)).
		Claim(claimWallet, user.WalletAddress).
		Claim(claimMethod, string(method))
	if user.Handle != "" {
		builder = builder.Claim(claimHandle, user.Handle)
	}

	token, err := builder.Build()
	if err != nil {
		return "", fmt.Errorf("build session token: %w", err)
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, i.secret))
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return string(signed), nil
}

type Claims struct {
	UserID        string
	WalletAddress string
	Method        proto.Method
	Handle        string
	ExpiresAt     time.Time
}

// Parse validates a session token's signature, issuer and expiry, returning
// its claims.
func (i *Issuer) Parse(raw string) (*Claims, error) {
	token, err := jwt.Parse([]byte(raw),
		jwt.WithKey(jwa.HS256, i.secret),
		jwt.WithValidate(true),
		jwt.WithIssuer(i.issuer),
	)
	if err != nil {
		return nil, fmt.Errorf("parse session token: %w", err)
	}

	claims := &Claims{
		UserID:    token.Subject(),
		ExpiresAt: token.Expiration(),
	}
	if v, ok := token.Get(claimWallet); ok {
		claims.WalletAddress, _ = v.(string)
	}
	if v, ok := token.Get(claimMethod); ok {
		if s, ok := v.(string); ok {
			claims.Method = proto.Method(s)
		}
	}
	if v, ok := token.Get(claimHandle); ok {
		claims.Handle, _ = v.(string)
	}
	return claims, nil
}
