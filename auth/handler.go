// Package auth resolves external identity proofs into canonical wallet
// addresses. One verifier per method sits behind the Verifier interface; the
// Resolver consumes the challenge, applies policy and dispatches by tag.
package auth

import (
	"context"

	"github.com/halyardhq/walletgate/proto"
)

type VerifyRequest struct {
	Method    proto.Method
	Provider  string
	Subject   string
	Challenge string
	Proof     string

	// ExpectedAddress is required for the wallet method and optional
	// elsewhere; when set, the resolved address must match it.
	ExpectedAddress string
}

type Verifier interface {
	Supports(method proto.Method) bool

	// Verify proves the request's identity and returns it resolved to its
	// canonical wallet address. Any error means verification failed; the
	// resolver collapses causes before they reach a caller.
	Verify(ctx context.Context, req *VerifyRequest) (proto.ResolvedIdentity, error)
}
