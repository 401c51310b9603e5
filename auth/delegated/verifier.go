// Package delegated verifies passkey and social proofs by deferring to the
// remote identity verifier, degrading to the local HMAC proof scheme when the
// remote is absent or unreachable and policy permits.
package delegated

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/halyardhq/walletgate/auth"
	"github.com/halyardhq/walletgate/auth/localproof"
	"github.com/halyardhq/walletgate/auth/remote"
	"github.com/halyardhq/walletgate/proto"
	"github.com/halyardhq/walletgate/wallet"
)

type Verifier struct {
	remote      *remote.Client
	mode        auth.Mode
	localSecret string
	audience    string
	log         zerolog.Logger
}

var _ auth.Verifier = (*Verifier)(nil)

func NewVerifier(remoteClient *remote.Client, mode auth.Mode, localSecret, audience string, log zerolog.Logger) *Verifier {
	return &Verifier{
		remote:      remoteClient,
		mode:        mode,
		localSecret: localSecret,
		audience:    audience,
		log:         log,
	}
}

func (*Verifier) Supports(method proto.Method) bool {
	return method == proto.Method_Passkey || method == proto.Method_Social
}

func (v *Verifier) Verify(ctx context.Context, req *auth.VerifyRequest) (proto.ResolvedIdentity, error) {
	if req.Subject == "" {
		return proto.ResolvedIdentity{}, errors.New("subject is required")
	}

	if v.remote.Configured() {
		resolved, err := v.remote.Verify(ctx, req)
		if err == nil {
			return resolved, nil
		}
		if v.mode == auth.Strict {
			return proto.ResolvedIdentity{}, err
		}
		v.log.Warn().Err(err).
			Str("method", string(req.Method)).
			Str("provider", req.Provider).
			Msg("remote verification failed, falling back to local proof")
	} else if v.mode == auth.Strict {
		return proto.ResolvedIdentity{}, errors.New("remote verifier is required in strict mode")
	}

	return v.verifyLocal(req)
}

// verifyLocal checks the HMAC proof and derives the identity's wallet address
// deterministically, so repeated logins land on the same account.
func (v *Verifier) verifyLocal(req *auth.VerifyRequest) (proto.ResolvedIdentity, error) {
	if v.localSecret == "" {
		return proto.ResolvedIdentity{}, errors.New("local proof secret is not configured")
	}

	payload := localproof.Payload(string(req.Method), req.Provider, req.Subject, req.Challenge, v.audience)
	if !localproof.Verify(v.localSecret, payload, req.Proof) {
		return proto.ResolvedIdentity{}, errors.New("local proof mismatch")
	}

	return proto.ResolvedIdentity{
		WalletAddress: wallet.Derive(req.Provider, req.Subject),
		Provider:      req.Provider,
		Subject:       req.Subject,
		Method:        req.Method,
	}, nil
}
