package auth

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/halyardhq/walletgate/data"
	"github.com/halyardhq/walletgate/proto"
)

// Resolver owns the challenge/verify handshake: it issues single-use
// challenges and resolves a proof over one into a canonical wallet identity.
type Resolver struct {
	challenges   *data.ChallengeStore
	policy       *ProviderPolicy
	verifiers    []Verifier
	challengeTTL time.Duration
	log          zerolog.Logger
}

func NewResolver(challenges *data.ChallengeStore, policy *ProviderPolicy, verifiers []Verifier, challengeTTL time.Duration, log zerolog.Logger) *Resolver {
	return &Resolver{
		challenges:   challenges,
		policy:       policy,
		verifiers:    verifiers,
		challengeTTL: challengeTTL,
		log:          log,
	}
}

func (r *Resolver) ChallengeTTL() time.Duration {
	return r.challengeTTL
}

// Challenge issues a fresh single-use challenge for the given method.
// Policy is applied at issue time as well, so a disallowed provider never
// receives a challenge to begin with.
func (r *Resolver) Challenge(ctx context.Context, params *proto.ChallengeParams) (*proto.ChallengeResult, error) {
	if !params.Method.IsValid() {
		return nil, proto.ErrInvalidRequest.WithCausef("unknown method %q", params.Method)
	}
	provider := proto.NormalizeProvider(params.Method, params.Provider)
	if params.Method != proto.Method_Wallet && provider == "" {
		return nil, proto.ErrInvalidRequest.WithCausef("provider is required for method %q", params.Method)
	}
	if err := r.policy.Allowed(params.Method, provider); err != nil {
		return nil, err
	}

	text, err := data.NewChallengeText()
	if err != nil {
		return nil, proto.ErrInternalError.WithCausef("generate challenge: %w", err)
	}

	challenge := &proto.ChallengeData{
		Kind:        proto.ChallengeKind_Verify,
		Method:      params.Method,
		Provider:    provider,
		Challenge:   text,
		SubjectHint: params.SubjectHint,
	}
	id, err := r.challenges.Issue(ctx, challenge, r.challengeTTL)
	if err != nil {
		return nil, err
	}

	return &proto.ChallengeResult{
		ChallengeID: id,
		Challenge:   text,
		ExpiresInMs: r.challengeTTL.Milliseconds(),
	}, nil
}

// Verify consumes the challenge and resolves the proof into an identity. The
// challenge is consumed before any verification work, so a failed attempt
// burns it. All proof failures surface as ErrVerificationFailed; the cause is
// logged, never returned.
func (r *Resolver) Verify(ctx context.Context, params *proto.VerifyParams) (proto.ResolvedIdentity, error) {
	if !params.Method.IsValid() {
		return proto.ResolvedIdentity{}, proto.ErrInvalidRequest.WithCausef("unknown method %q", params.Method)
	}
	if params.Proof == "" {
		return proto.ResolvedIdentity{}, proto.ErrInvalidRequest.WithCausef("proof is required")
	}
	if params.Method == proto.Method_Wallet && params.WalletAddress == "" {
		return proto.ResolvedIdentity{}, proto.ErrInvalidRequest.WithCausef("walletAddress is required for the wallet method")
	}
	if params.WalletAddress != "" && !proto.IsValidAddress(params.WalletAddress) {
		return proto.ResolvedIdentity{}, proto.ErrInvalidRequest.WithCausef("invalid walletAddress")
	}

	challenge, err := r.challenges.Consume(ctx, params.ChallengeID)
	if err != nil {
		return proto.ResolvedIdentity{}, err
	}
	if challenge.Kind != proto.ChallengeKind_Verify || challenge.Method != params.Method {
		// A challenge issued for one method never validates another.
		return proto.ResolvedIdentity{}, r.fail(params, errors.New("challenge method mismatch"))
	}

	provider := proto.NormalizeProvider(params.Method, params.Provider)
	if challenge.Provider != "" && challenge.Provider != provider {
		return proto.ResolvedIdentity{}, r.fail(params, errors.New("challenge provider mismatch"))
	}
	if err := r.policy.Allowed(params.Method, provider); err != nil {
		return proto.ResolvedIdentity{}, err
	}
	if err := r.policy.Configured(params.Method, provider); err != nil {
		return proto.ResolvedIdentity{}, err
	}

	verifier := r.verifierFor(params.Method)
	if verifier == nil {
		return proto.ResolvedIdentity{}, proto.ErrProviderNotConfigured.WithCausef("no verifier for method %q", params.Method)
	}

	resolved, err := verifier.Verify(ctx, &VerifyRequest{
		Method:          params.Method,
		Provider:        provider,
		Subject:         params.Subject,
		Challenge:       challenge.Challenge,
		Proof:           params.Proof,
		ExpectedAddress: params.WalletAddress,
	})
	if err != nil {
		return proto.ResolvedIdentity{}, r.fail(params, err)
	}

	// Optional address pin for non-wallet methods; the wallet verifier has
	// already enforced its own.
	if params.WalletAddress != "" && !proto.AddressesEqual(resolved.WalletAddress, params.WalletAddress) {
		return proto.ResolvedIdentity{}, r.fail(params, errors.New("resolved address does not match pinned address"))
	}

	return resolved, nil
}

func (r *Resolver) verifierFor(method proto.Method) Verifier {
	for _, v := range r.verifiers {
		if v.Supports(method) {
			return v
		}
	}
	return nil
}

// fail logs the real cause and returns the uniform verification error.
func (r *Resolver) fail(params *proto.VerifyParams, cause error) error {
	r.log.Info().Err(cause).
		Str("method", string(params.Method)).
		Str("provider", params.Provider).
		Msg("verification failed")
	return proto.ErrVerificationFailed.WithCause(cause)
}
