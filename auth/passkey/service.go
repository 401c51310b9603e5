// Package passkey runs WebAuthn registration and login ceremonies. Ceremony
// cryptography is delegated to a CeremonyVerifier; this service owns the
// challenge lifecycle, credential records and the account they attach to.
package passkey

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/halyardhq/walletgate/account"
	"github.com/halyardhq/walletgate/data"
	"github.com/halyardhq/walletgate/proto"
	"github.com/halyardhq/walletgate/wallet"
)

type Service struct {
	accounts    *account.Manager
	credentials *data.PasskeyStore
	challenges  *data.ChallengeStore
	verifier    CeremonyVerifier
	provisioner wallet.Provisioner

	rpID         string
	rpName       string
	challengeTTL time.Duration
	log          zerolog.Logger
}

func NewService(
	accounts *account.Manager,
	credentials *data.PasskeyStore,
	challenges *data.ChallengeStore,
	verifier CeremonyVerifier,
	provisioner wallet.Provisioner,
	rpID string,
	rpName string,
	challengeTTL time.Duration,
	log zerolog.Logger,
) *Service {
	return &Service{
		accounts:     accounts,
		credentials:  credentials,
		challenges:   challenges,
		verifier:     verifier,
		provisioner:  provisioner,
		rpID:         rpID,
		rpName:       rpName,
		challengeTTL: challengeTTL,
		log:          log,
	}
}

// RegisterOptions issues a registration ceremony: a fresh challenge, a random
// user handle, and the creation options the client feeds to the authenticator.
func (s *Service) RegisterOptions(ctx context.Context, params *proto.PasskeyRegisterOptionsParams) (*proto.PasskeyOptionsResult, error) {
	if s.verifier == nil {
		return nil, proto.ErrProviderNotConfigured.WithCausef("passkey ceremonies are not configured")
	}

	text, err := data.NewChallengeText()
	if err != nil {
		return nil, proto.ErrInternalError.WithCausef("generate challenge: %w", err)
	}
	userHandle, err := randomUserHandle()
	if err != nil {
		return nil, proto.ErrInternalError.WithCausef("generate user handle: %w", err)
	}

	challenge := &proto.ChallengeData{
		Kind:       proto.ChallengeKind_PasskeyRegister,
		Method:     proto.Method_Passkey,
		Provider:   "passkey",
		Challenge:  text,
		UserHandle: userHandle,
		ProfileDraft: &proto.ProfileDraft{
			Handle: params.Handle,
			Email:  params.Email,
			Phone:  params.Phone,
		},
	}
	id, err := s.challenges.Issue(ctx, challenge, s.challengeTTL)
	if err != nil {
		return nil, err
	}

	displayName := params.Handle
	if displayName == "" {
		displayName = "walletgate user"
	}
	options := map[string]any{
		"publicKey": map[string]any{
			"rp": map[string]any{
				"id":   s.rpID,
				"name": s.rpName,
			},
			"user": map[string]any{
				"id":          userHandle,
				"name":        displayName,
				"displayName": displayName,
			},
			"challenge": text,
			"pubKeyCredParams": []map[string]any{
				{"type": "public-key", "alg": -7},
				{"type": "public-key", "alg": -257},
			},
			"timeout":     s.challengeTTL.Milliseconds(),
			"attestation": "none",
		},
	}

	return &proto.PasskeyOptionsResult{
		ChallengeID: id,
		Options:     options,
		ExpiresInMs: s.challengeTTL.Milliseconds(),
	}, nil
}

// RegisterVerify completes a registration: the ceremony verifies, a custodial
// wallet is provisioned, and the account, binding and credential are created.
func (s *Service) RegisterVerify(ctx context.Context, params *proto.PasskeyVerifyParams) (*proto.User, error) {
	if s.verifier == nil {
		return nil, proto.ErrProviderNotConfigured.WithCausef("passkey ceremonies are not configured")
	}

	challenge, err := s.challenges.Consume(ctx, params.ChallengeID)
	if err != nil {
		return nil, err
	}
	if challenge.Kind != proto.ChallengeKind_PasskeyRegister {
		return nil, proto.ErrChallengeExpired
	}

	registration, err := s.verifier.VerifyRegistration(ctx, s.rpID, challenge.Challenge, params.Response)
	if err != nil {
		return nil, s.fail("registration ceremony", err)
	}
	if err := ValidateCOSEKey(registration.PublicKey); err != nil {
		return nil, s.fail("registration public key", err)
	}

	if _, found, err := s.credentials.GetByCredentialID(ctx, registration.CredentialID); err != nil {
		return nil, proto.ErrDatabaseError.WithCausef("get credential: %w", err)
	} else if found {
		return nil, proto.ErrBindingCollision
	}

	address, err := s.provisioner.Provision(ctx)
	if err != nil {
		return nil, proto.ErrInternalError.WithCausef("provision wallet: %w", err)
	}

	var profile *account.Profile
	if challenge.ProfileDraft != nil {
		profile = &account.Profile{
			Handle: challenge.ProfileDraft.Handle,
			Email:  challenge.ProfileDraft.Email,
		}
	}
	user, err := s.accounts.Login(ctx, proto.ResolvedIdentity{
		WalletAddress: address,
		Provider:      "passkey",
		Subject:       registration.CredentialID,
		Method:        proto.Method_Passkey,
	}, profile)
	if err != nil {
		return nil, err
	}

	err = s.credentials.Create(ctx, &data.PasskeyCredential{
		CredentialID: registration.CredentialID,
		UserID:       user.ID,
		PublicKey:    EncodePublicKey(registration.PublicKey),
		Counter:      registration.Counter,
		RPID:         s.rpID,
	})
	if err != nil {
		return nil, proto.ErrDatabaseError.WithCausef("create credential: %w", err)
	}
	return user, nil
}

// LoginOptions issues an assertion ceremony for a known user. The user must
// exist before a challenge is issued; an unknown user never burns one.
func (s *Service) LoginOptions(ctx context.Context, params *proto.PasskeyLoginOptionsParams) (*proto.PasskeyOptionsResult, error) {
	if s.verifier == nil {
		return nil, proto.ErrProviderNotConfigured.WithCausef("passkey ceremonies are not configured")
	}

	user, err := s.accounts.LookupUser(ctx, params.UserID, params.Handle)
	if err != nil {
		return nil, err
	}
	credentials, err := s.credentials.ListByUser(ctx, user.ID)
	if err != nil {
		return nil, proto.ErrDatabaseError.WithCausef("list credentials: %w", err)
	}
	if len(credentials) == 0 {
		return nil, proto.ErrUserNotFound
	}

	text, err := data.NewChallengeText()
	if err != nil {
		return nil, proto.ErrInternalError.WithCausef("generate challenge: %w", err)
	}

	allowedIDs := make([]string, 0, len(credentials))
	allowCredentials := make([]map[string]any, 0, len(credentials))
	for _, cred := range credentials {
		allowedIDs = append(allowedIDs, cred.CredentialID)
		allowCredentials = append(allowCredentials, map[string]any{
			"type": "public-key",
			"id":   cred.CredentialID,
		})
	}

	challenge := &proto.ChallengeData{
		Kind:                 proto.ChallengeKind_PasskeyLogin,
		Method:               proto.Method_Passkey,
		Provider:             "passkey",
		Challenge:            text,
		UserID:               user.ID,
		AllowedCredentialIDs: allowedIDs,
	}
	id, err := s.challenges.Issue(ctx, challenge, s.challengeTTL)
	if err != nil {
		return nil, err
	}

	options := map[string]any{
		"publicKey": map[string]any{
			"rpId":             s.rpID,
			"challenge":        text,
			"allowCredentials": allowCredentials,
			"timeout":          s.challengeTTL.Milliseconds(),
			"userVerification": "preferred",
		},
	}

	return &proto.PasskeyOptionsResult{
		ChallengeID: id,
		Options:     options,
		ExpiresInMs: s.challengeTTL.Milliseconds(),
	}, nil
}

// LoginVerify completes an assertion. The asserted credential must be in the
// challenge's allow-list, and a signature counter that moved backwards is a
// cloned-authenticator signal and rejects the login.
func (s *Service) LoginVerify(ctx context.Context, params *proto.PasskeyVerifyParams) (*proto.User, error) {
	if s.verifier == nil {
		return nil, proto.ErrProviderNotConfigured.WithCausef("passkey ceremonies are not configured")
	}

	challenge, err := s.challenges.Consume(ctx, params.ChallengeID)
	if err != nil {
		return nil, err
	}
	if challenge.Kind != proto.ChallengeKind_PasskeyLogin {
		return nil, proto.ErrChallengeExpired
	}

	rawID, _ := params.Response["credentialId"].(string)
	credentialID, err := NormalizeCredentialID(rawID)
	if err != nil {
		return nil, s.fail("assertion credential id", err)
	}
	if !contains(challenge.AllowedCredentialIDs, credentialID) {
		return nil, s.fail("assertion credential", errAllowList)
	}

	cred, found, err := s.credentials.GetByCredentialID(ctx, credentialID)
	if err != nil {
		return nil, proto.ErrDatabaseError.WithCausef("get credential: %w", err)
	}
	if !found || cred.UserID != challenge.UserID {
		return nil, s.fail("assertion credential", errAllowList)
	}

	publicKey, err := DecodePublicKey(cred.PublicKey)
	if err != nil {
		return nil, proto.ErrInternalError.WithCausef("decode stored public key: %w", err)
	}
	assertion, err := s.verifier.VerifyAssertion(ctx, s.rpID, challenge.Challenge, &KnownCredential{
		CredentialID: cred.CredentialID,
		PublicKey:    publicKey,
		Counter:      cred.Counter,
	}, params.Response)
	if err != nil {
		return nil, s.fail("assertion ceremony", err)
	}

	// Zero counters mean the authenticator does not implement one.
	if assertion.Counter != 0 || cred.Counter != 0 {
		if assertion.Counter <= cred.Counter {
			return nil, s.fail("assertion counter", errCounterRegression)
		}
		if err := s.credentials.UpdateCounter(ctx, cred.CredentialID, assertion.Counter); err != nil {
			return nil, proto.ErrDatabaseError.WithCausef("update counter: %w", err)
		}
	} else {
		if err := s.credentials.TouchLastUsed(ctx, cred.CredentialID); err != nil {
			s.log.Warn().Err(err).Msg("passkey: touch credential failed")
		}
	}

	user, err := s.accounts.LookupUser(ctx, challenge.UserID, "")
	if err != nil {
		return nil, err
	}
	return user, nil
}

var (
	errAllowList         = errors.New("credential is not in the allow-list")
	errCounterRegression = errors.New("signature counter did not advance")
)

func (s *Service) fail(stage string, cause error) error {
	s.log.Info().Err(cause).Str("stage", stage).Msg("passkey verification failed")
	return proto.ErrVerificationFailed.WithCause(cause)
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func randomUserHandle() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
