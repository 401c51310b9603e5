package rpc

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/halyardhq/walletgate/account"
	"github.com/halyardhq/walletgate/o11y"
	"github.com/halyardhq/walletgate/proto"
	"github.com/halyardhq/walletgate/wallet"
)

func decodeParams(w http.ResponseWriter, r *http.Request, params any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(params); err != nil {
		proto.RespondWithError(w, proto.ErrInvalidRequest.WithCausef("decode request: %w", err))
		return false
	}
	return true
}

func respondJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(v)
}

// session mints the token and assembles the result every login path returns.
func (s *RPC) session(w http.ResponseWriter, user *proto.User, method proto.Method) {
	token, err := s.Sessions.Issue(user, method)
	if err != nil {
		proto.RespondWithError(w, proto.ErrInternalError.WithCausef("issue session: %w", err))
		return
	}
	o11y.RecordSessionIssued()

	respondJSON(w, &proto.SessionResult{
		WalletAddress: user.WalletAddress,
		User:          user,
		Token:         token,
		Method:        method,
	})
}

func (s *RPC) challengeHandler(w http.ResponseWriter, r *http.Request) {
	var params proto.ChallengeParams
	if !decodeParams(w, r, &params) {
		return
	}

	result, err := s.Resolver.Challenge(r.Context(), &params)
	if err != nil {
		proto.RespondWithError(w, err)
		return
	}
	o11y.RecordChallengeIssued(string(proto.ChallengeKind_Verify))
	respondJSON(w, result)
}

func (s *RPC) verifyHandler(w http.ResponseWriter, r *http.Request) {
	var params proto.VerifyParams
	if !decodeParams(w, r, &params) {
		return
	}

	started := time.Now()
	resolved, err := s.Resolver.Verify(r.Context(), &params)
	o11y.RecordVerification(string(params.Method), err, started)
	if err != nil {
		proto.RespondWithError(w, err)
		return
	}

	user, err := s.Accounts.Login(r.Context(), resolved, &account.Profile{
		TermsVersion:    params.TermsVersion,
		TermsAcceptedAt: params.TermsAcceptedAt,
	})
	if err != nil {
		proto.RespondWithError(w, err)
		return
	}
	s.session(w, user, resolved.Method)
}

func (s *RPC) socialStartHandler(w http.ResponseWriter, r *http.Request) {
	var params proto.SocialStartParams
	if !decodeParams(w, r, &params) {
		return
	}

	result, err := s.Social.Start(r.Context(), &params)
	if err != nil {
		proto.RespondWithError(w, err)
		return
	}
	o11y.RecordChallengeIssued(string(proto.ChallengeKind_OAuthState))
	respondJSON(w, result)
}

func (s *RPC) socialExchangeHandler(w http.ResponseWriter, r *http.Request) {
	var params proto.SocialExchangeParams
	if !decodeParams(w, r, &params) {
		return
	}

	started := time.Now()
	identity, err := s.Social.Exchange(r.Context(), &params)
	o11y.RecordVerification(string(proto.Method_Social), err, started)
	if err != nil {
		proto.RespondWithError(w, err)
		return
	}

	// Social accounts always land on the deterministic derived address, the
	// same one the local-proof fallback resolves, so an identity's wallet is
	// stable across verification paths.
	resolved := proto.ResolvedIdentity{
		WalletAddress: wallet.Derive(identity.Provider, identity.Subject),
		Provider:      identity.Provider,
		Subject:       identity.Subject,
		Method:        proto.Method_Social,
	}
	user, err := s.Accounts.Login(r.Context(), resolved, &account.Profile{
		Handle:          identity.Handle,
		Email:           identity.Email,
		EmailVerified:   identity.EmailVerified,
		TermsVersion:    params.TermsVersion,
		TermsAcceptedAt: params.TermsAcceptedAt,
	})
	if err != nil {
		proto.RespondWithError(w, err)
		return
	}
	s.session(w, user, proto.Method_Social)
}

func (s *RPC) passkeyRegisterOptionsHandler(w http.ResponseWriter, r *http.Request) {
	var params proto.PasskeyRegisterOptionsParams
	if !decodeParams(w, r, &params) {
		return
	}

	result, err := s.Passkeys.RegisterOptions(r.Context(), &params)
	if err != nil {
		proto.RespondWithError(w, err)
		return
	}
	o11y.RecordChallengeIssued(string(proto.ChallengeKind_PasskeyRegister))
	respondJSON(w, result)
}

func (s *RPC) passkeyRegisterVerifyHandler(w http.ResponseWriter, r *http.Request) {
	var params proto.PasskeyVerifyParams
	if !decodeParams(w, r, &params) {
		return
	}

	started := time.Now()
	user, err := s.Passkeys.RegisterVerify(r.Context(), &params)
	o11y.RecordVerification(string(proto.Method_Passkey), err, started)
	if err != nil {
		proto.RespondWithError(w, err)
		return
	}
	s.session(w, user, proto.Method_Passkey)
}

func (s *RPC) passkeyLoginOptionsHandler(w http.ResponseWriter, r *http.Request) {
	var params proto.PasskeyLoginOptionsParams
	if !decodeParams(w, r, &params) {
		return
	}

	result, err := s.Passkeys.LoginOptions(r.Context(), &params)
	if err != nil {
		proto.RespondWithError(w, err)
		return
	}
	o11y.RecordChallengeIssued(string(proto.ChallengeKind_PasskeyLogin))
	respondJSON(w, result)
}

func (s *RPC) passkeyLoginVerifyHandler(w http.ResponseWriter, r *http.Request) {
	var params proto.PasskeyVerifyParams
	if !decodeParams(w, r, &params) {
		return
	}

	started := time.Now()
	user, err := s.Passkeys.LoginVerify(r.Context(), &params)
	o11y.RecordVerification(string(proto.Method_Passkey), err, started)
	if err != nil {
		proto.RespondWithError(w, err)
		return
	}
	s.session(w, user, proto.Method_Passkey)
}
