// Package social runs the OAuth authorization-code flow with PKCE against the
// configured social providers. The state parameter doubles as the single-use
// challenge id, so an exchange consumes its state exactly once.
package social

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/rs/zerolog"

	"github.com/halyardhq/walletgate/config"
	"github.com/halyardhq/walletgate/data"
	"github.com/halyardhq/walletgate/proto"
)

// Identity is what a completed exchange yields: the provider's stable subject
// plus whatever profile the provider shared.
type Identity struct {
	Provider      string
	Subject       string
	Email         string
	EmailVerified bool
	Handle        string
}

type Service struct {
	providers  map[string]config.SocialProviderConfig
	challenges *data.ChallengeStore
	secrets    SecretProvider
	client     *http.Client
	stateTTL   time.Duration
	log        zerolog.Logger
}

func NewService(
	providers map[string]config.SocialProviderConfig,
	challenges *data.ChallengeStore,
	secrets SecretProvider,
	httpClient *http.Client,
	stateTTL time.Duration,
	log zerolog.Logger,
) *Service {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Service{
		providers:  providers,
		challenges: challenges,
		secrets:    secrets,
		client:     httpClient,
		stateTTL:   stateTTL,
		log:        log,
	}
}

func (s *Service) providerConfig(provider string) (config.SocialProviderConfig, error) {
	cfg, ok := s.providers[provider]
	if !ok || cfg.ClientID == "" || cfg.AuthURL == "" || cfg.TokenURL == "" {
		return config.SocialProviderConfig{}, proto.ErrProviderNotConfigured.WithCausef("social provider %q is not configured", provider)
	}
	return cfg, nil
}

// Start issues single-use OAuth state bound to a fresh PKCE verifier and
// returns the authorization URL the client should open.
func (s *Service) Start(ctx context.Context, params *proto.SocialStartParams) (*proto.SocialStartResult, error) {
	provider := proto.NormalizeProvider(proto.Method_Social, params.Provider)
	if provider == "" {
		return nil, proto.ErrInvalidRequest.WithCausef("provider is required")
	}
	cfg, err := s.providerConfig(provider)
	if err != nil {
		return nil, err
	}

	codeVerifier, err := randomURLToken(32)
	if err != nil {
		return nil, proto.ErrInternalError.WithCausef("generate code verifier: %w", err)
	}
	codeVerifierHash := sha256.Sum256([]byte(codeVerifier))
	codeChallenge := base64.RawURLEncoding.EncodeToString(codeVerifierHash[:])

	challenge := &proto.ChallengeData{
		Kind:         proto.ChallengeKind_OAuthState,
		Method:       proto.Method_Social,
		Provider:     provider,
		Challenge:    codeChallenge,
		CodeVerifier: codeVerifier,
	}
	state, err := s.challenges.Issue(ctx, challenge, s.stateTTL)
	if err != nil {
		return nil, err
	}

	authURL, err := url.Parse(cfg.AuthURL)
	if err != nil {
		return nil, proto.ErrInternalError.WithCausef("parse auth url: %w", err)
	}
	q := authURL.Query()
	q.Set("response_type", "code")
	q.Set("client_id", cfg.ClientID)
	q.Set("redirect_uri", cfg.RedirectURL)
	q.Set("state", state)
	q.Set("code_challenge", codeChallenge)
	q.Set("code_challenge_method", "S256")
	if len(cfg.Scopes) > 0 {
		q.Set("scope", strings.Join(cfg.Scopes, " "))
	}
	authURL.RawQuery = q.Encode()

	return &proto.SocialStartResult{
		State:            state,
		AuthorizationURL: authURL.String(),
		ExpiresInMs:      s.stateTTL.Milliseconds(),
	}, nil
}

// Exchange consumes the state, trades the authorization code for tokens with
// the stored PKCE verifier, and resolves the provider identity.
func (s *Service) Exchange(ctx context.Context, params *proto.SocialExchangeParams) (*Identity, error) {
	if params.Code == "" {
		return nil, proto.ErrInvalidRequest.WithCausef("code is required")
	}

	challenge, err := s.challenges.Consume(ctx, params.State)
	if err != nil {
		return nil, err
	}
	if challenge.Kind != proto.ChallengeKind_OAuthState {
		return nil, proto.ErrChallengeExpired
	}
	cfg, err := s.providerConfig(challenge.Provider)
	if err != nil {
		return nil, err
	}

	token, err := s.exchangeCode(ctx, cfg, challenge.Provider, params.Code, challenge.CodeVerifier)
	if err != nil {
		s.log.Info().Err(err).Str("provider", challenge.Provider).Msg("social token exchange failed")
		return nil, proto.ErrVerificationFailed.WithCause(err)
	}

	identity, err := s.resolveIdentity(ctx, cfg, challenge.Provider, token)
	if err != nil {
		s.log.Info().Err(err).Str("provider", challenge.Provider).Msg("social identity resolution failed")
		return nil, proto.ErrVerificationFailed.WithCause(err)
	}
	return identity, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	IDToken     string `json:"id_token"`
	Error       string `json:"error"`
	ErrorDesc   string `json:"error_description"`
}

func (s *Service) exchangeCode(ctx context.Context, cfg config.SocialProviderConfig, provider, code, codeVerifier string) (*tokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", cfg.RedirectURL)
	form.Set("client_id", cfg.ClientID)
	form.Set("code_verifier", codeVerifier)

	if s.secrets != nil {
		clientSecret, err := s.secrets.GetClientSecret(ctx, provider)
		if err != nil {
			return nil, fmt.Errorf("get client secret: %w", err)
		}
		if clientSecret != "" {
			form.Set("client_secret", clientSecret)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	var token tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	if token.Error != "" {
		return nil, fmt.Errorf("oauth error: %s - %s", token.Error, token.ErrorDesc)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("no access_token in response")
	}
	return &token, nil
}

// resolveIdentity extracts the stable subject from the userinfo endpoint,
// falling back to id_token claims for OIDC providers that carry the profile
// there. The id_token arrived over the direct TLS channel to the token
// endpoint, so its claims are read without signature verification.
func (s *Service) resolveIdentity(ctx context.Context, cfg config.SocialProviderConfig, provider string, token *tokenResponse) (*Identity, error) {
	identity := &Identity{Provider: provider}

	if cfg.UserURL != "" {
		info, err := s.fetchUserInfo(ctx, cfg.UserURL, token.AccessToken)
		if err != nil {
			return nil, err
		}
		applyClaims(identity, info)
	}

	if identity.Subject == "" && token.IDToken != "" {
		parsed, err := jwt.ParseInsecure([]byte(token.IDToken))
		if err != nil {
			return nil, fmt.Errorf("parse id_token: %w", err)
		}
		claims, err := parsed.AsMap(ctx)
		if err != nil {
			return nil, fmt.Errorf("read id_token claims: %w", err)
		}
		applyClaims(identity, claims)
	}

	if identity.Subject == "" {
		return nil, fmt.Errorf("provider did not return a stable subject")
	}
	return identity, nil
}

func (s *Service) fetchUserInfo(ctx context.Context, userURL, accessToken string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, userURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo status %d", resp.StatusCode)
	}

	var info map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode userinfo: %w", err)
	}
	return info, nil
}

// applyClaims maps the common claim shapes: OIDC providers use "sub"/"email",
// GitHub-style OAuth APIs use a numeric "id" and a "login" handle.
func applyClaims(identity *Identity, claims map[string]any) {
	if identity.Subject == "" {
		switch sub := claims["sub"].(type) {
		case string:
			identity.Subject = sub
		}
	}
	if identity.Subject == "" {
		switch id := claims["id"].(type) {
		case float64:
			identity.Subject = strconv.FormatInt(int64(id), 10)
		case string:
			identity.Subject = id
		case json.Number:
			identity.Subject = id.String()
		}
	}
	if identity.Email == "" {
		if email, ok := claims["email"].(string); ok {
			identity.Email = email
		}
	}
	if !identity.EmailVerified {
		if verified, ok := claims["email_verified"].(bool); ok {
			identity.EmailVerified = verified
		}
	}
	if identity.Handle == "" {
		if login, ok := claims["login"].(string); ok {
			identity.Handle = login
		} else if username, ok := claims["preferred_username"].(string); ok {
			identity.Handle = username
		}
	}
}

func randomURLToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
