package passkey

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/halyardhq/walletgate/auth/localproof"
)

// Registration is the outcome of a verified attestation ceremony.
type Registration struct {
	CredentialID string
	PublicKey    []byte
	Counter      uint32
}

// Assertion is the outcome of a verified assertion ceremony.
type Assertion struct {
	CredentialID string
	Counter      uint32
}

// KnownCredential is what an assertion is checked against.
type KnownCredential struct {
	CredentialID string
	PublicKey    []byte
	Counter      uint32
}

// CeremonyVerifier checks WebAuthn ceremony responses. The production
// implementation delegates to the external WebAuthn verifier service; the
// local one accepts HMAC-proofed responses when policy permits.
type CeremonyVerifier interface {
	VerifyRegistration(ctx context.Context, rpID, challenge string, response map[string]any) (*Registration, error)
	VerifyAssertion(ctx context.Context, rpID, challenge string, credential *KnownCredential, response map[string]any) (*Assertion, error)
}

// HTTPCeremonyVerifier posts ceremonies to the external WebAuthn verifier.
type HTTPCeremonyVerifier struct {
	endpoint string
	timeout  time.Duration
	client   *http.Client
}

func NewHTTPCeremonyVerifier(endpoint string, timeout time.Duration, httpClient *http.Client) *HTTPCeremonyVerifier {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPCeremonyVerifier{
		endpoint: endpoint,
		timeout:  timeout,
		client:   httpClient,
	}
}

type ceremonyRequest struct {
	RPID       string         `json:"rpId"`
	Challenge  string         `json:"challenge"`
	Response   map[string]any `json:"response"`
	Credential *struct {
		CredentialID string `json:"credentialId"`
		PublicKey    string `json:"publicKey"`
		Counter      uint32 `json:"counter"`
	} `json:"credential,omitempty"`
}

type ceremonyResponse struct {
	OK           bool   `json:"ok"`
	CredentialID string `json:"credentialId"`
	PublicKey    string `json:"publicKey"`
	Counter      uint32 `json:"counter"`
	Reason       string `json:"reason,omitempty"`
}

func (v *HTTPCeremonyVerifier) VerifyRegistration(ctx context.Context, rpID, challenge string, response map[string]any) (*Registration, error) {
	resp, err := v.post(ctx, v.endpoint+"/register/verify", &ceremonyRequest{
		RPID:      rpID,
		Challenge: challenge,
		Response:  response,
	})
	if err != nil {
		return nil, err
	}

	credentialID, err := NormalizeCredentialID(resp.CredentialID)
	if err != nil {
		return nil, err
	}
	publicKey, err := base64.RawURLEncoding.DecodeString(resp.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("decode public key: %w", err)
	}
	return &Registration{
		CredentialID: credentialID,
		PublicKey:    publicKey,
		Counter:      resp.Counter,
	}, nil
}

func (v *HTTPCeremonyVerifier) VerifyAssertion(ctx context.Context, rpID, challenge string, credential *KnownCredential, response map[string]any) (*Assertion, error) {
	req := &ceremonyRequest{
		RPID:      rpID,
		Challenge: challenge,
		Response:  response,
	}
	req.Credential = &struct {
		CredentialID string `json:"credentialId"`
		PublicKey    string `json:"publicKey"`
		Counter      uint32 `json:"counter"`
	}{
		CredentialID: credential.CredentialID,
		PublicKey:    base64.RawURLEncoding.EncodeToString(credential.PublicKey),
		Counter:      credential.Counter,
	}

	resp, err := v.post(ctx, v.endpoint+"/assertion/verify", req)
	if err != nil {
		return nil, err
	}
	credentialID, err := NormalizeCredentialID(resp.CredentialID)
	if err != nil {
		return nil, err
	}
	return &Assertion{
		CredentialID: credentialID,
		Counter:      resp.Counter,
	}, nil
}

func (v *HTTPCeremonyVerifier) post(ctx context.Context, url string, body *ceremonyRequest) (*ceremonyResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode ceremony request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := v.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("webauthn verifier unreachable: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("webauthn verifier returned status %d", httpResp.StatusCode)
	}

	var resp ceremonyResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if !resp.OK {
		if resp.Reason != "" {
			return nil, fmt.Errorf("webauthn verifier rejected ceremony: %s", resp.Reason)
		}
		return nil, fmt.Errorf("webauthn verifier rejected ceremony")
	}
	return &resp, nil
}

// LocalCeremonyVerifier accepts ceremony responses that carry the HMAC local
// proof over the credential id and challenge, for deployments without the
// external verifier.
type LocalCeremonyVerifier struct {
	secret   string
	audience string
}

func NewLocalCeremonyVerifier(secret, audience string) *LocalCeremonyVerifier {
	return &LocalCeremonyVerifier{
		secret:   secret,
		audience: audience,
	}
}

func (v *LocalCeremonyVerifier) VerifyRegistration(ctx context.Context, rpID, challenge string, response map[string]any) (*Registration, error) {
	credentialID, err := v.check(challenge, response)
	if err != nil {
		return nil, err
	}

	rawKey, _ := response["publicKey"].(string)
	publicKey, err := base64.RawURLEncoding.DecodeString(rawKey)
	if err != nil {
		return nil, fmt.Errorf("decode public key: %w", err)
	}
	return &Registration{
		CredentialID: credentialID,
		PublicKey:    publicKey,
		Counter:      responseCounter(response),
	}, nil
}

func (v *LocalCeremonyVerifier) VerifyAssertion(ctx context.Context, rpID, challenge string, credential *KnownCredential, response map[string]any) (*Assertion, error) {
	credentialID, err := v.check(challenge, response)
	if err != nil {
		return nil, err
	}
	if credentialID != credential.CredentialID {
		return nil, fmt.Errorf("assertion credential mismatch")
	}
	return &Assertion{
		CredentialID: credentialID,
		Counter:      responseCounter(response),
	}, nil
}

func (v *LocalCeremonyVerifier) check(challenge string, response map[string]any) (string, error) {
	if v.secret == "" {
		return "", fmt.Errorf("local proof secret is not configured")
	}
	rawID, _ := response["credentialId"].(string)
	credentialID, err := NormalizeCredentialID(rawID)
	if err != nil {
		return "", err
	}
	proof, _ := response["proof"].(string)

	payload := localproof.Payload("passkey", "passkey", credentialID, challenge, v.audience)
	if !localproof.Verify(v.secret, payload, proof) {
		return "", fmt.Errorf("local proof mismatch")
	}
	return credentialID, nil
}

func responseCounter(response map[string]any) uint32 {
	switch c := response["counter"].(type) {
	case float64:
		return uint32(c)
	case int:
		return uint32(c)
	case json.Number:
		n, _ := c.Int64()
		return uint32(n)
	}
	return 0
}
