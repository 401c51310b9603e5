// Package remote is the HTTP client for the delegated identity verifier that
// attests passkey and social proofs. Requests are canonicalized with JCS and
// signed with a shared HMAC secret so the verifier can authenticate us.
package remote

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gowebpki/jcs"

	"github.com/halyardhq/walletgate/auth"
	"github.com/halyardhq/walletgate/proto"
)

const (
	HeaderRequestID = "X-Walletgate-Request-Id"
	HeaderSignature = "X-Walletgate-Signature"
)

type Client struct {
	endpoint string
	secret   string
	timeout  time.Duration
	client   *http.Client
}

func NewClient(endpoint, secret string, timeout time.Duration, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		endpoint: endpoint,
		secret:   secret,
		timeout:  timeout,
		client:   httpClient,
	}
}

func (c *Client) Configured() bool {
	return c != nil && c.endpoint != ""
}

type verifyRequest struct {
	RequestID       string `json:"requestId"`
	Method          string `json:"method"`
	Provider        string `json:"provider"`
	Subject         string `json:"subject"`
	Challenge       string `json:"challenge"`
	Proof           string `json:"proof"`
	ExpectedAddress string `json:"expectedAddress,omitempty"`
}

type verifyResponse struct {
	OK            bool   `json:"ok"`
	WalletAddress string `json:"walletAddress"`
	Provider      string `json:"provider"`
	Subject       string `json:"subject"`
	Reason        string `json:"reason,omitempty"`
}

// Verify submits the proof to the remote verifier and returns the identity it
// attests. Any transport, signing or validation failure is returned as-is so
// the caller can decide whether to fall back.
func (c *Client) Verify(ctx context.Context, req *auth.VerifyRequest) (proto.ResolvedIdentity, error) {
	if !c.Configured() {
		return proto.ResolvedIdentity{}, fmt.Errorf("remote verifier is not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body := verifyRequest{
		RequestID:       uuid.NewString(),
		Method:          string(req.Method),
		Provider:        req.Provider,
		Subject:         req.Subject,
		Challenge:       req.Challenge,
		Proof:           req.Proof,
		ExpectedAddress: req.ExpectedAddress,
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return proto.ResolvedIdentity{}, fmt.Errorf("encode request: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return proto.ResolvedIdentity{}, fmt.Errorf("canonicalize request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(canonical))
	if err != nil {
		return proto.ResolvedIdentity{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(HeaderRequestID, body.RequestID)
	httpReq.Header.Set(HeaderSignature, Sign(c.secret, canonical))

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return proto.ResolvedIdentity{}, fmt.Errorf("remote verifier unreachable: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if err != nil {
		return proto.ResolvedIdentity{}, fmt.Errorf("read response: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return proto.ResolvedIdentity{}, fmt.Errorf("remote verifier returned status %d", httpResp.StatusCode)
	}

	var resp verifyResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return proto.ResolvedIdentity{}, fmt.Errorf("decode response: %w", err)
	}
	if !resp.OK {
		if resp.Reason != "" {
			return proto.ResolvedIdentity{}, fmt.Errorf("remote verifier rejected proof: %s", resp.Reason)
		}
		return proto.ResolvedIdentity{}, fmt.Errorf("remote verifier rejected proof")
	}
	if !proto.IsValidAddress(resp.WalletAddress) {
		return proto.ResolvedIdentity{}, fmt.Errorf("remote verifier returned invalid wallet address")
	}
	// The attested identity must be the one we asked about.
	if resp.Provider != req.Provider || resp.Subject != req.Subject {
		return proto.ResolvedIdentity{}, fmt.Errorf("remote verifier attested a different identity")
	}

	return proto.ResolvedIdentity{
		WalletAddress: proto.NormalizeAddress(resp.WalletAddress),
		Provider:      resp.Provider,
		Subject:       resp.Subject,
		Method:        req.Method,
	}, nil
}

// Sign computes the hex HMAC-SHA256 request signature over the canonical body.
func Sign(secret string, canonicalBody []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(canonicalBody)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks an inbound signature header against the canonical
// body, for use by verifier implementations and tests.
func VerifySignature(secret string, canonicalBody []byte, signature string) bool {
	return hmac.Equal([]byte(Sign(secret, canonicalBody)), []byte(signature))
}
