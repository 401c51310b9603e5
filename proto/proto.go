// Package proto holds the wire-level types and error taxonomy shared between
// the RPC surface, the auth handlers and the data layer.
package proto

import (
	"strings"
	"time"
)

// Method is the identity method tag the resolver dispatches on.
type Method string

const (
	Method_Wallet  Method = "wallet"
	Method_Passkey Method = "passkey"
	Method_Social  Method = "social"
)

// ProviderWallet is the only provider the wallet method accepts.
const ProviderWallet = "wallet"

func (m Method) IsValid() bool {
	switch m {
	case Method_Wallet, Method_Passkey, Method_Social:
		return true
	}
	return false
}

// NormalizeProvider lowercases and trims a provider tag. The wallet method is
// always pinned to ProviderWallet regardless of what the caller sent.
func NormalizeProvider(m Method, provider string) string {
	if m == Method_Wallet {
		return ProviderWallet
	}
	return strings.ToLower(strings.TrimSpace(provider))
}

type ChallengeParams struct {
	Method      Method `json:"method"`
	Provider    string `json:"provider,omitempty"`
	SubjectHint string `json:"subjectHint,omitempty"`
}

type ChallengeResult struct {
	ChallengeID string `json:"challengeId"`
	Challenge   string `json:"challenge"`
	ExpiresInMs int64  `json:"expiresInMs"`
}

type VerifyParams struct {
	ChallengeID     string     `json:"challengeId"`
	Method          Method     `json:"method"`
	Provider        string     `json:"provider,omitempty"`
	Subject         string     `json:"subject,omitempty"`
	WalletAddress   string     `json:"walletAddress,omitempty"`
	Proof           string     `json:"proof"`
	TermsVersion    string     `json:"termsVersion,omitempty"`
	TermsAcceptedAt *time.Time `json:"termsAcceptedAt,omitempty"`
}

type SessionResult struct {
	WalletAddress string `json:"walletAddress"`
	User          *User  `json:"user"`
	Token         string `json:"token"`
	Method        Method `json:"method"`
}

// User is the public projection of an account; internal columns stay in data.
type User struct {
	ID            string `json:"id"`
	WalletAddress string `json:"walletAddress"`
	Handle        string `json:"handle,omitempty"`
	Email         string `json:"email,omitempty"`
}

type SocialStartParams struct {
	Provider string `json:"provider"`
}

type SocialStartResult struct {
	State            string `json:"state"`
	AuthorizationURL string `json:"authorizationUrl"`
	ExpiresInMs      int64  `json:"expiresInMs"`
}

type SocialExchangeParams struct {
	State           string     `json:"state"`
	Code            string     `json:"code"`
	TermsVersion    string     `json:"termsVersion,omitempty"`
	TermsAcceptedAt *time.Time `json:"termsAcceptedAt,omitempty"`
}

type PasskeyRegisterOptionsParams struct {
	Handle string `json:"handle,omitempty"`
	Email  string `json:"email,omitempty"`
	Phone  string `json:"phone,omitempty"`
}

type PasskeyOptionsResult struct {
	ChallengeID string `json:"challengeId"`
	// Options is the ceremony payload from the external WebAuthn verifier,
	// passed through opaquely.
	Options     map[string]any `json:"options"`
	ExpiresInMs int64          `json:"expiresInMs"`
}

type PasskeyVerifyParams struct {
	ChallengeID string `json:"challengeId"`
	// Response is the client's attestation/assertion payload, opaque to us
	// except for the credential id the adapter extracts.
	Response map[string]any `json:"response"`
}

type PasskeyLoginOptionsParams struct {
	UserID string `json:"userId,omitempty"`
	Handle string `json:"handle,omitempty"`
}
