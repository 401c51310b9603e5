package proto

import (
	"time"
)

// ChallengeKind distinguishes what a stored single-use record anchors: a
// verify challenge, a passkey ceremony, or social OAuth state. One record
// shape covers all of them, the way an auth commitment does.
type ChallengeKind string

const (
	ChallengeKind_Verify          ChallengeKind = "verify"
	ChallengeKind_PasskeyRegister ChallengeKind = "passkey:register"
	ChallengeKind_PasskeyLogin    ChallengeKind = "passkey:login"
	ChallengeKind_OAuthState      ChallengeKind = "oauth:state"
)

// ProfileDraft carries optional profile fields requested at passkey
// registration time; they become the account profile once the ceremony
// verifies.
type ProfileDraft struct {
	Handle string `json:"handle,omitempty"`
	Email  string `json:"email,omitempty"`
	Phone  string `json:"phone,omitempty"`
}

// ChallengeData is a single-use, TTL-bound record keyed by an unguessable
// random id. It is consumable at most once; consumption is an atomic
// read-and-delete in the store.
type ChallengeData struct {
	ID        string        `json:"id" dynamodbav:"ID"`
	Kind      ChallengeKind `json:"kind" dynamodbav:"Kind"`
	Method    Method        `json:"method" dynamodbav:"Method"`
	Provider  string        `json:"provider,omitempty" dynamodbav:"Provider"`
	Challenge string        `json:"challenge" dynamodbav:"Challenge"`
	CreatedAt time.Time     `json:"createdAt" dynamodbav:"CreatedAt"`

	SubjectHint string `json:"subjectHint,omitempty" dynamodbav:"SubjectHint,omitempty"`

	// Passkey registration.
	UserHandle   string        `json:"userHandle,omitempty" dynamodbav:"UserHandle,omitempty"`
	ProfileDraft *ProfileDraft `json:"profileDraft,omitempty" dynamodbav:"ProfileDraft,omitempty"`

	// Passkey login.
	UserID               string   `json:"userId,omitempty" dynamodbav:"UserID,omitempty"`
	AllowedCredentialIDs []string `json:"allowedCredentialIds,omitempty" dynamodbav:"AllowedCredentialIDs,omitempty"`

	// Social OAuth state (PKCE).
	CodeVerifier string `json:"codeVerifier,omitempty" dynamodbav:"CodeVerifier,omitempty"`
}

// ExpiresAt is the absolute expiry for a given TTL, measured from CreatedAt.
func (c *ChallengeData) ExpiresAt(ttl time.Duration) time.Time {
	return c.CreatedAt.Add(ttl)
}

func (c *ChallengeData) Expired(ttl time.Duration, now time.Time) bool {
	return now.After(c.ExpiresAt(ttl))
}
