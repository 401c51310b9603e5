package proto

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Error is the JSON error envelope returned by every endpoint. Matching is by
// Name, so sentinel errors below survive WithCause/WithCausef decoration.
type Error struct {
	Name       string `json:"error"`
	Code       int    `json:"code"`
	Message    string `json:"msg"`
	Cause      string `json:"cause,omitempty"`
	HTTPStatus int    `json:"status"`

	cause error
}

func (e Error) Error() string {
	if e.Cause != "" {
		return fmt.Sprintf("%s %d: %s: %s", e.Name, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s %d: %s", e.Name, e.Code, e.Message)
}

func (e Error) Is(target error) bool {
	var t Error
	if errors.As(target, &t) {
		return e.Name == t.Name
	}
	return false
}

func (e Error) Unwrap() error {
	return e.cause
}

func (e Error) WithCause(cause error) Error {
	err := e
	err.cause = cause
	err.Cause = cause.Error()
	return err
}

func (e Error) WithCausef(format string, args ...interface{}) Error {
	cause := fmt.Errorf(format, args...)
	err := e
	err.cause = cause
	err.Cause = cause.Error()
	return err
}

// RespondWithError writes err as the JSON error envelope. Unknown errors are
// masked as ErrInternalError so collaborator faults never leak details.
func RespondWithError(w http.ResponseWriter, err error) {
	rpcErr := Error{}
	if !errors.As(err, &rpcErr) {
		rpcErr = ErrInternalError.WithCause(err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(rpcErr.HTTPStatus)
	_ = json.NewEncoder(w).Encode(rpcErr)
}

var (
	// Request validation, rejected before any side effect.
	ErrInvalidRequest = Error{Name: "InvalidRequest", Code: 1000, Message: "invalid request", HTTPStatus: http.StatusBadRequest}

	// Unknown, already consumed or TTL-exceeded challenge/state. The three
	// cases are deliberately indistinguishable to the caller.
	ErrChallengeExpired = Error{Name: "ChallengeExpired", Code: 1001, Message: "challenge invalid or expired", HTTPStatus: http.StatusUnauthorized}

	ErrProviderNotAllowed    = Error{Name: "ProviderNotAllowed", Code: 1002, Message: "provider not allowed", HTTPStatus: http.StatusForbidden}
	ErrProviderNotConfigured = Error{Name: "ProviderNotConfigured", Code: 1003, Message: "provider not configured", HTTPStatus: http.StatusForbidden}

	// Signature mismatch, local proof mismatch, remote rejection and address
	// mismatch all collapse into this one outcome.
	ErrVerificationFailed = Error{Name: "VerificationFailed", Code: 1004, Message: "verification failed", HTTPStatus: http.StatusUnauthorized}

	// A (method, provider, subject) identity already bound to another user.
	ErrBindingCollision = Error{Name: "BindingCollision", Code: 1005, Message: "identity already bound to another account", HTTPStatus: http.StatusConflict}

	// Strict deployments refuse the node-local challenge fallback.
	ErrDurableStoreRequired = Error{Name: "DurableStoreRequired", Code: 1006, Message: "durable challenge store required", HTTPStatus: http.StatusServiceUnavailable}

	ErrUserNotFound = Error{Name: "UserNotFound", Code: 1007, Message: "user not found", HTTPStatus: http.StatusNotFound}

	ErrDatabaseError = Error{Name: "DatabaseError", Code: 1100, Message: "database error", HTTPStatus: http.StatusInternalServerError}
	ErrInternalError = Error{Name: "InternalError", Code: 1101, Message: "internal error", HTTPStatus: http.StatusInternalServerError}
)
