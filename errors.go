package passport

import (
	"errors"
	"net/http"
)

// Failure taxonomy shared by the service, the stores and the HTTP layer.
// Compare with errors.Is; stores wrap their own failures around these.
var (
	ErrMissingField       = errors.New("required field missing")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUsernameTaken      = errors.New("username already exists")
	ErrAccountNotFound    = errors.New("account not found")

	ErrTicketNotFound = errors.New("reset ticket not found")
	ErrTicketExpired  = errors.New("reset ticket expired")
	ErrTicketUsed     = errors.New("reset ticket already used")

	ErrInvalidToken = errors.New("invalid identity token")
	ErrTokenExpired = errors.New("identity token expired")
	ErrWeakKey      = errors.New("signing key shorter than minimum length")

	ErrStateInvalid    = errors.New("oauth state missing, unknown or expired")
	ErrNotConfigured   = errors.New("identity provider not configured")
	ErrUpstream        = errors.New("identity provider request failed")
	ErrUpstreamTimeout = errors.New("identity provider request timed out")
)

// Error codes returned in AuthError.Code
const (
	ErrCodeMissingField    = "missing_field"
	ErrCodeInvalidCreds    = "invalid_credentials"
	ErrCodeUsernameTaken   = "username_taken"
	ErrCodeResetFailed     = "reset_failed"
	ErrCodeRequestFailed   = "request_failed"
	ErrCodeInvalidState    = "invalid_state"
	ErrCodeNotConfigured   = "not_configured"
	ErrCodeUpstream        = "upstream_error"
	ErrCodeUpstreamTimeout = "upstream_timeout"
	ErrCodeInternal        = "internal_error"
)

// AuthError is the client-facing form of a failure. Message is safe to show
// to end users and never distinguishes "unknown user" from "wrong password".
type AuthError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	Status  int    `json:"-"`
}

func NewAuthError(code, message, field string) *AuthError {
	return &AuthError{Code: code, Message: message, Field: field, Status: http.StatusBadRequest}
}

func (e *AuthError) Error() string {
	return e.Message
}

// WithStatus sets the HTTP status used when the error is written.
func (e *AuthError) WithStatus(status int) *AuthError {
	e.Status = status
	return e
}

// ToAuthError maps an internal error onto its client-facing form. Anything
// not in the taxonomy becomes a generic internal error so storage details do
// not leak.
func ToAuthError(err error) *AuthError {
	var ae *AuthError
	switch {
	case errors.As(err, &ae):
		return ae
	case errors.Is(err, ErrMissingField):
		return NewAuthError(ErrCodeMissingField, err.Error(), "")
	case errors.Is(err, ErrInvalidCredentials):
		return NewAuthError(ErrCodeInvalidCreds, ErrInvalidCredentials.Error(), "").WithStatus(http.StatusUnauthorized)
	case errors.Is(err, ErrUsernameTaken):
		return NewAuthError(ErrCodeUsernameTaken, ErrUsernameTaken.Error(), "username").WithStatus(http.StatusConflict)
	case errors.Is(err, ErrTicketNotFound), errors.Is(err, ErrTicketExpired),
		errors.Is(err, ErrTicketUsed), errors.Is(err, ErrAccountNotFound):
		// Reset and forgot failures share one body.
		return NewAuthError(ErrCodeResetFailed, "token invalid or expired", "token")
	case errors.Is(err, ErrStateInvalid):
		return NewAuthError(ErrCodeInvalidState, ErrStateInvalid.Error(), "state")
	case errors.Is(err, ErrNotConfigured):
		return NewAuthError(ErrCodeNotConfigured, ErrNotConfigured.Error(), "").WithStatus(http.StatusServiceUnavailable)
	case errors.Is(err, ErrUpstreamTimeout):
		return NewAuthError(ErrCodeUpstreamTimeout, ErrUpstreamTimeout.Error(), "").WithStatus(http.StatusGatewayTimeout)
	case errors.Is(err, ErrUpstream):
		return NewAuthError(ErrCodeUpstream, ErrUpstream.Error(), "").WithStatus(http.StatusBadGateway)
	default:
		return NewAuthError(ErrCodeInternal, "internal error", "").WithStatus(http.StatusInternalServerError)
	}
}
