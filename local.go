package passport

import (
	"errors"
	"log/slog"
	"net/http"
)

// Generic reply for /forgot when the token is not exposed.
const forgotAcceptedMessage = "if the account exists a reset link has been sent"

// LocalAuth serves the username/password endpoints. Bodies may be JSON or
// form encoded.
type LocalAuth struct {
	Service *CredentialService

	// ExposeResetToken returns the raw reset token from /forgot. This lets
	// anyone who knows a username reset its password, so it is for local
	// development only.
	ExposeResetToken bool

	Logger *slog.Logger
}

func (a *LocalAuth) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}

// HandleLogin answers with the identity token in data.
func (a *LocalAuth) HandleLogin(w http.ResponseWriter, r *http.Request) {
	fields, err := readFields(r, "username", "password")
	if err != nil {
		WriteError(w, NewAuthError(ErrCodeMissingField, err.Error(), ""))
		return
	}
	username := firstNonEmpty(fields, "username")
	password := fields["password"]
	if username == "" || password == "" {
		WriteError(w, NewAuthError(ErrCodeMissingField, "username and password are required", "username"))
		return
	}

	token, err := a.Service.Login(r.Context(), username, password)
	if err != nil {
		if !errors.Is(err, ErrInvalidCredentials) {
			a.logger().ErrorContext(r.Context(), "login failed", "error", err)
		}
		WriteError(w, err)
		return
	}
	WriteSuccess(w, token)
}

// HandleRegister accepts "nickname" as well as "displayName".
func (a *LocalAuth) HandleRegister(w http.ResponseWriter, r *http.Request) {
	fields, err := readFields(r, "username", "password", "nickname", "displayName")
	if err != nil {
		WriteError(w, NewAuthError(ErrCodeMissingField, err.Error(), ""))
		return
	}
	username := firstNonEmpty(fields, "username")
	password := fields["password"]
	if username == "" {
		WriteError(w, NewAuthError(ErrCodeMissingField, "username is required", "username"))
		return
	}
	if password == "" {
		WriteError(w, NewAuthError(ErrCodeMissingField, "password is required", "password"))
		return
	}

	displayName := firstNonEmpty(fields, "displayName", "nickname")
	if _, err := a.Service.Register(r.Context(), username, password, displayName); err != nil {
		if !errors.Is(err, ErrUsernameTaken) {
			a.logger().ErrorContext(r.Context(), "registration failed", "error", err)
		}
		WriteError(w, err)
		return
	}
	WriteSuccess(w, nil)
}

// HandleForgot issues a reset ticket. Without ExposeResetToken known and
// unknown usernames get the same reply.
func (a *LocalAuth) HandleForgot(w http.ResponseWriter, r *http.Request) {
	fields, err := readFields(r, "username")
	if err != nil {
		WriteError(w, NewAuthError(ErrCodeMissingField, err.Error(), ""))
		return
	}
	username := firstNonEmpty(fields, "username")
	if username == "" {
		WriteError(w, NewAuthError(ErrCodeMissingField, "username is required", "username"))
		return
	}

	token, err := a.Service.ForgotPassword(r.Context(), username)
	if err != nil && !errors.Is(err, ErrAccountNotFound) {
		a.logger().ErrorContext(r.Context(), "forgot password failed", "error", err)
		WriteError(w, err)
		return
	}

	if !a.ExposeResetToken {
		WriteSuccess(w, forgotAcceptedMessage)
		return
	}
	if err != nil {
		WriteError(w, NewAuthError(ErrCodeRequestFailed, "request failed", ""))
		return
	}
	WriteSuccess(w, token)
}

// HandleReset redeems a reset token. Every ticket problem gets one reply.
func (a *LocalAuth) HandleReset(w http.ResponseWriter, r *http.Request) {
	fields, err := readFields(r, "token", "newPassword")
	if err != nil {
		WriteError(w, NewAuthError(ErrCodeMissingField, err.Error(), ""))
		return
	}
	token := firstNonEmpty(fields, "token")
	newPassword := fields["newPassword"]
	if newPassword == "" {
		WriteError(w, NewAuthError(ErrCodeMissingField, "newPassword is required", "newPassword"))
		return
	}

	if err := a.Service.ResetPassword(r.Context(), token, newPassword); err != nil {
		if ae := ToAuthError(err); ae.Status >= http.StatusInternalServerError {
			a.logger().ErrorContext(r.Context(), "password reset failed", "error", err)
		}
		WriteError(w, err)
		return
	}
	WriteSuccess(w, nil)
}
