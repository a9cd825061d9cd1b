// Package client talks to a passport server: login, registration, the
// password reset flow, and bearer-token plumbing for collaborator APIs.
package client

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CachedToken is an identity token plus what the client could read from it.
// The client cannot check the signature; the fields are informational.
type CachedToken struct {
	AccessToken string    `json:"access_token"`
	Username    string    `json:"username,omitempty"`
	ExpiresAt   time.Time `json:"expires_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// IsExpired returns true if the token has expired
func (c *CachedToken) IsExpired() bool {
	return !c.ExpiresAt.IsZero() && time.Now().After(c.ExpiresAt)
}

// NewCachedToken reads uname and exp from token without verifying it.
func NewCachedToken(token string) (*CachedToken, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("malformed token: %w", err)
	}
	out := &CachedToken{AccessToken: token, CreatedAt: time.Now()}
	out.Username, _ = claims["uname"].(string)
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}
	return out, nil
}

// TokenCache persists tokens per server between runs.
type TokenCache interface {
	// GetToken returns nil, nil when nothing is cached for serverURL.
	GetToken(serverURL string) (*CachedToken, error)
	SetToken(serverURL string, token *CachedToken) error
	RemoveToken(serverURL string) error
	// Save persists any pending changes (for caches that batch writes)
	Save() error
}
