package passport

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// Default expiry durations
const (
	DefaultResetTicketTTL = 1 * time.Hour
	DefaultTokenTTL       = 24 * time.Hour
	DefaultStateTTL       = 5 * time.Minute
)

// ResetTicket is a single-use password reset grant. Username duplicates the
// owner's key so key-value backends can reach the account inside a
// transaction.
type ResetTicket struct {
	ID        int64     `json:"id"`
	AccountID int64     `json:"account_id"`
	Username  string    `json:"username"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Used      bool      `json:"used"`
	CreatedAt time.Time `json:"created_at"`
}

// NewResetTicket creates an unused ticket for account valid for ttl from now.
func NewResetTicket(account *Account, ttl time.Duration, now time.Time) (*ResetTicket, error) {
	token, err := GenerateSecureToken()
	if err != nil {
		return nil, err
	}
	return &ResetTicket{
		AccountID: account.ID,
		Username:  account.Username,
		Token:     token,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}, nil
}

// GenerateSecureToken generates a cryptographically secure random token
func GenerateSecureToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// IsExpired checks if the ticket has expired at now
func (t *ResetTicket) IsExpired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// CheckUsable returns nil if the ticket can still be redeemed at now.
func (t *ResetTicket) CheckUsable(now time.Time) error {
	if t.Used {
		return ErrTicketUsed
	}
	if t.IsExpired(now) {
		return ErrTicketExpired
	}
	return nil
}
