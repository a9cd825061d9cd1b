package passport

import (
	"context"
	"time"
)

// Account is a local user record. Username is unique and case sensitive.
// PasswordHash is a bcrypt hash; federated accounts get a hash of a random
// secret nobody knows.
type Account struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"password_hash"`
	DisplayName  string    `json:"display_name"`
	CreatedAt    time.Time `json:"created_at"`
}

// AccountStore persists accounts.
type AccountStore interface {
	// CreateAccount assigns ID (and CreatedAt when zero) and stores the
	// account. Returns ErrUsernameTaken if the username exists, in which case
	// nothing is written.
	CreateAccount(ctx context.Context, account *Account) error

	// GetAccountByUsername returns ErrAccountNotFound when absent.
	GetAccountByUsername(ctx context.Context, username string) (*Account, error)

	// GetAccountByID returns ErrAccountNotFound when absent.
	GetAccountByID(ctx context.Context, id int64) (*Account, error)

	UpdateDisplayName(ctx context.Context, id int64, displayName string) error
}

// ResetTicketStore persists password reset tickets.
type ResetTicketStore interface {
	CreateResetTicket(ctx context.Context, ticket *ResetTicket) error

	// GetResetTicket returns ErrTicketNotFound when absent.
	GetResetTicket(ctx context.Context, token string) (*ResetTicket, error)

	// ConsumeResetTicket marks the ticket used and replaces the owning
	// account's password hash as one atomic step. It fails with
	// ErrTicketNotFound, ErrTicketUsed, ErrTicketExpired (evaluated at now)
	// or ErrAccountNotFound and then changes nothing. Of two concurrent
	// calls for the same token at most one succeeds.
	ConsumeResetTicket(ctx context.Context, token, newPasswordHash string, now time.Time) error

	// DeleteExpiredResetTickets removes tickets that expired before the
	// given time and returns how many were removed.
	DeleteExpiredResetTickets(ctx context.Context, before time.Time) (int64, error)
}

// CredentialStore is everything the CredentialService needs.
type CredentialStore interface {
	AccountStore
	ResetTicketStore
}
