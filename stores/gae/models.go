//go:build !wasm
// +build !wasm

package gae

import (
	"time"

	"cloud.google.com/go/datastore"

	"github.com/aidevplatform/passport"
)

// AccountEntity is the Datastore entity for accounts.
// Key name: username
type AccountEntity struct {
	Key          *datastore.Key `datastore:"__key__"`
	ID           int64          `datastore:"id"`
	PasswordHash string         `datastore:"password_hash,noindex"`
	DisplayName  string         `datastore:"display_name,noindex"`
	CreatedAt    time.Time      `datastore:"created_at"`
	Version      int            `datastore:"version"`
}

func (e *AccountEntity) ToAccount() *passport.Account {
	return &passport.Account{
		ID:           e.ID,
		Username:     e.Key.Name,
		PasswordHash: e.PasswordHash,
		DisplayName:  e.DisplayName,
		CreatedAt:    e.CreatedAt,
	}
}

func AccountToEntity(a *passport.Account, key *datastore.Key) *AccountEntity {
	return &AccountEntity{
		Key:          key,
		ID:           a.ID,
		PasswordHash: a.PasswordHash,
		DisplayName:  a.DisplayName,
		CreatedAt:    a.CreatedAt,
	}
}

// ResetTicketEntity is the Datastore entity for reset tickets.
// Key name: token
type ResetTicketEntity struct {
	Key       *datastore.Key `datastore:"__key__"`
	AccountID int64          `datastore:"account_id"`
	Username  string         `datastore:"username"`
	ExpiresAt time.Time      `datastore:"expires_at"`
	Used      bool           `datastore:"used"`
	CreatedAt time.Time      `datastore:"created_at"`
}

func (e *ResetTicketEntity) ToResetTicket() *passport.ResetTicket {
	return &passport.ResetTicket{
		AccountID: e.AccountID,
		Username:  e.Username,
		Token:     e.Key.Name,
		ExpiresAt: e.ExpiresAt,
		Used:      e.Used,
		CreatedAt: e.CreatedAt,
	}
}

func ResetTicketToEntity(t *passport.ResetTicket, key *datastore.Key) *ResetTicketEntity {
	return &ResetTicketEntity{
		Key:       key,
		AccountID: t.AccountID,
		Username:  t.Username,
		ExpiresAt: t.ExpiresAt,
		Used:      t.Used,
		CreatedAt: t.CreatedAt,
	}
}
