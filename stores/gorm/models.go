//go:build !wasm
// +build !wasm

package gorm

import (
	"time"

	"github.com/aidevplatform/passport"
)

// AccountModel is the GORM model for accounts
type AccountModel struct {
	ID           int64     `gorm:"primaryKey;autoIncrement"`
	Username     string    `gorm:"uniqueIndex;size:191;not null"`
	PasswordHash string    `gorm:"size:255;not null"`
	DisplayName  string    `gorm:"size:255"`
	CreatedAt    time.Time `gorm:"autoCreateTime:false"`
}

func (AccountModel) TableName() string {
	return "accounts"
}

func (m *AccountModel) ToAccount() *passport.Account {
	return &passport.Account{
		ID:           m.ID,
		Username:     m.Username,
		PasswordHash: m.PasswordHash,
		DisplayName:  m.DisplayName,
		CreatedAt:    m.CreatedAt,
	}
}

func AccountToModel(a *passport.Account) *AccountModel {
	return &AccountModel{
		ID:           a.ID,
		Username:     a.Username,
		PasswordHash: a.PasswordHash,
		DisplayName:  a.DisplayName,
		CreatedAt:    a.CreatedAt,
	}
}

// ResetTicketModel is the GORM model for password reset tickets
type ResetTicketModel struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	AccountID int64     `gorm:"index;not null"`
	Username  string    `gorm:"size:191;not null"`
	Token     string    `gorm:"uniqueIndex;size:64;not null"`
	ExpiresAt time.Time `gorm:"index;not null"`
	Used      bool      `gorm:"not null;default:false"`
	CreatedAt time.Time `gorm:"autoCreateTime:false"`
}

func (ResetTicketModel) TableName() string {
	return "password_resets"
}

func (m *ResetTicketModel) ToResetTicket() *passport.ResetTicket {
	return &passport.ResetTicket{
		ID:        m.ID,
		AccountID: m.AccountID,
		Username:  m.Username,
		Token:     m.Token,
		ExpiresAt: m.ExpiresAt,
		Used:      m.Used,
		CreatedAt: m.CreatedAt,
	}
}

func ResetTicketToModel(t *passport.ResetTicket) *ResetTicketModel {
	return &ResetTicketModel{
		ID:        t.ID,
		AccountID: t.AccountID,
		Username:  t.Username,
		Token:     t.Token,
		ExpiresAt: t.ExpiresAt,
		Used:      t.Used,
		CreatedAt: t.CreatedAt,
	}
}
