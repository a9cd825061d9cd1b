//go:build !wasm
// +build !wasm

package gorm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aidevplatform/passport"
)

// AutoMigrate runs database migrations for all passport tables
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&AccountModel{},
		&ResetTicketModel{},
	)
}

// CredentialStore implements passport.CredentialStore using GORM.
// Open the database with TranslateError so unique violations surface as
// gorm.ErrDuplicatedKey.
type CredentialStore struct {
	db *gorm.DB
}

func NewCredentialStore(db *gorm.DB) *CredentialStore {
	return &CredentialStore{db: db}
}

// =============================================================================
// AccountStore
// =============================================================================

func (s *CredentialStore) CreateAccount(ctx context.Context, account *passport.Account) error {
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now()
	}
	model := AccountToModel(account)
	model.ID = 0

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&AccountModel{}).Where("username = ?", account.Username).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return passport.ErrUsernameTaken
		}
		return tx.Create(model).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// Lost the race to a concurrent insert; the unique index caught it.
		return passport.ErrUsernameTaken
	}
	if err != nil {
		return err
	}
	account.ID = model.ID
	return nil
}

func (s *CredentialStore) GetAccountByUsername(ctx context.Context, username string) (*passport.Account, error) {
	var model AccountModel
	if err := s.db.WithContext(ctx).First(&model, "username = ?", username).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, passport.ErrAccountNotFound
		}
		return nil, err
	}
	return model.ToAccount(), nil
}

func (s *CredentialStore) GetAccountByID(ctx context.Context, id int64) (*passport.Account, error) {
	var model AccountModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, passport.ErrAccountNotFound
		}
		return nil, err
	}
	return model.ToAccount(), nil
}

func (s *CredentialStore) UpdateDisplayName(ctx context.Context, id int64, displayName string) error {
	result := s.db.WithContext(ctx).Model(&AccountModel{}).
		Where("id = ?", id).
		Update("display_name", displayName)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return passport.ErrAccountNotFound
	}
	return nil
}

// =============================================================================
// ResetTicketStore
// =============================================================================

func (s *CredentialStore) CreateResetTicket(ctx context.Context, ticket *passport.ResetTicket) error {
	model := ResetTicketToModel(ticket)
	model.ID = 0
	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	ticket.ID = model.ID
	return nil
}

func (s *CredentialStore) GetResetTicket(ctx context.Context, token string) (*passport.ResetTicket, error) {
	var model ResetTicketModel
	if err := s.db.WithContext(ctx).First(&model, "token = ?", token).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, passport.ErrTicketNotFound
		}
		return nil, err
	}
	return model.ToResetTicket(), nil
}

// ConsumeResetTicket flips used with a conditional update so that only one
// concurrent caller sees a row change, then rewrites the password hash in
// the same transaction.
func (s *CredentialStore) ConsumeResetTicket(ctx context.Context, token, newPasswordHash string, now time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model ResetTicketModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&model, "token = ?", token).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return passport.ErrTicketNotFound
			}
			return err
		}
		if err := model.ToResetTicket().CheckUsable(now); err != nil {
			return err
		}

		result := tx.Model(&ResetTicketModel{}).
			Where("id = ? AND used = ?", model.ID, false).
			Update("used", true)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return passport.ErrTicketUsed
		}

		result = tx.Model(&AccountModel{}).
			Where("id = ?", model.AccountID).
			Update("password_hash", newPasswordHash)
		if result.Error != nil {
			return fmt.Errorf("updating password: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return passport.ErrAccountNotFound
		}
		return nil
	})
}

func (s *CredentialStore) DeleteExpiredResetTickets(ctx context.Context, before time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Where("expires_at < ?", before).Delete(&ResetTicketModel{})
	return result.RowsAffected, result.Error
}
