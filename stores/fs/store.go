// Package fs provides a file-system passport.CredentialStore for
// development, tests and single-node installs. Records are JSON files under
// a root directory; one mutex serialises every operation in the process.
package fs

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aidevplatform/passport"
)

// CredentialStore lays out its directory as
//
//	accounts/<hex(username)>.json
//	account_ids/<id>.json      username index
//	reset_tickets/<token>.json
//	sequence.json
type CredentialStore struct {
	StoragePath string

	mu sync.Mutex
}

type sequence struct {
	NextAccountID int64 `json:"next_account_id"`
	NextTicketID  int64 `json:"next_ticket_id"`
}

// NewCredentialStore creates the directory tree if needed.
func NewCredentialStore(storagePath string) (*CredentialStore, error) {
	for _, dir := range []string{"accounts", "account_ids", "reset_tickets"} {
		if err := os.MkdirAll(filepath.Join(storagePath, dir), 0o700); err != nil {
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return &CredentialStore{StoragePath: storagePath}, nil
}

func (s *CredentialStore) accountPath(username string) string {
	return filepath.Join(s.StoragePath, "accounts", hex.EncodeToString([]byte(username))+".json")
}

func (s *CredentialStore) accountIDPath(id int64) string {
	return filepath.Join(s.StoragePath, "account_ids", strconv.FormatInt(id, 10)+".json")
}

func (s *CredentialStore) ticketPath(token string) (string, bool) {
	// Tokens are hex; anything else cannot name a file we wrote.
	if token == "" || strings.ContainsAny(token, `/\.`) {
		return "", false
	}
	return filepath.Join(s.StoragePath, "reset_tickets", token+".json"), true
}

func (s *CredentialStore) nextIDs(account, ticket int64) (sequence, error) {
	path := filepath.Join(s.StoragePath, "sequence.json")
	var seq sequence
	if _, err := readJSONFile(path, &seq); err != nil {
		return seq, err
	}
	if seq.NextAccountID == 0 {
		seq.NextAccountID = 1
	}
	if seq.NextTicketID == 0 {
		seq.NextTicketID = 1
	}
	out := seq
	seq.NextAccountID += account
	seq.NextTicketID += ticket
	return out, writeRecord(path, &seq)
}

func (s *CredentialStore) CreateAccount(ctx context.Context, account *passport.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.accountPath(account.Username)
	if _, err := os.Stat(path); err == nil {
		return passport.ErrUsernameTaken
	} else if !os.IsNotExist(err) {
		return err
	}

	seq, err := s.nextIDs(1, 0)
	if err != nil {
		return err
	}
	stored := *account
	stored.ID = seq.NextAccountID
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	if err := writeRecord(s.accountIDPath(stored.ID), stored.Username); err != nil {
		return err
	}
	if err := writeRecord(path, &stored); err != nil {
		return err
	}
	account.ID = stored.ID
	account.CreatedAt = stored.CreatedAt
	return nil
}

func (s *CredentialStore) GetAccountByUsername(ctx context.Context, username string) (*passport.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getAccount(username)
}

func (s *CredentialStore) getAccount(username string) (*passport.Account, error) {
	var account passport.Account
	found, err := readJSONFile(s.accountPath(username), &account)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, passport.ErrAccountNotFound
	}
	return &account, nil
}

func (s *CredentialStore) GetAccountByID(ctx context.Context, id int64) (*passport.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getAccountByID(id)
}

func (s *CredentialStore) getAccountByID(id int64) (*passport.Account, error) {
	var username string
	found, err := readJSONFile(s.accountIDPath(id), &username)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, passport.ErrAccountNotFound
	}
	return s.getAccount(username)
}

func (s *CredentialStore) UpdateDisplayName(ctx context.Context, id int64, displayName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, err := s.getAccountByID(id)
	if err != nil {
		return err
	}
	account.DisplayName = displayName
	return writeRecord(s.accountPath(account.Username), account)
}

func (s *CredentialStore) CreateResetTicket(ctx context.Context, ticket *passport.ResetTicket) error {
	path, ok := s.ticketPath(ticket.Token)
	if !ok {
		return fmt.Errorf("invalid reset token")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seq, err := s.nextIDs(0, 1)
	if err != nil {
		return err
	}
	stored := *ticket
	stored.ID = seq.NextTicketID
	if err := writeRecord(path, &stored); err != nil {
		return err
	}
	ticket.ID = stored.ID
	return nil
}

func (s *CredentialStore) GetResetTicket(ctx context.Context, token string) (*passport.ResetTicket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getTicket(token)
}

func (s *CredentialStore) getTicket(token string) (*passport.ResetTicket, error) {
	path, ok := s.ticketPath(token)
	if !ok {
		return nil, passport.ErrTicketNotFound
	}
	var ticket passport.ResetTicket
	found, err := readJSONFile(path, &ticket)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, passport.ErrTicketNotFound
	}
	return &ticket, nil
}

// ConsumeResetTicket writes the password first and the used flag second.
// When the ticket write fails the previous account record is written back,
// so the caller's error means the password did not change. A crash between
// the two writes leaves a ticket that can set the same password again, never
// a used ticket with the old password.
func (s *CredentialStore) ConsumeResetTicket(ctx context.Context, token, newPasswordHash string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ticket, err := s.getTicket(token)
	if err != nil {
		return err
	}
	if err := ticket.CheckUsable(now); err != nil {
		return err
	}
	account, err := s.getAccountByID(ticket.AccountID)
	if err != nil {
		return err
	}

	previous := *account
	accountPath := s.accountPath(account.Username)
	account.PasswordHash = newPasswordHash
	if err := writeRecord(accountPath, account); err != nil {
		return err
	}
	ticket.Used = true
	ticketPath, _ := s.ticketPath(token)
	if err := writeRecord(ticketPath, ticket); err != nil {
		if rerr := writeRecord(accountPath, &previous); rerr != nil {
			return fmt.Errorf("marking ticket used: %w (restoring account: %v)", err, rerr)
		}
		return fmt.Errorf("marking ticket used: %w", err)
	}
	return nil
}

func (s *CredentialStore) DeleteExpiredResetTickets(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Join(s.StoragePath, "reset_tickets")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	var removed int64
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
			continue
		}
		var ticket passport.ResetTicket
		found, err := readJSONFile(filepath.Join(dir, name), &ticket)
		if err != nil || !found {
			continue
		}
		if ticket.ExpiresAt.Before(before) {
			if err := os.Remove(filepath.Join(dir, name)); err != nil && !os.IsNotExist(err) {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}
