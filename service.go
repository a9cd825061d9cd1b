package passport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// CredentialService implements local login, registration, the forgot/reset
// flow, and account provisioning for federated logins.
type CredentialService struct {
	Store        CredentialStore
	Codec        *TokenCodec
	Capabilities CapabilitiesFunc
	Notifier     ResetNotifier

	// ResetTicketTTL defaults to DefaultResetTicketTTL.
	ResetTicketTTL time.Duration

	// ResetLinkBase is the page the reset link points at; the token is
	// added as the "token" query parameter.
	ResetLinkBase string

	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int

	Logger  *slog.Logger
	Metrics *Metrics

	now       func() time.Time
	dummyOnce sync.Once
	dummyHash []byte
}

type ServiceOption func(*CredentialService)

func WithCapabilities(f CapabilitiesFunc) ServiceOption {
	return func(s *CredentialService) { s.Capabilities = f }
}

func WithResetNotifier(n ResetNotifier) ServiceOption {
	return func(s *CredentialService) { s.Notifier = n }
}

func WithResetTicketTTL(ttl time.Duration) ServiceOption {
	return func(s *CredentialService) { s.ResetTicketTTL = ttl }
}

func WithResetLinkBase(base string) ServiceOption {
	return func(s *CredentialService) { s.ResetLinkBase = base }
}

func WithBcryptCost(cost int) ServiceOption {
	return func(s *CredentialService) { s.BcryptCost = cost }
}

func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *CredentialService) { s.Logger = logger }
}

func WithServiceMetrics(m *Metrics) ServiceOption {
	return func(s *CredentialService) { s.Metrics = m }
}

func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *CredentialService) { s.now = now }
}

func NewCredentialService(store CredentialStore, codec *TokenCodec, opts ...ServiceOption) *CredentialService {
	s := &CredentialService{Store: store, Codec: codec}
	for _, opt := range opts {
		opt(s)
	}
	s.EnsureDefaults()
	return s
}

// EnsureDefaults fills in unset fields.
func (s *CredentialService) EnsureDefaults() {
	if s.Capabilities == nil {
		s.Capabilities = FixedCapabilities()
	}
	if s.ResetTicketTTL <= 0 {
		s.ResetTicketTTL = DefaultResetTicketTTL
	}
	if s.BcryptCost == 0 {
		s.BcryptCost = bcrypt.DefaultCost
	}
	if s.Logger == nil {
		s.Logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.Notifier == nil {
		s.Notifier = &ConsoleResetNotifier{Logger: s.Logger}
	}
}

// Login checks the password and returns a fresh identity token. Unknown
// usernames and wrong passwords both yield ErrInvalidCredentials and cost
// one bcrypt comparison each. Storage failures are returned as is.
func (s *CredentialService) Login(ctx context.Context, username, password string) (token string, err error) {
	defer func() { s.Metrics.observeLogin(err) }()

	if username == "" || password == "" {
		return "", ErrInvalidCredentials
	}
	account, err := s.Store.GetAccountByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			bcrypt.CompareHashAndPassword(s.dummy(), []byte(password))
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("looking up account: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)) != nil {
		return "", ErrInvalidCredentials
	}
	return s.IssueToken(ctx, account)
}

// Register creates a local account. An existing username yields
// ErrUsernameTaken and leaves the existing account untouched.
func (s *CredentialService) Register(ctx context.Context, username, password, displayName string) (account *Account, err error) {
	defer func() { s.Metrics.observeRegistration(err) }()

	if username == "" {
		return nil, fmt.Errorf("%w: username", ErrMissingField)
	}
	if password == "" {
		return nil, fmt.Errorf("%w: password", ErrMissingField)
	}
	return s.createAccount(ctx, username, password, displayName)
}

func (s *CredentialService) createAccount(ctx context.Context, username, password, displayName string) (*Account, error) {
	hash, err := s.HashPassword(password)
	if err != nil {
		return nil, err
	}
	account := &Account{
		Username:     username,
		PasswordHash: hash,
		DisplayName:  displayName,
		CreatedAt:    s.now(),
	}
	if err := s.Store.CreateAccount(ctx, account); err != nil {
		return nil, err
	}
	s.Logger.InfoContext(ctx, "account created", "username", username, "id", account.ID)
	return account, nil
}

// ForgotPassword issues a reset ticket and hands the link to the notifier.
// It returns the raw ticket token for callers that run in development mode;
// an unknown username yields ErrAccountNotFound.
func (s *CredentialService) ForgotPassword(ctx context.Context, username string) (token string, err error) {
	defer func() { s.Metrics.observeReset("forgot", err) }()

	if username == "" {
		return "", fmt.Errorf("%w: username", ErrMissingField)
	}
	account, err := s.Store.GetAccountByUsername(ctx, username)
	if err != nil {
		return "", err
	}
	ticket, err := NewResetTicket(account, s.ResetTicketTTL, s.now())
	if err != nil {
		return "", err
	}
	if err := s.Store.CreateResetTicket(ctx, ticket); err != nil {
		return "", fmt.Errorf("storing reset ticket: %w", err)
	}
	if err := s.Notifier.SendPasswordReset(ctx, account, s.resetLink(ticket.Token)); err != nil {
		// The ticket stays valid; the user can ask again.
		s.Logger.ErrorContext(ctx, "reset notification failed", "username", username, "error", err)
	}
	return ticket.Token, nil
}

func (s *CredentialService) resetLink(token string) string {
	base := s.ResetLinkBase
	if base == "" {
		return "?token=" + url.QueryEscape(token)
	}
	u, err := url.Parse(base)
	if err != nil {
		return base + "?token=" + url.QueryEscape(token)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

// ResetPassword redeems token and sets a new password. The store applies
// both changes atomically, so a ticket can never be used twice.
func (s *CredentialService) ResetPassword(ctx context.Context, token, newPassword string) (err error) {
	defer func() { s.Metrics.observeReset("reset", err) }()

	if token == "" {
		return ErrTicketNotFound
	}
	if newPassword == "" {
		return fmt.Errorf("%w: newPassword", ErrMissingField)
	}
	// Check before hashing so bad tokens do not cost a bcrypt round.
	ticket, err := s.Store.GetResetTicket(ctx, token)
	if err != nil {
		return err
	}
	if err := ticket.CheckUsable(s.now()); err != nil {
		return err
	}
	hash, err := s.HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.Store.ConsumeResetTicket(ctx, token, hash, s.now()); err != nil {
		return err
	}
	s.Logger.InfoContext(ctx, "password reset", "username", ticket.Username)
	return nil
}

// EnsureFederatedAccount returns the account for username, creating it with
// an unusable random password when absent. A changed non-empty display name
// is written back.
func (s *CredentialService) EnsureFederatedAccount(ctx context.Context, username, displayName string) (*Account, error) {
	account, err := s.Store.GetAccountByUsername(ctx, username)
	if err == nil {
		if displayName != "" && displayName != account.DisplayName {
			if err := s.Store.UpdateDisplayName(ctx, account.ID, displayName); err != nil {
				s.Logger.WarnContext(ctx, "updating display name", "username", username, "error", err)
			} else {
				account.DisplayName = displayName
			}
		}
		return account, nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return nil, fmt.Errorf("looking up account: %w", err)
	}

	secret, err := GenerateSecureToken()
	if err != nil {
		return nil, err
	}
	account, err = s.createAccount(ctx, username, secret, displayName)
	if errors.Is(err, ErrUsernameTaken) {
		// Lost a race with a concurrent first login.
		return s.Store.GetAccountByUsername(ctx, username)
	}
	return account, err
}

// IssueToken mints a token for account with its capabilities.
func (s *CredentialService) IssueToken(ctx context.Context, account *Account) (string, error) {
	caps, err := s.Capabilities(ctx, account)
	if err != nil {
		return "", fmt.Errorf("resolving capabilities: %w", err)
	}
	return s.Codec.Issue(account.ID, account.Username, caps)
}

// HashPassword hashes with the configured bcrypt cost.
func (s *CredentialService) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

func (s *CredentialService) dummy() []byte {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("passport-dummy-password"), s.BcryptCost)
	})
	return s.dummyHash
}
