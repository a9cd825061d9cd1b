// Package storetest holds the behaviour every passport.CredentialStore
// implementation must share. Backend packages call Run from their tests.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidevplatform/passport"
)

// Factory returns an empty store. It is called once per subtest.
type Factory func(t *testing.T) passport.CredentialStore

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// Run exercises store semantics against a fresh store per case.
func Run(t *testing.T, newStore Factory) {
	t.Run("CreateAndGetAccount", func(t *testing.T) { testCreateAndGet(t, newStore(t)) })
	t.Run("DuplicateUsername", func(t *testing.T) { testDuplicate(t, newStore(t)) })
	t.Run("UsernameIsCaseSensitive", func(t *testing.T) { testCaseSensitive(t, newStore(t)) })
	t.Run("UpdateDisplayName", func(t *testing.T) { testUpdateDisplayName(t, newStore(t)) })
	t.Run("ResetTicketLifecycle", func(t *testing.T) { testTicketLifecycle(t, newStore(t)) })
	t.Run("ExpiredTicket", func(t *testing.T) { testExpiredTicket(t, newStore(t)) })
	t.Run("ConcurrentConsume", func(t *testing.T) { testConcurrentConsume(t, newStore(t)) })
	t.Run("DeleteExpiredResetTickets", func(t *testing.T) { testDeleteExpired(t, newStore(t)) })
}

func newAccount(username string) *passport.Account {
	return &passport.Account{
		Username:     username,
		PasswordHash: "hash-" + username,
		DisplayName:  "Display " + username,
		CreatedAt:    epoch,
	}
}

func createTicket(t *testing.T, store passport.CredentialStore, account *passport.Account, ttl time.Duration) *passport.ResetTicket {
	t.Helper()
	ticket, err := passport.NewResetTicket(account, ttl, epoch)
	require.NoError(t, err)
	require.NoError(t, store.CreateResetTicket(context.Background(), ticket))
	return ticket
}

func testCreateAndGet(t *testing.T, store passport.CredentialStore) {
	ctx := context.Background()
	alice := newAccount("alice")
	require.NoError(t, store.CreateAccount(ctx, alice))
	assert.NotZero(t, alice.ID)

	bob := newAccount("bob")
	require.NoError(t, store.CreateAccount(ctx, bob))
	assert.NotEqual(t, alice.ID, bob.ID)

	got, err := store.GetAccountByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, got.ID)
	assert.Equal(t, "hash-alice", got.PasswordHash)
	assert.Equal(t, "Display alice", got.DisplayName)
	assert.True(t, got.CreatedAt.Equal(epoch), "CreatedAt = %v", got.CreatedAt)

	byID, err := store.GetAccountByID(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, "bob", byID.Username)

	_, err = store.GetAccountByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, passport.ErrAccountNotFound)
	_, err = store.GetAccountByID(ctx, bob.ID+1000)
	assert.ErrorIs(t, err, passport.ErrAccountNotFound)
}

func testDuplicate(t *testing.T, store passport.CredentialStore) {
	ctx := context.Background()
	require.NoError(t, store.CreateAccount(ctx, newAccount("alice")))

	dup := newAccount("alice")
	dup.PasswordHash = "other"
	assert.ErrorIs(t, store.CreateAccount(ctx, dup), passport.ErrUsernameTaken)

	got, err := store.GetAccountByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "hash-alice", got.PasswordHash, "existing account must be untouched")
}

func testCaseSensitive(t *testing.T, store passport.CredentialStore) {
	ctx := context.Background()
	require.NoError(t, store.CreateAccount(ctx, newAccount("alice")))
	require.NoError(t, store.CreateAccount(ctx, newAccount("Alice")))

	a, err := store.GetAccountByUsername(ctx, "Alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice", a.Username)
}

func testUpdateDisplayName(t *testing.T, store passport.CredentialStore) {
	ctx := context.Background()
	alice := newAccount("alice")
	require.NoError(t, store.CreateAccount(ctx, alice))

	require.NoError(t, store.UpdateDisplayName(ctx, alice.ID, "Alice Liddell"))
	got, err := store.GetAccountByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice Liddell", got.DisplayName)
	assert.Equal(t, "hash-alice", got.PasswordHash)
}

func testTicketLifecycle(t *testing.T, store passport.CredentialStore) {
	ctx := context.Background()
	alice := newAccount("alice")
	require.NoError(t, store.CreateAccount(ctx, alice))
	ticket := createTicket(t, store, alice, time.Hour)

	got, err := store.GetResetTicket(ctx, ticket.Token)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, got.AccountID)
	assert.False(t, got.Used)
	assert.True(t, got.ExpiresAt.Equal(epoch.Add(time.Hour)))

	now := epoch.Add(10 * time.Minute)
	require.NoError(t, store.ConsumeResetTicket(ctx, ticket.Token, "new-hash", now))

	account, err := store.GetAccountByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "new-hash", account.PasswordHash)

	got, err = store.GetResetTicket(ctx, ticket.Token)
	require.NoError(t, err)
	assert.True(t, got.Used)

	err = store.ConsumeResetTicket(ctx, ticket.Token, "third-hash", now)
	assert.ErrorIs(t, err, passport.ErrTicketUsed)
	account, _ = store.GetAccountByID(ctx, alice.ID)
	assert.Equal(t, "new-hash", account.PasswordHash)

	_, err = store.GetResetTicket(ctx, "unknown")
	assert.ErrorIs(t, err, passport.ErrTicketNotFound)
	assert.ErrorIs(t, store.ConsumeResetTicket(ctx, "unknown", "x", now), passport.ErrTicketNotFound)
}

func testExpiredTicket(t *testing.T, store passport.CredentialStore) {
	ctx := context.Background()
	alice := newAccount("alice")
	require.NoError(t, store.CreateAccount(ctx, alice))
	ticket := createTicket(t, store, alice, time.Hour)

	// Exactly at expiry is still usable; one second later is not.
	err := store.ConsumeResetTicket(ctx, ticket.Token, "late", epoch.Add(time.Hour+time.Second))
	assert.ErrorIs(t, err, passport.ErrTicketExpired)

	account, _ := store.GetAccountByID(ctx, alice.ID)
	assert.Equal(t, "hash-alice", account.PasswordHash)

	require.NoError(t, store.ConsumeResetTicket(ctx, ticket.Token, "on-time", epoch.Add(time.Hour)))
}

func testConcurrentConsume(t *testing.T, store passport.CredentialStore) {
	ctx := context.Background()
	alice := newAccount("alice")
	require.NoError(t, store.CreateAccount(ctx, alice))
	ticket := createTicket(t, store, alice, time.Hour)

	const workers = 6
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := range workers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = store.ConsumeResetTicket(ctx, ticket.Token, fmt.Sprintf("hash-%d", i), epoch)
		}(i)
	}
	wg.Wait()

	winners := 0
	winner := -1
	for i, err := range errs {
		switch {
		case err == nil:
			winners++
			winner = i
		case errors.Is(err, passport.ErrTicketUsed):
		default:
			// Some backends report lock contention; it must not be a success.
			t.Logf("worker %d: %v", i, err)
		}
	}
	require.Equal(t, 1, winners, "errors: %v", errs)

	account, err := store.GetAccountByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("hash-%d", winner), account.PasswordHash)
}

func testDeleteExpired(t *testing.T, store passport.CredentialStore) {
	ctx := context.Background()
	alice := newAccount("alice")
	require.NoError(t, store.CreateAccount(ctx, alice))

	short := createTicket(t, store, alice, time.Minute)
	long := createTicket(t, store, alice, 2*time.Hour)

	n, err := store.DeleteExpiredResetTickets(ctx, epoch.Add(time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, err = store.GetResetTicket(ctx, short.Token)
	assert.ErrorIs(t, err, passport.ErrTicketNotFound)
	_, err = store.GetResetTicket(ctx, long.Token)
	assert.NoError(t, err)
}
