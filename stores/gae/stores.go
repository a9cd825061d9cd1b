//go:build !wasm
// +build !wasm

package gae

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/datastore"
	"google.golang.org/api/iterator"

	"github.com/aidevplatform/passport"
)

// Kind constants for Datastore entities
const (
	KindAccount     = "Account"
	KindAccountSeq  = "AccountSeq"
	KindResetTicket = "ResetTicket"
)

// CredentialStore implements passport.CredentialStore using Google Cloud Datastore
type CredentialStore struct {
	client    *datastore.Client
	namespace string
}

// NewCredentialStore creates a new Datastore-backed CredentialStore
func NewCredentialStore(client *datastore.Client, namespace string) *CredentialStore {
	return &CredentialStore{
		client:    client,
		namespace: namespace,
	}
}

func (s *CredentialStore) namespacedKey(kind, name string) *datastore.Key {
	key := datastore.NameKey(kind, name, nil)
	key.Namespace = s.namespace
	return key
}

func (s *CredentialStore) query(kind string) *datastore.Query {
	q := datastore.NewQuery(kind)
	if s.namespace != "" {
		q = q.Namespace(s.namespace)
	}
	return q
}

// allocateID reserves a numeric account id.
func (s *CredentialStore) allocateID(ctx context.Context) (int64, error) {
	key := datastore.IncompleteKey(KindAccountSeq, nil)
	key.Namespace = s.namespace
	keys, err := s.client.AllocateIDs(ctx, []*datastore.Key{key})
	if err != nil {
		return 0, err
	}
	return keys[0].ID, nil
}

func (s *CredentialStore) CreateAccount(ctx context.Context, account *passport.Account) error {
	id, err := s.allocateID(ctx)
	if err != nil {
		return err
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now()
	}
	key := s.namespacedKey(KindAccount, account.Username)

	_, err = s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var existing AccountEntity
		err := tx.Get(key, &existing)
		if err == nil {
			return passport.ErrUsernameTaken
		}
		if !errors.Is(err, datastore.ErrNoSuchEntity) {
			return err
		}
		entity := AccountToEntity(account, key)
		entity.ID = id
		entity.Version = 1
		_, err = tx.Put(key, entity)
		return err
	})
	if err != nil {
		return err
	}
	account.ID = id
	return nil
}

func (s *CredentialStore) GetAccountByUsername(ctx context.Context, username string) (*passport.Account, error) {
	var entity AccountEntity
	if err := s.client.Get(ctx, s.namespacedKey(KindAccount, username), &entity); err != nil {
		if errors.Is(err, datastore.ErrNoSuchEntity) {
			return nil, passport.ErrAccountNotFound
		}
		return nil, err
	}
	return entity.ToAccount(), nil
}

func (s *CredentialStore) GetAccountByID(ctx context.Context, id int64) (*passport.Account, error) {
	it := s.client.Run(ctx, s.query(KindAccount).FilterField("id", "=", id).Limit(1))
	var entity AccountEntity
	_, err := it.Next(&entity)
	if err == iterator.Done {
		return nil, passport.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return entity.ToAccount(), nil
}

func (s *CredentialStore) UpdateDisplayName(ctx context.Context, id int64, displayName string) error {
	account, err := s.GetAccountByID(ctx, id)
	if err != nil {
		return err
	}
	key := s.namespacedKey(KindAccount, account.Username)
	_, err = s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var entity AccountEntity
		if err := tx.Get(key, &entity); err != nil {
			if errors.Is(err, datastore.ErrNoSuchEntity) {
				return passport.ErrAccountNotFound
			}
			return err
		}
		entity.DisplayName = displayName
		entity.Version++
		_, err := tx.Put(key, &entity)
		return err
	})
	return err
}

func (s *CredentialStore) CreateResetTicket(ctx context.Context, ticket *passport.ResetTicket) error {
	key := s.namespacedKey(KindResetTicket, ticket.Token)
	_, err := s.client.Put(ctx, key, ResetTicketToEntity(ticket, key))
	return err
}

func (s *CredentialStore) GetResetTicket(ctx context.Context, token string) (*passport.ResetTicket, error) {
	var entity ResetTicketEntity
	if err := s.client.Get(ctx, s.namespacedKey(KindResetTicket, token), &entity); err != nil {
		if errors.Is(err, datastore.ErrNoSuchEntity) {
			return nil, passport.ErrTicketNotFound
		}
		return nil, err
	}
	return entity.ToResetTicket(), nil
}

// ConsumeResetTicket reads and writes the ticket and the account in one
// transaction; Datastore aborts and retries it on contention, so a second
// consumer sees Used.
func (s *CredentialStore) ConsumeResetTicket(ctx context.Context, token, newPasswordHash string, now time.Time) error {
	ticketKey := s.namespacedKey(KindResetTicket, token)

	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var ticket ResetTicketEntity
		if err := tx.Get(ticketKey, &ticket); err != nil {
			if errors.Is(err, datastore.ErrNoSuchEntity) {
				return passport.ErrTicketNotFound
			}
			return err
		}
		if err := ticket.ToResetTicket().CheckUsable(now); err != nil {
			return err
		}

		accountKey := s.namespacedKey(KindAccount, ticket.Username)
		var account AccountEntity
		if err := tx.Get(accountKey, &account); err != nil {
			if errors.Is(err, datastore.ErrNoSuchEntity) {
				return passport.ErrAccountNotFound
			}
			return err
		}
		if account.ID != ticket.AccountID {
			// Username was reused by a different account.
			return passport.ErrAccountNotFound
		}

		ticket.Used = true
		account.PasswordHash = newPasswordHash
		account.Version++
		if _, err := tx.Put(ticketKey, &ticket); err != nil {
			return err
		}
		_, err := tx.Put(accountKey, &account)
		return err
	})
	return err
}

func (s *CredentialStore) DeleteExpiredResetTickets(ctx context.Context, before time.Time) (int64, error) {
	q := s.query(KindResetTicket).FilterField("expires_at", "<", before).KeysOnly()
	keys, err := s.client.GetAll(ctx, q, nil)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	if err := s.client.DeleteMulti(ctx, keys); err != nil {
		return 0, err
	}
	return int64(len(keys)), nil
}
