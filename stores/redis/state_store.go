// Package redis provides a Redis-backed passport.StateStore so several
// passport instances can share one OAuth callback URL.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/aidevplatform/passport"
)

// DefaultKeyPrefix namespaces state keys.
const DefaultKeyPrefix = "passport:oauth_state:"

// Default timeouts for Redis operations.
const (
	DefaultDialTimeout  = 5 * time.Second
	DefaultReadTimeout  = 3 * time.Second
	DefaultWriteTimeout = 3 * time.Second
)

// Config holds the connection settings used by NewClient.
type Config struct {
	Addr     string
	Username string
	Password string
	DB       int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// NewClient connects and pings.
func NewClient(ctx context.Context, cfg Config) (redis.UniversalClient, error) {
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// StateStore keeps each state as a key holding its creation time. Redis
// expires keys after the TTL, so there is no sweeper; GETDEL makes the
// consume a single atomic step across instances.
type StateStore struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

type Option func(*StateStore)

func WithKeyPrefix(prefix string) Option {
	return func(s *StateStore) { s.keyPrefix = prefix }
}

func WithClock(now func() time.Time) Option {
	return func(s *StateStore) { s.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *StateStore) { s.logger = logger }
}

// NewStateStore uses passport.DefaultStateTTL when ttl <= 0.
func NewStateStore(client redis.UniversalClient, ttl time.Duration, opts ...Option) *StateStore {
	if ttl <= 0 {
		ttl = passport.DefaultStateTTL
	}
	s := &StateStore{
		client:    client,
		keyPrefix: DefaultKeyPrefix,
		ttl:       ttl,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *StateStore) key(state string) string {
	return s.keyPrefix + state
}

func (s *StateStore) CreateState(ctx context.Context) (string, error) {
	state := uuid.NewString()
	created := strconv.FormatInt(s.now().UnixNano(), 10)
	ok, err := s.client.SetNX(ctx, s.key(state), created, s.ttl).Result()
	if err != nil {
		return "", fmt.Errorf("storing oauth state: %w", err)
	}
	if !ok {
		return "", fmt.Errorf("oauth state collision")
	}
	return state, nil
}

// ValidateAndConsume treats Redis errors as a failed validation.
func (s *StateStore) ValidateAndConsume(ctx context.Context, state string) bool {
	if state == "" {
		return false
	}
	val, err := s.client.GetDel(ctx, s.key(state)).Result()
	if errors.Is(err, redis.Nil) {
		return false
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "consuming oauth state", "error", err)
		return false
	}
	nanos, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return false
	}
	return s.now().Sub(time.Unix(0, nanos)) <= s.ttl
}
