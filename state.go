package passport

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// StateStore issues and redeems single-use OAuth2 state values.
type StateStore interface {
	// CreateState returns a fresh unguessable value.
	CreateState(ctx context.Context) (string, error)

	// ValidateAndConsume reports whether state was issued by this store and
	// is no older than the TTL. The value is gone afterwards whatever the
	// answer, so a second call for the same value is always false.
	ValidateAndConsume(ctx context.Context, state string) bool
}

// MemoryStateStore keeps states in process memory. It serves a single
// instance; use stores/redis when several instances share a callback URL.
type MemoryStateStore struct {
	mu      sync.Mutex
	entries map[string]time.Time
	ttl     time.Duration
	now     func() time.Time
	logger  *slog.Logger
	metrics *Metrics

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

type StateStoreOption func(*MemoryStateStore)

func WithStateClock(now func() time.Time) StateStoreOption {
	return func(s *MemoryStateStore) { s.now = now }
}

func WithStateLogger(logger *slog.Logger) StateStoreOption {
	return func(s *MemoryStateStore) { s.logger = logger }
}

func WithStateMetrics(m *Metrics) StateStoreOption {
	return func(s *MemoryStateStore) { s.metrics = m }
}

// NewMemoryStateStore creates a store whose entries live for ttl
// (DefaultStateTTL when ttl <= 0). Call Start to run the background sweep.
func NewMemoryStateStore(ttl time.Duration, opts ...StateStoreOption) *MemoryStateStore {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	s := &MemoryStateStore{
		entries: make(map[string]time.Time),
		ttl:     ttl,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStateStore) TTL() time.Duration { return s.ttl }

func (s *MemoryStateStore) CreateState(ctx context.Context) (string, error) {
	state := uuid.NewString()
	s.mu.Lock()
	s.entries[state] = s.now()
	n := len(s.entries)
	s.mu.Unlock()
	s.metrics.setStates(n)
	return state, nil
}

func (s *MemoryStateStore) ValidateAndConsume(ctx context.Context, state string) bool {
	if state == "" {
		return false
	}
	s.mu.Lock()
	createdAt, ok := s.entries[state]
	delete(s.entries, state)
	n := len(s.entries)
	s.mu.Unlock()
	s.metrics.setStates(n)

	if !ok {
		return false
	}
	return s.now().Sub(createdAt) <= s.ttl
}

// Sweep drops every entry older than the TTL and returns how many went.
func (s *MemoryStateStore) Sweep() int {
	cutoff := s.now().Add(-s.ttl)
	s.mu.Lock()
	removed := 0
	for state, createdAt := range s.entries {
		if createdAt.Before(cutoff) {
			delete(s.entries, state)
			removed++
		}
	}
	n := len(s.entries)
	s.mu.Unlock()
	s.metrics.setStates(n)
	return removed
}

// Len is the number of outstanding states.
func (s *MemoryStateStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Start runs Sweep every TTL until ctx is done or Stop is called. Calling
// Start on a running store does nothing.
func (s *MemoryStateStore) Start(ctx context.Context) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(s.ttl)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := s.Sweep(); n > 0 {
					s.logger.Debug("swept expired oauth states", "removed", n)
				}
			}
		}
	}(s.done)
}

// Stop halts the sweeper and waits for it to exit.
func (s *MemoryStateStore) Stop() {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil
}
