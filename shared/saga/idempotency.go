package saga

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Outcome is what a participant recorded for an idempotency key. Published
// flips once the terminal event has been accepted by the transport.
type Outcome struct {
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	Published bool            `json:"published"`
	Recorded  time.Time       `json:"recorded_at"`
}

// Failed reports whether the recorded execution ended in a business failure
func (o Outcome) Failed() bool {
	return o.Error != ""
}

// IdempotencyStore persists participant dedup markers so a redelivered
// command is never executed twice, across restarts and replicas.
type IdempotencyStore interface {
	// Get returns the outcome recorded for key, if any
	Get(ctx context.Context, key string) (Outcome, bool, error)
	// Record stores outcome for key unless one already exists; the stored outcome is returned
	Record(ctx context.Context, key string, outcome Outcome) (Outcome, error)
	// MarkPublished flags the outcome for key as delivered
	MarkPublished(ctx context.Context, key string) error
}

const defaultIdempotencyTTL = 7 * 24 * time.Hour

// RedisIdempotencyStore keeps outcomes as JSON strings written with SETNX
type RedisIdempotencyStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ IdempotencyStore = (*RedisIdempotencyStore)(nil)

// NewRedisIdempotencyStore creates a store; a zero ttl keeps markers for a week
func NewRedisIdempotencyStore(client *redis.Client, prefix string, ttl time.Duration) *RedisIdempotencyStore {
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}
	if prefix == "" {
		prefix = "saga:idempotency"
	}
	return &RedisIdempotencyStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisIdempotencyStore) key(key string) string {
	return s.prefix + ":" + key
}

func (s *RedisIdempotencyStore) Get(ctx context.Context, key string) (Outcome, bool, error) {
	raw, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Outcome{}, false, nil
	}
	if err != nil {
		return Outcome{}, false, errors.Wrap(err, "failed to read idempotency marker")
	}

	var outcome Outcome
	if err := json.Unmarshal(raw, &outcome); err != nil {
		return Outcome{}, false, errors.Wrap(err, "failed to decode idempotency marker")
	}
	return outcome, true, nil
}

func (s *RedisIdempotencyStore) Record(ctx context.Context, key string, outcome Outcome) (Outcome, error) {
	raw, err := json.Marshal(outcome)
	if err != nil {
		return Outcome{}, errors.Wrap(err, "failed to encode idempotency marker")
	}

	stored, err := s.client.SetNX(ctx, s.key(key), raw, s.ttl).Result()
	if err != nil {
		return Outcome{}, errors.Wrap(err, "failed to write idempotency marker")
	}
	if stored {
		return outcome, nil
	}

	existing, found, err := s.Get(ctx, key)
	if err != nil {
		return Outcome{}, err
	}
	if !found {
		// expired between SETNX and GET
		return outcome, nil
	}
	return existing, nil
}

func (s *RedisIdempotencyStore) MarkPublished(ctx context.Context, key string) error {
	outcome, found, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if !found {
		return errors.Errorf("no idempotency marker for %s", key)
	}

	outcome.Published = true
	raw, err := json.Marshal(outcome)
	if err != nil {
		return errors.Wrap(err, "failed to encode idempotency marker")
	}
	return errors.Wrap(s.client.Set(ctx, s.key(key), raw, s.ttl).Err(), "failed to update idempotency marker")
}

// MemoryIdempotencyStore is the in-process IdempotencyStore used by the demo and tests
type MemoryIdempotencyStore struct {
	mu       sync.Mutex
	outcomes map[string]Outcome
}

var _ IdempotencyStore = (*MemoryIdempotencyStore)(nil)

func NewMemoryIdempotencyStore() *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{outcomes: make(map[string]Outcome)}
}

func (s *MemoryIdempotencyStore) Get(_ context.Context, key string) (Outcome, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	outcome, ok := s.outcomes[key]
	return outcome, ok, nil
}

func (s *MemoryIdempotencyStore) Record(_ context.Context, key string, outcome Outcome) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.outcomes[key]; ok {
		return existing, nil
	}
	s.outcomes[key] = outcome
	return outcome, nil
}

func (s *MemoryIdempotencyStore) MarkPublished(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	outcome, ok := s.outcomes[key]
	if !ok {
		return errors.Errorf("no idempotency marker for %s", key)
	}
	outcome.Published = true
	s.outcomes[key] = outcome
	return nil
}
