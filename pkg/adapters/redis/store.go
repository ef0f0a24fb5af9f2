// Package redis provides redis-backed adapters for thread state, traces
// and distributed locking.
package redis

import (
	"context"
	"encoding/json"
	"fmt"

	backend "github.com/redis/go-redis/v9"

	"github.com/veloir/stagehand/pkg/domain"
)

// Store implements ports.ThreadStateStore and ports.TraceStore on a
// single redis client. Traces live in one list per thread so that
// LoadSequence returns records in append order.
type Store struct {
	client *backend.Client
	prefix string
}

type Option func(*Store)

// WithPrefix sets the key prefix (default "stagehand:").
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a redis store for the given address.
func New(address, password string, db int, opts ...Option) *Store {
	client := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(client, opts...)
}

// NewFromClient creates a redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: "stagehand:",
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *Store) stateKey(threadID string) string {
	return s.prefix + "thread:" + threadID
}

func (s *Store) traceKey(threadID string) string {
	return s.prefix + "trace:" + threadID
}

// saveScript rejects writes that do not advance the version counter,
// implementing optimistic concurrency without a round trip.
const saveScript = `
local cur = redis.call("get", KEYS[1])
if cur then
	local obj = cjson.decode(cur)
	if tonumber(obj["version"]) >= tonumber(ARGV[2]) then
		return 0
	end
end
redis.call("set", KEYS[1], ARGV[1])
return 1
`

// Save persists the state, enforcing the optimistic version counter.
func (s *Store) Save(ctx context.Context, threadID string, state *domain.ThreadState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal thread state: %w", err)
	}

	ok, err := s.client.Eval(ctx, saveScript, []string{s.stateKey(threadID)}, data, state.Version).Int()
	if err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	if ok == 0 {
		return fmt.Errorf("save thread %s at version %d: %w", threadID, state.Version, domain.ErrVersionConflict)
	}
	return nil
}

// Load retrieves the state from redis.
func (s *Store) Load(ctx context.Context, threadID string) (*domain.ThreadState, error) {
	val, err := s.client.Get(ctx, s.stateKey(threadID)).Result()
	if err != nil {
		if err == backend.Nil {
			return nil, domain.ErrThreadNotFound
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var state domain.ThreadState
	if err := json.Unmarshal([]byte(val), &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal thread state: %w", err)
	}
	return &state, nil
}

// Delete removes the thread state.
func (s *Store) Delete(ctx context.Context, threadID string) error {
	return s.client.Del(ctx, s.stateKey(threadID)).Err()
}

// appendScript enforces the gapless per-thread sequence: the record is
// accepted only when its seq equals list length + 1.
const appendScript = `
local want = redis.call("llen", KEYS[1]) + 1
if tonumber(ARGV[2]) ~= want then
	return 0
end
redis.call("rpush", KEYS[1], ARGV[1])
return 1
`

// Append adds one trace record to the thread's log.
func (s *Store) Append(ctx context.Context, rec domain.TraceRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal trace record: %w", err)
	}

	ok, err := s.client.Eval(ctx, appendScript, []string{s.traceKey(rec.ThreadID)}, data, rec.Seq).Int()
	if err != nil {
		return fmt.Errorf("failed to append trace: %w", err)
	}
	if ok == 0 {
		return fmt.Errorf("trace append for thread %s: seq %d is not contiguous", rec.ThreadID, rec.Seq)
	}
	return nil
}

// LoadSequence returns all trace records for the thread, ordered by seq.
func (s *Store) LoadSequence(ctx context.Context, threadID string) ([]domain.TraceRecord, error) {
	vals, err := s.client.LRange(ctx, s.traceKey(threadID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load trace sequence: %w", err)
	}

	recs := make([]domain.TraceRecord, 0, len(vals))
	for _, val := range vals {
		var rec domain.TraceRecord
		if err := json.Unmarshal([]byte(val), &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal trace record: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
