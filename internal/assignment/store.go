package assignment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Key identifies one editor workspace: a session editing one relation.
type Key struct {
	Session  string
	Relation string
}

func (k Key) String() string {
	return k.Relation + ":" + k.Session
}

// Store keeps the per-session editor state. Every parent selection opens a
// new ticket; writes carrying an older ticket are refused, which is how late
// responses for a previous selection get discarded.
type Store interface {
	// Begin discards any loaded state and returns the ticket of the new selection.
	Begin(ctx context.Context, key Key) (uint64, error)
	// Apply stores state when ticket is still the latest selection.
	Apply(ctx context.Context, key Key, ticket uint64, state State) (bool, error)
	// Update applies fn to the loaded state and stores the result as one
	// atomic step. Concurrent updates of the same selection are serialised;
	// ErrStaleResponse means a newer selection replaced the one fn saw.
	Update(ctx context.Context, key Key, fn func(State) (State, error)) (State, error)
	// Current returns the loaded state with its ticket, or ErrNoSelection.
	Current(ctx context.Context, key Key) (State, uint64, error)
	// Ticket returns the latest ticket, zero when nothing was selected.
	Ticket(ctx context.Context, key Key) (uint64, error)
	// Clear forgets the workspace.
	Clear(ctx context.Context, key Key) error
}

type memoryEntry struct {
	ticket uint64
	state  *State
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[Key]*memoryEntry
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[Key]*memoryEntry)}
}

func (m *MemoryStore) Begin(_ context.Context, key Key) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		e = &memoryEntry{}
		m.entries[key] = e
	}
	e.ticket++
	e.state = nil
	return e.ticket, nil
}

func (m *MemoryStore) Apply(_ context.Context, key Key, ticket uint64, state State) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok || e.ticket != ticket {
		return false, nil
	}
	e.state = &state
	return true, nil
}

func (m *MemoryStore) Update(_ context.Context, key Key, fn func(State) (State, error)) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok || e.state == nil {
		return State{}, ErrNoSelection
	}
	next, err := fn(*e.state)
	if err != nil {
		return *e.state, err
	}
	e.state = &next
	return next, nil
}

func (m *MemoryStore) Current(_ context.Context, key Key) (State, uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok || e.state == nil {
		return State{}, 0, ErrNoSelection
	}
	return *e.state, e.ticket, nil
}

func (m *MemoryStore) Ticket(_ context.Context, key Key) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[key]; ok {
		return e.ticket, nil
	}
	return 0, nil
}

func (m *MemoryStore) Clear(_ context.Context, key Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

const (
	fieldTicket = "ticket"
	fieldState  = "state"

	maxUpdateAttempts = 16
)

// ErrContention is returned when an update keeps losing optimistic
// transactions against writers of the same selection.
var ErrContention = errors.New("assignment: workspace busy")

// RedisStore keeps workspaces in Redis hashes so any console instance can
// serve the next request of a session.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore constructs a RedisStore. Workspaces expire after ttl of
// inactivity.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &RedisStore{client: client, prefix: "console:assign:", ttl: ttl}
}

func (s *RedisStore) key(k Key) string {
	return s.prefix + k.String()
}

func (s *RedisStore) Begin(ctx context.Context, key Key) (uint64, error) {
	k := s.key(key)
	var incr *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.HIncrBy(ctx, k, fieldTicket, 1)
		p.HDel(ctx, k, fieldState)
		p.Expire(ctx, k, s.ttl)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("assignment: begin: %w", err)
	}
	return uint64(incr.Val()), nil
}

func (s *RedisStore) Apply(ctx context.Context, key Key, ticket uint64, state State) (bool, error) {
	data, err := json.Marshal(state.Snapshot())
	if err != nil {
		return false, fmt.Errorf("assignment: encode state: %w", err)
	}
	k := s.key(key)
	applied := false
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.HGet(ctx, k, fieldTicket).Uint64()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		if current != ticket {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.HSet(ctx, k, fieldState, data)
			p.Expire(ctx, k, s.ttl)
			return nil
		})
		if err != nil {
			return err
		}
		applied = true
		return nil
	}, k)
	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("assignment: apply: %w", err)
	}
	return applied, nil
}

func (s *RedisStore) Update(ctx context.Context, key Key, fn func(State) (State, error)) (State, error) {
	k := s.key(key)
	var seen uint64
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		var (
			next  State
			fnErr error
		)
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			state, ticket, err := decodeWorkspace(tx.HGetAll(ctx, k).Result())
			if err != nil {
				return err
			}
			if seen != 0 && ticket != seen {
				return ErrStaleResponse
			}
			seen = ticket
			next, fnErr = fn(state)
			if fnErr != nil {
				next = state
				return nil
			}
			data, err := json.Marshal(next.Snapshot())
			if err != nil {
				return fmt.Errorf("assignment: encode state: %w", err)
			}
			_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
				p.HSet(ctx, k, fieldState, data)
				p.Expire(ctx, k, s.ttl)
				return nil
			})
			return err
		}, k)
		switch {
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, ErrNoSelection) && seen != 0:
			return State{}, ErrStaleResponse
		case errors.Is(err, ErrNoSelection), errors.Is(err, ErrStaleResponse):
			return State{}, err
		case err != nil:
			return State{}, fmt.Errorf("assignment: update: %w", err)
		}
		return next, fnErr
	}
	return State{}, ErrContention
}

func decodeWorkspace(fields map[string]string, err error) (State, uint64, error) {
	if err != nil {
		return State{}, 0, fmt.Errorf("assignment: load: %w", err)
	}
	raw, ok := fields[fieldState]
	if !ok || raw == "" {
		return State{}, 0, ErrNoSelection
	}
	ticket, err := strconv.ParseUint(fields[fieldTicket], 10, 64)
	if err != nil {
		return State{}, 0, fmt.Errorf("assignment: decode ticket: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return State{}, 0, fmt.Errorf("assignment: decode state: %w", err)
	}
	return snap.State(), ticket, nil
}

func (s *RedisStore) Current(ctx context.Context, key Key) (State, uint64, error) {
	return decodeWorkspace(s.client.HGetAll(ctx, s.key(key)).Result())
}

func (s *RedisStore) Ticket(ctx context.Context, key Key) (uint64, error) {
	ticket, err := s.client.HGet(ctx, s.key(key), fieldTicket).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("assignment: ticket: %w", err)
	}
	return ticket, nil
}

func (s *RedisStore) Clear(ctx context.Context, key Key) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("assignment: clear: %w", err)
	}
	return nil
}
