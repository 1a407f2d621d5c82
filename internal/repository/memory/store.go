// Package memory is an in-process Store used for development and tests.
// Units of work run one at a time against a private copy of the state that
// replaces the published state only when the work succeeds.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/repository"
)

type state struct {
	units     map[string]domain.Unit
	queues    map[string]domain.Queue
	services  map[string]domain.Service
	tickets   map[string]domain.Ticket
	sessions  map[string]domain.Session
	resources map[string]domain.Resource
	agents    map[string]domain.Agent
	history   []domain.HistoryEntry
	outbox    map[string]domain.OutboxEvent
	sequences map[string]int
}

func newState() *state {
	return &state{
		units:     make(map[string]domain.Unit),
		queues:    make(map[string]domain.Queue),
		services:  make(map[string]domain.Service),
		tickets:   make(map[string]domain.Ticket),
		sessions:  make(map[string]domain.Session),
		resources: make(map[string]domain.Resource),
		agents:    make(map[string]domain.Agent),
		outbox:    make(map[string]domain.OutboxEvent),
		sequences: make(map[string]int),
	}
}

func (s *state) clone() *state {
	return &state{
		units:     maps.Clone(s.units),
		queues:    maps.Clone(s.queues),
		services:  maps.Clone(s.services),
		tickets:   maps.Clone(s.tickets),
		sessions:  maps.Clone(s.sessions),
		resources: maps.Clone(s.resources),
		agents:    maps.Clone(s.agents),
		history:   slices.Clone(s.history),
		outbox:    maps.Clone(s.outbox),
		sequences: maps.Clone(s.sequences),
	}
}

// view gives repositories access to either the published state or a
// transaction's working copy.
type view interface {
	read(fn func(*state) error) error
	write(fn func(*state) error) error
}

// Store implements repository.Store in memory.
type Store struct {
	writeMu sync.Mutex
	mu      sync.RWMutex
	current *state
}

var _ repository.Store = (*Store)(nil)

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{current: newState()}
}

func (s *Store) snapshot() *state {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

func (s *Store) publish(next *state) {
	s.mu.Lock()
	s.current = next
	s.mu.Unlock()
}

func (s *Store) read(fn func(*state) error) error {
	return fn(s.snapshot())
}

// write applies a single mutation as its own unit of work.
func (s *Store) write(fn func(*state) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	next := s.snapshot().clone()
	if err := fn(next); err != nil {
		return err
	}
	s.publish(next)
	return nil
}

// Repos returns repositories reading the latest committed state. Calling their
// write methods from inside WithinTx deadlocks; use the transaction's bundle.
func (s *Store) Repos() repository.Repositories {
	return bind(s)
}

// WithinTx serializes units of work. Writes made by fn become visible only
// when fn returns nil and ctx is still live.
func (s *Store) WithinTx(ctx context.Context, fn repository.TxFunc) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &txView{st: s.snapshot().clone()}
	if err := fn(ctx, bind(tx)); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.publish(tx.st)
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) Close() {}

type txView struct {
	st *state
}

func (t *txView) read(fn func(*state) error) error  { return fn(t.st) }
func (t *txView) write(fn func(*state) error) error { return fn(t.st) }

func bind(v view) repository.Repositories {
	return repository.Repositories{
		Units:     &unitRepo{v: v},
		Queues:    &queueRepo{v: v},
		Services:  &serviceRepo{v: v},
		Tickets:   &ticketRepo{v: v},
		Sessions:  &sessionRepo{v: v},
		Resources: &resourceRepo{v: v},
		Agents:    &agentRepo{v: v},
		History:   &historyRepo{v: v},
		Outbox:    &outboxRepo{v: v},
		Sequences: &sequenceRepo{v: v},
	}
}

// lookup returns a copy of the entity after checking tenant ownership.
func lookup[T any](m map[string]T, id, tenantID string, tenantOf func(*T) string) (*T, error) {
	item, ok := m[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if tenantOf(&item) != tenantID {
		return nil, repository.ErrCrossTenant
	}
	return &item, nil
}

// replace stores next over an existing entity when its version still matches.
func replace[T any](m map[string]T, id, tenantID string, next *T, audit func(*T) *domain.Audit, tenantOf func(*T) string) error {
	stored, err := lookup(m, id, tenantID, tenantOf)
	if err != nil {
		return err
	}
	if audit(stored).Version != audit(next).Version {
		return repository.ErrConflict
	}
	audit(next).Version++
	m[id] = *next
	return nil
}

func insert[T any](m map[string]T, id string, item *T) error {
	if _, exists := m[id]; exists {
		return repository.ErrDuplicate
	}
	m[id] = *item
	return nil
}
