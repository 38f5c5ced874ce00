// Package memory implements the storage gateway over in-process maps.
// It backs tests and embedded use: transactions roll back by snapshot
// restore, and individual operations can be made to fail on demand to
// exercise atomicity.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"tabula/internal/core/basis"
	"tabula/internal/core/id"
	"tabula/internal/storage"
)

// Store is an in-memory storage.Gateway.
type Store struct {
	mu       sync.Mutex
	state    *state
	failures map[string]error
}

// state is everything the gateway persists. Cloned wholesale on
// transaction begin so a failed transaction restores the old pointer.
type state struct {
	directories map[string]map[id.ID]*storage.DirectoryRow // entity table -> rows
	documents   map[string]map[id.ID]*storage.DocumentRow
	tableParts  map[string][]storage.TablePartRow // part table -> rows, insertion order
	versions    []storage.VersionEntry
	fullText    map[basis.Basis]string
	movements   map[string][]storage.Movement // register name -> rows
	balances    map[string]map[time.Time]*storage.Balance
	changes     []storage.ObjectChange
	triggers    []storage.RegisterTrigger
	ignores     []storage.IgnoreEntry
	locks       map[basis.Basis]*storage.LockInfo
}

// NewStore creates an empty in-memory gateway.
func NewStore() *Store {
	return &Store{
		state:    newState(),
		failures: make(map[string]error),
	}
}

func newState() *state {
	return &state{
		directories: map[string]map[id.ID]*storage.DirectoryRow{},
		documents:   map[string]map[id.ID]*storage.DocumentRow{},
		tableParts:  map[string][]storage.TablePartRow{},
		fullText:    map[basis.Basis]string{},
		movements:   map[string][]storage.Movement{},
		balances:    map[string]map[time.Time]*storage.Balance{},
		locks:       map[basis.Basis]*storage.LockInfo{},
	}
}

func (s *state) clone() *state {
	c := newState()
	for table, rows := range s.directories {
		m := make(map[id.ID]*storage.DirectoryRow, len(rows))
		for k, r := range rows {
			cp := *r
			cp.Values = r.Values.Clone()
			m[k] = &cp
		}
		c.directories[table] = m
	}
	for table, rows := range s.documents {
		m := make(map[id.ID]*storage.DocumentRow, len(rows))
		for k, r := range rows {
			cp := *r
			cp.Values = r.Values.Clone()
			m[k] = &cp
		}
		c.documents[table] = m
	}
	for table, rows := range s.tableParts {
		cp := make([]storage.TablePartRow, len(rows))
		for i, r := range rows {
			cp[i] = r
			cp[i].Values = r.Values.Clone()
		}
		c.tableParts[table] = cp
	}
	c.versions = append([]storage.VersionEntry(nil), s.versions...)
	for b, t := range s.fullText {
		c.fullText[b] = t
	}
	for name, rows := range s.movements {
		cp := make([]storage.Movement, len(rows))
		for i, r := range rows {
			cp[i] = r
			cp[i].Values = r.Values.Clone()
		}
		c.movements[name] = cp
	}
	for name, periods := range s.balances {
		m := make(map[time.Time]*storage.Balance, len(periods))
		for p, b := range periods {
			m[p] = cloneBalance(b)
		}
		c.balances[name] = m
	}
	c.changes = append([]storage.ObjectChange(nil), s.changes...)
	c.triggers = append([]storage.RegisterTrigger(nil), s.triggers...)
	c.ignores = append([]storage.IgnoreEntry(nil), s.ignores...)
	for b, l := range s.locks {
		cp := *l
		c.locks[b] = &cp
	}
	return c
}

// txKey marks a context whose caller already holds the store mutex.
type txKey struct{}

// RunInTransaction runs fn atomically: the store mutex is held for the
// duration and state is restored from a snapshot when fn fails. Nested
// calls join the outer transaction.
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.state.clone()
	err := fn(context.WithValue(ctx, txKey{}, true))
	if err != nil {
		s.state = snapshot
	}
	return err
}

// FailOn arranges for the next call of the named gateway operation to
// return err. One-shot.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = err
}

// lock acquires the store mutex unless the context already holds it
// through a transaction.
func (s *Store) lock(ctx context.Context) func() {
	if ctx.Value(txKey{}) != nil {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// fail pops and returns the injected error for op, if any. Callers
// must hold the mutex.
func (s *Store) fail(op string) error {
	if err, ok := s.failures[op]; ok {
		delete(s.failures, op)
		return err
	}
	return nil
}

func cloneBalance(b *storage.Balance) *storage.Balance {
	cp := &storage.Balance{
		Register: b.Register,
		Period:   b.Period,
		Income:   make(map[string]decimal.Decimal, len(b.Income)),
		Expense:  make(map[string]decimal.Decimal, len(b.Expense)),
	}
	for k, v := range b.Income {
		cp.Income[k] = v
	}
	for k, v := range b.Expense {
		cp.Expense[k] = v
	}
	return cp
}

var _ storage.Gateway = (*Store)(nil)
