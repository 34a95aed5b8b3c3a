package scope

import (
	"maps"
	"slices"
	"sync"

	"github.com/ardnew/quill/value"
)

// Store is one named variable store. Reads share a lock; writes and
// read-modify-write updates hold it exclusively.
//
// Safe for concurrent use by multiple goroutines.
type Store struct {
	mu   sync.RWMutex
	vars map[string]value.Value
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{vars: make(map[string]value.Value)}
}

// NewStoreFrom returns a store holding a copy of vars.
func NewStoreFrom(vars map[string]value.Value) *Store {
	s := &Store{vars: make(map[string]value.Value, len(vars))}
	maps.Copy(s.vars, vars)

	return s
}

func (s *Store) Get(name string) (value.Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.vars[name]

	return v, ok
}

func (s *Store) Has(name string) bool {
	_, ok := s.Get(name)

	return ok
}

func (s *Store) Set(name string, v value.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.vars[name] = v
}

// Delete removes name and reports whether it was present.
func (s *Store) Delete(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.vars[name]
	delete(s.vars, name)

	return ok
}

// Update replaces name with the result of fn applied to its current value.
// fn runs with the store locked for writing and must not call back into the
// store. The variable is left unchanged when fn fails.
func (s *Store) Update(name string, fn func(cur value.Value, ok bool) (value.Value, error)) (value.Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.vars[name]

	next, err := fn(cur, ok)
	if err != nil {
		return cur, err
	}

	s.vars[name] = next

	return next, nil
}

// Snapshot returns a copy of the variables held.
func (s *Store) Snapshot() map[string]value.Value {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return maps.Clone(s.vars)
}

// Names returns the variable names in sorted order.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Sorted(maps.Keys(s.vars))
}

// Len returns the number of variables held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.vars)
}
