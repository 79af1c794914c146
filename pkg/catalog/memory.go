package catalog

import (
	"context"
	"sync"

	"github.com/matzehuels/corral/pkg/errors"
	"github.com/matzehuels/corral/pkg/observability"
)

// MemoryStore is the in-process [Store] used by a single editor session.
type MemoryStore struct {
	mu   sync.RWMutex
	defs map[string]*Definition
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{defs: make(map[string]*Definition)}
}

// Put implements [Store].
func (s *MemoryStore) Put(ctx context.Context, def *Definition) error {
	if def == nil || def.ID == "" {
		return errors.New(errors.ErrCodeInvalidDocument, "definition must have an id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defs[def.ID] = def.Clone()
	observability.Catalog().OnPut(ctx, def.ID)
	return nil
}

// Get implements [Store].
func (s *MemoryStore) Get(ctx context.Context, id string) (*Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.defs[id]
	observability.Catalog().OnGet(ctx, id, ok)
	if !ok {
		return nil, errors.New(errors.ErrCodeDefinitionNotFound, "definition %q not found", id)
	}
	return def.Clone(), nil
}

// Delete implements [Store].
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.defs, id)
	observability.Catalog().OnDelete(ctx, id)
	return nil
}

// List implements [Store].
func (s *MemoryStore) List(ctx context.Context) ([]*Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Definition, 0, len(s.defs))
	for _, def := range s.defs {
		out = append(out, def.Clone())
	}
	sortDefinitions(out)
	observability.Catalog().OnList(ctx, len(out))
	return out, nil
}
