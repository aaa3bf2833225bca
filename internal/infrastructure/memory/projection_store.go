package memory

import (
	"context"
	"sync"

	domain "github.com/Zhima-Mochi/minishop-catalog/internal/domain/item"
)

// ProjectionStore is an in-memory item.ProjectionStore for local runs and tests.
type ProjectionStore struct {
	mu   sync.RWMutex
	docs map[int64]domain.Projection
}

func NewProjectionStore() *ProjectionStore {
	return &ProjectionStore{docs: make(map[int64]domain.Projection)}
}

func (s *ProjectionStore) Upsert(ctx context.Context, p domain.Projection) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[p.ID] = p
	return nil
}

func (s *ProjectionStore) Delete(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, id)
	return nil
}

// Get returns the stored projection, if any.
func (s *ProjectionStore) Get(id int64) (domain.Projection, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.docs[id]
	return p, ok
}

func (s *ProjectionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}
