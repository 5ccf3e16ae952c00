package entries

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore keeps records in process memory.
type MemoryStore struct {
	*guard

	mu     sync.RWMutex
	byID   map[string]Record
	byPath map[string]string
}

func NewMemoryStore(opts ...Option) *MemoryStore {
	return &MemoryStore{
		guard:  newGuard("memory", opts),
		byID:   make(map[string]Record),
		byPath: make(map[string]string),
	}
}

func (s *MemoryStore) Create(ctx context.Context, rec Record) (Record, error) {
	return s.create(ctx, rec, func(_ context.Context, rec Record) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.byID[rec.UUID]; ok {
			return fmt.Errorf("%w: %s", ErrExists, rec.UUID)
		}
		if rec.ArtifactPath != "" {
			key := pathKey(rec.StorageID, rec.RepositoryID, rec.ArtifactPath)
			if _, ok := s.byPath[key]; ok {
				return fmt.Errorf("%w: path %s", ErrExists, rec.ArtifactPath)
			}
			s.byPath[key] = rec.UUID
		}
		s.byID[rec.UUID] = rec
		return nil
	})
}

func (s *MemoryStore) Get(_ context.Context, id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byID[id]
	if !ok {
		return Record{}, notFound(id)
	}
	return rec.Clone(), nil
}

func (s *MemoryStore) FindByPath(ctx context.Context, storageID, repositoryID, path string) (Record, error) {
	s.mu.RLock()
	id, ok := s.byPath[pathKey(storageID, repositoryID, path)]
	s.mu.RUnlock()
	if !ok {
		return Record{}, notFound(path)
	}
	return s.Get(ctx, id)
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byID[id]
	if !ok {
		return notFound(id)
	}
	delete(s.byID, id)
	if rec.ArtifactPath != "" {
		delete(s.byPath, pathKey(rec.StorageID, rec.RepositoryID, rec.ArtifactPath))
	}
	return nil
}

func (s *MemoryStore) Repair(ctx context.Context, id string, fn func(rec *Record) error) (Record, error) {
	return s.repair(ctx, id, fn, s.Get, func(_ context.Context, old, updated Record) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		newKey := pathKey(updated.StorageID, updated.RepositoryID, updated.ArtifactPath)
		if owner, ok := s.byPath[newKey]; ok && owner != id {
			return fmt.Errorf("%w: path %s", ErrExists, updated.ArtifactPath)
		}
		if old.ArtifactPath != "" {
			delete(s.byPath, pathKey(old.StorageID, old.RepositoryID, old.ArtifactPath))
		}
		if updated.ArtifactPath != "" {
			s.byPath[newKey] = id
		}
		s.byID[id] = updated
		return nil
	})
}

func (s *MemoryStore) Close() error { return nil }
