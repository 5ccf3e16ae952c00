package locks

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for single-node deployments and tests.
type MemoryStore struct {
	mu    sync.Mutex
	locks map[string]Lock
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{locks: make(map[string]Lock), now: time.Now}
}

func (s *MemoryStore) Acquire(_ context.Context, resource, owner string, ttl time.Duration) (*Lock, bool, error) {
	resource, owner, err := normalizeArgs(resource, owner)
	if err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	lock, ok := s.live(resource, now)
	if ok && lock.Owner != owner {
		return nil, false, nil
	}
	if !ok {
		lock = Lock{Resource: resource, Owner: owner, AcquiredAt: now}
	}
	lock.ExpiresAt = now.Add(normalizeTTL(ttl))
	s.locks[resource] = lock
	out := lock
	return &out, true, nil
}

func (s *MemoryStore) Release(_ context.Context, resource, owner string) (bool, error) {
	resource, owner, err := normalizeArgs(resource, owner)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.live(resource, s.now().UTC())
	if !ok || lock.Owner != owner {
		return false, nil
	}
	delete(s.locks, resource)
	return true, nil
}

func (s *MemoryStore) Renew(_ context.Context, resource, owner string, ttl time.Duration) (*Lock, bool, error) {
	resource, owner, err := normalizeArgs(resource, owner)
	if err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	lock, ok := s.live(resource, now)
	if !ok || lock.Owner != owner {
		return nil, false, nil
	}
	lock.ExpiresAt = now.Add(normalizeTTL(ttl))
	s.locks[resource] = lock
	out := lock
	return &out, true, nil
}

func (s *MemoryStore) Get(_ context.Context, resource string) (*Lock, error) {
	resource = strings.TrimSpace(resource)
	if resource == "" {
		return nil, fmt.Errorf("resource required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.live(resource, s.now().UTC())
	if !ok {
		return nil, ErrNotHeld
	}
	return &lock, nil
}

// live returns the lock for resource, evicting it if expired. Caller holds mu.
func (s *MemoryStore) live(resource string, now time.Time) (Lock, bool) {
	lock, ok := s.locks[resource]
	if !ok {
		return Lock{}, false
	}
	if !now.Before(lock.ExpiresAt) {
		delete(s.locks, resource)
		return Lock{}, false
	}
	return lock, true
}
