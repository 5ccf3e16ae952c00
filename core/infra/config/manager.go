package config

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/cordum/pkgvault/core/repoerr"
)

// Manager serves repository configuration to concurrent operations.
//
// Readers load the current *StorageConfig once and work from that snapshot;
// writers clone, mutate, validate and swap the pointer. A single operation
// therefore never observes a limit changing halfway through.
type Manager struct {
	current  atomic.Pointer[StorageConfig]
	baseline *StorageConfig
	writeMu  sync.Mutex
}

// NewManager wraps an already validated configuration.
func NewManager(cfg *StorageConfig) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &Manager{baseline: cfg.clone()}
	m.current.Store(cfg.clone())
	return m, nil
}

// Baseline returns the configuration the Manager was built from, before any
// Update. Callers must not mutate it.
func (m *Manager) Baseline() *StorageConfig {
	return m.baseline
}

// Snapshot returns the current configuration. Callers must not mutate it.
func (m *Manager) Snapshot() *StorageConfig {
	return m.current.Load()
}

// Repository returns a value snapshot of one repository.
func (m *Manager) Repository(storageID, repositoryID string) (Repository, error) {
	cfg := m.current.Load()
	if cfg == nil {
		return Repository{}, repoerr.RepositoryNotFound(storageID, repositoryID)
	}
	storage, ok := cfg.Storages[storageID]
	if !ok {
		return Repository{}, repoerr.RepositoryNotFound(storageID, repositoryID)
	}
	repo, ok := storage.Repositories[repositoryID]
	if !ok {
		return Repository{}, repoerr.RepositoryNotFound(storageID, repositoryID)
	}
	return repo, nil
}

// Update applies fn to a private copy and publishes it if it stays valid.
func (m *Manager) Update(fn func(cfg *StorageConfig) error) error {
	if fn == nil {
		return errors.New("update func required")
	}
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	next := m.current.Load().clone()
	if err := fn(next); err != nil {
		return err
	}
	if err := next.Validate(); err != nil {
		return err
	}
	m.current.Store(next)
	return nil
}

// UpdateRepository applies fn to a single repository.
func (m *Manager) UpdateRepository(storageID, repositoryID string, fn func(repo *Repository)) error {
	return m.Update(func(cfg *StorageConfig) error {
		storage, ok := cfg.Storages[storageID]
		if !ok {
			return repoerr.RepositoryNotFound(storageID, repositoryID)
		}
		repo, ok := storage.Repositories[repositoryID]
		if !ok {
			return repoerr.RepositoryNotFound(storageID, repositoryID)
		}
		fn(&repo)
		storage.Repositories[repositoryID] = repo
		return nil
	})
}

// SetArtifactMaxSize changes a repository's upload limit; 0 means unlimited.
func (m *Manager) SetArtifactMaxSize(storageID, repositoryID string, size int64) error {
	return m.UpdateRepository(storageID, repositoryID, func(repo *Repository) {
		repo.ArtifactMaxSize = size
	})
}

func (m *Manager) SetAllowsForceDeletion(storageID, repositoryID string, allow bool) error {
	return m.UpdateRepository(storageID, repositoryID, func(repo *Repository) {
		repo.AllowsForceDeletion = allow
	})
}
