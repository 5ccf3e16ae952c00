package entries

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cordum/pkgvault/core/infra/locks"
	"github.com/cordum/pkgvault/core/infra/logging"
	"github.com/cordum/pkgvault/core/infra/metrics"
	"github.com/cordum/pkgvault/core/infra/schema"
	"github.com/cordum/pkgvault/core/repoerr"
	"github.com/google/uuid"
)

const lockTTL = 10 * time.Second

var (
	ErrNotFound = errors.New("entry not found")
	ErrExists   = errors.New("entry already exists")
)

//go:embed schema/entry.schema.json
var entrySchemaJSON []byte

var entrySchema = schema.MustCompile("entry", entrySchemaJSON)

// Store persists entry records. Every Create and Repair runs the registered
// hooks under a per-record lock and writes nothing when one of them fails.
type Store interface {
	Use(hooks ...Hook)
	Create(ctx context.Context, rec Record) (Record, error)
	Get(ctx context.Context, id string) (Record, error)
	FindByPath(ctx context.Context, storageID, repositoryID, path string) (Record, error)
	Delete(ctx context.Context, id string) error
	// Repair applies fn to the stored record and re-runs the hooks on the
	// result before replacing it. The uuid cannot change.
	Repair(ctx context.Context, id string, fn func(rec *Record) error) (Record, error)
	Close() error
}

// Option configures a store.
type Option func(*guard)

// WithLocks replaces the lock store used for per-record exclusion.
func WithLocks(l locks.Store) Option {
	return func(g *guard) {
		if l != nil {
			g.locks = l
		}
	}
}

func WithMetrics(m metrics.Metrics) Option {
	return func(g *guard) {
		if m != nil {
			g.metrics = m
		}
	}
}

// guard is the write path shared by every backend: lock, hooks, schema,
// then the backend's persist callback.
type guard struct {
	backend string
	locks   locks.Store
	metrics metrics.Metrics

	mu    sync.RWMutex
	hooks []Hook
}

func newGuard(backend string, opts []Option) *guard {
	g := &guard{backend: backend, metrics: metrics.Noop{}}
	for _, opt := range opts {
		opt(g)
	}
	if g.locks == nil {
		g.locks = locks.NewMemoryStore()
	}
	return g
}

func (g *guard) Use(hooks ...Hook) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, h := range hooks {
		if h != nil {
			g.hooks = append(g.hooks, h)
		}
	}
}

func (g *guard) snapshotHooks() []Hook {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]Hook(nil), g.hooks...)
}

// create runs the write path for a new record.
func (g *guard) create(ctx context.Context, rec Record, persist func(ctx context.Context, rec Record) error) (Record, error) {
	rec = rec.Clone()
	if rec.Created.IsZero() {
		rec.Created = time.Now().UTC()
	}
	err := g.withRecordLock(ctx, rec.UUID, func(ctx context.Context) error {
		if err := g.check(ctx, rec); err != nil {
			return err
		}
		return persist(ctx, rec)
	})
	if err != nil {
		return Record{}, err
	}
	g.metrics.IncEntriesCreated(g.backend)
	logging.Info("entries", "entry created",
		"store", g.backend, "uuid", rec.UUID, "class", rec.Class,
		"storage", rec.StorageID, "repository", rec.RepositoryID, "path", rec.ArtifactPath)
	return rec.Clone(), nil
}

// repair loads, mutates, checks and replaces a record under its lock.
func (g *guard) repair(ctx context.Context, id string, fn func(rec *Record) error,
	load func(ctx context.Context, id string) (Record, error),
	replace func(ctx context.Context, old, updated Record) error,
) (Record, error) {
	if fn == nil {
		return Record{}, fmt.Errorf("repair func required")
	}
	var out Record
	err := g.withRecordLock(ctx, id, func(ctx context.Context) error {
		current, err := load(ctx, id)
		if err != nil {
			return err
		}
		updated := current.Clone()
		if err := fn(&updated); err != nil {
			return err
		}
		updated.UUID = current.UUID
		updated.Created = current.Created
		if err := g.check(ctx, updated); err != nil {
			return err
		}
		if err := replace(ctx, current, updated); err != nil {
			return err
		}
		out = updated
		return nil
	})
	if err != nil {
		return Record{}, err
	}
	logging.Info("entries", "entry repaired", "store", g.backend, "uuid", id, "path", out.ArtifactPath)
	return out.Clone(), nil
}

func (g *guard) check(ctx context.Context, rec Record) error {
	for _, h := range g.snapshotHooks() {
		if err := h.BeforeCreate(ctx, rec.Clone()); err != nil {
			g.metrics.IncHookRejected(rec.Class, string(repoerr.KindOf(err)))
			logging.Warn("entries", "entry rejected",
				"store", g.backend, "uuid", rec.UUID, "class", rec.Class, "err", err)
			return err
		}
	}
	if err := entrySchema.Validate(rec); err != nil {
		return fmt.Errorf("entry %s: %w", rec.UUID, err)
	}
	return nil
}

func (g *guard) withRecordLock(ctx context.Context, id string, fn func(ctx context.Context) error) error {
	return locks.WithLock(ctx, g.locks, "entry:"+strings.TrimSpace(id), uuid.NewString(), lockTTL, fn)
}

func notFound(id string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, id)
}

func pathKey(storageID, repositoryID, path string) string {
	return storageID + "/" + repositoryID + "/" + path
}
