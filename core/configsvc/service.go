// Package configsvc stores live repository policy overrides in Redis and
// folds them into a config.Manager without a restart.
package configsvc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cordum/pkgvault/core/infra/config"
	"github.com/cordum/pkgvault/core/infra/logging"
	"github.com/cordum/pkgvault/core/infra/redisutil"
	"github.com/redis/go-redis/v9"
)

// Scope levels for policy inheritance.
type Scope string

const (
	ScopeGlobal     Scope = "global"
	ScopeStorage    Scope = "storage"
	ScopeRepository Scope = "repository"
)

const keyPrefix = "policy:"

// ErrNotFound is returned when no document exists at a scope.
var ErrNotFound = errors.New("policy document not found")

// Policy holds the overridable repository settings. Nil fields inherit.
type Policy struct {
	ArtifactMaxSize     *int64 `json:"artifact_max_size,omitempty"`
	AllowsForceDeletion *bool  `json:"allows_force_deletion,omitempty"`
}

// Document is a policy fragment at a given scope.
type Document struct {
	Scope    Scope             `json:"scope"`
	ScopeID  string            `json:"scope_id"` // global uses "default"
	Policy   Policy            `json:"policy"`
	Revision int64             `json:"revision"`
	Updated  time.Time         `json:"updated_at"`
	Meta     map[string]string `json:"meta,omitempty"`
}

// EffectiveSnapshot is the merged policy for one repository plus version/hash metadata.
type EffectiveSnapshot struct {
	Version string `json:"version"`
	Hash    string `json:"hash"`
	Policy  Policy `json:"policy"`
}

// Service persists policy documents and resolves effective policy with override semantics.
type Service struct {
	client redis.UniversalClient
}

// New creates a policy service backed by Redis.
func New(url string) (*Service, error) {
	client, err := redisutil.Connect(context.Background(), url)
	if err != nil {
		return nil, err
	}
	return &Service{client: client}, nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client redis.UniversalClient) *Service {
	return &Service{client: client}
}

func (s *Service) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

// RepositoryScopeID is the scope id of a repository-level document.
func RepositoryScopeID(storageID, repositoryID string) string {
	return storageID + "/" + repositoryID
}

// Set stores a document, bumping its revision past the stored one.
func (s *Service) Set(ctx context.Context, doc *Document) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("policy service unavailable")
	}
	if doc == nil {
		return fmt.Errorf("document required")
	}
	if err := validateScope(doc.Scope, doc.ScopeID); err != nil {
		return err
	}
	if doc.Policy.ArtifactMaxSize != nil && *doc.Policy.ArtifactMaxSize < 0 {
		return fmt.Errorf("artifact_max_size must not be negative")
	}
	key := cfgKey(doc.Scope, doc.ScopeID)
	txf := func(tx *redis.Tx) error {
		current := int64(0)
		data, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			var existing Document
			if err := json.Unmarshal(data, &existing); err != nil {
				return fmt.Errorf("unmarshal doc: %w", err)
			}
			current = existing.Revision
		}
		next := *doc
		next.Revision = current + 1
		next.Updated = time.Now().UTC()
		payload, err := json.Marshal(&next)
		if err != nil {
			return fmt.Errorf("marshal doc: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			return nil
		})
		if err == nil {
			doc.Revision = next.Revision
			doc.Updated = next.Updated
		}
		return err
	}
	for attempt := 0; attempt < 5; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("set policy %s: %w", key, err)
		}
		logging.Info("configsvc", "policy stored", "scope", doc.Scope, "scope_id", doc.ScopeID, "revision", doc.Revision)
		return nil
	}
	return fmt.Errorf("set policy %s: too much contention", key)
}

// Get fetches a document at a given scope/id.
func (s *Service) Get(ctx context.Context, scope Scope, id string) (*Document, error) {
	if s == nil || s.client == nil {
		return nil, fmt.Errorf("policy service unavailable")
	}
	if err := validateScope(scope, id); err != nil {
		return nil, err
	}
	data, err := s.client.Get(ctx, cfgKey(scope, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal doc: %w", err)
	}
	return &doc, nil
}

// Delete removes a document. Missing documents are not an error.
func (s *Service) Delete(ctx context.Context, scope Scope, id string) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("policy service unavailable")
	}
	if err := validateScope(scope, id); err != nil {
		return err
	}
	return s.client.Del(ctx, cfgKey(scope, id)).Err()
}

// List returns every stored document ordered by key.
func (s *Service) List(ctx context.Context) ([]*Document, error) {
	if s == nil || s.client == nil {
		return nil, fmt.Errorf("policy service unavailable")
	}
	keys := make([]string, 0)
	iter := s.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan policies: %w", err)
	}
	sort.Strings(keys)
	out := make([]*Document, 0, len(keys))
	for _, key := range keys {
		data, err := s.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, err
		}
		var doc Document
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", key, err)
		}
		out = append(out, &doc)
	}
	return out, nil
}

// Effective merges policies in order: global -> storage -> repository.
func (s *Service) Effective(ctx context.Context, storageID, repositoryID string) (Policy, error) {
	snap, err := s.EffectiveSnapshot(ctx, storageID, repositoryID)
	if err != nil {
		return Policy{}, err
	}
	return snap.Policy, nil
}

// EffectiveSnapshot merges policies in order and returns the result plus version/hash metadata.
func (s *Service) EffectiveSnapshot(ctx context.Context, storageID, repositoryID string) (*EffectiveSnapshot, error) {
	order := []struct {
		scope Scope
		id    string
	}{
		{ScopeGlobal, "default"},
		{ScopeStorage, storageID},
		{ScopeRepository, RepositoryScopeID(storageID, repositoryID)},
	}
	var result Policy
	revisions := make(map[Scope]int64, len(order))
	for _, item := range order {
		doc, err := s.Get(ctx, item.scope, item.id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		revisions[item.scope] = doc.Revision
		result = mergePolicy(result, doc.Policy)
	}
	hash, err := snapshotHash(result.asMap())
	if err != nil {
		return nil, err
	}
	return &EffectiveSnapshot{
		Version: snapshotVersion(revisions),
		Hash:    hash,
		Policy:  result,
	}, nil
}

// Sync folds the effective policy of every configured repository into
// manager as a single update and returns how many repositories changed.
// Each repository starts from its storages file values, so removing an
// override restores them and local edits to overridable fields do not
// survive a Sync.
func (s *Service) Sync(ctx context.Context, manager *config.Manager) (int, error) {
	if manager == nil {
		return 0, fmt.Errorf("config manager required")
	}
	repos := manager.Snapshot().Repositories()
	policies := make(map[string]Policy, len(repos))
	for _, repo := range repos {
		policy, err := s.Effective(ctx, repo.StorageID, repo.ID)
		if err != nil {
			return 0, fmt.Errorf("effective policy %s/%s: %w", repo.StorageID, repo.ID, err)
		}
		policies[RepositoryScopeID(repo.StorageID, repo.ID)] = policy
	}

	baseline := manager.Baseline()
	changed := 0
	err := manager.Update(func(cfg *config.StorageConfig) error {
		changed = 0
		for storageID, storage := range cfg.Storages {
			for repoID, repo := range storage.Repositories {
				policy, ok := policies[RepositoryScopeID(storageID, repoID)]
				if !ok {
					continue
				}
				next := policy.apply(rebase(repo, baseline))
				if next != repo {
					storage.Repositories[repoID] = next
					changed++
				}
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if changed > 0 {
		logging.Info("configsvc", "policy overrides applied", "repositories", changed)
	}
	return changed, nil
}

// rebase resets the overridable fields of repo to the storages file values so
// a deleted override stops applying.
func rebase(repo config.Repository, baseline *config.StorageConfig) config.Repository {
	if baseline == nil {
		return repo
	}
	orig, ok := baseline.Storages[repo.StorageID].Repositories[repo.ID]
	if !ok {
		return repo
	}
	repo.ArtifactMaxSize = orig.ArtifactMaxSize
	repo.AllowsForceDeletion = orig.AllowsForceDeletion
	return repo
}

func (p Policy) apply(repo config.Repository) config.Repository {
	if p.ArtifactMaxSize != nil {
		repo.ArtifactMaxSize = *p.ArtifactMaxSize
	}
	if p.AllowsForceDeletion != nil {
		repo.AllowsForceDeletion = *p.AllowsForceDeletion
	}
	return repo
}

func (p Policy) asMap() map[string]any {
	out := make(map[string]any, 2)
	if p.ArtifactMaxSize != nil {
		out["artifact_max_size"] = *p.ArtifactMaxSize
	}
	if p.AllowsForceDeletion != nil {
		out["allows_force_deletion"] = *p.AllowsForceDeletion
	}
	return out
}

// mergePolicy overwrites fields in dst that src sets.
func mergePolicy(dst, src Policy) Policy {
	if src.ArtifactMaxSize != nil {
		v := *src.ArtifactMaxSize
		dst.ArtifactMaxSize = &v
	}
	if src.AllowsForceDeletion != nil {
		v := *src.AllowsForceDeletion
		dst.AllowsForceDeletion = &v
	}
	return dst
}

func validateScope(scope Scope, id string) error {
	switch scope {
	case ScopeGlobal:
		return nil
	case ScopeStorage:
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("scope_id required for storage scope")
		}
	case ScopeRepository:
		storageID, repoID, ok := strings.Cut(id, "/")
		if !ok || strings.TrimSpace(storageID) == "" || strings.TrimSpace(repoID) == "" {
			return fmt.Errorf("repository scope_id must be <storage>/<repository>")
		}
	default:
		return fmt.Errorf("unknown scope %q", scope)
	}
	return nil
}

func cfgKey(scope Scope, id string) string {
	if scope == ScopeGlobal {
		id = "default"
	}
	return fmt.Sprintf("%s%s:%s", keyPrefix, scope, id)
}
