package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cordum/pkgvault/core/coordinates"
	"gopkg.in/yaml.v3"
)

// Repository is a value snapshot of one repository's configuration.
type Repository struct {
	StorageID           string `json:"storage_id"`
	ID                  string `json:"id"`
	Layout              string `json:"layout"`
	BaseDir             string `json:"basedir"`
	ArtifactMaxSize     int64  `json:"artifact_max_size"`
	AllowsForceDeletion bool   `json:"allows_force_deletion"`
}

// Storage groups repositories under a common base directory.
type Storage struct {
	ID           string                `json:"id"`
	BaseDir      string                `json:"basedir"`
	Repositories map[string]Repository `json:"repositories"`
}

// StorageConfig is the full storage/repository configuration.
type StorageConfig struct {
	Storages map[string]Storage `json:"storages"`
}

type rawStorageConfig struct {
	Storages map[string]rawStorage `yaml:"storages"`
}

type rawStorage struct {
	BaseDir      string                   `yaml:"basedir"`
	Repositories map[string]rawRepository `yaml:"repositories"`
}

type rawRepository struct {
	Layout              string `yaml:"layout"`
	BaseDir             string `yaml:"basedir"`
	ArtifactMaxSize     int64  `yaml:"artifact_max_size"`
	AllowsForceDeletion bool   `yaml:"allows_force_deletion"`
}

// ParseStorageConfig parses storages config data from YAML/JSON bytes.
// Storages without a basedir live under <vaultDir>/storages/<id>;
// repositories without one live under <storage basedir>/<id>.
func ParseStorageConfig(data []byte, vaultDir string) (*StorageConfig, error) {
	if len(data) == 0 {
		return nil, errors.New("storage config is empty")
	}
	if err := validateStorageDocument(data); err != nil {
		return nil, err
	}
	var raw rawStorageConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse storage config: %w", err)
	}

	cfg := &StorageConfig{Storages: make(map[string]Storage, len(raw.Storages))}
	for storageID, rs := range raw.Storages {
		storageID = strings.TrimSpace(storageID)
		if storageID == "" {
			return nil, errors.New("invalid storage: empty id")
		}
		baseDir := rs.BaseDir
		if baseDir == "" {
			if vaultDir == "" {
				return nil, fmt.Errorf("storage %q has no basedir and no vault dir is set", storageID)
			}
			baseDir = filepath.Join(vaultDir, "storages", storageID)
		}
		storage := Storage{
			ID:           storageID,
			BaseDir:      baseDir,
			Repositories: make(map[string]Repository, len(rs.Repositories)),
		}
		for repoID, rr := range rs.Repositories {
			repoID = strings.TrimSpace(repoID)
			repoDir := rr.BaseDir
			if repoDir == "" {
				repoDir = filepath.Join(baseDir, repoID)
			}
			storage.Repositories[repoID] = Repository{
				StorageID:           storageID,
				ID:                  repoID,
				Layout:              rr.Layout,
				BaseDir:             repoDir,
				ArtifactMaxSize:     rr.ArtifactMaxSize,
				AllowsForceDeletion: rr.AllowsForceDeletion,
			}
		}
		cfg.Storages[storageID] = storage
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadStorageConfig reads a YAML file describing storages and repositories.
func LoadStorageConfig(path, vaultDir string) (*StorageConfig, error) {
	if path == "" {
		return nil, errors.New("storage config path is empty")
	}
	// #nosec G304 -- storage config path is operator-provided.
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read storage config %s: %w", path, err)
	}
	cfg, err := ParseStorageConfig(data, vaultDir)
	if err != nil {
		return nil, fmt.Errorf("load storage config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks cross-field rules the schema cannot express.
func (c *StorageConfig) Validate() error {
	if c == nil || len(c.Storages) == 0 {
		return errors.New("storage config has no storages")
	}
	for storageID, storage := range c.Storages {
		if storage.ID != storageID {
			return fmt.Errorf("storage %q: id mismatch %q", storageID, storage.ID)
		}
		for repoID, repo := range storage.Repositories {
			if repoID == "" || repo.ID != repoID || repo.StorageID != storageID {
				return fmt.Errorf("storage %q: invalid repository %q", storageID, repoID)
			}
			if _, err := coordinates.ParseLayout(repo.Layout); err != nil {
				return fmt.Errorf("repository %s:%s: %w", storageID, repoID, err)
			}
			if repo.BaseDir == "" {
				return fmt.Errorf("repository %s:%s: basedir required", storageID, repoID)
			}
			if repo.ArtifactMaxSize < 0 {
				return fmt.Errorf("repository %s:%s: artifact_max_size must not be negative", storageID, repoID)
			}
		}
	}
	return nil
}

// Repositories lists every repository ordered by storage then repository id.
func (c *StorageConfig) Repositories() []Repository {
	if c == nil {
		return nil
	}
	out := make([]Repository, 0)
	for _, storage := range c.Storages {
		for _, repo := range storage.Repositories {
			out = append(out, repo)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StorageID != out[j].StorageID {
			return out[i].StorageID < out[j].StorageID
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (c *StorageConfig) clone() *StorageConfig {
	out := &StorageConfig{Storages: make(map[string]Storage, len(c.Storages))}
	for id, storage := range c.Storages {
		repos := make(map[string]Repository, len(storage.Repositories))
		for repoID, repo := range storage.Repositories {
			repos[repoID] = repo
		}
		storage.Repositories = repos
		out.Storages[id] = storage
	}
	return out
}
