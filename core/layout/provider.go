// Package layout runs repository file operations (resolve, exists, delete)
// uniformly across package ecosystems.
package layout

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cordum/pkgvault/core/coordinates"
	"github.com/cordum/pkgvault/core/infra/config"
	"github.com/cordum/pkgvault/core/infra/logging"
	"github.com/cordum/pkgvault/core/infra/metrics"
	"github.com/cordum/pkgvault/core/repoerr"
)

// RepositorySource returns a value snapshot of a repository's configuration.
// *config.Manager satisfies it.
type RepositorySource interface {
	Repository(storageID, repositoryID string) (config.Repository, error)
}

// Location is a path resolved inside a repository.
type Location struct {
	StorageID    string
	RepositoryID string
	// Path is the cleaned, slash-separated path relative to the repository
	// base directory. It is empty for the repository root.
	Path string
	// Abs is the on-disk location.
	Abs string
}

// Provider is the per-layout set of repository operations.
type Provider interface {
	Layout() coordinates.Layout
	// Parse converts a repository-relative path with this layout's codec.
	Parse(path string) (coordinates.Coordinates, error)
	Resolve(storageID, repositoryID, path string) (Location, error)
	ResolveCoordinates(storageID, repositoryID string, c coordinates.Coordinates) (Location, error)
	Exists(storageID, repositoryID, path string) (bool, error)
	// Delete removes a file or a directory subtree. A directory holding
	// more than one artifact version needs force unless the repository
	// allows force deletion.
	Delete(storageID, repositoryID, path string, force bool) error
}

type fsProvider struct {
	layout  coordinates.Layout
	repos   RepositorySource
	metrics metrics.Metrics
}

func (p *fsProvider) Layout() coordinates.Layout {
	return p.layout
}

func (p *fsProvider) Parse(path string) (coordinates.Coordinates, error) {
	return coordinates.Parse(p.layout, path)
}

func (p *fsProvider) Resolve(storageID, repositoryID, path string) (Location, error) {
	repo, err := p.repository(storageID, repositoryID)
	if err != nil {
		return Location{}, err
	}
	return resolveIn(repo, path)
}

func (p *fsProvider) ResolveCoordinates(storageID, repositoryID string, c coordinates.Coordinates) (Location, error) {
	if c == nil {
		return Location{}, repoerr.PathResolution(storageID, repositoryID, "", "coordinates required")
	}
	if c.Layout() != p.layout {
		return Location{}, repoerr.PathResolution(storageID, repositoryID, c.Path(),
			fmt.Sprintf("coordinates use layout %q, provider serves %q", c.Layout(), p.layout))
	}
	return p.Resolve(storageID, repositoryID, c.Path())
}

func (p *fsProvider) Exists(storageID, repositoryID, path string) (bool, error) {
	loc, err := p.Resolve(storageID, repositoryID, path)
	if err != nil {
		return false, err
	}
	if _, err := os.Lstat(loc.Abs); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat %s: %w", loc.Abs, err)
	}
	return true, nil
}

func (p *fsProvider) Delete(storageID, repositoryID, path string, force bool) error {
	start := time.Now()
	repo, err := p.repository(storageID, repositoryID)
	if err != nil {
		return err
	}
	loc, err := resolveIn(repo, path)
	if err != nil {
		return err
	}
	if loc.Path == "" {
		return repoerr.PathResolution(storageID, repositoryID, path, "refusing to delete the repository root")
	}
	info, err := os.Lstat(loc.Abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return repoerr.ArtifactNotFound(storageID, repositoryID, loc.Path)
		}
		return fmt.Errorf("stat %s: %w", loc.Abs, err)
	}

	if !info.IsDir() {
		if err := os.Remove(loc.Abs); err != nil {
			return fmt.Errorf("delete %s: %w", loc.Abs, err)
		}
	} else {
		if !force && !repo.AllowsForceDeletion {
			versions, err := p.countVersions(repo, loc.Abs)
			if err != nil {
				return err
			}
			if versions > 1 {
				logging.Warn("layout", "directory delete needs force",
					"storage", storageID, "repository", repositoryID, "path", loc.Path, "versions", versions)
				return repoerr.ForceRequired(storageID, repositoryID, loc.Path, versions)
			}
		}
		if err := os.RemoveAll(loc.Abs); err != nil {
			return fmt.Errorf("delete %s: %w", loc.Abs, err)
		}
	}

	p.metrics.IncArtifactsDeleted(string(p.layout), force)
	p.metrics.ObserveDeleteDuration(string(p.layout), time.Since(start).Seconds())
	logging.Info("layout", "artifact deleted",
		"storage", storageID, "repository", repositoryID, "path", loc.Path,
		"directory", info.IsDir(), "force", force)
	return nil
}

func (p *fsProvider) repository(storageID, repositoryID string) (config.Repository, error) {
	repo, err := p.repos.Repository(storageID, repositoryID)
	if err != nil {
		return config.Repository{}, err
	}
	if coordinates.Layout(repo.Layout) != p.layout {
		return config.Repository{}, repoerr.PathResolution(storageID, repositoryID, "",
			fmt.Sprintf("repository uses layout %q, provider serves %q", repo.Layout, p.layout))
	}
	return repo, nil
}

var errEnoughVersions = errors.New("more than one version found")

// countVersions parses every file below dir with the layout codec and counts
// distinct artifact versions, stopping at two. Timestamped builds of one
// Maven snapshot count as that snapshot. Files the codec rejects
// (metadata, stray files) are ignored.
func (p *fsProvider) countVersions(repo config.Repository, dir string) (int, error) {
	seen := make(map[string]struct{}, 2)
	base := filepath.Clean(repo.BaseDir)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(base, path)
		if err != nil {
			return nil
		}
		c, err := coordinates.Parse(p.layout, filepath.ToSlash(rel))
		if err != nil {
			return nil
		}
		key := versionKey(c)
		seen[key] = struct{}{}
		if len(seen) > 1 {
			return errEnoughVersions
		}
		return nil
	})
	if err != nil && !errors.Is(err, errEnoughVersions) {
		return 0, fmt.Errorf("scan %s: %w", dir, err)
	}
	return len(seen), nil
}

func versionKey(c coordinates.Coordinates) string {
	if m, ok := c.(*coordinates.MavenCoordinates); ok {
		return m.ID() + ":" + m.BaseVersion()
	}
	if c.Version() != "" {
		return c.ID() + ":" + c.Version()
	}
	return c.Path()
}

// resolveIn joins path onto the repository base directory and rejects
// anything that would land outside it.
func resolveIn(repo config.Repository, path string) (Location, error) {
	if strings.ContainsRune(path, 0) {
		return Location{}, repoerr.PathResolution(repo.StorageID, repo.ID, path, "path contains a NUL byte")
	}
	if strings.HasPrefix(path, "/") || strings.HasPrefix(path, `\`) || filepath.IsAbs(path) || filepath.VolumeName(path) != "" {
		return Location{}, repoerr.PathResolution(repo.StorageID, repo.ID, path, "path must be relative")
	}
	base := filepath.Clean(repo.BaseDir)
	rel := filepath.Clean(filepath.FromSlash(path))
	if rel == "." {
		rel = ""
	}
	abs := filepath.Join(base, rel)
	if !within(base, abs) {
		return Location{}, repoerr.PathResolution(repo.StorageID, repo.ID, path, "path escapes the repository base directory")
	}
	// Symlinks below the base may point anywhere. The final component is
	// left to Lstat so a link itself can still be addressed.
	if rel != "" {
		realBase, err := realPath(base)
		if err != nil {
			return Location{}, repoerr.PathResolution(repo.StorageID, repo.ID, path, "cannot resolve repository base directory: "+err.Error())
		}
		realParent, err := realPath(filepath.Dir(abs))
		if err != nil {
			return Location{}, repoerr.PathResolution(repo.StorageID, repo.ID, path, "cannot resolve path: "+err.Error())
		}
		if !within(realBase, realParent) {
			return Location{}, repoerr.PathResolution(repo.StorageID, repo.ID, path, "path escapes the repository base directory through a symlink")
		}
	}
	return Location{
		StorageID:    repo.StorageID,
		RepositoryID: repo.ID,
		Path:         filepath.ToSlash(rel),
		Abs:          abs,
	}, nil
}

func within(base, target string) bool {
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// realPath evaluates symlinks in the longest existing prefix of p and
// re-attaches the components that do not exist yet.
func realPath(p string) (string, error) {
	cur, tail := p, ""
	for {
		_, err := os.Lstat(cur)
		if err == nil {
			resolved, err := filepath.EvalSymlinks(cur)
			if err != nil {
				return "", err
			}
			return filepath.Join(resolved, tail), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return filepath.Join(cur, tail), nil
		}
		tail = filepath.Join(filepath.Base(cur), tail)
		cur = parent
	}
}
