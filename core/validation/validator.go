// Package validation holds the pre-flight checks run before an
// artifact-affecting operation touches storage.
package validation

import (
	"github.com/cordum/pkgvault/core/infra/config"
	"github.com/cordum/pkgvault/core/infra/logging"
	"github.com/cordum/pkgvault/core/infra/metrics"
	"github.com/cordum/pkgvault/core/repoerr"
)

// RepositorySource returns a value snapshot of a repository's configuration.
type RepositorySource interface {
	Repository(storageID, repositoryID string) (config.Repository, error)
}

// Candidate describes the artifact an operation is about to write.
type Candidate struct {
	StorageID    string
	RepositoryID string
	Path         string
	Size         int64
}

// Check is one independent pre-flight rule. It sees the repository snapshot
// taken for the whole validation run.
type Check interface {
	Name() string
	Check(repo config.Repository, c Candidate) error
}

// CheckFunc adapts a function to Check.
type CheckFunc struct {
	ID string
	Fn func(repo config.Repository, c Candidate) error
}

func (f CheckFunc) Name() string { return f.ID }

func (f CheckFunc) Check(repo config.Repository, c Candidate) error {
	return f.Fn(repo, c)
}

// SizeCheck rejects empty payloads and payloads above the repository limit.
// A limit of 0 means unlimited.
type SizeCheck struct{}

func (SizeCheck) Name() string { return "artifact-size" }

func (SizeCheck) Check(repo config.Repository, c Candidate) error {
	if c.Size <= 0 {
		return repoerr.EmptyArtifact(repo.StorageID, repo.ID, c.Size)
	}
	if limit := repo.ArtifactMaxSize; limit > 0 && c.Size > limit {
		return repoerr.ArtifactSizeExceeded(repo.StorageID, repo.ID, limit, c.Size)
	}
	return nil
}

// Validator runs checks against one repository snapshot per call. It holds
// no mutable state and is safe for concurrent use.
type Validator struct {
	repos   RepositorySource
	checks  []Check
	metrics metrics.Metrics
}

// Option configures a Validator.
type Option func(*Validator)

// WithChecks appends checks after the default size check.
func WithChecks(checks ...Check) Option {
	return func(v *Validator) {
		for _, c := range checks {
			if c != nil {
				v.checks = append(v.checks, c)
			}
		}
	}
}

func WithMetrics(m metrics.Metrics) Option {
	return func(v *Validator) {
		if m != nil {
			v.metrics = m
		}
	}
}

func New(repos RepositorySource, opts ...Option) *Validator {
	v := &Validator{
		repos:   repos,
		checks:  []Check{SizeCheck{}},
		metrics: metrics.Noop{},
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// CheckArtifactSize runs only the size check.
func (v *Validator) CheckArtifactSize(storageID, repositoryID string, candidateSize int64) error {
	return v.run(Candidate{StorageID: storageID, RepositoryID: repositoryID, Size: candidateSize}, []Check{SizeCheck{}})
}

// Validate runs every configured check and stops at the first failure.
func (v *Validator) Validate(c Candidate) error {
	return v.run(c, v.checks)
}

func (v *Validator) run(c Candidate, checks []Check) error {
	repo, err := v.repos.Repository(c.StorageID, c.RepositoryID)
	if err != nil {
		return err
	}
	for _, check := range checks {
		if err := check.Check(repo, c); err != nil {
			v.metrics.IncValidationRejected(repo.Layout, string(repoerr.KindOf(err)))
			logging.Info("validation", "artifact rejected",
				"check", check.Name(),
				"storage", c.StorageID, "repository", c.RepositoryID,
				"path", c.Path, "size", c.Size, "err", err)
			return err
		}
	}
	return nil
}
