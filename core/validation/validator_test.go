package validation

import (
	"errors"
	"sync"
	"testing"

	"github.com/cordum/pkgvault/core/infra/config"
	"github.com/cordum/pkgvault/core/repoerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const storageID = "storage0"

func newManager(t *testing.T, repos ...config.Repository) *config.Manager {
	t.Helper()
	storage := config.Storage{ID: storageID, BaseDir: "/vault/storage0", Repositories: map[string]config.Repository{}}
	for _, r := range repos {
		r.StorageID = storageID
		r.BaseDir = "/vault/storage0/" + r.ID
		if r.Layout == "" {
			r.Layout = "Maven 2"
		}
		storage.Repositories[r.ID] = r
	}
	m, err := config.NewManager(&config.StorageConfig{Storages: map[string]config.Storage{storageID: storage}})
	require.NoError(t, err)
	return m
}

func TestCheckArtifactSizeBoundary(t *testing.T) {
	const limit = 1024
	v := New(newManager(t,
		config.Repository{ID: "limited", ArtifactMaxSize: limit},
		config.Repository{ID: "unlimited"},
	))

	assert.NoError(t, v.CheckArtifactSize(storageID, "limited", limit))
	assert.NoError(t, v.CheckArtifactSize(storageID, "limited", 1))

	err := v.CheckArtifactSize(storageID, "limited", limit+1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, repoerr.ErrArtifactSizeExceeded))
	var rerr *repoerr.Error
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, int64(limit), rerr.Limit)
	assert.Equal(t, int64(limit+1), rerr.Size)

	assert.True(t, errors.Is(v.CheckArtifactSize(storageID, "unlimited", 0), repoerr.ErrEmptyArtifact))
	assert.True(t, errors.Is(v.CheckArtifactSize(storageID, "limited", 0), repoerr.ErrEmptyArtifact))
	assert.True(t, errors.Is(v.CheckArtifactSize(storageID, "unlimited", -3), repoerr.ErrEmptyArtifact))
	assert.NoError(t, v.CheckArtifactSize(storageID, "unlimited", 1<<40))
}

func TestCheckArtifactSizeUnknownRepository(t *testing.T) {
	v := New(newManager(t))
	err := v.CheckArtifactSize(storageID, "missing", 10)
	assert.True(t, errors.Is(err, repoerr.ErrRepositoryNotFound))
}

func TestValidateRunsChecksInOrder(t *testing.T) {
	var calls []string
	record := func(name string, fail bool) Check {
		return CheckFunc{ID: name, Fn: func(config.Repository, Candidate) error {
			calls = append(calls, name)
			if fail {
				return repoerr.ArtifactNotFound(storageID, "r", "x")
			}
			return nil
		}}
	}
	v := New(newManager(t, config.Repository{ID: "r"}),
		WithChecks(record("first", false), record("second", true), record("third", false)))

	err := v.Validate(Candidate{StorageID: storageID, RepositoryID: "r", Size: 10})
	require.Error(t, err)
	assert.Equal(t, []string{"first", "second"}, calls)

	calls = nil
	err = v.Validate(Candidate{StorageID: storageID, RepositoryID: "r", Size: 0})
	assert.True(t, errors.Is(err, repoerr.ErrEmptyArtifact))
	assert.Empty(t, calls, "size check runs first")
}

func TestValidateSeesOneSnapshot(t *testing.T) {
	m := newManager(t, config.Repository{ID: "r", ArtifactMaxSize: 100})
	var seen []int64
	v := New(m, WithChecks(
		CheckFunc{ID: "mutate", Fn: func(repo config.Repository, _ Candidate) error {
			seen = append(seen, repo.ArtifactMaxSize)
			return m.SetArtifactMaxSize(storageID, "r", 1)
		}},
		CheckFunc{ID: "observe", Fn: func(repo config.Repository, _ Candidate) error {
			seen = append(seen, repo.ArtifactMaxSize)
			return nil
		}},
	))
	require.NoError(t, v.Validate(Candidate{StorageID: storageID, RepositoryID: "r", Size: 50}))
	assert.Equal(t, []int64{100, 100}, seen)

	err := v.CheckArtifactSize(storageID, "r", 50)
	assert.True(t, errors.Is(err, repoerr.ErrArtifactSizeExceeded), "next call observes the update")
}

func TestValidatorConcurrentUse(t *testing.T) {
	m := newManager(t, config.Repository{ID: "r", ArtifactMaxSize: 10})
	v := New(m)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%4 == 0 {
				_ = m.SetArtifactMaxSize(storageID, "r", int64(10+i))
			}
			err := v.CheckArtifactSize(storageID, "r", 5)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
}
