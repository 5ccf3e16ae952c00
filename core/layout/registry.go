package layout

import (
	"github.com/cordum/pkgvault/core/coordinates"
	"github.com/cordum/pkgvault/core/infra/metrics"
	"github.com/cordum/pkgvault/core/repoerr"
)

// Registry maps layout identifiers to providers. It is filled once in
// NewRegistry and only read afterwards, so lookups need no locking.
type Registry struct {
	repos     RepositorySource
	providers map[coordinates.Layout]Provider
}

// Option configures a Registry.
type Option func(*registryOptions)

type registryOptions struct {
	metrics metrics.Metrics
}

// WithMetrics records delete counters on m.
func WithMetrics(m metrics.Metrics) Option {
	return func(o *registryOptions) {
		if m != nil {
			o.metrics = m
		}
	}
}

// NewRegistry builds one provider for every supported layout.
func NewRegistry(repos RepositorySource, opts ...Option) *Registry {
	o := registryOptions{metrics: metrics.Noop{}}
	for _, opt := range opts {
		opt(&o)
	}
	r := &Registry{
		repos:     repos,
		providers: make(map[coordinates.Layout]Provider, len(coordinates.Layouts())),
	}
	for _, l := range coordinates.Layouts() {
		switch l {
		case coordinates.LayoutMaven2, coordinates.LayoutNpm, coordinates.LayoutRaw:
			r.providers[l] = &fsProvider{layout: l, repos: repos, metrics: o.metrics}
		}
	}
	return r
}

// Provider returns the provider registered for layoutID.
func (r *Registry) Provider(layoutID string) (Provider, error) {
	p, ok := r.providers[coordinates.Layout(layoutID)]
	if !ok {
		return nil, repoerr.UnknownLayout(layoutID)
	}
	return p, nil
}

// ProviderFor returns the provider for the layout a repository declares.
func (r *Registry) ProviderFor(storageID, repositoryID string) (Provider, error) {
	repo, err := r.repos.Repository(storageID, repositoryID)
	if err != nil {
		return nil, err
	}
	return r.Provider(repo.Layout)
}

// Layouts lists the registered layouts in stable order.
func (r *Registry) Layouts() []coordinates.Layout {
	out := make([]coordinates.Layout, 0, len(r.providers))
	for _, l := range coordinates.Layouts() {
		if _, ok := r.providers[l]; ok {
			out = append(out, l)
		}
	}
	return out
}
