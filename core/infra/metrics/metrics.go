package metrics

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Metrics defines counters for layout, validation and entry operations.
type Metrics interface {
	IncValidationRejected(layout, kind string)
	IncHookRejected(class, kind string)
	IncEntriesCreated(store string)
	IncArtifactsDeleted(layout string, forced bool)
	ObserveDeleteDuration(layout string, durationSeconds float64)
}

// Noop implements Metrics without emitting anything.
type Noop struct{}

func (Noop) IncValidationRejected(string, string)  {}
func (Noop) IncHookRejected(string, string)        {}
func (Noop) IncEntriesCreated(string)              {}
func (Noop) IncArtifactsDeleted(string, bool)      {}
func (Noop) ObserveDeleteDuration(string, float64) {}

// Prom implements Metrics backed by Prometheus collectors.
type Prom struct {
	validationRejected *prometheus.CounterVec
	hookRejected       *prometheus.CounterVec
	entriesCreated     *prometheus.CounterVec
	artifactsDeleted   *prometheus.CounterVec
	deleteDuration     *prometheus.HistogramVec
}

func NewProm(namespace string) *Prom {
	p := &Prom{
		validationRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_rejected_total",
			Help:      "Artifact operations rejected by the validator per layout and error kind",
		}, []string{"layout", "kind"}),
		hookRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entry_hook_rejected_total",
			Help:      "Entry creations vetoed by a persistence hook per class and error kind",
		}, []string{"class", "kind"}),
		entriesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entries_created_total",
			Help:      "Entries persisted per store backend",
		}, []string{"store"}),
		artifactsDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifacts_deleted_total",
			Help:      "Artifact paths deleted per layout and force flag",
		}, []string{"layout", "forced"}),
		deleteDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "artifact_delete_duration_seconds",
			Help:      "Artifact delete latency per layout",
			Buckets:   prometheus.DefBuckets,
		}, []string{"layout"}),
	}
	p.register()
	return p
}

// register adopts collectors that an earlier NewProm already registered so
// every Prom in the process feeds the same series.
func (p *Prom) register() {
	p.validationRejected = registerCounterVec(p.validationRejected)
	p.hookRejected = registerCounterVec(p.hookRejected)
	p.entriesCreated = registerCounterVec(p.entriesCreated)
	p.artifactsDeleted = registerCounterVec(p.artifactsDeleted)
	if err := prometheus.Register(p.deleteDuration); err != nil {
		p.deleteDuration = existing(err).(*prometheus.HistogramVec)
	}
}

func registerCounterVec(c *prometheus.CounterVec) *prometheus.CounterVec {
	if err := prometheus.Register(c); err != nil {
		return existing(err).(*prometheus.CounterVec)
	}
	return c
}

func existing(err error) prometheus.Collector {
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		return are.ExistingCollector
	}
	panic(err)
}

func (p *Prom) IncValidationRejected(layout, kind string) {
	p.validationRejected.WithLabelValues(layout, kind).Inc()
}

func (p *Prom) IncHookRejected(class, kind string) {
	p.hookRejected.WithLabelValues(class, kind).Inc()
}

func (p *Prom) IncEntriesCreated(store string) {
	p.entriesCreated.WithLabelValues(store).Inc()
}

func (p *Prom) IncArtifactsDeleted(layout string, forced bool) {
	p.artifactsDeleted.WithLabelValues(layout, strconv.FormatBool(forced)).Inc()
}

func (p *Prom) ObserveDeleteDuration(layout string, durationSeconds float64) {
	p.deleteDuration.WithLabelValues(layout).Observe(durationSeconds)
}

// WriteText dumps every registered family in the Prometheus text format.
func WriteText(w io.Writer) error {
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("write metric %s: %w", mf.GetName(), err)
		}
	}
	return nil
}
