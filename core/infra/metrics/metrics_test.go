package metrics

import (
	"bytes"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func withTestRegistry(t *testing.T) *prometheus.Registry {
	t.Helper()
	origReg := prometheus.DefaultRegisterer
	origGather := prometheus.DefaultGatherer
	reg := prometheus.NewRegistry()
	prometheus.DefaultRegisterer = reg
	prometheus.DefaultGatherer = reg
	t.Cleanup(func() {
		prometheus.DefaultRegisterer = origReg
		prometheus.DefaultGatherer = origGather
	})
	return reg
}

func TestNoopMetrics(t *testing.T) {
	var m Metrics = Noop{}
	m.IncValidationRejected("npm", "EmptyArtifactError")
	m.IncHookRejected("ArtifactEntry", "PathMismatchError")
	m.IncEntriesCreated("memory")
	m.IncArtifactsDeleted("Maven 2", true)
	m.ObserveDeleteDuration("Maven 2", 0.1)
}

func TestPromMetrics(t *testing.T) {
	reg := withTestRegistry(t)
	m := NewProm("pkgvault")
	m.IncValidationRejected("npm", "ArtifactSizeExceededError")
	m.IncHookRejected("ArtifactEntry", "MissingPathError")
	m.IncEntriesCreated("redis")
	m.IncArtifactsDeleted("Maven 2", false)
	m.ObserveDeleteDuration("Maven 2", 0.02)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if !hasMetric(families, "pkgvault_validation_rejected_total", map[string]string{"layout": "npm", "kind": "ArtifactSizeExceededError"}) {
		t.Fatalf("expected validation_rejected metric")
	}
	if !hasMetric(families, "pkgvault_entry_hook_rejected_total", map[string]string{"class": "ArtifactEntry", "kind": "MissingPathError"}) {
		t.Fatalf("expected entry_hook_rejected metric")
	}
	if !hasMetric(families, "pkgvault_entries_created_total", map[string]string{"store": "redis"}) {
		t.Fatalf("expected entries_created metric")
	}
	if !hasMetric(families, "pkgvault_artifacts_deleted_total", map[string]string{"layout": "Maven 2", "forced": "false"}) {
		t.Fatalf("expected artifacts_deleted metric")
	}
	if !hasMetric(families, "pkgvault_artifact_delete_duration_seconds", map[string]string{"layout": "Maven 2"}) {
		t.Fatalf("expected delete duration metric")
	}
}

func TestWriteText(t *testing.T) {
	withTestRegistry(t)
	m := NewProm("pkgvault")
	m.IncEntriesCreated("sqlite")

	var buf bytes.Buffer
	if err := WriteText(&buf); err != nil {
		t.Fatalf("write text: %v", err)
	}
	if !strings.Contains(buf.String(), `pkgvault_entries_created_total{store="sqlite"} 1`) {
		t.Fatalf("unexpected metrics output: %s", buf.String())
	}
}

func hasMetric(families []*dto.MetricFamily, name string, labels map[string]string) bool {
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if matchLabels(metric.GetLabel(), labels) {
				return true
			}
		}
	}
	return false
}

func matchLabels(pairs []*dto.LabelPair, labels map[string]string) bool {
	if len(labels) == 0 {
		return true
	}
	found := 0
	for _, pair := range pairs {
		if val, ok := labels[pair.GetName()]; ok && pair.GetValue() == val {
			found++
		}
	}
	return found == len(labels)
}

func TestNewPromTwiceSharesSeries(t *testing.T) {
	reg := withTestRegistry(t)
	first := NewProm("pkgvault")
	second := NewProm("pkgvault")
	first.IncEntriesCreated("memory")
	second.IncEntriesCreated("memory")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, fam := range families {
		if fam.GetName() != "pkgvault_entries_created_total" {
			continue
		}
		if got := fam.GetMetric()[0].GetCounter().GetValue(); got != 2 {
			t.Fatalf("expected shared counter at 2, got %v", got)
		}
		return
	}
	t.Fatalf("entries_created metric missing")
}
