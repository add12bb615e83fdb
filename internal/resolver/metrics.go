package resolver

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// writeMetrics writes the run counts as a Prometheus textfile for the node
// exporter's textfile collector.
func writeMetrics(path string, s *Summary) error {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	labels := prometheus.Labels{"design": s.Design}

	gauge := func(name, help string, v float64) {
		factory.NewGauge(prometheus.GaugeOpts{
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		}).Set(v)
	}

	gauge("netres_signals_scanned", "Signals visited by the last hierarchy walk", float64(s.Stats.SignalsScanned))
	gauge("netres_instances_scanned", "Instances visited by the last hierarchy walk", float64(s.Stats.InstancesScanned))
	gauge("netres_nets_discovered", "Nets discovered by the last run", float64(s.Stats.NetsDiscovered))
	gauge("netres_nets_requiring_resolution", "Nets the last run marked for resolution", float64(s.Stats.NetsRequiringResolution))
	gauge("netres_nets_not_resolved", "Discovered nets the policy left without resolution", float64(len(s.NotResolved)))
	gauge("netres_nets_unresolved", "Candidate nets left without resolution logic", float64(len(s.Unresolved)))
	gauge("netres_walk_warnings", "Malformed hierarchy nodes skipped with a warning", float64(s.Stats.Warnings))
	gauge("netres_run_duration_seconds", "Wall time of the last run", s.DurationMS/1000)

	artifacts := factory.NewGaugeVec(prometheus.GaugeOpts{
		Name:        "netres_artifacts",
		Help:        "Artifacts handled by the last run by outcome",
		ConstLabels: labels,
	}, []string{"outcome"})
	artifacts.WithLabelValues("written").Set(float64(s.Counts.Written))
	artifacts.WithLabelValues("cached").Set(float64(s.Counts.Cached))
	artifacts.WithLabelValues("validated").Set(float64(s.Counts.Validated))
	artifacts.WithLabelValues("failed").Set(float64(s.Counts.Failed))

	cacheHit := 0.0
	if s.Cache == CacheHit {
		cacheHit = 1
	}
	gauge("netres_cache_hit", "1 when the last run reused the whole-design cache", cacheHit)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("metrics dir: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, reg); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
