// Package metrics provides Prometheus metrics for the cadence scheduling service.
package metrics

import (
	"regexp"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var namePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Option applies a configuration option to the Manager.
type Option func(*Manager)

// WithNamespace sets the namespace of every series. Names Prometheus would
// reject are ignored.
func WithNamespace(namespace string) Option {
	return func(m *Manager) {
		if namePattern.MatchString(namespace) {
			m.namespace = namespace
		}
	}
}

// WithSubsystem sets the subsystem of every series.
func WithSubsystem(subsystem string) Option {
	return func(m *Manager) {
		if namePattern.MatchString(subsystem) {
			m.subsystem = subsystem
		}
	}
}

// WithLatencyBuckets sets the millisecond buckets of the attempt, worker,
// checkpoint and HTTP latency histograms. Buckets must be strictly increasing.
func WithLatencyBuckets(buckets []float64) Option {
	return func(m *Manager) {
		if len(buckets) == 0 || !sort.Float64sAreSorted(buckets) {
			return
		}
		for i := 1; i < len(buckets); i++ {
			if buckets[i] == buckets[i-1] {
				return
			}
		}
		m.latencyBuckets = append([]float64(nil), buckets...)
	}
}

// WithEnabled turns recording on or off. A disabled manager still registers
// its series so /metrics keeps a stable shape.
func WithEnabled(enabled bool) Option {
	return func(m *Manager) {
		m.enabled = enabled
	}
}

// WithSampleInterval sets how often runtime gauges are sampled.
func WithSampleInterval(interval time.Duration) Option {
	return func(m *Manager) {
		if interval > 0 {
			m.sampleInterval = interval
		}
	}
}

// WithNode attaches a constant node label to every series, for deployments
// running several instances behind one scrape job.
func WithNode(node string) Option {
	return func(m *Manager) {
		if node != "" {
			m.node = node
		}
	}
}

// WithRegistry sets the registerer the series are created on.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(m *Manager) {
		if registry != nil {
			m.registry = registry
		}
	}
}
