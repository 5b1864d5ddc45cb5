// Package metrics exposes Prometheus collectors for screening calls and evaluations.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Option applies a configuration option to the Manager.
type Option func(*Manager)

// WithNamespace sets the namespace for all metrics.
func WithNamespace(namespace string) Option {
	return func(m *Manager) {
		if namespace != "" {
			m.namespace = namespace
		}
	}
}

// WithReplyBuckets sets the histogram buckets for reply latency.
func WithReplyBuckets(buckets []float64) Option {
	return func(m *Manager) {
		if len(buckets) > 0 {
			m.replyBuckets = buckets
		}
	}
}

// WithRegistry sets the registry collectors are registered on and served from.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(m *Manager) {
		if registry != nil {
			m.registry = registry
		}
	}
}
