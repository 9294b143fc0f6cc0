// Package metrics defines the public metrics surface of the pipeline engine.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// RegistryProvider exposes the Prometheus registry that pipeline collectors
// are registered against. Embedders can supply their own provider to merge
// gantry metrics into an existing registry.
type RegistryProvider interface {
	Registry() *prometheus.Registry
}
