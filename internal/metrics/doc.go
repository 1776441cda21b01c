// Package metrics holds the gateway's Prometheus collectors. They register
// with the default registry at init and are served by promhttp when
// metrics.enabled is set.
package metrics
