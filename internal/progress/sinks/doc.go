// Package sinks implements progress consumers: structured logs, Prometheus
// collectors, and a run repository writer.
package sinks
