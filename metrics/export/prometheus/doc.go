// Package prometheus renders goSession counters and the refresh latency
// histogram in Prometheus text exposition format.
//
// Counters are named gosession_*_total and the histogram
// gosession_refresh_latency_seconds. Nothing is registered globally; mount
// [Exporter.Handler] where it is needed.
package prometheus
