// Package otel exposes goSession metrics as OpenTelemetry observable
// instruments.
//
// Each counter becomes an Int64ObservableCounter and each latency bucket an
// Int64ObservableGauge. One callback reads the client's snapshot per
// collection. The caller owns the MeterProvider.
package otel
