// Package prometheus renders authgate metrics in Prometheus text exposition
// format.
//
// Counters are named authgate_*_total; the authenticate latency histogram is
// authgate_authenticate_latency_seconds and is only present when latency
// histograms are enabled.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry. Callers mount the Handler.
//   - Mutate engine state.
package prometheus
