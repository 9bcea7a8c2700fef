// Package metrics provides real-time metrics collection for the
// admission engine.
//
// It uses a channel-based event pipeline to asynchronously collect:
//   - Immediate placements per server
//   - Rejections, queueing, and deadline expirations
//   - Synthetic request completions and orphan reassignments
//   - Server removals performed by the health sweep
//   - End-to-end assignment latency percentiles
//
// Aggregates are exposed both as a JSON snapshot and, optionally,
// through a Prometheus exporter.
package metrics
