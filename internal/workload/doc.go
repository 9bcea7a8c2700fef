// Package workload generates the synthetic request stream used by the
// comparison harness to drive the admission strategies.
package workload
