// Package dispatch provides the facade callers go through to reach a
// router. It adds the simulated external-processing delay and measures
// end-to-end assignment latency.
package dispatch
