// Package router implements the request-admission strategies:
//
//   - Round Robin: cyclic selection with a static capacity check
//   - Least Connections: lazy capacity reclaim, then fewest in-flight requests
//   - Load Aware: full admission control with a priority-ordered pending
//     queue, deadline expiry, and a background fault-injecting health sweep
//
// Every router owns its server registry behind a single mutex; an
// assignment always returns a placed, queued, or rejected result without
// blocking. Selection tie-breaks resolve in server id order so behavior
// is reproducible.
package router
