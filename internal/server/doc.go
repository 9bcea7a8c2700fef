// Package server models the capacity-bounded servers a router places
// requests on. It tracks per-server load and in-flight requests and
// maintains the invariant that a server's load always equals the sum of
// its active request sizes.
package server
