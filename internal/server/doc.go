// Package server holds the state shared by the long-running agent and its
// operator surfaces, and the HTTP endpoints used to observe it.
//
// # Key Components
//
// ServerContext owns the wired agent and remembers the outcome of the last
// cycle. Every cycle, whether started by the scheduler or by an operator
// tool, goes through ServerContext.RunCycle.
//
// HealthChecker serves Kubernetes probes. Readiness reflects both the
// shutdown state and the last cycle: a cycle that aborted (ledger or
// persistence failure) marks the agent not ready until a later cycle
// succeeds. Partial cycles stay ready.
//
// MetricsServer exposes Prometheus metrics and the health endpoints on a
// dedicated port.
package server
