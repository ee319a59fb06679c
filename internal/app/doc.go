// Package app assembles the agent from its configuration: mail provider
// adapters, inference, triage, handlers, the outreach engine, reports,
// persistence and the cycle runner.
package app
