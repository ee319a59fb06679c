// Package triage classifies inbound messages into a closed set of
// categories and routes each category to exactly one handler.
//
// Classification may be delegated to the inference capability and is not
// assumed to be deterministic; the routing table is. A Router refuses to
// start unless every routable category has a handler, so dispatch is total.
package triage
