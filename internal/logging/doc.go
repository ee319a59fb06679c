// Package logging provides structured logging utilities for the inboxagent pipeline.
//
// This package centralizes logging patterns so that every stage of a cycle
// (fetch, triage, handlers, follow-ups, reports) logs with the same attribute
// names, using the standard library's slog package.
//
// # Key Features
//
//   - Structured logging with slog
//   - PII sanitization (sender address anonymization)
//   - Consistent attribute naming across the codebase
//   - Logger interface for collaborators that only need to emit lines
//
// # Usage Patterns
//
// Create a logger scoped to a cycle and a message:
//
//	logger := logging.WithCycle(slog.Default(), cycleID)
//	logger = logging.WithMessage(logger, msg.ID)
//	logger.Info("message routed",
//	    logging.Category("medical_news"),
//	    logging.SenderHash(msg.Sender))
//
// # Security Considerations
//
// Sender addresses are hashed before logging so that log lines can be
// correlated without exposing who wrote to the mailbox.
package logging
