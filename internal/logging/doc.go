// Package logging provides structured logging utilities for todocal.
//
// All components log through *slog.Logger. This package keeps attribute
// names consistent and makes sure credentials and addresses never reach
// the output in clear text.
//
// # Usage Patterns
//
// Create a logger with standard attributes:
//
//	logger := logging.WithOperation(slog.Default(), "calendar.list")
//	logger.Info("listing events", logging.Status(logging.StatusSuccess))
//
// Sanitize sensitive data before logging:
//
//	logger.Info("signed in", logging.UserHash(email), logging.Token(token))
//
// # Handlers
//
// New builds the process logger. The "text" format renders through
// charmbracelet/log for terminals, "json" uses slog.NewJSONHandler.
package logging
