package logging

import (
	"fmt"
	"log/slog"
	"strings"
)

// PrintfAdapter adapts an slog.Logger to the printf-style logger interface
// expected by embedded databases such as badger.
type PrintfAdapter struct {
	logger *slog.Logger
}

// NewPrintfAdapter creates a new PrintfAdapter wrapping the given slog.Logger.
// If logger is nil, slog.Default() is used.
func NewPrintfAdapter(logger *slog.Logger) *PrintfAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &PrintfAdapter{logger: logger}
}

// Errorf logs a formatted message at error level.
func (a *PrintfAdapter) Errorf(format string, args ...interface{}) {
	a.logger.Error(clean(format, args))
}

// Warningf logs a formatted message at warn level.
func (a *PrintfAdapter) Warningf(format string, args ...interface{}) {
	a.logger.Warn(clean(format, args))
}

// Infof is demoted to debug; embedded stores are chatty at info.
func (a *PrintfAdapter) Infof(format string, args ...interface{}) {
	a.logger.Debug(clean(format, args))
}

// Debugf logs a formatted message at debug level.
func (a *PrintfAdapter) Debugf(format string, args ...interface{}) {
	a.logger.Debug(clean(format, args))
}

// Logger returns the underlying slog.Logger for direct access when needed.
func (a *PrintfAdapter) Logger() *slog.Logger {
	return a.logger
}

func clean(format string, args []interface{}) string {
	return strings.TrimRight(fmt.Sprintf(format, args...), "\n")
}
