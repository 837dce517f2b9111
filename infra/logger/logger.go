// Package logger provides the zerolog-backed implementation of the core
// logger interface.
package logger

import corelogger "github.com/kilianp07/microgrid/core/logger"

// Logger aliases the core interface so callers outside core need a single
// import.
type Logger = corelogger.Logger

// NopLogger discards everything. Tests use it to keep actor output quiet.
type NopLogger struct{}

func (NopLogger) Debugf(string, ...any)         {}
func (NopLogger) Debugw(string, map[string]any) {}
func (NopLogger) Infof(string, ...any)          {}
func (NopLogger) Warnf(string, ...any)          {}
func (NopLogger) Errorf(string, ...any)         {}

// New returns a Logger tagged with the given component. The output format
// follows the APP_ENV variable: console in dev, JSON otherwise.
func New(component string) Logger {
	return NewZerologLogger(component)
}
