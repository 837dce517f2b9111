// Package logger defines the logging interface used by the core packages.
// Concrete adapters live under infra/logger so the core stays free of
// logging-library imports.
package logger

// Logger exposes logging methods for common severity levels. Pool actors
// receive one instance each, tagged with their component field.
type Logger interface {
	Debugf(format string, args ...any)
	// Debugw logs a message with structured fields, typically per-component
	// details such as resolved targets or blocking reasons.
	Debugw(msg string, fields map[string]any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}
