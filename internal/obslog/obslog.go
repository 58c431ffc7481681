// Package obslog wraps log/slog with the fixed stage/event vocabulary used
// across BatVault's services, the way the teacher keeps every call site
// consistent by funnelling through a handful of slog.Info/Warn/Error calls.
package obslog

import "log/slog"

// Stage identifies the subsystem emitting a log line.
type Stage string

const (
	StagePolicy    Stage = "policy"
	StageStorage   Stage = "storage"
	StageCache     Stage = "cache"
	StageGate      Stage = "gate"
	StageLLM       Stage = "llm"
	StageValidator Stage = "validator"
	StageIngest    Stage = "ingest"
	StageMemory    Stage = "memory"
	StageGateway   Stage = "gateway"
)

// Event logs an informational event for stage with key/value attributes.
func Event(stage Stage, event string, args ...interface{}) {
	slog.Info(event, append([]interface{}{"stage", string(stage)}, args...)...)
}

// Warn logs a warning event for stage.
func Warn(stage Stage, event string, args ...interface{}) {
	slog.Warn(event, append([]interface{}{"stage", string(stage)}, args...)...)
}

// Error logs an error event for stage.
func Error(stage Stage, event string, err error, args ...interface{}) {
	all := append([]interface{}{"stage", string(stage), "error", err}, args...)
	slog.Error(event, all...)
}
