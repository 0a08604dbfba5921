// Package obslog builds the structured zap logger and the audit-event
// emitters used across the dispatcher and worker runtime, following the
// teacher's PersistentPreRunE logger-bootstrap pattern in cmd/nerd/main.go
// and its internal/logging/audit.go event taxonomy, renamed to this
// domain's own event set.
package obslog

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a production logger, or a development logger with debug level
// when verbose is set.
func New(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return cfg.Build()
}

// EventType enumerates the structured audit events this system emits.
type EventType string

const (
	EventMissionDispatched EventType = "mission_dispatched"
	EventMissionClaimed    EventType = "mission_claimed"
	EventMissionCompleted  EventType = "mission_completed"
	EventSessionRotated    EventType = "session_rotated"
	EventTraumaRecorded    EventType = "trauma_recorded"
	EventSelectorRepaired  EventType = "selector_repaired"
	EventCaptchaResolved   EventType = "captcha_resolved"
	EventStationEnter      EventType = "station_enter"
	EventStationExit       EventType = "station_exit"
	EventStopCondition     EventType = "stop_condition"
)

// Audit emits one structured audit event at info level.
func Audit(logger *zap.Logger, event EventType, fields ...zap.Field) {
	all := append([]zap.Field{zap.String("event", string(event))}, fields...)
	logger.Info("audit", all...)
}
