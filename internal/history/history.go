// Package history records lifecycle events for later inspection. The
// controller tags every launch with a session id so the events of one
// run group together.
package history

import (
	"context"
	"time"
)

type EventType string

const (
	EventLaunch           EventType = "launch"
	EventStop             EventType = "stop"
	EventCrash            EventType = "crash"
	EventAutoRestart      EventType = "auto_restart"
	EventScheduledRestart EventType = "scheduled_restart"
	EventUpdate           EventType = "update"
	EventBackup           EventType = "backup"
)

type Event struct {
	Session    string // uuid, one per launch
	Type       EventType
	PID        int
	ExitCode   int
	Detail     string
	OccurredAt time.Time
}

// Sink persists events. Implementations must tolerate concurrent Send
// calls. A nil sink is treated as disabled by callers.
type Sink interface {
	Send(ctx context.Context, e Event) error
	Close() error
}
