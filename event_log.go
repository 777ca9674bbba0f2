package session

import (
	"context"
	"time"
)

// EventLogEntry represents a single session event log entry
type EventLogEntry struct {
	SessionID string         `json:"session_id"`
	Kind      string         `json:"kind"`
	Event     string         `json:"event,omitempty"`
	From      string         `json:"from,omitempty"`
	To        string         `json:"to,omitempty"`
	RepCount  int            `json:"rep_count,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	At        time.Time      `json:"at"`
}

// EventLogger defines simple session event logging interface
type EventLogger interface {
	// LogEvent logs one session event
	LogEvent(ctx context.Context, entry *EventLogEntry) error

	// GetSessionHistory retrieves the event log for a session
	GetSessionHistory(ctx context.Context, sessionID string) ([]*EventLogEntry, error)
}

// EventLogCallbacks records session lifecycle events to an EventLogger.
// Attach it through a CallbackChain to get a durable audit trail of every
// transition, rollback, and reconciliation.
type EventLogCallbacks struct {
	BaseSessionCallbacks
	log EventLogger
}

// NewEventLogCallbacks creates a callbacks adapter over an event logger.
func NewEventLogCallbacks(log EventLogger) *EventLogCallbacks {
	return &EventLogCallbacks{log: log}
}

func (c *EventLogCallbacks) AfterTransition(ctx context.Context, event *TransitionEvent) {
	c.log.LogEvent(ctx, &EventLogEntry{
		SessionID: event.SessionID,
		Kind:      "transition",
		Event:     string(event.Event),
		From:      string(event.From),
		To:        string(event.To),
		At:        event.At,
	})
}

func (c *EventLogCallbacks) OnRepRecorded(ctx context.Context, event *RepRecordedEvent) {
	c.log.LogEvent(ctx, &EventLogEntry{
		SessionID: event.SessionID,
		Kind:      "rep_recorded",
		RepCount:  event.RepCount,
		Details:   map[string]any{"deferred": event.Deferred},
		At:        time.Now(),
	})
}

func (c *EventLogCallbacks) OnRollback(ctx context.Context, event *RollbackEvent) {
	entry := &EventLogEntry{
		SessionID: event.SessionID,
		Kind:      "rollback",
		At:        time.Now(),
	}
	if event.Checkpoint != nil {
		entry.RepCount = event.Checkpoint.RepCount
	}
	c.log.LogEvent(ctx, entry)
}

func (c *EventLogCallbacks) OnReconcileFinished(ctx context.Context, event *ReconcileFinishedEvent) {
	c.log.LogEvent(ctx, &EventLogEntry{
		SessionID: event.SessionID,
		Kind:      "reconcile_finished",
		At:        time.Now(),
	})
}
