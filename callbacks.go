package session

import (
	"context"
	"time"
)

// SessionCallbacks defines the callback interface for session lifecycle
// events. The UI layer attaches here; it never inspects queue or checkpoint
// internals directly.
type SessionCallbacks interface {
	// State machine callbacks
	BeforeTransition(ctx context.Context, event *TransitionEvent)
	AfterTransition(ctx context.Context, event *TransitionEvent)

	// Data callbacks
	OnRepRecorded(ctx context.Context, event *RepRecordedEvent)
	OnRollback(ctx context.Context, event *RollbackEvent)
	OnReconcileFinished(ctx context.Context, event *ReconcileFinishedEvent)
}

// TransitionEvent provides context for a state transition.
type TransitionEvent struct {
	SessionID string
	Event     Event
	From      State
	To        State
	At        time.Time
}

// RepRecordedEvent provides context for a confirmed repetition.
type RepRecordedEvent struct {
	SessionID string
	Rep       *RepSummary
	RepCount  int
	Deferred  bool // true when the streaming upload was queued for later
}

// RollbackEvent provides context for a checkpoint rollback.
type RollbackEvent struct {
	SessionID  string
	Checkpoint *Checkpoint
}

// ReconcileFinishedEvent provides context for a completed reconciliation.
type ReconcileFinishedEvent struct {
	SessionID string
	Result    *ReconcileResult
}

// BaseSessionCallbacks provides a default implementation that does nothing.
// Embed this in your own callbacks to override only the events you need.
type BaseSessionCallbacks struct{}

func (n *BaseSessionCallbacks) BeforeTransition(ctx context.Context, event *TransitionEvent) {
	// noop
}

func (n *BaseSessionCallbacks) AfterTransition(ctx context.Context, event *TransitionEvent) {
	// noop
}

func (n *BaseSessionCallbacks) OnRepRecorded(ctx context.Context, event *RepRecordedEvent) {
	// noop
}

func (n *BaseSessionCallbacks) OnRollback(ctx context.Context, event *RollbackEvent) {
	// noop
}

func (n *BaseSessionCallbacks) OnReconcileFinished(ctx context.Context, event *ReconcileFinishedEvent) {
	// noop
}

// CallbackChain allows chaining multiple callback implementations
type CallbackChain struct {
	callbacks []SessionCallbacks
}

// NewCallbackChain creates a new callback chain
func NewCallbackChain(callbacks ...SessionCallbacks) *CallbackChain {
	return &CallbackChain{callbacks: callbacks}
}

// Add adds a callback to the chain
func (c *CallbackChain) Add(callback SessionCallbacks) {
	c.callbacks = append(c.callbacks, callback)
}

func (c *CallbackChain) BeforeTransition(ctx context.Context, event *TransitionEvent) {
	for _, callback := range c.callbacks {
		callback.BeforeTransition(ctx, event)
	}
}

func (c *CallbackChain) AfterTransition(ctx context.Context, event *TransitionEvent) {
	for _, callback := range c.callbacks {
		callback.AfterTransition(ctx, event)
	}
}

func (c *CallbackChain) OnRepRecorded(ctx context.Context, event *RepRecordedEvent) {
	for _, callback := range c.callbacks {
		callback.OnRepRecorded(ctx, event)
	}
}

func (c *CallbackChain) OnRollback(ctx context.Context, event *RollbackEvent) {
	for _, callback := range c.callbacks {
		callback.OnRollback(ctx, event)
	}
}

func (c *CallbackChain) OnReconcileFinished(ctx context.Context, event *ReconcileFinishedEvent) {
	for _, callback := range c.callbacks {
		callback.OnReconcileFinished(ctx, event)
	}
}
