package session

import (
	"context"
	"errors"
	"time"
)

// ErrCheckpointRegression is returned when a save would replace a checkpoint
// with one representing less progress. Checkpoint writes are strictly
// monotonic within a session.
var ErrCheckpointRegression = errors.New("checkpoint represents less progress than the stored one")

// Checkpoint is the last confirmed-good progress snapshot for one session.
// It is created or fully replaced exactly once per completed repetition and
// is what rollback restores to after a mid-repetition link loss.
type Checkpoint struct {
	SessionID             string    `json:"session_id"`
	RepCount              int       `json:"rep_count"`
	BufferedSampleIndex   int       `json:"buffered_sample_index"`
	ElapsedSeconds        int       `json:"elapsed_seconds"`
	FullChartLength       int       `json:"full_chart_length"`
	LastRepEndTime        time.Time `json:"last_rep_end_time,omitzero"`
	LastRepEndSampleIndex int       `json:"last_rep_end_sample_index"`
	CheckpointAt          time.Time `json:"checkpoint_at"`
}

// Copy returns a shallow copy of the checkpoint.
func (c *Checkpoint) Copy() *Checkpoint {
	dup := *c
	return &dup
}

// supersedes reports whether c represents at least as much progress as prev.
func (c *Checkpoint) supersedes(prev *Checkpoint) bool {
	if prev == nil {
		return true
	}
	return c.RepCount >= prev.RepCount && c.BufferedSampleIndex >= prev.BufferedSampleIndex
}

// CheckpointStore holds the last confirmed-good progress marker for the
// active session. A save fully replaces the previous checkpoint or fails;
// there is no partial write.
type CheckpointStore interface {
	// Save stores the checkpoint, replacing any previous one for the same
	// session. Returns ErrCheckpointRegression if the checkpoint represents
	// less progress than the stored one.
	Save(ctx context.Context, checkpoint *Checkpoint) error

	// Load returns the stored checkpoint for a session, or nil when none
	// exists.
	Load(ctx context.Context, sessionID string) (*Checkpoint, error)

	// Clear removes the checkpoint for a session. Called when the session
	// ends, whether completed, canceled, or discarded.
	Clear(ctx context.Context, sessionID string) error
}
