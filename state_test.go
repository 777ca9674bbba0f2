package session

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNextStateTable(t *testing.T) {
	tests := []struct {
		name     string
		current  State
		event    Event
		offline  bool
		previous State
		want     State
		ok       bool
	}{
		{name: "start from idle", current: StateIdle, event: EventStartRecording, want: StateActive, ok: true},
		{name: "start while active rejected", current: StateActive, event: EventStartRecording, want: StateActive},
		{name: "active goes offline", current: StateActive, event: EventConnectivityLost, want: StateActiveOffline, ok: true},
		{name: "offline comes back", current: StateActiveOffline, event: EventConnectivityRestored, want: StateActive, ok: true},
		{name: "link loss while active", current: StateActive, event: EventLinkDisconnected, want: StatePausedLinkDisconnected, ok: true},
		{name: "link loss while active offline", current: StateActiveOffline, event: EventLinkDisconnected, want: StatePausedLinkDisconnected, ok: true},
		{name: "link loss while idle ignored", current: StateIdle, event: EventLinkDisconnected, want: StateIdle},
		{name: "link restore starts countdown", current: StatePausedLinkDisconnected, event: EventLinkReconnected, want: StateResumingCountdown, ok: true},
		{name: "countdown resumes online", current: StateResumingCountdown, event: EventCountdownElapsed, want: StateActive, ok: true},
		{name: "countdown resumes offline", current: StateResumingCountdown, event: EventCountdownElapsed, offline: true, want: StateActiveOffline, ok: true},
		{name: "cancel from active", current: StateActive, event: EventCancelRequested, want: StateCancelConfirm, ok: true},
		{name: "cancel from waiting", current: StateWaitingForConnectivity, event: EventCancelRequested, want: StateCancelConfirm, ok: true},
		{name: "cancel from idle rejected", current: StateIdle, event: EventCancelRequested, want: StateIdle},
		{name: "keep restores previous", current: StateCancelConfirm, event: EventSessionKept, previous: StateActiveOffline, want: StateActiveOffline, ok: true},
		{name: "discard from confirm", current: StateCancelConfirm, event: EventSessionDiscarded, want: StateIdle, ok: true},
		{name: "discard from waiting", current: StateWaitingForConnectivity, event: EventSessionDiscarded, want: StateIdle, ok: true},
		{name: "completion defers", current: StateActiveOffline, event: EventWorkoutCompleted, want: StateWaitingForConnectivity, ok: true},
		{name: "completion while online too", current: StateActive, event: EventWorkoutCompleted, want: StateWaitingForConnectivity, ok: true},
		{name: "result ready finishes", current: StateWaitingForConnectivity, event: EventResultReady, want: StateIdle, ok: true},
		{name: "restored alone does not leave waiting", current: StateWaitingForConnectivity, event: EventConnectivityRestored, want: StateWaitingForConnectivity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := nextState(tt.current, tt.event, tt.offline, tt.previous)
			require.Equal(t, tt.ok, ok)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestIsRecordingState(t *testing.T) {
	require.True(t, IsRecordingState(StateActive))
	require.True(t, IsRecordingState(StateActiveOffline))
	require.False(t, IsRecordingState(StateIdle))
	require.False(t, IsRecordingState(StatePausedLinkDisconnected))
	require.False(t, IsRecordingState(StateWaitingForConnectivity))
}
