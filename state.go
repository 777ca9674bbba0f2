package session

// State represents the recording session state. Exactly one state is active
// at a time; all transitions go through the table in nextState.
type State string

const (
	StateIdle                   State = "idle"
	StateActive                 State = "active"
	StateActiveOffline          State = "active_offline"
	StatePausedLinkDisconnected State = "paused_link_disconnected"
	StateResumingCountdown      State = "resuming_countdown"
	StateCancelConfirm          State = "cancel_confirm"
	StateWaitingForConnectivity State = "waiting_for_connectivity"
)

// Event is a typed trigger consumed by the session state machine. Watchers
// and the queue surface their signals as events; they never mutate state
// directly.
type Event string

const (
	EventStartRecording       Event = "start_recording"
	EventConnectivityLost     Event = "connectivity_lost"
	EventConnectivityRestored Event = "connectivity_restored"
	EventLinkDisconnected     Event = "link_disconnected"
	EventLinkReconnected      Event = "link_reconnected"
	EventCountdownElapsed     Event = "countdown_elapsed"
	EventCancelRequested      Event = "cancel_requested"
	EventSessionKept          Event = "session_kept"
	EventSessionDiscarded     Event = "session_discarded"
	EventWorkoutCompleted     Event = "workout_completed"
	EventResultReady          Event = "result_ready"
)

// IsRecordingState reports whether sensor samples are being consumed in the
// given state. Link disconnects outside of these states are ignored.
func IsRecordingState(s State) bool {
	return s == StateActive || s == StateActiveOffline
}

// nextState resolves the destination state for an event. Two destinations
// depend on runtime conditions and are resolved through the extra arguments:
// the countdown resolves to active or active-offline based on current
// connectivity, and keeping a session from the cancel prompt returns to the
// state that was active before the prompt. The second return value is false
// when the event is not valid in the current state.
func nextState(current State, event Event, offline bool, previous State) (State, bool) {
	switch event {
	case EventStartRecording:
		if current == StateIdle {
			return StateActive, true
		}
	case EventConnectivityLost:
		if current == StateActive {
			return StateActiveOffline, true
		}
	case EventConnectivityRestored:
		if current == StateActiveOffline {
			return StateActive, true
		}
	case EventLinkDisconnected:
		if IsRecordingState(current) {
			return StatePausedLinkDisconnected, true
		}
	case EventLinkReconnected:
		if current == StatePausedLinkDisconnected {
			return StateResumingCountdown, true
		}
	case EventCountdownElapsed:
		if current == StateResumingCountdown {
			if offline {
				return StateActiveOffline, true
			}
			return StateActive, true
		}
	case EventCancelRequested:
		if current != StateIdle && current != StateCancelConfirm {
			return StateCancelConfirm, true
		}
	case EventSessionKept:
		if current == StateCancelConfirm {
			return previous, true
		}
	case EventSessionDiscarded:
		if current == StateCancelConfirm || current == StateWaitingForConnectivity {
			return StateIdle, true
		}
	case EventWorkoutCompleted:
		if IsRecordingState(current) {
			return StateWaitingForConnectivity, true
		}
	case EventResultReady:
		if current == StateWaitingForConnectivity {
			return StateIdle, true
		}
	}
	return current, false
}
