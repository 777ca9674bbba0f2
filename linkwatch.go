package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/MarvinCayosa/applift-session/retry"
)

// DefaultReconnectAttempts bounds one AttemptReconnect call. Reconnection is
// never automatic or infinite: after the budget is exhausted the user decides
// whether to retry or abandon the session.
const DefaultReconnectAttempts = 3

// LinkWatcherOptions configures a DeviceLinkWatcher.
type LinkWatcherOptions struct {
	// IsRecording reports whether a session is actively recording.
	// Disconnects while not recording are ignored.
	IsRecording func() bool

	// Reconnect performs one transport-level reconnection attempt.
	Reconnect func(ctx context.Context) error

	// MaxAttempts bounds the retry loop inside one AttemptReconnect call.
	// Defaults to DefaultReconnectAttempts.
	MaxAttempts int

	// BaseWait is the initial backoff between attempts.
	BaseWait time.Duration

	Logger *slog.Logger

	// OnDisconnect fires when the link drops during active recording.
	OnDisconnect func()

	// OnReconnect fires once the link is confirmed restored after a
	// disconnect that was surfaced via OnDisconnect.
	OnReconnect func()
}

// DeviceLinkWatcher detects wireless sensor-link loss and restoration while
// a session is recording, and drives caller-triggered reconnection attempts.
type DeviceLinkWatcher struct {
	isRecording  func() bool
	reconnect    func(ctx context.Context) error
	maxAttempts  int
	baseWait     time.Duration
	logger       *slog.Logger
	onDisconnect func()
	onReconnect  func()

	mutex           sync.Mutex
	connected       bool
	lostWhileActive bool
	reconnecting    bool
	reconnectFailed bool
}

// NewDeviceLinkWatcher creates a new link watcher. The link starts in the
// connected state.
func NewDeviceLinkWatcher(opts LinkWatcherOptions) (*DeviceLinkWatcher, error) {
	if opts.IsRecording == nil {
		return nil, fmt.Errorf("recording predicate required")
	}
	if opts.Reconnect == nil {
		return nil, fmt.Errorf("reconnect function required")
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultReconnectAttempts
	}
	if opts.BaseWait <= 0 {
		opts.BaseWait = 500 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &DeviceLinkWatcher{
		isRecording:  opts.IsRecording,
		reconnect:    opts.Reconnect,
		maxAttempts:  opts.MaxAttempts,
		baseWait:     opts.BaseWait,
		logger:       opts.Logger,
		onDisconnect: opts.OnDisconnect,
		onReconnect:  opts.OnReconnect,
		connected:    true,
	}, nil
}

// SetConnected feeds the transport layer's link signal into the watcher.
// Edges are what matter: a disconnect during active recording raises
// OnDisconnect, and a restoration after such a disconnect raises OnReconnect.
func (w *DeviceLinkWatcher) SetConnected(connected bool) {
	w.mutex.Lock()
	var fire func()
	switch {
	case !connected && w.connected:
		w.connected = false
		if w.isRecording() {
			w.lostWhileActive = true
			fire = w.onDisconnect
			w.logger.Warn("sensor link lost during recording")
		}
	case connected && !w.connected:
		w.connected = true
		w.reconnectFailed = false
		if w.lostWhileActive {
			w.lostWhileActive = false
			fire = w.onReconnect
			w.logger.Info("sensor link restored")
		}
	}
	w.mutex.Unlock()
	if fire != nil {
		fire()
	}
}

// IsConnected reports the current link state.
func (w *DeviceLinkWatcher) IsConnected() bool {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.connected
}

// IsReconnecting reports whether an AttemptReconnect call is in progress.
func (w *DeviceLinkWatcher) IsReconnecting() bool {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.reconnecting
}

// ReconnectFailed reports whether the most recent AttemptReconnect call
// exhausted its budget without restoring the link.
func (w *DeviceLinkWatcher) ReconnectFailed() bool {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.reconnectFailed
}

// AttemptReconnect runs one bounded reconnection loop. It is a discrete,
// caller-triggered action; it returns nil once the transport reconnects and
// a terminal error once the attempt budget is exhausted.
func (w *DeviceLinkWatcher) AttemptReconnect(ctx context.Context) error {
	w.mutex.Lock()
	if w.connected {
		w.mutex.Unlock()
		return nil
	}
	if w.reconnecting {
		w.mutex.Unlock()
		return fmt.Errorf("reconnect already in progress")
	}
	w.reconnecting = true
	w.reconnectFailed = false
	w.mutex.Unlock()

	err := retry.Do(ctx, func() error {
		if err := w.reconnect(ctx); err != nil {
			w.logger.Debug("reconnect attempt failed", "error", err)
			return retry.NewRecoverableError(err)
		}
		return nil
	}, retry.WithMaxRetries(w.maxAttempts-1), retry.WithBaseWait(w.baseWait))

	w.mutex.Lock()
	w.reconnecting = false
	w.reconnectFailed = err != nil
	w.mutex.Unlock()

	if err != nil {
		return fmt.Errorf("link reconnect failed after %d attempts: %w", w.maxAttempts, err)
	}
	w.SetConnected(true)
	return nil
}
