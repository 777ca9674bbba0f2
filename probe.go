package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// ConsecutiveFailureThreshold is the number of consecutive failed signals
// required before the probe declares the network offline. A single timeout is
// not sufficient evidence; any single success clears the counter.
const ConsecutiveFailureThreshold = 2

// DefaultHeartbeatInterval is the heartbeat period while a session is active.
const DefaultHeartbeatInterval = 4 * time.Second

// DefaultHeartbeatTimeout bounds one heartbeat request.
const DefaultHeartbeatTimeout = 3 * time.Second

// ProbeOptions configures a ConnectivityProbe.
type ProbeOptions struct {
	// Endpoint is the heartbeat target. It should be a third-party endpoint,
	// never the application's own origin, to avoid false positives on a
	// local network.
	Endpoint string

	// Interval between heartbeat requests. Defaults to
	// DefaultHeartbeatInterval.
	Interval time.Duration

	// Timeout for one heartbeat request. Defaults to
	// DefaultHeartbeatTimeout.
	Timeout time.Duration

	// FailureThreshold overrides ConsecutiveFailureThreshold when positive.
	FailureThreshold int

	HTTPClient *http.Client
	Logger     *slog.Logger

	// OnOffline and OnOnline are edge-triggered: invoked once per
	// transition, never on repeated evidence in the same direction.
	OnOffline func()
	OnOnline  func()
}

// ConnectivityProbe decides whether the network is up by combining passive
// failure reports from callers, platform-level connectivity events, and a
// periodic active heartbeat. It owns the process-wide offline flag: every
// other component reads IsOffline and none may set it.
type ConnectivityProbe struct {
	endpoint  string
	interval  time.Duration
	timeout   time.Duration
	threshold int
	client    *http.Client
	logger    *slog.Logger
	onOffline func()
	onOnline  func()

	mutex    sync.Mutex
	offline  bool
	failures int
	cancel   context.CancelFunc
	doneWg   sync.WaitGroup
}

// NewConnectivityProbe creates a new probe. The heartbeat does not run until
// Start is called.
func NewConnectivityProbe(opts ProbeOptions) (*ConnectivityProbe, error) {
	if opts.Endpoint == "" {
		return nil, fmt.Errorf("heartbeat endpoint required")
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultHeartbeatInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultHeartbeatTimeout
	}
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = ConsecutiveFailureThreshold
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &ConnectivityProbe{
		endpoint:  opts.Endpoint,
		interval:  opts.Interval,
		timeout:   opts.Timeout,
		threshold: opts.FailureThreshold,
		client:    opts.HTTPClient,
		logger:    opts.Logger,
		onOffline: opts.OnOffline,
		onOnline:  opts.OnOnline,
	}, nil
}

// SetHandlers registers the edge-event handlers. Must be called before
// Start; it exists so the probe can be constructed before its consumer.
func (p *ConnectivityProbe) SetHandlers(onOffline, onOnline func()) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.onOffline = onOffline
	p.onOnline = onOnline
}

// IsOffline reports the current connectivity verdict. Cheap to call before
// attempting a network request instead of waiting for its own timeout.
func (p *ConnectivityProbe) IsOffline() bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.offline
}

// ReportFailure records a transport-level failure observed by any caller
// whose outbound request failed. The probe declares offline only after the
// consecutive-failure threshold is met.
func (p *ConnectivityProbe) ReportFailure(err error) {
	p.mutex.Lock()
	p.failures++
	p.logger.Debug("connectivity failure reported",
		"consecutive_failures", p.failures, "error", err)
	var fire func()
	if p.failures >= p.threshold && !p.offline {
		p.offline = true
		fire = p.onOffline
		p.logger.Warn("network declared offline",
			"consecutive_failures", p.failures)
	}
	p.mutex.Unlock()
	if fire != nil {
		fire()
	}
}

// ReportSuccess records a successful request. A single success clears the
// failure counter and immediately declares online.
func (p *ConnectivityProbe) ReportSuccess() {
	p.mutex.Lock()
	p.failures = 0
	var fire func()
	if p.offline {
		p.offline = false
		fire = p.onOnline
		p.logger.Info("network declared online")
	}
	p.mutex.Unlock()
	if fire != nil {
		fire()
	}
}

// SetConnected feeds a platform-level connectivity event into the probe.
// The platform is authoritative in the down direction; an up event counts as
// one success and is confirmed by the next heartbeat.
func (p *ConnectivityProbe) SetConnected(connected bool) {
	if connected {
		p.ReportSuccess()
		return
	}
	p.mutex.Lock()
	p.failures = p.threshold
	var fire func()
	if !p.offline {
		p.offline = true
		fire = p.onOffline
		p.logger.Warn("network declared offline", "reason", "platform event")
	}
	p.mutex.Unlock()
	if fire != nil {
		fire()
	}
}

// Start launches the periodic heartbeat. The heartbeat runs only while a
// session is active; Stop disables it to save resources when idle.
func (p *ConnectivityProbe) Start(ctx context.Context) {
	p.mutex.Lock()
	if p.cancel != nil {
		p.mutex.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.mutex.Unlock()

	p.doneWg.Add(1)
	go func() {
		defer p.doneWg.Done()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.heartbeat(ctx)
			}
		}
	}()
}

// Stop halts the heartbeat and waits for it to exit.
func (p *ConnectivityProbe) Stop() {
	p.mutex.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.mutex.Unlock()
	if cancel != nil {
		cancel()
		p.doneWg.Wait()
	}
}

func (p *ConnectivityProbe) heartbeat(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint, nil)
	if err != nil {
		p.logger.Error("invalid heartbeat request", "error", err)
		return
	}
	resp, err := p.client.Do(req)
	if err != nil {
		p.ReportFailure(err)
		return
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		p.ReportFailure(fmt.Errorf("heartbeat status %d", resp.StatusCode))
		return
	}
	p.ReportSuccess()
}
