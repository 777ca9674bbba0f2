package session

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// DefaultResumeCountdown is how long the resuming countdown runs after the
// sensor link is restored.
const DefaultResumeCountdown = 3 * time.Second

// DefaultSetCompleteGuard is how long the external set-complete detector is
// suppressed after a rollback, so it does not re-fire on the just-restored
// repetition count.
const DefaultSetCompleteGuard = 2 * time.Second

// DefaultCompletionGrace is how long workout completion waits for in-flight
// classification before reconciling.
const DefaultCompletionGrace = 500 * time.Millisecond

// ErrInvalidTransition is wrapped by Transition when an event is not valid
// in the current state.
var ErrInvalidTransition = fmt.Errorf("invalid state transition")

// RecorderOptions configures a session Recorder.
type RecorderOptions struct {
	// Exercise is the exercise code being recorded, e.g.
	// "CONCENTRATION_CURLS".
	Exercise string

	// SessionID is generated when empty.
	SessionID string

	Detector   RepDetector
	Classifier Classifier
	Objects    ObjectStore
	Metadata   MetadataStore
	Queue      JobQueue

	// Checkpoints defaults to an in-memory store.
	Checkpoints CheckpointStore

	// Probe supplies the process-wide connectivity verdict. The recorder
	// registers its own edge handlers on it.
	Probe *ConnectivityProbe

	// LinkReconnect performs one transport-level sensor reconnection
	// attempt.
	LinkReconnect func(ctx context.Context) error

	ReconnectAttempts int
	ResumeCountdown   time.Duration
	SetCompleteGuard  time.Duration
	CompletionGrace   time.Duration

	Logger    *slog.Logger
	Callbacks SessionCallbacks
}

// Recorder is the session orchestrator: it owns the state machine, consumes
// watcher signals and user actions, and decides when to roll back, pause,
// resume, or defer completion. No component sets session state directly;
// everything goes through Transition.
type Recorder struct {
	sessionID string
	exercise  string
	artifact  *SessionArtifact

	detector    RepDetector
	classifier  Classifier
	objects     ObjectStore
	metadata    MetadataStore
	queue       JobQueue
	checkpoints CheckpointStore
	probe       *ConnectivityProbe
	link        *DeviceLinkWatcher
	reconciler  *Reconciler
	logger      *slog.Logger
	callbacks   SessionCallbacks

	countdown       time.Duration
	guardTTL        time.Duration
	completionGrace time.Duration

	mutex       sync.Mutex
	state       State
	prevState   State
	elapsedBase time.Duration
	// runningSince is zero while the elapsed counter is frozen
	runningSince time.Time
	guardUntil   time.Time
	orderSeq     int
	countdownSeq int

	// Completion coordination. Only the task that transitioned into
	// waiting-for-connectivity materializes the deferred snapshot; every
	// other observer is read-only until it exists.
	deferredSnapshot *ArtifactSnapshot
	reconcileRunning bool
	result           *ReconcileResult

	runCtx    context.Context
	runCancel context.CancelFunc
	doneWg    sync.WaitGroup
}

// NewRecorder creates a session recorder. The session does not record until
// Start is called.
func NewRecorder(opts RecorderOptions) (*Recorder, error) {
	if opts.Exercise == "" {
		return nil, fmt.Errorf("exercise is required")
	}
	if opts.Detector == nil {
		return nil, fmt.Errorf("repetition detector is required")
	}
	if opts.Classifier == nil {
		return nil, fmt.Errorf("classifier is required")
	}
	if opts.Objects == nil {
		return nil, fmt.Errorf("object store is required")
	}
	if opts.Metadata == nil {
		return nil, fmt.Errorf("metadata store is required")
	}
	if opts.Queue == nil {
		return nil, fmt.Errorf("job queue is required")
	}
	if opts.Probe == nil {
		return nil, fmt.Errorf("connectivity probe is required")
	}
	if opts.LinkReconnect == nil {
		return nil, fmt.Errorf("link reconnect function is required")
	}
	if opts.SessionID == "" {
		opts.SessionID = NewSessionID()
	}
	if opts.Checkpoints == nil {
		opts.Checkpoints = NewMemoryCheckpointStore()
	}
	if opts.ResumeCountdown <= 0 {
		opts.ResumeCountdown = DefaultResumeCountdown
	}
	if opts.SetCompleteGuard <= 0 {
		opts.SetCompleteGuard = DefaultSetCompleteGuard
	}
	if opts.CompletionGrace <= 0 {
		opts.CompletionGrace = DefaultCompletionGrace
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Callbacks == nil {
		opts.Callbacks = &BaseSessionCallbacks{}
	}

	r := &Recorder{
		sessionID:       opts.SessionID,
		exercise:        opts.Exercise,
		artifact:        NewSessionArtifact(opts.SessionID, opts.Exercise),
		detector:        opts.Detector,
		classifier:      opts.Classifier,
		objects:         opts.Objects,
		metadata:        opts.Metadata,
		queue:           opts.Queue,
		checkpoints:     opts.Checkpoints,
		probe:           opts.Probe,
		logger:          opts.Logger.With("session_id", opts.SessionID),
		callbacks:       opts.Callbacks,
		countdown:       opts.ResumeCountdown,
		guardTTL:        opts.SetCompleteGuard,
		completionGrace: opts.CompletionGrace,
		state:           StateIdle,
		prevState:       StateIdle,
	}

	link, err := NewDeviceLinkWatcher(LinkWatcherOptions{
		IsRecording:  r.isRecording,
		Reconnect:    opts.LinkReconnect,
		MaxAttempts:  opts.ReconnectAttempts,
		Logger:       opts.Logger,
		OnDisconnect: r.handleLinkDisconnect,
		OnReconnect:  r.handleLinkReconnect,
	})
	if err != nil {
		return nil, err
	}
	r.link = link

	reconciler, err := NewReconciler(ReconcilerOptions{
		Queue:      opts.Queue,
		Objects:    opts.Objects,
		Metadata:   opts.Metadata,
		Classifier: opts.Classifier,
		Logger:     opts.Logger,
		Callbacks:  opts.Callbacks,
	})
	if err != nil {
		return nil, err
	}
	r.reconciler = reconciler

	opts.Probe.SetHandlers(r.handleOffline, r.handleOnline)
	return r, nil
}

// SessionID returns the session's identifier
func (r *Recorder) SessionID() string {
	return r.sessionID
}

// Link returns the sensor link watcher, for the transport layer to feed and
// for the UI to surface reconnect progress.
func (r *Recorder) Link() *DeviceLinkWatcher {
	return r.link
}

// Artifact returns a snapshot copy of the session artifact.
func (r *Recorder) Artifact() *ArtifactSnapshot {
	return r.artifact.Snapshot()
}

// Result returns the reconciliation result once the deferred completion has
// resolved, or nil before then.
func (r *Recorder) Result() *ReconcileResult {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.result
}

// State returns the current session state
func (r *Recorder) State() State {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.state
}

// InState reports whether the session is currently in the candidate state.
func (r *Recorder) InState(candidate State) bool {
	return r.State() == candidate
}

// Elapsed returns the displayed elapsed time in whole seconds. The counter
// freezes while the session is paused and is restored by rollback.
func (r *Recorder) Elapsed() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.elapsedLocked()
}

// SetCompleteGuardActive reports whether the external set-complete detector
// should hold off, which it must briefly after a rollback.
func (r *Recorder) SetCompleteGuardActive() bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return time.Now().Before(r.guardUntil)
}

// Start begins recording: the session transitions to active and the
// connectivity heartbeat starts. The heartbeat stops again when the session
// returns to idle.
func (r *Recorder) Start(ctx context.Context) error {
	r.mutex.Lock()
	if r.state != StateIdle {
		r.mutex.Unlock()
		return fmt.Errorf("session already started: %w", ErrInvalidTransition)
	}
	r.runCtx, r.runCancel = context.WithCancel(context.WithoutCancel(ctx))
	runCtx := r.runCtx
	r.mutex.Unlock()

	if err := r.Transition(EventStartRecording); err != nil {
		return err
	}
	// The heartbeat outlives the caller's context: offline detection must
	// keep running until the session itself ends.
	r.probe.Start(runCtx)
	r.logger.Info("session recording started", "exercise", r.exercise)
	return nil
}

// Stop tears down the watchers without changing session state. Use Discard
// or CompleteWorkout to end the session itself.
func (r *Recorder) Stop() {
	r.mutex.Lock()
	cancel := r.runCancel
	r.mutex.Unlock()
	if cancel != nil {
		cancel()
	}
	r.probe.Stop()
	r.doneWg.Wait()
}

// RequestCancel moves the session to the cancel prompt.
func (r *Recorder) RequestCancel() error {
	return r.Transition(EventCancelRequested)
}

// KeepSession dismisses the cancel prompt, returning to the prior state.
func (r *Recorder) KeepSession() error {
	return r.Transition(EventSessionKept)
}

// Discard destroys the session: watchers stop, the session's queue jobs are
// purged, and the checkpoint is cleared. This path never blocks on network
// availability.
func (r *Recorder) Discard(ctx context.Context) error {
	return r.transition(ctx, EventSessionDiscarded)
}

// Transition applies an event to the state machine. It returns a wrapped
// ErrInvalidTransition when the event is not valid in the current state.
func (r *Recorder) Transition(event Event) error {
	return r.transition(context.Background(), event)
}

func (r *Recorder) transition(ctx context.Context, event Event) error {
	r.mutex.Lock()
	from := r.state
	to, ok := nextState(from, event, r.probe.IsOffline(), r.prevState)
	if !ok {
		r.mutex.Unlock()
		return fmt.Errorf("event %q in state %q: %w", event, from, ErrInvalidTransition)
	}

	transition := &TransitionEvent{
		SessionID: r.sessionID,
		Event:     event,
		From:      from,
		To:        to,
		At:        time.Now(),
	}
	r.mutex.Unlock()

	// The callback runs without the state lock so it may call back into the
	// recorder. Concurrent events are resolved below.
	r.callbacks.BeforeTransition(ctx, transition)

	r.mutex.Lock()
	if r.state != from {
		// Another event moved the machine while the callback ran.
		current := r.state
		r.mutex.Unlock()
		return fmt.Errorf("event %q in state %q: %w", event, current, ErrInvalidTransition)
	}
	r.state = to

	var rollback *Checkpoint
	var resumeCompletion context.Context
	switch event {
	case EventStartRecording:
		r.runningSince = time.Now()
	case EventCancelRequested:
		r.prevState = from
		r.freezeElapsedLocked()
	case EventSessionKept:
		if IsRecordingState(to) {
			r.runningSince = time.Now()
		}
		if to == StateResumingCountdown {
			r.startCountdownLocked()
		}
		if to == StateWaitingForConnectivity {
			// The cancel prompt aborted the completion task; restart it so
			// the deferred result still materializes.
			resumeCompletion = r.runCtx
		}
	case EventLinkDisconnected:
		r.freezeElapsedLocked()
		rollback = r.rollbackLocked(ctx)
	case EventLinkReconnected:
		r.startCountdownLocked()
	case EventCountdownElapsed:
		r.runningSince = time.Now()
	case EventSessionDiscarded:
		r.teardownLocked(ctx)
	case EventResultReady:
		r.finishLocked(ctx)
	}
	r.mutex.Unlock()

	r.logger.Debug("state transition", "event", event, "from", from, "to", to)
	if rollback != nil {
		r.callbacks.OnRollback(ctx, &RollbackEvent{
			SessionID:  r.sessionID,
			Checkpoint: rollback,
		})
	}
	r.callbacks.AfterTransition(ctx, transition)

	if resumeCompletion != nil {
		r.doneWg.Add(1)
		go func() {
			defer r.doneWg.Done()
			r.completeAsync(resumeCompletion)
		}()
	}

	if event == EventSessionDiscarded || event == EventResultReady {
		r.probe.Stop()
	}
	return nil
}

// RecordRep is the repetition-completed ingress: the detector finalizes the
// repetition, the artifact and checkpoint advance, and the rep summary is
// streamed to the durable store, or queued when offline.
func (r *Recorder) RecordRep(ctx context.Context, peakIndex, valleyIndex int) (*RepSummary, error) {
	r.mutex.Lock()
	if !IsRecordingState(r.state) {
		r.mutex.Unlock()
		return nil, fmt.Errorf("cannot record repetition in state %q", r.state)
	}
	summary, err := r.detector.CompleteRep(peakIndex, valleyIndex)
	if err != nil {
		r.mutex.Unlock()
		return nil, fmt.Errorf("repetition completion failed: %w", err)
	}
	r.artifact.AppendRep(summary)
	repCount := r.artifact.RepCount()
	elapsed := r.elapsedLocked()
	r.artifact.SetElapsed(elapsed)

	endIndex := summary.ValleyIndex
	if summary.PeakIndex > endIndex {
		endIndex = summary.PeakIndex
	}
	checkpoint := &Checkpoint{
		SessionID:             r.sessionID,
		RepCount:              repCount,
		BufferedSampleIndex:   r.artifact.SampleCount(),
		ElapsedSeconds:        elapsed,
		FullChartLength:       r.artifact.ChartLength(),
		LastRepEndTime:        time.Now(),
		LastRepEndSampleIndex: endIndex,
		CheckpointAt:          time.Now(),
	}
	if err := r.checkpoints.Save(ctx, checkpoint); err != nil {
		r.mutex.Unlock()
		return nil, fmt.Errorf("checkpoint save failed: %w", err)
	}
	orderingKey := r.nextSeqLocked()
	r.mutex.Unlock()

	deferred := r.streamRep(ctx, summary, orderingKey)
	r.callbacks.OnRepRecorded(ctx, &RepRecordedEvent{
		SessionID: r.sessionID,
		Rep:       summary,
		RepCount:  repCount,
		Deferred:  deferred,
	})
	return summary, nil
}

// AppendSamples feeds raw and filtered sensor samples into the artifact.
func (r *Recorder) AppendSamples(raw, filtered []float64) {
	r.artifact.AppendSamples(raw, filtered)
}

// AppendChart feeds downsampled chart points into the artifact.
func (r *Recorder) AppendChart(points []float64) {
	r.artifact.AppendChart(points)
}

// CompleteSet classifies a finished set. When the network is down, or the
// classification fails on a transport error, the work is queued instead.
func (r *Recorder) CompleteSet(ctx context.Context, setNumber int) error {
	r.mutex.Lock()
	if !IsRecordingState(r.state) {
		r.mutex.Unlock()
		return fmt.Errorf("cannot complete set in state %q", r.state)
	}
	reps := r.artifact.RepsForSet(setNumber)
	if len(reps) == 0 {
		r.mutex.Unlock()
		return fmt.Errorf("set %d has no repetitions", setNumber)
	}
	orderingKey := r.nextSeqLocked()
	r.mutex.Unlock()

	if !r.probe.IsOffline() {
		classification, err := r.classifier.ClassifySet(ctx, r.exercise, reps)
		if err == nil {
			classification.SessionID = r.sessionID
			r.artifact.MergeClassification(classification)
			return nil
		}
		if MatchesErrorType(err, ErrorTypeTransientNetwork) {
			r.probe.ReportFailure(err)
		}
		r.logger.Warn("set classification deferred", "set", setNumber, "error", err)
	}

	payload, err := EncodeJobPayload(&JobPayload{
		Type:      JobTypeClassifySet,
		Exercise:  r.exercise,
		SetNumber: setNumber,
		Reps:      reps,
	})
	if err != nil {
		return err
	}
	if _, err := r.queue.Enqueue(ctx, r.sessionID, JobTypeClassifySet, payload, orderingKey); err != nil {
		return fmt.Errorf("failed to queue classification: %w", err)
	}
	return nil
}

// CompleteWorkout ends the workout. The session transitions to
// waiting-for-connectivity before any asynchronous work starts; the
// completion task then materializes the deferred result and, once the
// network allows, drives reconciliation exactly once.
func (r *Recorder) CompleteWorkout(ctx context.Context) error {
	if err := r.Transition(EventWorkoutCompleted); err != nil {
		return err
	}
	r.mutex.Lock()
	r.freezeElapsedLocked()
	r.artifact.SetElapsed(r.elapsedLocked())
	runCtx := r.runCtx
	r.mutex.Unlock()

	r.doneWg.Add(1)
	go func() {
		defer r.doneWg.Done()
		r.completeAsync(runCtx)
	}()
	return nil
}

// completeAsync is the owner side of the completion race: it waits briefly
// for in-flight classification, materializes the deferred snapshot, and
// re-checks connectivity itself rather than relying on the online handler.
// A cancel prompt opened during the grace window makes this task return
// without materializing; KeepSession spawns a fresh one.
func (r *Recorder) completeAsync(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(r.completionGrace):
	}

	r.mutex.Lock()
	if r.state != StateWaitingForConnectivity {
		r.mutex.Unlock()
		return
	}
	r.deferredSnapshot = r.artifact.Snapshot()
	r.mutex.Unlock()
	r.logger.Info("workout completion deferred result materialized",
		"offline", r.probe.IsOffline())

	if !r.probe.IsOffline() {
		r.maybeReconcile(ctx)
	}
}

// maybeReconcile starts reconciliation if the deferred result exists and no
// reconciliation is already running. Safe to call from both the completion
// task and the online handler; the flag makes it single-shot.
func (r *Recorder) maybeReconcile(ctx context.Context) {
	r.mutex.Lock()
	if r.state != StateWaitingForConnectivity || r.deferredSnapshot == nil || r.reconcileRunning {
		r.mutex.Unlock()
		return
	}
	r.reconcileRunning = true
	r.mutex.Unlock()

	r.doneWg.Add(1)
	go func() {
		defer r.doneWg.Done()
		r.runReconcile(ctx)
	}()
}

func (r *Recorder) runReconcile(ctx context.Context) {
	result, err := r.reconciler.Reconcile(ctx, r.artifact)

	r.mutex.Lock()
	if r.state != StateWaitingForConnectivity {
		// Discarded while reconciling; drop the outcome.
		r.reconcileRunning = false
		r.mutex.Unlock()
		return
	}
	if err != nil || !result.Complete {
		// Jobs stay queued; a later online edge may try again.
		r.reconcileRunning = false
		r.mutex.Unlock()
		if err != nil {
			r.logger.Error("reconciliation failed, will retry when online", "error", err)
		}
		return
	}
	r.result = result
	r.reconcileRunning = false
	r.mutex.Unlock()

	if err := r.Transition(EventResultReady); err != nil {
		r.logger.Error("failed to finish session", "error", err)
	}
}

// streamRep uploads one rep summary, falling back to the queue when offline
// or on a transport failure. Returns true when the upload was deferred.
func (r *Recorder) streamRep(ctx context.Context, summary *RepSummary, orderingKey int) bool {
	path := fmt.Sprintf("sessions/%s/sets/%d/rep_%d.json",
		r.sessionID, summary.SetNumber, summary.RepNumber)
	content, err := json.Marshal(summary)
	if err != nil {
		r.logger.Error("failed to marshal rep summary", "error", err)
		return false
	}

	if !r.probe.IsOffline() {
		err := r.objects.PutObject(ctx, path, content)
		if err == nil {
			return false
		}
		if MatchesErrorType(err, ErrorTypeTransientNetwork) {
			r.probe.ReportFailure(err)
		}
		r.logger.Warn("rep upload deferred", "rep", summary.RepNumber, "error", err)
	}

	payload, err := EncodeJobPayload(&JobPayload{
		Type:     JobTypeUpload,
		FilePath: path,
		Content:  content,
	})
	if err != nil {
		r.logger.Error("failed to encode upload payload", "error", err)
		return false
	}
	if _, err := r.queue.Enqueue(ctx, r.sessionID, JobTypeUpload, payload, orderingKey); err != nil {
		r.logger.Error("failed to queue rep upload", "error", err)
		return false
	}
	return true
}

// rollbackLocked restores the session to the last confirmed checkpoint after
// a mid-repetition link loss. The external detector truncate runs first: it
// is the only step that can fail, so a failure means nothing was applied.
// Returns the checkpoint applied, or nil when nothing changed.
func (r *Recorder) rollbackLocked(ctx context.Context) *Checkpoint {
	checkpoint, err := r.checkpoints.Load(ctx, r.sessionID)
	if err != nil || checkpoint == nil {
		if err != nil {
			r.logger.Error("DATA INTEGRITY: checkpoint load failed, discarding in-progress repetition", "error", err)
		} else {
			r.logger.Warn("no checkpoint yet, discarding all buffered samples")
		}
		// Defensive fallback: behave as if the session has no confirmed
		// progress beyond the recorded repetitions.
		checkpoint = &Checkpoint{
			SessionID:      r.sessionID,
			RepCount:       r.artifact.RepCount(),
			ElapsedSeconds: r.elapsedLocked(),
		}
	}

	if err := r.detector.Truncate(checkpoint.RepCount, checkpoint.LastRepEndSampleIndex); err != nil {
		r.logger.Error("DATA INTEGRITY: detector truncate failed, rollback not applied",
			"rep_count", checkpoint.RepCount, "error", err)
		return nil
	}
	r.artifact.TruncateTo(checkpoint.BufferedSampleIndex, checkpoint.FullChartLength)
	r.elapsedBase = time.Duration(checkpoint.ElapsedSeconds) * time.Second
	r.artifact.SetElapsed(checkpoint.ElapsedSeconds)
	r.guardUntil = time.Now().Add(r.guardTTL)
	r.logger.Info("rolled back to checkpoint",
		"rep_count", checkpoint.RepCount,
		"buffered_sample_index", checkpoint.BufferedSampleIndex)
	return checkpoint
}

// teardownLocked destroys session-scoped state on discard. Queue purge and
// checkpoint clear are local operations; this path never waits on the
// network.
func (r *Recorder) teardownLocked(ctx context.Context) {
	if r.runCancel != nil {
		r.runCancel()
	}
	if err := r.queue.Purge(ctx, r.sessionID); err != nil {
		r.logger.Error("failed to purge session jobs", "error", err)
	}
	if err := r.checkpoints.Clear(ctx, r.sessionID); err != nil {
		r.logger.Error("failed to clear checkpoint", "error", err)
	}
	r.deferredSnapshot = nil
	r.result = nil
	r.freezeElapsedLocked()
	r.logger.Info("session discarded")
}

// finishLocked completes session teardown after a successful reconciliation.
func (r *Recorder) finishLocked(ctx context.Context) {
	if err := r.checkpoints.Clear(ctx, r.sessionID); err != nil {
		r.logger.Error("failed to clear checkpoint", "error", err)
	}
	if err := r.queue.PurgeCompleted(ctx, time.Now()); err != nil {
		r.logger.Error("failed to purge completed jobs", "error", err)
	}
	r.logger.Info("session finished", "rep_count", r.artifact.RepCount())
}

func (r *Recorder) startCountdownLocked() {
	// Each restart invalidates earlier timers so a countdown that survived
	// a cancel prompt cannot fire early.
	r.countdownSeq++
	seq := r.countdownSeq
	time.AfterFunc(r.countdown, func() {
		r.mutex.Lock()
		stale := seq != r.countdownSeq
		r.mutex.Unlock()
		if stale {
			return
		}
		if err := r.Transition(EventCountdownElapsed); err != nil {
			r.logger.Debug("countdown discarded", "error", err)
		}
	})
}

func (r *Recorder) handleOffline() {
	if err := r.Transition(EventConnectivityLost); err != nil {
		r.logger.Debug("offline edge ignored", "error", err)
	}
}

func (r *Recorder) handleOnline() {
	if err := r.Transition(EventConnectivityRestored); err != nil {
		r.logger.Debug("online edge ignored", "error", err)
	}
	// If completion already materialized its deferred result, this edge may
	// drive reconciliation; otherwise the completion task drives it.
	r.mutex.Lock()
	runCtx := r.runCtx
	r.mutex.Unlock()
	if runCtx != nil {
		r.maybeReconcile(runCtx)
	}
}

func (r *Recorder) handleLinkDisconnect() {
	if err := r.Transition(EventLinkDisconnected); err != nil {
		r.logger.Debug("link disconnect ignored", "error", err)
	}
}

func (r *Recorder) handleLinkReconnect() {
	if err := r.Transition(EventLinkReconnected); err != nil {
		r.logger.Debug("link reconnect ignored", "error", err)
	}
}

func (r *Recorder) isRecording() bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return IsRecordingState(r.state)
}

func (r *Recorder) nextSeqLocked() int {
	r.orderSeq++
	return r.orderSeq
}

func (r *Recorder) elapsedLocked() int {
	elapsed := r.elapsedBase
	if !r.runningSince.IsZero() {
		elapsed += time.Since(r.runningSince)
	}
	return int(elapsed / time.Second)
}

func (r *Recorder) freezeElapsedLocked() {
	if !r.runningSince.IsZero() {
		r.elapsedBase += time.Since(r.runningSince)
		r.runningSince = time.Time{}
	}
}
