package session

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
)

// ReconcileResult summarizes one reconciliation pass.
type ReconcileResult struct {
	SessionID  string
	Uploads    *FlushResult
	Classifies *FlushResult
	MergedSets []int
	Published  bool
	Finalized  bool

	// Complete reports whether every queued job for the session drained and
	// the artifact was republished and finalized. When false, the remaining
	// work stays queued for a future pass; nothing already merged is undone.
	Complete bool
}

// ReconcilerOptions configures a Reconciler.
type ReconcilerOptions struct {
	Queue      JobQueue
	Objects    ObjectStore
	Metadata   MetadataStore
	Classifier Classifier
	Logger     *slog.Logger
	Callbacks  SessionCallbacks
}

// Reconciler drains a session's deferred work once connectivity returns and
// merges the results back into the session artifact. Every step is safe to
// repeat: uploads are keyed by path, classification merges are keyed by
// (set, rep), and the metadata patch is a merge.
type Reconciler struct {
	queue      JobQueue
	objects    ObjectStore
	metadata   MetadataStore
	classifier Classifier
	logger     *slog.Logger
	callbacks  SessionCallbacks
}

// NewReconciler creates a new reconciliation coordinator.
func NewReconciler(opts ReconcilerOptions) (*Reconciler, error) {
	if opts.Queue == nil {
		return nil, fmt.Errorf("job queue is required")
	}
	if opts.Objects == nil {
		return nil, fmt.Errorf("object store is required")
	}
	if opts.Metadata == nil {
		return nil, fmt.Errorf("metadata store is required")
	}
	if opts.Classifier == nil {
		return nil, fmt.Errorf("classifier is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Callbacks == nil {
		opts.Callbacks = &BaseSessionCallbacks{}
	}
	return &Reconciler{
		queue:      opts.Queue,
		objects:    opts.Objects,
		metadata:   opts.Metadata,
		classifier: opts.Classifier,
		logger:     opts.Logger,
		callbacks:  opts.Callbacks,
	}, nil
}

// Reconcile drains the queue for the artifact's session: uploads first, then
// classification jobs, whose results are merged into the artifact by rep
// number. The patched artifact is then republished and the session metadata
// finalized. A failing step leaves its job failed for a future flush instead
// of aborting the pass. Jobs belonging to other sessions are never touched;
// only their own reconciliation pass may consume their results.
func (r *Reconciler) Reconcile(ctx context.Context, artifact *SessionArtifact) (*ReconcileResult, error) {
	sessionID := artifact.SessionID()
	logger := r.logger.With("session_id", sessionID)
	result := &ReconcileResult{SessionID: sessionID}

	uploads, err := FlushSessionQueue(ctx, r.queue, sessionID, r.uploadWorker(), logger, JobTypeUpload)
	if err != nil {
		return result, fmt.Errorf("upload flush failed: %w", err)
	}
	result.Uploads = uploads

	var mergeMutex sync.Mutex
	collected := map[int]*SetClassification{}
	classifies, err := FlushSessionQueue(ctx, r.queue, sessionID, func(ctx context.Context, job *QueueJob) error {
		payload, err := DecodeJobPayload(job.Payload)
		if err != nil {
			return err
		}
		if payload.Type != JobTypeClassifySet {
			return fmt.Errorf("unexpected payload type %q for classify job", payload.Type)
		}
		classification, err := r.classifier.ClassifySet(ctx, payload.Exercise, payload.Reps)
		if err != nil {
			return err
		}
		classification.SessionID = job.SessionID
		mergeMutex.Lock()
		collected[payload.SetNumber] = classification
		mergeMutex.Unlock()
		return nil
	}, logger, JobTypeClassifySet)
	if err != nil {
		return result, fmt.Errorf("classification flush failed: %w", err)
	}
	result.Classifies = classifies

	for setNumber, classification := range collected {
		artifact.MergeClassification(classification)
		result.MergedSets = append(result.MergedSets, setNumber)
	}
	sort.Ints(result.MergedSets)

	snapshot := artifact.Snapshot()
	data, err := json.Marshal(snapshot)
	if err != nil {
		return result, fmt.Errorf("failed to marshal artifact: %w", err)
	}
	path := fmt.Sprintf("sessions/%s/session.json", sessionID)
	if err := r.objects.PutObject(ctx, path, data); err != nil {
		logger.Error("artifact republish failed, will retry on next pass", "error", err)
		return result, nil
	}
	result.Published = true

	if err := r.metadata.PatchSessionMetadata(ctx, sessionID, FinalizeFields(snapshot)); err != nil {
		logger.Error("metadata finalize failed, will retry on next pass", "error", err)
		return result, nil
	}
	result.Finalized = true

	remaining, err := r.pendingForSession(ctx, sessionID)
	if err != nil {
		return result, err
	}
	result.Complete = remaining == 0
	if result.Complete {
		r.callbacks.OnReconcileFinished(ctx, &ReconcileFinishedEvent{
			SessionID: sessionID,
			Result:    result,
		})
		logger.Info("reconciliation complete",
			"uploads", uploads.Succeeded, "classifications", classifies.Succeeded)
	} else {
		logger.Warn("reconciliation incomplete, jobs remain queued",
			"remaining", remaining)
	}
	return result, nil
}

func (r *Reconciler) uploadWorker() FlushWorker {
	return func(ctx context.Context, job *QueueJob) error {
		payload, err := DecodeJobPayload(job.Payload)
		if err != nil {
			return err
		}
		if payload.Type != JobTypeUpload {
			return fmt.Errorf("unexpected payload type %q for upload job", payload.Type)
		}
		return r.objects.PutObject(ctx, payload.FilePath, payload.Content)
	}
}

func (r *Reconciler) pendingForSession(ctx context.Context, sessionID string) (int, error) {
	pending, err := r.queue.ListPending(ctx)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, job := range pending {
		if job.SessionID == sessionID {
			count++
		}
	}
	return count, nil
}
