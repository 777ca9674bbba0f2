package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
)

// FlushWorker processes one queue job. It is supplied by the caller; the
// flush protocol owns only the status lifecycle around it.
type FlushWorker func(ctx context.Context, job *QueueJob) error

// FlushResult summarizes one flush pass.
type FlushResult struct {
	Processed int
	Succeeded int
	Failed    int
	Skipped   int
}

// FlushQueue drains the pending jobs visible at call time. Jobs are grouped
// by session; sessions flush in parallel while each session's jobs run
// sequentially in ordering-key order, preserving classify-then-upload
// pipelines. A failing job moves to failed and stops that session's
// remaining jobs for this pass; it is retried by a later flush, never looped
// on here. Jobs purged mid-flush are skipped without error.
//
// When job types are given, only jobs of those types are drained; the rest
// stay pending for a later pass.
func FlushQueue(ctx context.Context, queue JobQueue, worker FlushWorker, logger *slog.Logger, only ...JobType) (*FlushResult, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	// Snapshot at flush start; a purge racing this loop is handled by
	// MarkStatus reporting the job gone.
	pending, err := queue.ListPending(ctx)
	if err != nil {
		return nil, err
	}

	bySession := map[string][]*QueueJob{}
	for _, job := range pending {
		if len(only) > 0 && !containsJobType(only, job.Type) {
			continue
		}
		bySession[job.SessionID] = append(bySession[job.SessionID], job)
	}

	result := &FlushResult{}
	var resultMutex sync.Mutex
	var wg sync.WaitGroup
	for sessionID, jobs := range bySession {
		sort.Slice(jobs, func(i, j int) bool {
			return jobs[i].OrderingKey < jobs[j].OrderingKey
		})
		wg.Add(1)
		go func(sessionID string, jobs []*QueueJob) {
			defer wg.Done()
			partial := flushSession(ctx, queue, worker, logger.With("session_id", sessionID), jobs)
			resultMutex.Lock()
			result.Processed += partial.Processed
			result.Succeeded += partial.Succeeded
			result.Failed += partial.Failed
			result.Skipped += partial.Skipped
			resultMutex.Unlock()
		}(sessionID, jobs)
	}
	wg.Wait()
	return result, nil
}

// FlushSessionQueue drains one session's pending jobs sequentially in
// ordering-key order. Other sessions' jobs stay pending for their own flush,
// so a drain pass can never consume results that belong to a session whose
// artifact is not at hand. Status lifecycle and failure handling match
// FlushQueue.
func FlushSessionQueue(ctx context.Context, queue JobQueue, sessionID string, worker FlushWorker, logger *slog.Logger, only ...JobType) (*FlushResult, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	pending, err := queue.ListPending(ctx)
	if err != nil {
		return nil, err
	}

	var jobs []*QueueJob
	for _, job := range pending {
		if job.SessionID != sessionID {
			continue
		}
		if len(only) > 0 && !containsJobType(only, job.Type) {
			continue
		}
		jobs = append(jobs, job)
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].OrderingKey < jobs[j].OrderingKey
	})
	result := flushSession(ctx, queue, worker, logger.With("session_id", sessionID), jobs)
	return &result, nil
}

func containsJobType(types []JobType, t JobType) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}

func flushSession(ctx context.Context, queue JobQueue, worker FlushWorker, logger *slog.Logger, jobs []*QueueJob) FlushResult {
	var result FlushResult
	for _, job := range jobs {
		if ctx.Err() != nil {
			return result
		}
		result.Processed++

		err := queue.MarkStatus(ctx, job.ID, JobStatusUploading)
		if errors.Is(err, ErrJobNotFound) {
			// Purged while we held the snapshot; not an error.
			result.Skipped++
			continue
		}
		if err != nil {
			logger.Error("failed to claim job", "job_id", job.ID, "error", err)
			result.Failed++
			return result
		}

		if workErr := worker(ctx, job); workErr != nil {
			logger.Warn("job failed, leaving for next flush",
				"job_id", job.ID, "job_type", job.Type, "error", workErr)
			if err := queue.MarkStatus(ctx, job.ID, JobStatusFailed); err != nil && !errors.Is(err, ErrJobNotFound) {
				logger.Error("failed to mark job failed", "job_id", job.ID, "error", err)
			}
			result.Failed++
			// A later job may depend on this one's output; stop the
			// session here and let the next flush retry in order.
			return result
		}

		err = queue.MarkStatus(ctx, job.ID, JobStatusDone)
		if errors.Is(err, ErrJobNotFound) {
			// The session was purged after the work ran. The work was
			// idempotent; the job must not be counted as done.
			result.Skipped++
			return result
		}
		if err != nil {
			logger.Error("failed to mark job done", "job_id", job.ID, "error", err)
			result.Failed++
			return result
		}
		result.Succeeded++
	}
	return result
}
