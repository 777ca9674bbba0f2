package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// JobType identifies the kind of deferred work a queue job carries.
type JobType string

const (
	JobTypeUpload      JobType = "UPLOAD"
	JobTypeClassifySet JobType = "CLASSIFY_SET"
)

// JobStatus is the queue job lifecycle. A job never silently disappears on
// failure: it moves to failed and stays for a later flush attempt.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusUploading JobStatus = "uploading"
	JobStatusDone      JobStatus = "done"
	JobStatusFailed    JobStatus = "failed"
)

// ErrJobNotFound is returned by MarkStatus when the job no longer exists,
// typically because its session was purged while a flush was mid-iteration.
// Callers treat it as a no-op, not a failure.
var ErrJobNotFound = errors.New("queue job not found")

// QueueJob is one durable unit of deferred work. Jobs for one session are
// processed in OrderingKey order; jobs across sessions may interleave.
type QueueJob struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	Type        JobType   `json:"type"`
	Payload     []byte    `json:"payload"`
	Status      JobStatus `json:"status"`
	OrderingKey int       `json:"ordering_key"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
}

// Copy returns a shallow copy of the job.
func (j *QueueJob) Copy() *QueueJob {
	dup := *j
	return &dup
}

// JobPayload is the wire-stable payload schema shared by both job types.
// The Type tag selects which optional fields are meaningful.
type JobPayload struct {
	Type      JobType       `json:"type"`
	FilePath  string        `json:"filePath,omitempty"`
	Content   []byte        `json:"content,omitempty"`
	Exercise  string        `json:"exercise,omitempty"`
	SetNumber int           `json:"setNumber,omitempty"`
	Reps      []*RepSummary `json:"reps,omitempty"`
}

// EncodeJobPayload serializes a payload for storage in a queue job.
func EncodeJobPayload(p *JobPayload) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job payload: %w", err)
	}
	return data, nil
}

// DecodeJobPayload deserializes a stored queue job payload.
func DecodeJobPayload(data []byte) (*JobPayload, error) {
	var p JobPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job payload: %w", err)
	}
	return &p, nil
}

// JobQueue is a durable, per-session, ordered job log with an explicit
// status lifecycle. Implementations must make MarkStatus conditional on the
// job still existing, so a purge racing a flush can never resurrect a job.
type JobQueue interface {
	// Enqueue appends a new pending job and returns its ID.
	Enqueue(ctx context.Context, sessionID string, jobType JobType, payload []byte, orderingKey int) (string, error)

	// ListPending returns all jobs not yet done, ordered by session and
	// ordering key.
	ListPending(ctx context.Context) ([]*QueueJob, error)

	// MarkStatus transitions a job's status. Returns ErrJobNotFound when
	// the job was purged.
	MarkStatus(ctx context.Context, jobID string, status JobStatus) error

	// Purge removes all jobs for a session, whatever their status.
	Purge(ctx context.Context, sessionID string) error

	// PurgeCompleted removes done jobs enqueued before the cutoff.
	PurgeCompleted(ctx context.Context, olderThan time.Time) error
}

// MemoryJobQueue is a mutex-guarded in-memory queue for tests and ephemeral
// sessions. It provides the same conditional MarkStatus semantics as the
// durable implementation.
type MemoryJobQueue struct {
	jobs  map[string]*QueueJob
	mutex sync.Mutex
}

func NewMemoryJobQueue() *MemoryJobQueue {
	return &MemoryJobQueue{jobs: map[string]*QueueJob{}}
}

func (q *MemoryJobQueue) Enqueue(ctx context.Context, sessionID string, jobType JobType, payload []byte, orderingKey int) (string, error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	job := &QueueJob{
		ID:          NewJobID(),
		SessionID:   sessionID,
		Type:        jobType,
		Payload:     payload,
		Status:      JobStatusPending,
		OrderingKey: orderingKey,
		EnqueuedAt:  time.Now(),
	}
	q.jobs[job.ID] = job
	return job.ID, nil
}

func (q *MemoryJobQueue) ListPending(ctx context.Context) ([]*QueueJob, error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	var pending []*QueueJob
	for _, job := range q.jobs {
		if job.Status != JobStatusDone {
			pending = append(pending, job.Copy())
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].SessionID != pending[j].SessionID {
			return pending[i].SessionID < pending[j].SessionID
		}
		return pending[i].OrderingKey < pending[j].OrderingKey
	})
	return pending, nil
}

func (q *MemoryJobQueue) MarkStatus(ctx context.Context, jobID string, status JobStatus) error {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	job, ok := q.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	job.Status = status
	return nil
}

func (q *MemoryJobQueue) Purge(ctx context.Context, sessionID string) error {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	for id, job := range q.jobs {
		if job.SessionID == sessionID {
			delete(q.jobs, id)
		}
	}
	return nil
}

func (q *MemoryJobQueue) PurgeCompleted(ctx context.Context, olderThan time.Time) error {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	for id, job := range q.jobs {
		if job.Status == JobStatusDone && job.EnqueuedAt.Before(olderThan) {
			delete(q.jobs, id)
		}
	}
	return nil
}
