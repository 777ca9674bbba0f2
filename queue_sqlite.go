package session

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteJobQueue is the durable JobQueue implementation. Jobs survive a
// process restart mid-session and are reconciled on the next flush.
type SQLiteJobQueue struct {
	db *sql.DB
}

// NewSQLiteJobQueue opens (creating if needed) the queue database at dbPath
// and ensures the schema exists.
func NewSQLiteJobQueue(dbPath string) (*SQLiteJobQueue, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create queue db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open queue db: %w", err)
	}
	queue := &SQLiteJobQueue{db: db}
	if err := queue.ensureSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return queue, nil
}

// Close closes the underlying database.
func (q *SQLiteJobQueue) Close() error {
	return q.db.Close()
}

func (q *SQLiteJobQueue) ensureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS jobs (
  id TEXT PRIMARY KEY,
  session_id TEXT NOT NULL,
  type TEXT NOT NULL,
  payload BLOB,
  status TEXT NOT NULL,
  ordering_key INTEGER NOT NULL,
  enqueued_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS jobs_session_order ON jobs (session_id, ordering_key);
`
	if _, err := q.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create jobs table: %w", err)
	}
	return nil
}

func (q *SQLiteJobQueue) Enqueue(ctx context.Context, sessionID string, jobType JobType, payload []byte, orderingKey int) (string, error) {
	id := NewJobID()
	const stmt = `
INSERT INTO jobs (id, session_id, type, payload, status, ordering_key, enqueued_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := q.db.ExecContext(ctx, stmt, id, sessionID, string(jobType),
		payload, string(JobStatusPending), orderingKey,
		time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return "", fmt.Errorf("enqueue job: %w", err)
	}
	return id, nil
}

func (q *SQLiteJobQueue) ListPending(ctx context.Context) ([]*QueueJob, error) {
	const query = `
SELECT id, session_id, type, payload, status, ordering_key, enqueued_at
FROM jobs WHERE status != ? ORDER BY session_id, ordering_key`
	rows, err := q.db.QueryContext(ctx, query, string(JobStatusDone))
	if err != nil {
		return nil, fmt.Errorf("list pending jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*QueueJob
	for rows.Next() {
		var job QueueJob
		var jobType, status, enqueuedAt string
		if err := rows.Scan(&job.ID, &job.SessionID, &jobType, &job.Payload,
			&status, &job.OrderingKey, &enqueuedAt); err != nil {
			return nil, fmt.Errorf("scan job row: %w", err)
		}
		job.Type = JobType(jobType)
		job.Status = JobStatus(status)
		if t, err := time.Parse(time.RFC3339Nano, enqueuedAt); err == nil {
			job.EnqueuedAt = t
		}
		jobs = append(jobs, &job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job rows: %w", err)
	}
	return jobs, nil
}

func (q *SQLiteJobQueue) MarkStatus(ctx context.Context, jobID string, status JobStatus) error {
	result, err := q.db.ExecContext(ctx,
		`UPDATE jobs SET status = ? WHERE id = ?`, string(status), jobID)
	if err != nil {
		return fmt.Errorf("mark job status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark job status: %w", err)
	}
	// Zero rows means the job was purged while the caller held it.
	if affected == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (q *SQLiteJobQueue) Purge(ctx context.Context, sessionID string) error {
	if _, err := q.db.ExecContext(ctx,
		`DELETE FROM jobs WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("purge session jobs: %w", err)
	}
	return nil
}

func (q *SQLiteJobQueue) PurgeCompleted(ctx context.Context, olderThan time.Time) error {
	if _, err := q.db.ExecContext(ctx,
		`DELETE FROM jobs WHERE status = ? AND enqueued_at < ?`,
		string(JobStatusDone),
		olderThan.UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("purge completed jobs: %w", err)
	}
	return nil
}
