package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/lib/pq"
)

// MetadataStore is the structured-database collaborator holding per-session
// metadata. Patches are merges: fields not named in a patch are preserved,
// so replaying a patch is idempotent.
type MetadataStore interface {
	PatchSessionMetadata(ctx context.Context, sessionID string, fields map[string]any) error
}

// FinalizeFields computes the metadata patch applied when a session
// completes.
func FinalizeFields(snapshot *ArtifactSnapshot) map[string]any {
	repCount := 0
	for _, set := range snapshot.Sets {
		repCount += len(set.Reps)
	}
	return map[string]any{
		"status":           "completed",
		"completed_at":     time.Now().UTC().Format(time.RFC3339),
		"rep_count":        repCount,
		"set_count":        len(snapshot.Sets),
		"duration_seconds": snapshot.ElapsedSeconds,
	}
}

// PostgresMetadataStore stores session metadata as a JSONB document per
// session, merge-patched on write.
type PostgresMetadataStore struct {
	db *sql.DB
}

// NewPostgresMetadataStore connects to Postgres with the given DSN and
// ensures the schema exists.
func NewPostgresMetadataStore(dsn string) (*PostgresMetadataStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	store := &PostgresMetadataStore{db: db}
	if err := store.ensureSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *PostgresMetadataStore) Close() error {
	return s.db.Close()
}

func (s *PostgresMetadataStore) ensureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS session_metadata (
  session_id TEXT PRIMARY KEY,
  fields JSONB NOT NULL DEFAULT '{}'::jsonb,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create session_metadata table: %w", err)
	}
	return nil
}

func (s *PostgresMetadataStore) PatchSessionMetadata(ctx context.Context, sessionID string, fields map[string]any) error {
	patch, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshal metadata patch: %w", err)
	}
	const stmt = `
INSERT INTO session_metadata (session_id, fields, updated_at)
VALUES ($1, $2::jsonb, now())
ON CONFLICT (session_id) DO UPDATE SET
  fields = session_metadata.fields || EXCLUDED.fields,
  updated_at = now()`
	if _, err := s.db.ExecContext(ctx, stmt, sessionID, patch); err != nil {
		return fmt.Errorf("patch session metadata: %w", err)
	}
	return nil
}

// MemoryMetadataStore is an in-memory MetadataStore for tests.
type MemoryMetadataStore struct {
	sessions map[string]map[string]any
	mutex    sync.Mutex
}

func NewMemoryMetadataStore() *MemoryMetadataStore {
	return &MemoryMetadataStore{sessions: map[string]map[string]any{}}
}

func (s *MemoryMetadataStore) PatchSessionMetadata(ctx context.Context, sessionID string, fields map[string]any) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	current, ok := s.sessions[sessionID]
	if !ok {
		current = map[string]any{}
		s.sessions[sessionID] = current
	}
	for k, v := range fields {
		current[k] = v
	}
	return nil
}

// Get returns the merged metadata for a session.
func (s *MemoryMetadataStore) Get(sessionID string) map[string]any {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	fields, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	copied := make(map[string]any, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	return copied
}
