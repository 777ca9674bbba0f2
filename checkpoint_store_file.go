package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileCheckpointStore is a file-based implementation that persists the
// checkpoint to disk, so a session survives a process restart. Each session
// gets one file; writes go through a temp file and rename so the stored
// checkpoint is always either the old one or the new one, never a blend.
type FileCheckpointStore struct {
	dataDir string
	mutex   sync.Mutex
}

// NewFileCheckpointStore creates a new file-based checkpoint store
func NewFileCheckpointStore(dataDir string) (*FileCheckpointStore, error) {
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		dataDir = filepath.Join(homeDir, ".applift", "sessions", "checkpoints")
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", dataDir, err)
	}
	return &FileCheckpointStore{dataDir: dataDir}, nil
}

// Save stores the checkpoint, fully replacing the previous one.
func (s *FileCheckpointStore) Save(ctx context.Context, checkpoint *Checkpoint) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	prev, err := s.load(checkpoint.SessionID)
	if err != nil {
		return err
	}
	if !checkpoint.supersedes(prev) {
		return ErrCheckpointRegression
	}

	data, err := json.MarshalIndent(checkpoint, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	path := s.checkpointPath(checkpoint.SessionID)
	tmp, err := os.CreateTemp(s.dataDir, "checkpoint-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp checkpoint file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close checkpoint file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace checkpoint file: %w", err)
	}
	return nil
}

// Load returns the stored checkpoint for a session, or nil when none exists.
func (s *FileCheckpointStore) Load(ctx context.Context, sessionID string) (*Checkpoint, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.load(sessionID)
}

// Clear removes the checkpoint file for a session.
func (s *FileCheckpointStore) Clear(ctx context.Context, sessionID string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if err := os.Remove(s.checkpointPath(sessionID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove checkpoint file: %w", err)
	}
	return nil
}

func (s *FileCheckpointStore) checkpointPath(sessionID string) string {
	return filepath.Join(s.dataDir, sessionID+".json")
}

func (s *FileCheckpointStore) load(sessionID string) (*Checkpoint, error) {
	data, err := os.ReadFile(s.checkpointPath(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read checkpoint file: %w", err)
	}
	var checkpoint Checkpoint
	if err := json.Unmarshal(data, &checkpoint); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return &checkpoint, nil
}
