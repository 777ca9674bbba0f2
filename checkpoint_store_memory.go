package session

import (
	"context"
	"sync"
)

// MemoryCheckpointStore is an in-memory implementation for tests and
// ephemeral sessions.
type MemoryCheckpointStore struct {
	checkpoints map[string]*Checkpoint
	mutex       sync.Mutex
}

func NewMemoryCheckpointStore() *MemoryCheckpointStore {
	return &MemoryCheckpointStore{checkpoints: map[string]*Checkpoint{}}
}

func (s *MemoryCheckpointStore) Save(ctx context.Context, checkpoint *Checkpoint) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !checkpoint.supersedes(s.checkpoints[checkpoint.SessionID]) {
		return ErrCheckpointRegression
	}
	s.checkpoints[checkpoint.SessionID] = checkpoint.Copy()
	return nil
}

func (s *MemoryCheckpointStore) Load(ctx context.Context, sessionID string) (*Checkpoint, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	checkpoint, ok := s.checkpoints[sessionID]
	if !ok {
		return nil, nil
	}
	return checkpoint.Copy(), nil
}

func (s *MemoryCheckpointStore) Clear(ctx context.Context, sessionID string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	delete(s.checkpoints, sessionID)
	return nil
}
