package app

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/yt-fetch-go/internal/domain"
)

// ErrTaskExists is returned by Create when the task id is already taken.
var ErrTaskExists = errors.New("task already exists")

// storeEntry pairs a task with its own lock so that mutations of one task
// never contend with readers of another.
type storeEntry struct {
	mu   sync.Mutex
	task *domain.Task
}

// TaskStore holds the live task records. It is the single shared mutable
// structure of the engine; every component goes through its atomic update
// contract instead of reaching into raw task state. Correlated fields
// (status + file path, progress + phase) therefore always change under one
// entry lock and a reader can never observe a half-applied update.
type TaskStore struct {
	mu      sync.RWMutex
	entries map[string]*storeEntry
	logger  *zap.Logger
}

// NewTaskStore creates an empty task store
func NewTaskStore(logger *zap.Logger) *TaskStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TaskStore{
		entries: make(map[string]*storeEntry),
		logger:  logger,
	}
}

// Create registers a new task record
func (s *TaskStore) Create(task *domain.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[task.ID]; exists {
		return fmt.Errorf("%w: %s", ErrTaskExists, task.ID)
	}
	s.entries[task.ID] = &storeEntry{task: task}

	s.logger.Debug("Task record created",
		zap.String("id", task.ID),
		zap.String("url", task.URL))
	return nil
}

// Get returns an independent snapshot of the task, or false if unknown
func (s *TaskStore) Get(id string) (domain.Task, bool) {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return domain.Task{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.task.Snapshot(), true
}

// Mutate applies fn to the task atomically with respect to concurrent
// readers and writers. Returns false if the task is unknown.
func (s *TaskStore) Mutate(id string, fn func(*domain.Task)) bool {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e.task)
	e.task.UpdatedAt = time.Now()
	return true
}

// MutateAttempt applies fn only while the given attempt is still the task's
// current attempt and the task has not reached a terminal state. Callbacks
// from a superseded retry attempt land here after a newer attempt finished
// and must not overwrite its outcome.
func (s *TaskStore) MutateAttempt(id string, attempt int, fn func(*domain.Task)) bool {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.task.Attempt != attempt || e.task.IsTerminal() {
		s.logger.Debug("Discarding stale task update",
			zap.String("id", id),
			zap.Int("attempt", attempt),
			zap.Int("current_attempt", e.task.Attempt),
			zap.String("status", string(e.task.Status)))
		return false
	}
	fn(e.task)
	e.task.UpdatedAt = time.Now()
	return true
}

// Remove deletes the task record. Returns false if the task is unknown.
func (s *TaskStore) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[id]; !ok {
		return false
	}
	delete(s.entries, id)

	s.logger.Debug("Task record removed", zap.String("id", id))
	return true
}

// Len returns the number of live task records
func (s *TaskStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Snapshots returns independent snapshots of all live tasks
func (s *TaskStore) Snapshots() []domain.Task {
	s.mu.RLock()
	entries := make([]*storeEntry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	snaps := make([]domain.Task, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		snaps = append(snaps, e.task.Snapshot())
		e.mu.Unlock()
	}
	return snaps
}
