package tasks

import (
	"errors"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/drewmudry/visium-api/models"
)

// InitialMessage is the message of a freshly created task.
const InitialMessage = "Task received and is waiting to be processed."

// MaxMessageLen bounds the number of runes stored in Task.Message.
const MaxMessageLen = 512

var (
	ErrTaskExists   = errors.New("task already exists")
	ErrTaskNotFound = errors.New("task not found")
)

// Registry is the source of truth for task state. Implementations must be
// safe for concurrent use and must hand out copies, never shared records.
type Registry interface {
	Create(id string) (models.Task, error)
	SetStatus(id string, status models.Status, message string, videoURL *string) (models.Task, error)
	Get(id string) (models.Task, bool)
	Len() int
	EvictTerminalBefore(cutoff time.Time) []string
}

// MemoryRegistry keeps tasks in a map for the life of the process.
type MemoryRegistry struct {
	mu    sync.RWMutex
	tasks map[string]models.Task
	now   func() time.Time
}

// NewMemoryRegistry creates an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		tasks: make(map[string]models.Task),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Create registers id in the pending state.
func (r *MemoryRegistry) Create(id string) (models.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[id]; ok {
		return models.Task{}, ErrTaskExists
	}
	now := r.now()
	task := models.Task{
		ID:        id,
		Status:    models.StatusPending,
		Message:   InitialMessage,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.tasks[id] = task
	return task.Clone(), nil
}

// SetStatus overwrites the mutable fields of a task. The last write wins.
// videoURL is dropped unless status is completed.
func (r *MemoryRegistry) SetStatus(id string, status models.Status, message string, videoURL *string) (models.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[id]
	if !ok {
		return models.Task{}, ErrTaskNotFound
	}
	task.Status = status
	task.Message = clip(message, MaxMessageLen)
	task.VideoURL = nil
	if status == models.StatusCompleted && videoURL != nil {
		url := *videoURL
		task.VideoURL = &url
	}
	task.UpdatedAt = r.now()
	r.tasks[id] = task
	return task.Clone(), nil
}

// Get returns a snapshot of the task, or false if it was never created.
func (r *MemoryRegistry) Get(id string) (models.Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	task, ok := r.tasks[id]
	if !ok {
		return models.Task{}, false
	}
	return task.Clone(), true
}

// Len returns the number of tracked tasks.
func (r *MemoryRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks)
}

// EvictTerminalBefore drops completed and failed tasks last updated before
// cutoff and returns their IDs.
func (r *MemoryRegistry) EvictTerminalBefore(cutoff time.Time) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var evicted []string
	for id, task := range r.tasks {
		if task.Status.Terminal() && task.UpdatedAt.Before(cutoff) {
			delete(r.tasks, id)
			evicted = append(evicted, id)
		}
	}
	return evicted
}

func clip(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
