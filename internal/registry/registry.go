package registry

import (
	"errors"
	"sync"

	"whisperd/internal/models"
)

// ErrDuplicateJob is returned when creating an entry whose ID already exists.
var ErrDuplicateJob = errors.New("job already exists")

type entry struct {
	state    string
	message  string
	filename string
}

// Registry is the process-wide source of truth for job status. Entries are
// created once at submission and never deleted. Each entry is written only by
// the worker executing that job; the mutex protects the map itself against
// the HTTP-facing read path.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]*entry
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{jobs: make(map[string]*entry)}
}

// Create inserts a new entry in state queued with an empty message.
func (r *Registry) Create(id, filename string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.jobs[id]; ok {
		return ErrDuplicateJob
	}
	r.jobs[id] = &entry{
		state:    models.JobStateQueued,
		filename: filename,
	}
	return nil
}

// Get returns a snapshot of the job's current state. An unrecognized ID
// yields state "unknown" rather than an error: status is a public, polled
// query surface.
func (r *Registry) Get(id string) models.JobView {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.jobs[id]
	if !ok {
		return models.JobView{State: models.JobStateUnknown}
	}
	return models.JobView{
		ID:       id,
		State:    e.state,
		Message:  e.message,
		Filename: e.filename,
	}
}

// SetState updates the job's state. Caller must be the worker owning the job.
func (r *Registry) SetState(id, state string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.jobs[id]; ok {
		e.state = state
	}
}

// SetMessage updates the job's latest status message (last write wins).
func (r *Registry) SetMessage(id, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.jobs[id]; ok {
		e.message = text
	}
}
