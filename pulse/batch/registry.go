package batch

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

func newRunID() string { return uuid.NewString() }

// Handle is a registered run. It is the run's termination signal.
type Handle struct {
	ID      string
	Started time.Time
	flag    Flag
}

// Terminate asks the run to stop admitting batches.
func (h *Handle) Terminate() { h.flag.Terminate() }

func (h *Handle) Terminated() bool { return h.flag.Terminated() }

// Registry tracks the runs active in a process so they can be listed and
// terminated by ID. Create one at process start and pass it to dispatchers
// through Options; runs remove themselves when they complete.
type Registry struct {
	mu   sync.RWMutex
	runs map[string]*Handle
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{runs: make(map[string]*Handle)}
}

// Register adds a run. An empty id gets a generated one. Registering an id
// that is already active returns the existing handle.
func (r *Registry) Register(id string) *Handle {
	if id == "" {
		id = newRunID()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := r.runs[id]; ok {
		return h
	}
	h := &Handle{ID: id, Started: time.Now()}
	r.runs[id] = h
	return h
}

// Get returns the handle of an active run.
func (r *Registry) Get(id string) (*Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.runs[id]
	return h, ok
}

// Terminate signals the run with the given id. Returns false if it is not active.
func (r *Registry) Terminate(id string) bool {
	h, ok := r.Get(id)
	if ok {
		h.Terminate()
	}
	return ok
}

// TerminateAll signals every active run and returns how many were signalled.
func (r *Registry) TerminateAll() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, h := range r.runs {
		h.Terminate()
	}
	return len(r.runs)
}

// Remove forgets a run.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.runs, id)
	r.mu.Unlock()
}

// List returns the active runs, oldest first.
func (r *Registry) List() []*Handle {
	r.mu.RLock()
	out := make([]*Handle, 0, len(r.runs))
	for _, h := range r.runs {
		out = append(out, h)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Started.Before(out[j].Started) })
	return out
}
