package jobs

import "sync"

// Registry tracks the live external process belonging to each job so that a
// cancel request can kill it. At most one process handle may be registered per
// job id at a time.
type Registry struct {
	mu    sync.Mutex
	kills map[string]func()
}

// NewRegistry constructs an empty process-handle registry.
func NewRegistry() *Registry {
	return &Registry{kills: make(map[string]func())}
}

// Register installs the kill function for a job's active process. Returns
// false when a handle is already registered for the id; the caller must not
// start a second process for the same job.
func (r *Registry) Register(jobID string, kill func()) bool {
	if r == nil || jobID == "" || kill == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.kills[jobID]; exists {
		return false
	}
	r.kills[jobID] = kill
	return true
}

// Unregister removes the handle for a job, if any.
func (r *Registry) Unregister(jobID string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.kills, jobID)
}

// Kill invokes and removes the registered kill function for a job. Returns
// true when a live handle existed.
func (r *Registry) Kill(jobID string) bool {
	if r == nil {
		return false
	}
	r.mu.Lock()
	kill, ok := r.kills[jobID]
	delete(r.kills, jobID)
	r.mu.Unlock()
	if !ok {
		return false
	}
	kill()
	return true
}

// Active reports whether a process handle is currently registered for a job.
func (r *Registry) Active(jobID string) bool {
	if r == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.kills[jobID]
	return ok
}
