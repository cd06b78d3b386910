package workers

import "sort"

// Registry maps worker IDs to the handles of processes this supervisor started.
// It is not safe for concurrent use; the supervisor serializes access.
type Registry struct {
	handles map[string]*ProcessHandle
}

func NewRegistry() *Registry {
	return &Registry{
		handles: make(map[string]*ProcessHandle),
	}
}

func (r *Registry) Get(workerID string) (*ProcessHandle, bool) {
	h, ok := r.handles[workerID]
	return h, ok
}

// Put overwrites any existing handle; the caller stops the old process first.
func (r *Registry) Put(workerID string, handle *ProcessHandle) {
	r.handles[workerID] = handle
}

func (r *Registry) Remove(workerID string) {
	delete(r.handles, workerID)
}

// ListIDs returns tracked worker IDs in sorted order. Tracked does not imply alive.
func (r *Registry) ListIDs() []string {
	ids := make([]string, 0, len(r.handles))
	for id := range r.handles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) Len() int {
	return len(r.handles)
}
