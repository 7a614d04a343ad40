package mediabuffer

import (
	"sync"
)

// Registry tracks the buffer handles of one loaded content. The caller
// creates it per playback session and hands it to exactly one Engine; it is
// emptied when that engine is disposed.
type Registry struct {
	mu      sync.RWMutex
	handles []*BufferHandle
	owner   *Engine
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Get returns the live handle for kind.
func (r *Registry) Get(kind MediaKind) (*BufferHandle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, h := range r.handles {
		if h.kind == kind {
			return h, true
		}
	}
	return nil, false
}

// Handles returns the live handles in creation order.
func (r *Registry) Handles() []*BufferHandle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*BufferHandle, len(r.handles))
	copy(out, r.handles)
	return out
}

// Len returns the number of live handles.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}

func (r *Registry) bind(e *Engine) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.owner != nil {
		return ErrRegistryInUse
	}
	r.owner = e
	return nil
}

func (r *Registry) contains(kind MediaKind) bool {
	_, ok := r.Get(kind)
	return ok
}

func (r *Registry) add(h *BufferHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handles = append(r.handles, h)
}

func (r *Registry) remove(h *BufferHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, cur := range r.handles {
		if cur == h {
			r.handles = append(r.handles[:i], r.handles[i+1:]...)
			return
		}
	}
}

func (r *Registry) byMember(m Member) *BufferHandle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, h := range r.handles {
		if h.member == m {
			return h
		}
	}
	return nil
}

// allIdle and maxBufferedEnd read queue state and must run on the loop.
func (r *Registry) allIdle() bool {
	for _, h := range r.Handles() {
		if !h.idle() {
			return false
		}
	}
	return true
}

func (r *Registry) maxBufferedEnd() float64 {
	var end float64
	for _, h := range r.Handles() {
		end = max(end, h.member.Buffered().End())
	}
	return end
}
