package mood

import (
	"sync"
	"time"
)

// Registry keeps one Layout per active session.
type Registry struct {
	mu        sync.Mutex
	layouts   map[string]*Layout
	unmounts  map[string]func()
	publisher Publisher
	clock     func() time.Time
}

// NewRegistry constructs a registry that publishes mood changes through publisher.
func NewRegistry(publisher Publisher, clock func() time.Time) *Registry {
	if clock == nil {
		clock = time.Now
	}
	return &Registry{
		layouts:   make(map[string]*Layout),
		unmounts:  make(map[string]func()),
		publisher: publisher,
		clock:     clock,
	}
}

// Mount returns the session's layout, creating it with a null mood on first use.
func (r *Registry) Mount(sessionKey string) *Layout {
	r.mu.Lock()
	defer r.mu.Unlock()
	if layout, ok := r.layouts[sessionKey]; ok {
		return layout
	}
	layout := newLayout(sessionKey, r.publisher, r.clock)
	r.layouts[sessionKey] = layout
	return layout
}

// Lookup returns the session's layout if it is mounted.
func (r *Registry) Lookup(sessionKey string) (*Layout, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	layout, ok := r.layouts[sessionKey]
	return layout, ok
}

// ViewEntry mounts the entry view on the session's layout, unmounting the
// previous entry view of that session first.
func (r *Registry) ViewEntry(sessionKey string, mount func(layout *Layout) func()) {
	layout := r.Mount(sessionKey)
	r.mu.Lock()
	previous := r.unmounts[sessionKey]
	delete(r.unmounts, sessionKey)
	r.mu.Unlock()
	if previous != nil {
		previous()
	}
	unmount := mount(layout)
	r.mu.Lock()
	r.unmounts[sessionKey] = unmount
	r.mu.Unlock()
}

// LeaveEntry runs the pending entry-view unmount for the session, if any.
func (r *Registry) LeaveEntry(sessionKey string) bool {
	r.mu.Lock()
	unmount := r.unmounts[sessionKey]
	delete(r.unmounts, sessionKey)
	r.mu.Unlock()
	if unmount == nil {
		return false
	}
	unmount()
	return true
}

// Unmount drops the session's layout, e.g. at sign-out.
func (r *Registry) Unmount(sessionKey string) {
	r.mu.Lock()
	layout := r.layouts[sessionKey]
	delete(r.layouts, sessionKey)
	delete(r.unmounts, sessionKey)
	r.mu.Unlock()
	if layout != nil {
		layout.cell.set(None())
	}
}

// Len reports how many layouts are mounted.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.layouts)
}
