package watcher

import (
	"fmt"
	"sync"
)

// Registry manages all active watches keyed by project id.
// It provides thread-safe registration, lookup, and teardown; at most one
// watch exists per project.
type Registry struct {
	mu      sync.RWMutex
	watches map[string]*Watch
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		watches: make(map[string]*Watch),
	}
}

// Register adds a watch to the registry.
// Returns an error if a watch for the same project already exists.
func (r *Registry) Register(w *Watch) error {
	if w == nil {
		return fmt.Errorf("cannot register nil watch")
	}

	projectID := w.ProjectID()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.watches[projectID]; exists {
		return fmt.Errorf("watch for project %s already registered", projectID)
	}

	r.watches[projectID] = w
	return nil
}

// Unregister removes a watch from the registry and stops it.
// The watch is always removed, even if Stop fails.
func (r *Registry) Unregister(projectID string) error {
	r.mu.Lock()
	w, exists := r.watches[projectID]
	if !exists {
		r.mu.Unlock()
		return fmt.Errorf("watch for project %s not found", projectID)
	}

	delete(r.watches, projectID)
	r.mu.Unlock()

	// Stop outside the lock to avoid blocking other registry operations
	if err := w.Stop(); err != nil {
		return fmt.Errorf("failed to stop watch for project %s: %w", projectID, err)
	}
	return nil
}

// Get retrieves a watch by project id, or nil if none exists
func (r *Registry) Get(projectID string) *Watch {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.watches[projectID]
}

// List returns all registered watches
func (r *Registry) List() []*Watch {
	r.mu.RLock()
	defer r.mu.RUnlock()

	watches := make([]*Watch, 0, len(r.watches))
	for _, w := range r.watches {
		watches = append(watches, w)
	}
	return watches
}

// UnregisterAll stops and removes every watch, returning the first error
// encountered while continuing through the rest
func (r *Registry) UnregisterAll() error {
	r.mu.Lock()
	watches := make([]*Watch, 0, len(r.watches))
	for projectID, w := range r.watches {
		watches = append(watches, w)
		delete(r.watches, projectID)
	}
	r.mu.Unlock()

	var firstErr error
	for _, w := range watches {
		if err := w.Stop(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to stop watch for project %s: %w", w.ProjectID(), err)
		}
	}
	return firstErr
}

// Count returns the number of registered watches
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.watches)
}
