package publisher

import (
	"strings"
	"sync"
)

// Registry maps platform names to their publishers (thread-safe).
type Registry struct {
	mu         sync.RWMutex
	publishers map[string]PlatformPublisher
}

// NewRegistry creates an empty publisher registry.
func NewRegistry() *Registry {
	return &Registry{publishers: make(map[string]PlatformPublisher)}
}

// Register adds or replaces the publisher for a platform.
func (r *Registry) Register(platform string, p PlatformPublisher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.publishers[strings.ToLower(platform)] = p
}

// Get returns the publisher for a platform, case-insensitive.
func (r *Registry) Get(platform string) (PlatformPublisher, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.publishers[strings.ToLower(platform)]
	return p, ok
}

// Platforms returns the registered platform names.
func (r *Registry) Platforms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.publishers))
	for name := range r.publishers {
		names = append(names, name)
	}
	return names
}
