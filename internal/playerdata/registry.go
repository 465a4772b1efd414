package playerdata

import (
	"fmt"
	"sort"
	"sync"
)

// Registry is the process-wide name → Service lookup used by stream
// handlers and tasks. It is an explicit object constructed at process
// start and passed by reference; there is no implicit global discovery.
//
// A node registers only the services it hosts. A sync event naming an
// unregistered service is simply not for this node.
type Registry struct {
	mu       sync.RWMutex
	services map[string]*Service
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{services: make(map[string]*Service)}
}

// Register adds a service under its name. Registering two services with
// the same name is a wiring bug and fails loudly.
func (r *Registry) Register(s *Service) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.services[s.Name()]; exists {
		return fmt.Errorf("playerdata: service %q already registered", s.Name())
	}
	r.services[s.Name()] = s
	return nil
}

// Lookup returns the service registered under name, if any.
func (r *Registry) Lookup(name string) (*Service, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.services[name]
	return s, ok
}

// Names returns the registered service names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.services))
	for name := range r.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
