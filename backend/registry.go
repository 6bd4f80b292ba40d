package backend

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/gogpu/fsr"
)

// BackendFactory creates a new, uninitialized backend instance.
type BackendFactory func() Backend

// registry holds registered backends.
var (
	registryMu sync.RWMutex
	backends   = make(map[string]BackendFactory)
	// Priority order for backend selection (first available wins).
	// Native > Software. Noop is never picked implicitly.
	backendPriority = []string{BackendNative, BackendSoftware}
)

// Register registers a backend factory with the given name.
// This is typically called from init() functions in backend packages.
// If a backend with the same name is already registered, it will be replaced.
func Register(name string, factory BackendFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	backends[name] = factory
}

// Unregister removes a backend from the registry.
// This is useful for testing.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(backends, name)
}

// Available returns the registered backend names in sorted order.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// IsRegistered checks if a backend with the given name is registered.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := backends[name]
	return ok
}

// Get returns a backend instance by name.
// Returns nil if the backend is not registered.
func Get(name string) Backend {
	registryMu.RLock()
	factory, ok := backends[name]
	registryMu.RUnlock()

	if !ok {
		return nil
	}
	return factory()
}

// Default returns the best available backend based on priority.
// Priority order: native > software.
// Returns nil if no backends are registered.
func Default() Backend {
	for _, name := range candidates() {
		if b := Get(name); b != nil {
			return b
		}
	}
	return nil
}

// MustDefault returns the default backend or panics.
func MustDefault() Backend {
	b := Default()
	if b == nil {
		panic("backend: no backend available")
	}
	return b
}

// Open returns the named backend, initialized.
func Open(name string) (Backend, error) {
	b := Get(name)
	if b == nil {
		return nil, fmt.Errorf("%w: %q (registered: %v)", ErrBackendNotAvailable, name, Available())
	}
	if err := b.Init(); err != nil {
		return nil, fmt.Errorf("backend %s: %w", name, err)
	}
	return b, nil
}

// InitDefault initializes the best backend that comes up. Backends are
// tried in priority order; one whose Init fails is skipped and the next is
// tried.
func InitDefault() (Backend, error) {
	var errs []error
	for _, name := range candidates() {
		b, err := Open(name)
		if err == nil {
			fsr.Logger().Info("backend: selected", "backend", name)
			return b, nil
		}
		fsr.Logger().Debug("backend: unavailable", "backend", name, "err", err)
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, ErrBackendNotAvailable
	}
	return nil, fmt.Errorf("%w: %w", ErrBackendNotAvailable, errors.Join(errs...))
}

// candidates lists registered names: priority order first, then the rest
// except noop.
func candidates() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(backends))
	for _, name := range backendPriority {
		if _, ok := backends[name]; ok {
			names = append(names, name)
		}
	}
	var rest []string
	for name := range backends {
		if name != BackendNoop && !slices.Contains(backendPriority, name) {
			rest = append(rest, name)
		}
	}
	slices.Sort(rest)
	return append(names, rest...)
}
