package propagation

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sort"
	"sync"
)

// Registry maps engine names to engines.
type Registry struct {
	mu      sync.RWMutex
	engines map[string]Engine
}

// NewRegistry returns a registry holding the given engines.
func NewRegistry(engines ...Engine) *Registry {
	r := &Registry{engines: make(map[string]Engine, len(engines))}
	for _, e := range engines {
		r.Register(e)
	}
	return r
}

// DefaultRegistry returns a registry with every built-in engine.
func DefaultRegistry() *Registry {
	return NewRegistry(
		NewGoSatelliteEngine(WGS72),
		NewGoSatelliteEngine(WGS84),
		NewAkhenakhEngine(),
	)
}

// Register adds or replaces an engine.
func (r *Registry) Register(e Engine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engines[e.Name()] = e
}

// Lookup returns the engine registered under name.
func (r *Registry) Lookup(name string) (Engine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.engines[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, name)
	}
	return e, nil
}

// Names returns the registered engine names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.engines))
	for n := range r.engines {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Select resolves a list of names. An empty list selects every engine.
func (r *Registry) Select(names []string) ([]Engine, error) {
	if len(names) == 0 {
		names = r.Names()
	}
	out := make([]Engine, 0, len(names))
	for _, n := range names {
		e, err := r.Lookup(n)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// platform describes the running binary, e.g. "go1.24.0 linux/amd64".
func platform() string {
	return fmt.Sprintf("%s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// moduleVersion reports the version of a dependency compiled into the binary.
// Test binaries and builds without module info report "unknown".
func moduleVersion(path string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	for _, dep := range info.Deps {
		if dep.Path == path {
			if dep.Replace != nil {
				return dep.Replace.Version
			}
			return dep.Version
		}
	}
	return "unknown"
}
