package registry

import (
	"fmt"
	"sync"
)

// Registry holds all registered functions and answers platform-visibility
// queries. It is thread-safe and supports registration at runtime.
//
// Listing preserves registration order so planner inputs are deterministic
// across runs with identical registrations.
type Registry struct {
	mu      sync.RWMutex
	ordered []*FunctionSpec

	// byName indexes every registration of a name across platforms.
	byName map[string][]*FunctionSpec
}

// New creates an empty function registry.
func New() *Registry {
	return &Registry{
		byName: make(map[string][]*FunctionSpec),
	}
}

// Register adds a function spec. It fails with ErrDuplicateFunction when the
// new spec would collide with a function already visible under the same
// scope: same name and tag, or a global spec meeting a platform spec of the
// same name. A failed registration leaves the registry unchanged.
//
// The registry stores a copy and never mutates the argument, so one spec
// value can seed any number of registries concurrently.
func (r *Registry) Register(spec *FunctionSpec) error {
	if err := spec.Validate(); err != nil {
		return fmt.Errorf("invalid function: %w", err)
	}

	stored := *spec
	stored.Platform = normalizePlatform(stored.Platform)

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.byName[stored.Name] {
		if existing.Platform == stored.Platform || existing.Global() || stored.Global() {
			return fmt.Errorf("%w: %s (platform %q)", ErrDuplicateFunction, stored.Name, visibleTag(existing.Platform))
		}
	}

	stored.assignID()
	r.ordered = append(r.ordered, &stored)
	r.byName[stored.Name] = append(r.byName[stored.Name], &stored)
	return nil
}

// MustRegister registers a spec and panics on error. For static wiring of
// built-in catalogs at startup.
func (r *Registry) MustRegister(spec *FunctionSpec) {
	if err := r.Register(spec); err != nil {
		panic(fmt.Sprintf("register function %s: %v", spec.Name, err))
	}
}

// Deregister removes the function registered under exactly the given name
// and platform tag. It returns ErrUnknownFunction when no such registration
// exists; it never removes a global spec when asked for a platform one.
func (r *Registry) Deregister(name, platform string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	platform = normalizePlatform(platform)
	specs := r.byName[name]
	idx := -1
	for i, spec := range specs {
		if spec.Platform == platform {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: %s (platform %q)", ErrUnknownFunction, name, visibleTag(platform))
	}

	removed := specs[idx]
	r.byName[name] = append(specs[:idx], specs[idx+1:]...)
	if len(r.byName[name]) == 0 {
		delete(r.byName, name)
	}
	for i, spec := range r.ordered {
		if spec == removed {
			r.ordered = append(r.ordered[:i], r.ordered[i+1:]...)
			break
		}
	}
	return nil
}

// List returns the specs visible under the platform tag: those registered
// for that tag plus globals, in registration order.
func (r *Registry) List(platform string) []*FunctionSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	platform = normalizePlatform(platform)
	visible := make([]*FunctionSpec, 0, len(r.ordered))
	for _, spec := range r.ordered {
		if spec.Global() || spec.Platform == platform {
			visible = append(visible, spec)
		}
	}
	return visible
}

// Resolve returns the spec visible under the platform tag, or
// ErrUnknownFunction. A name registered only under a different non-global
// tag does not resolve.
func (r *Registry) Resolve(name, platform string) (*FunctionSpec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	platform = normalizePlatform(platform)
	var global *FunctionSpec
	for _, spec := range r.byName[name] {
		if spec.Platform == platform {
			return spec, nil
		}
		if spec.Global() {
			global = spec
		}
	}
	if global != nil {
		return global, nil
	}
	return nil, fmt.Errorf("%w: %s (platform %q)", ErrUnknownFunction, name, visibleTag(platform))
}

// Has reports whether the name resolves under the platform tag.
func (r *Registry) Has(name, platform string) bool {
	_, err := r.Resolve(name, platform)
	return err == nil
}

// Count returns the number of registered functions across all platforms.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ordered)
}

// FunctionSummary is the lightweight catalog row exposed on the API surface.
type FunctionSummary struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Platform    string `json:"platform,omitempty"`
}

// Summaries returns one row per registered function in registration order.
func (r *Registry) Summaries() []FunctionSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]FunctionSummary, 0, len(r.ordered))
	for _, spec := range r.ordered {
		out = append(out, FunctionSummary{
			Name:        spec.Name,
			Description: spec.Description,
			Platform:    spec.Platform,
		})
	}
	return out
}

// visibleTag renders the global tag readably in error text.
func visibleTag(platform string) string {
	if platform == PlatformGlobal {
		return "global"
	}
	return platform
}
