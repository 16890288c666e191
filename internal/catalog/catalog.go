// Package catalog ships the built-in platform function sets. Each catalog is
// a list of FunctionSpecs with HTTP execution descriptors against the
// platform's public API; placeholders in URLs, headers, and payloads are
// resolved from bound arguments at execution time.
package catalog

import (
	"fmt"

	"pulse/internal/registry"
)

// Install registers every spec into the registry, failing on the first
// collision with what is already registered.
func Install(r *registry.Registry, specs []*registry.FunctionSpec) error {
	for _, spec := range specs {
		if err := r.Register(spec); err != nil {
			return fmt.Errorf("install catalog function %s: %w", spec.Name, err)
		}
	}
	return nil
}

// Names returns the function names of a catalog, in order.
func Names(specs []*registry.FunctionSpec) []string {
	names := make([]string, len(specs))
	for i, spec := range specs {
		names[i] = spec.Name
	}
	return names
}
