package registry

// Worker is an optional routing/execution context. A session standing at a
// worker location only sees the worker's action space; the environment bag
// travels to the executor untouched.
type Worker struct {
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Instruction string         `json:"instruction,omitempty" yaml:"instruction,omitempty"`
	Environment map[string]any `json:"environment,omitempty" yaml:"environment,omitempty"`

	// ActionSpace lists the function names reachable from this worker.
	// Empty means the worker does not narrow visibility.
	ActionSpace []string `json:"action_space,omitempty" yaml:"action_space,omitempty"`
}

// Narrow filters specs down to the worker's action space, preserving order.
// A nil worker or an empty action space passes everything through.
func Narrow(specs []*FunctionSpec, w *Worker) []*FunctionSpec {
	if w == nil || len(w.ActionSpace) == 0 {
		return specs
	}
	allowed := make(map[string]struct{}, len(w.ActionSpace))
	for _, name := range w.ActionSpace {
		allowed[name] = struct{}{}
	}
	narrowed := make([]*FunctionSpec, 0, len(specs))
	for _, spec := range specs {
		if _, ok := allowed[spec.Name]; ok {
			narrowed = append(narrowed, spec)
		}
	}
	return narrowed
}
