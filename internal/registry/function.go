// Package registry holds the platform-scoped catalog of callable functions.
// It is pure state: registration, listing, and resolution, with no execution
// and no knowledge of planning.
package registry

import (
	"fmt"

	"github.com/google/uuid"
)

// PlatformGlobal is the wildcard platform tag. Functions registered under it
// are visible to every platform.
const PlatformGlobal = ""

// ArgType is the primitive type of a function argument.
type ArgType string

const (
	ArgString  ArgType = "string"
	ArgNumber  ArgType = "number"
	ArgBoolean ArgType = "boolean"
	ArgArray   ArgType = "array"
	ArgObject  ArgType = "object"
)

// Valid reports whether the arg type is one the binder understands.
func (t ArgType) Valid() bool {
	switch t {
	case ArgString, ArgNumber, ArgBoolean, ArgArray, ArgObject:
		return true
	}
	return false
}

// Argument describes one typed function parameter.
type Argument struct {
	Name        string  `json:"name" yaml:"name"`
	Description string  `json:"description,omitempty" yaml:"description,omitempty"`
	Type        ArgType `json:"type" yaml:"type"`
	Optional    bool    `json:"optional,omitempty" yaml:"optional,omitempty"`
}

// HTTPCall is the opaque HTTP execution descriptor attached to hosted
// functions. Header values and payload fields may contain placeholders
// resolved from bound arguments at execution time. The core never interprets
// it; only the HTTP executor does.
type HTTPCall struct {
	Method  string            `json:"method" yaml:"method"`
	URL     string            `json:"url" yaml:"url"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Payload map[string]any    `json:"payload,omitempty" yaml:"payload,omitempty"`

	// Query carries URL query parameters for GET-style calls. A value left
	// unresolved at execution time (an optional argument not bound) drops
	// out of the query.
	Query map[string]string `json:"query,omitempty" yaml:"query,omitempty"`
}

// FunctionSpec declares one callable action. Execution config is opaque to
// the planner: either an HTTP descriptor or a worker binding for handler
// routing, never both interpreted at once.
type FunctionSpec struct {
	ID              string     `json:"id" yaml:"id,omitempty"`
	Name            string     `json:"name" yaml:"name"`
	Description     string     `json:"description,omitempty" yaml:"description,omitempty"`
	Args            []Argument `json:"args,omitempty" yaml:"args,omitempty"`
	Hint            string     `json:"hint,omitempty" yaml:"hint,omitempty"`
	Platform        string     `json:"platform,omitempty" yaml:"platform,omitempty"`
	SuccessFeedback string     `json:"success_feedback,omitempty" yaml:"success_feedback,omitempty"`
	ErrorFeedback   string     `json:"error_feedback,omitempty" yaml:"error_feedback,omitempty"`
	HTTP            *HTTPCall  `json:"http,omitempty" yaml:"http,omitempty"`
	Worker          string     `json:"worker,omitempty" yaml:"worker,omitempty"`
}

// Validate checks the spec is well formed. Called by Register before any
// state changes so a failed registration leaves the registry untouched.
func (f *FunctionSpec) Validate() error {
	if f.Name == "" {
		return ErrFunctionNameEmpty
	}
	for _, arg := range f.Args {
		if arg.Name == "" {
			return fmt.Errorf("%w: function %s", ErrArgNameEmpty, f.Name)
		}
		if !arg.Type.Valid() {
			return fmt.Errorf("%w: %s.%s is %q", ErrUnknownArgType, f.Name, arg.Name, arg.Type)
		}
	}
	if f.HTTP != nil && (f.HTTP.Method == "" || f.HTTP.URL == "") {
		return fmt.Errorf("%w: function %s", ErrIncompleteHTTPCall, f.Name)
	}
	return nil
}

// Global reports whether the spec is visible under every platform tag.
func (f *FunctionSpec) Global() bool {
	return f.Platform == PlatformGlobal
}

// BindArgs validates provided values against the typed schema and returns
// the bound argument map. Required arguments must be present and every value
// must match its declared primitive type; there is no coercion. Unknown
// argument names are rejected.
func (f *FunctionSpec) BindArgs(args map[string]any) (map[string]any, error) {
	bound := make(map[string]any, len(args))
	byName := make(map[string]Argument, len(f.Args))
	for _, arg := range f.Args {
		byName[arg.Name] = arg
	}
	for _, arg := range f.Args {
		val, ok := args[arg.Name]
		if !ok {
			if arg.Optional {
				continue
			}
			return nil, fmt.Errorf("%w: %s.%s", ErrMissingRequiredArg, f.Name, arg.Name)
		}
		if !typeMatches(arg.Type, val) {
			return nil, fmt.Errorf("%w: %s.%s wants %s, got %T", ErrInvalidArgType, f.Name, arg.Name, arg.Type, val)
		}
		bound[arg.Name] = val
	}
	for name := range args {
		if _, ok := byName[name]; !ok {
			return nil, fmt.Errorf("%w: %s has no argument %q", ErrInvalidArgType, f.Name, name)
		}
	}
	return bound, nil
}

// typeMatches checks a decoded JSON value against a declared arg type.
// Numbers accept every Go numeric type a decoder might produce.
func typeMatches(t ArgType, val any) bool {
	switch t {
	case ArgString:
		_, ok := val.(string)
		return ok
	case ArgNumber:
		switch val.(type) {
		case int, int32, int64, float32, float64:
			return true
		}
		return false
	case ArgBoolean:
		_, ok := val.(bool)
		return ok
	case ArgArray:
		switch val.(type) {
		case []any, []string:
			return true
		}
		return false
	case ArgObject:
		_, ok := val.(map[string]any)
		return ok
	}
	return false
}

// normalizePlatform folds wildcard spellings into the canonical global tag.
func normalizePlatform(platform string) string {
	if platform == "*" {
		return PlatformGlobal
	}
	return platform
}

// assignID fills a fresh uuid when the spec arrives without one, matching
// how deployed function definitions are identified end to end.
func (f *FunctionSpec) assignID() {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
}
