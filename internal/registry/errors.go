package registry

import "errors"

// Function registry errors.
var (
	// ErrDuplicateFunction is returned when a registration would make two
	// functions with the same name visible under one platform tag.
	ErrDuplicateFunction = errors.New("function already registered")

	// ErrUnknownFunction is returned when a function is not visible under
	// the requested platform tag.
	ErrUnknownFunction = errors.New("unknown function")

	// ErrFunctionNameEmpty is returned when a spec has no name.
	ErrFunctionNameEmpty = errors.New("function name cannot be empty")

	// ErrArgNameEmpty is returned when an argument has no name.
	ErrArgNameEmpty = errors.New("argument name cannot be empty")

	// ErrUnknownArgType is returned when an argument declares a type the
	// binder does not understand.
	ErrUnknownArgType = errors.New("unknown argument type")

	// ErrMissingRequiredArg is returned when a required argument is missing.
	ErrMissingRequiredArg = errors.New("missing required argument")

	// ErrInvalidArgType is returned when a bound value has the wrong type.
	ErrInvalidArgType = errors.New("invalid argument type")

	// ErrIncompleteHTTPCall is returned when an HTTP descriptor lacks a
	// method or URL.
	ErrIncompleteHTTPCall = errors.New("http call needs method and url")
)
