package session

import "errors"

// Session errors.
var (
	// ErrSessionBusy is returned when a reaction arrives while another is
	// in flight for the same session id under the Reject lock policy. The
	// caller must retry.
	ErrSessionBusy = errors.New("session busy")

	// ErrNotFound is a store-internal sentinel for an unknown session id.
	// Load hides it behind lazy creation; it surfaces only from operations
	// that require an existing session.
	ErrNotFound = errors.New("session not found")
)
