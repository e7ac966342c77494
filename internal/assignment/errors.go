package assignment

import "errors"

var (
	// ErrStaleResponse marks a load or toggle that lost the race against a
	// newer parent selection. Callers drop the result without telling the user.
	ErrStaleResponse = errors.New("assignment: stale response")
	// ErrNoSelection is returned when no parent state is loaded for the session.
	ErrNoSelection = errors.New("assignment: no parent selected")
	// ErrUnknownItem is returned when toggling an id outside the loaded universe.
	ErrUnknownItem = errors.New("assignment: unknown item")
	// ErrInvalidParent is returned for a non-positive parent id.
	ErrInvalidParent = errors.New("assignment: invalid parent")
)
