package publish

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized is returned when no signed-in user is present.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden is returned when the user may not post into the requested group.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound is returned when the draft or note is missing, not owned by
	// the caller or not linked as required. The cases are not distinguished.
	ErrNotFound = errors.New("not found")
	// ErrPersistence is returned when a required store write failed.
	ErrPersistence = errors.New("persistence failure")
	// ErrDegradedEnrichment marks a failed embedding. It is logged, never returned.
	ErrDegradedEnrichment = errors.New("degraded enrichment")
)

// ValidationError represents a validation error with a field name.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field %s: %s", e.Field, e.Message)
}

// IndexError reports that a publish committed but the search index could not
// be updated. The committed note is still returned alongside it.
type IndexError struct {
	NoteID string
	Err    error
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("note %s published but not indexed: %v", e.NoteID, e.Err)
}

func (e *IndexError) Unwrap() error {
	return e.Err
}
