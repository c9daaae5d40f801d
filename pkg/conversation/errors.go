package conversation

import (
	"errors"
	"fmt"
)

var (
	ErrLookup           = errors.New("lookup error")
	ErrMessageNotFound  = errors.New("message not found")
	ErrNotInBranch      = errors.New("message is not on the current branch")
	ErrValidation       = errors.New("validation error")
	ErrEmptyContent     = errors.New("content is empty")
	ErrMissingID        = errors.New("message id is empty")
	ErrDuplicateMessage = errors.New("message already exists")
	ErrParentMismatch   = errors.New("parent is not the current branch leaf")
)

// LookupError reports an operation that referenced a message it could not find.
// The tree the operation was called on is left untouched.
type LookupError struct {
	ID     NodeID
	Reason error
}

func (e *LookupError) Error() string {
	if e == nil {
		return ErrLookup.Error()
	}
	reason := e.Reason
	if reason == nil {
		reason = ErrMessageNotFound
	}
	return fmt.Sprintf("%s: message %q: %s", ErrLookup, e.ID, reason)
}

func (e *LookupError) Is(target error) bool {
	if target == ErrLookup {
		return true
	}
	if e == nil {
		return false
	}
	if e.Reason == nil {
		return target == ErrMessageNotFound
	}
	return target == e.Reason
}

func notFound(id NodeID) error {
	return &LookupError{ID: id, Reason: ErrMessageNotFound}
}

// ValidationError reports input rejected before any mutation happened.
type ValidationError struct {
	Field  string
	Reason error
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ErrValidation.Error()
	}
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrValidation, e.Reason)
	}
	return fmt.Sprintf("%s (%s): %s", ErrValidation, e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	if target == ErrValidation {
		return true
	}
	return e != nil && e.Reason != nil && target == e.Reason
}
