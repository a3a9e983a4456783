package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound reports a missing record.
	ErrNotFound = errors.New("record not found")
	// ErrConflict reports a blocked reference.
	ErrConflict = errors.New("conflict")
	// ErrClassFull reports an enrollment into a class at capacity.
	ErrClassFull = errors.New("class full")
	// ErrClosed reports use of a store or repository after teardown.
	ErrClosed = errors.New("closed")
)

// PersistenceError is returned by repository mutations whose commit failed.
// No change event is published for a failed mutation.
type PersistenceError struct {
	Op     string
	Entity EntityType
	ID     string
	Err    error
}

func (e *PersistenceError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Entity, e.Err)
	}
	return fmt.Sprintf("%s %s %s: %v", e.Op, e.Entity, e.ID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// NotFoundError names the missing record and matches ErrNotFound.
type NotFoundError struct {
	Entity EntityType
	ID     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

// Is lets errors.Is(err, ErrNotFound) match.
func (e NotFoundError) Is(target error) bool { return target == ErrNotFound }

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock {
			return "transaction blocked by rules: " + v.Message
		}
	}
	return "transaction blocked by rules"
}
