package sqlite

import (
	"errors"
	"fmt"
)

var (
	ErrPersistence = errors.New("persistence failure")
	ErrNotFound    = errors.New("not found")
)

// PersistenceError wraps a failed read or write against the store.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

func persistErr(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}
