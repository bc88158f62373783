package store

import "fmt"

// PersistenceError is a failed read or write against the database. The
// in-memory value is kept; the key stays dirty until a retry succeeds.
type PersistenceError struct {
	Key string
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Op, e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// CorruptedStateError means the bytes stored under Key could not be decoded.
// They are discarded and the caller's default is used instead.
type CorruptedStateError struct {
	Key string
	Err error
}

func (e *CorruptedStateError) Error() string {
	return fmt.Sprintf("corrupted state for %q: %v", e.Key, e.Err)
}

func (e *CorruptedStateError) Unwrap() error { return e.Err }
