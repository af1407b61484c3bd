package domain

import (
	"errors"
	"fmt"
)

// Sentinel precondition errors. Per the error taxonomy these accompany a
// zero-ID or false return and a logged message; they never panic.
var (
	// ErrNotInitialized is returned by registry operations before Initialize.
	ErrNotInitialized = errors.New("registry not initialized")
	// ErrShuttingDown is returned by the scheduler once shutdown has begun.
	ErrShuttingDown = errors.New("scheduler shutting down")
	// ErrEmptyName is returned when a registration name is empty.
	ErrEmptyName = errors.New("name must not be empty")
	// ErrUnknownType is returned when a referenced type is not registered.
	ErrUnknownType = errors.New("unknown type")
	// ErrTimeout is returned when a bounded wait elapses.
	ErrTimeout = errors.New("timed out")
)

// HierarchyViolationError reports an attempted lock acquisition that would
// break the lock-level ordering. The acquisition is refused, not merely
// logged.
type HierarchyViolationError struct {
	Held      LockLevel
	Requested LockLevel
}

func (e HierarchyViolationError) Error() string {
	return fmt.Sprintf("lock hierarchy violation: holding %s, requested %s", e.Held, e.Requested)
}

// TransactionAbortedError reports a transaction that exhausted its retry
// budget on validation conflicts. No part of its write-set was applied.
type TransactionAbortedError struct {
	Kind      string
	Attempts  int
	Conflicts []ResourceRef
}

func (e TransactionAbortedError) Error() string {
	return fmt.Sprintf("transaction %q aborted after %d attempts (%d conflicting resources)",
		e.Kind, e.Attempts, len(e.Conflicts))
}

// MigrationError reports an instance-data migration failure from the memory
// pool collaborator. The schema version bump itself already succeeded; the
// caller must observe and act on this partial success.
type MigrationError struct {
	TypeID      TypeID
	FromVersion uint32
	ToVersion   uint32
	Err         error
}

func (e MigrationError) Error() string {
	return fmt.Sprintf("migrate type %d instance data %d->%d: %v", e.TypeID, e.FromVersion, e.ToVersion, e.Err)
}

// Unwrap exposes the collaborator error for errors.Is/As.
func (e MigrationError) Unwrap() error { return e.Err }
