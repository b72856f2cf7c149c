package store

import (
	"errors"
	"fmt"
)

// Wiring mistakes fail fast at the registering or invoking call site.
// Callers can test for them with errors.Is.
var (
	// ErrDuplicateKey is returned when Extend, Computed, or AsyncComputed
	// is called with a key that already names a signal or computed.
	ErrDuplicateKey = errors.New("zengrid: duplicate key")

	// ErrDuplicateEffect is returned when Effect is called with a name
	// already in use.
	ErrDuplicateEffect = errors.New("zengrid: duplicate effect name")

	// ErrDuplicateAction is returned when Action is called with a name
	// already registered.
	ErrDuplicateAction = errors.New("zengrid: duplicate action name")

	// ErrUnknownAction is returned by Exec for a name never registered.
	ErrUnknownAction = errors.New("zengrid: unknown action")

	// ErrReentrantAction is returned by Exec when the named action is
	// already executing. A different, nested action name is permitted.
	ErrReentrantAction = errors.New("zengrid: action already executing")

	// ErrNotWritable is returned by Set when the key does not name a
	// writable signal.
	ErrNotWritable = errors.New("zengrid: key is not a writable signal")

	// ErrInvalidPhase is returned when a primitive is registered with a
	// negative phase.
	ErrInvalidPhase = errors.New("zengrid: phase must be non-negative")
)

// PhaseViolationError reports a tracked read of a later-phase cell. It is
// delivered as a panic value at the offending read: a computed propagates
// it to whoever pulled its value, while the effect scheduler catches and
// logs it like any other effect failure.
type PhaseViolationError struct {
	// Reader is the computed or effect whose body performed the read.
	Reader string
	// ReaderPhase is the phase the reader evaluates at.
	ReaderPhase int
	// Key is the cell that was read.
	Key string
	// KeyPhase is the cell's phase.
	KeyPhase int
}

func (e *PhaseViolationError) Error() string {
	return fmt.Sprintf("zengrid: phase violation: %q (phase %d) read %q (phase %d, %d ahead)",
		e.Reader, e.ReaderPhase, e.Key, e.KeyPhase, e.KeyPhase-e.ReaderPhase)
}
