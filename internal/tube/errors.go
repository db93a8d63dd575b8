package tube

import "errors"

var (
	// ErrBadArguments reports malformed put/release options, e.g. a
	// negative delay or ttl.
	ErrBadArguments = errors.New("bad arguments")
	// ErrNotFound reports an unknown, already-acked, deleted or expired
	// task id.
	ErrNotFound = errors.New("task not found")
	// ErrWrongState reports an operation invalid for the task's current
	// state, e.g. ack on a task that is not taken.
	ErrWrongState = errors.New("wrong task state")
	// ErrStaleOwner reports an ack/release carrying an epoch from a
	// superseded ownership.
	ErrStaleOwner = errors.New("stale owner")
	// ErrTubeBusy reports a drop attempted while tasks are taken or
	// consumers are waiting.
	ErrTubeBusy = errors.New("tube busy")
)
