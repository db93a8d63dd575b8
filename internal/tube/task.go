package tube

import "time"

// State is a task lifecycle state.
type State int

const (
	StateDelayed State = iota
	StateReady
	StateTaken
	StateDone
)

// Code returns the single-character wire code for the state.
func (s State) Code() byte {
	switch s {
	case StateDelayed:
		return '~'
	case StateReady:
		return 'r'
	case StateTaken:
		return 't'
	case StateDone:
		return '-'
	}
	return '?'
}

func (s State) String() string {
	switch s {
	case StateDelayed:
		return "delayed"
	case StateReady:
		return "ready"
	case StateTaken:
		return "taken"
	case StateDone:
		return "done"
	}
	return "unknown"
}

// Task is one unit of work. The engine never interprets Payload or the
// classification fields; they are carried through unchanged.
type Task struct {
	ID    uint64
	State State

	Payload     []byte
	Channel     string
	MessageType string
	ObjectType  int64
	ObjectID    int64

	// ToSendAt is the instant before which the task must not be
	// delivered. Zero means immediately eligible.
	ToSendAt time.Time
	// ValidUntil is the hard deadline after which the task is dead in
	// any state. Zero means no deadline.
	ValidUntil time.Time
	CreatedAt  time.Time

	// Epoch is bumped on every transition into taken. Ack and release
	// must present the epoch observed at take time.
	Epoch uint64
}

// NextEvent returns the earliest pending deadline still ahead of the
// task, or the zero time when it has none.
func (t *Task) NextEvent() time.Time {
	switch {
	case t.State == StateDelayed && !t.ToSendAt.IsZero():
		if !t.ValidUntil.IsZero() && t.ValidUntil.Before(t.ToSendAt) {
			return t.ValidUntil
		}
		return t.ToSendAt
	default:
		return t.ValidUntil
	}
}

// snapshot returns a caller-safe copy of the task.
func (t *Task) snapshot() Task {
	out := *t
	if t.Payload != nil {
		out.Payload = append([]byte(nil), t.Payload...)
	}
	return out
}
