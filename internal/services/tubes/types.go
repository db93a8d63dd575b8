package tubesvc

import (
	"time"

	"github.com/dreadatour/deque/internal/tube"
)

// Wire timestamps are integers scaled to 100ns units (10,000,000 units
// per second). Zero means unset.
const timeScale = 10_000_000

const nsPerUnit = int64(time.Second) / timeScale

func timeToWire(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano() / nsPerUnit
}

func wireToTime(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.Unix(0, v*nsPerUnit)
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// Row is the wire representation of a task. State is rendered both as the
// small-integer enumeration and as the single-character status code, so
// one row serves both protocol eras.
type Row struct {
	ID          uint64 `json:"id"`
	State       int    `json:"state"`
	Status      string `json:"status"`
	NextEvent   int64  `json:"next_event"`
	MessageType string `json:"message_type"`
	ObjectType  int64  `json:"object_type"`
	ObjectID    int64  `json:"object_id"`
	Channel     string `json:"channel"`
	ToSendAt    int64  `json:"to_send_at"`
	ValidUntil  int64  `json:"valid_until"`
	CreatedAt   int64  `json:"created_at"`
	Payload     []byte `json:"payload"`
	Epoch       uint64 `json:"epoch"`
}

func rowFromTask(t tube.Task) Row {
	return Row{
		ID:          t.ID,
		State:       int(t.State),
		Status:      string(t.State.Code()),
		NextEvent:   timeToWire(t.NextEvent()),
		MessageType: t.MessageType,
		ObjectType:  t.ObjectType,
		ObjectID:    t.ObjectID,
		Channel:     t.Channel,
		ToSendAt:    timeToWire(t.ToSendAt),
		ValidUntil:  timeToWire(t.ValidUntil),
		CreatedAt:   timeToWire(t.CreatedAt),
		Payload:     t.Payload,
		Epoch:       t.Epoch,
	}
}

// PutRequest is the put argument set. Delay and TTL are relative seconds;
// ToSendAt and ValidUntil are absolute wire timestamps.
type PutRequest struct {
	Tube        string   `json:"tube"`
	Payload     []byte   `json:"payload"`
	Channel     string   `json:"channel"`
	MessageType string   `json:"message_type"`
	ObjectType  int64    `json:"object_type"`
	ObjectID    int64    `json:"object_id"`
	Delay       *float64 `json:"delay,omitempty"`
	TTL         *float64 `json:"ttl,omitempty"`
	ToSendAt    *int64   `json:"to_send_at,omitempty"`
	ValidUntil  *int64   `json:"valid_until,omitempty"`
}

// TakeRequest carries take arguments. Timeout is in seconds; nil blocks
// until the request context ends, 0 returns immediately.
type TakeRequest struct {
	Tube    string   `json:"tube"`
	Timeout *float64 `json:"timeout,omitempty"`
	Session string   `json:"session,omitempty"`
}

// TaskRequest addresses one task; Epoch is required for ack and release.
type TaskRequest struct {
	Tube  string   `json:"tube"`
	ID    uint64   `json:"id"`
	Epoch uint64   `json:"epoch,omitempty"`
	Delay *float64 `json:"delay,omitempty"`
}
