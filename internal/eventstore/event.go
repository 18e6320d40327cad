package eventstore

import "time"

// Event is one stored entry.
type Event interface {
	ID() int64
	RunID() string
	Step() string
	Type() string
	Timestamp() time.Time
	Payload() []byte
}

// BaseEvent is the stored form of an Event.
type BaseEvent struct {
	EventID        int64
	EventRunID     string
	EventStep      string
	EventType      string
	EventTimestamp time.Time
	EventPayload   []byte
}

func (e *BaseEvent) ID() int64            { return e.EventID }
func (e *BaseEvent) RunID() string        { return e.EventRunID }
func (e *BaseEvent) Step() string         { return e.EventStep }
func (e *BaseEvent) Type() string         { return e.EventType }
func (e *BaseEvent) Timestamp() time.Time { return e.EventTimestamp }
func (e *BaseEvent) Payload() []byte      { return e.EventPayload }
