package events

import (
	"encoding/json"
	"time"
)

// Kind is the wire `type` discriminator of an inbound envelope.
type Kind string

type Event interface {
	Kind() Kind
	Timestamp() time.Time
	// Raw is the complete envelope the event was decoded from.
	Raw() json.RawMessage
}

type Base struct {
	kind      Kind
	timestamp time.Time
	raw       json.RawMessage
}

func NewBase(kind Kind, raw json.RawMessage) Base {
	return Base{kind: kind, timestamp: time.Now(), raw: raw}
}

func (b Base) Kind() Kind {
	return b.kind
}

func (b Base) Timestamp() time.Time {
	return b.timestamp
}

func (b Base) Raw() json.RawMessage {
	return b.raw
}
