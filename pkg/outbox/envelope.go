package outbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SchemaVersion is stamped on every envelope written by this service.
const SchemaVersion = 1

// ActorRef identifies who produced the event. Anonymous shoppers carry no user id.
type ActorRef struct {
	UserID    *uuid.UUID `json:"userId,omitempty"`
	Anonymous bool       `json:"anonymous,omitempty"`
}

// ActorFor builds the actor for an order owner; a nil user is an anonymous shopper.
func ActorFor(userID *uuid.UUID) *ActorRef {
	return &ActorRef{UserID: userID, Anonymous: userID == nil}
}

// Envelope is the JSON document stored in outbox_events.payload and published
// unchanged to Pub/Sub.
type Envelope struct {
	Version    int             `json:"version"`
	EventID    uuid.UUID       `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// Decode parses a stored payload and rejects envelopes this service cannot read.
func Decode(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	switch {
	case env.Version < 1 || env.Version > SchemaVersion:
		return Envelope{}, fmt.Errorf("unsupported envelope version %d", env.Version)
	case env.EventID == uuid.Nil:
		return Envelope{}, errors.New("envelope missing event id")
	}
	return env, nil
}
