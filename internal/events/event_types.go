package events

import (
	"time"

	"github.com/spec-kit/client-roster/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventClientCreated EventType = "client_created"
	EventClientUpdated EventType = "client_updated"
	EventClientDeleted EventType = "client_deleted"
)

// ClientEventTypes lists every client change event.
var ClientEventTypes = []EventType{EventClientCreated, EventClientUpdated, EventClientDeleted}

// Actor encapsulates actor metadata for an event.
type Actor struct {
	UserID string      `json:"user_id"`
	Role   domain.Role `json:"role"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	ClientID  string      `json:"client_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// ClientChangedPayload carries the confirmed server copy of a created or
// updated client. Deletes carry no payload.
type ClientChangedPayload struct {
	Record domain.ClientRecord `json:"record"`
}
