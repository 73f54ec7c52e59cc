// internal/events/events.go
package events

import (
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	MessageInserted   Type = "message_inserted"
	ApprovalUpserted  Type = "approval_upserted"
	RequestCreated    Type = "request_created"
	RequestUpdated    Type = "request_updated"
	ExecutionRecorded Type = "execution_recorded"
)

// Event is a change notification scoped to one license request. Delivery is
// at-least-once, so consumers dedupe on ID and refetch state from the API.
type Event struct {
	ID         uuid.UUID   `json:"id"`
	Topic      string      `json:"topic"`
	Type       Type        `json:"type"`
	Payload    interface{} `json:"payload,omitempty"`
	OccurredAt time.Time   `json:"occurred_at"`
}

func New(requestID uuid.UUID, typ Type, payload interface{}, at time.Time) Event {
	return Event{
		ID:         uuid.New(),
		Topic:      requestID.String(),
		Type:       typ,
		Payload:    payload,
		OccurredAt: at,
	}
}

// Sink accepts events for asynchronous delivery.
type Sink interface {
	Dispatch(evts ...Event)
}
