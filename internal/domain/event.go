package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventType names a committed reservation change.
type EventType string

const (
	EventReservationCreated EventType = "reservation.created"
	EventReservationUpdated EventType = "reservation.updated"
	EventReservationDeleted EventType = "reservation.deleted"
)

// ReservationEvent is emitted after a mutation commits. It is informational:
// consumers must not assume delivery.
type ReservationEvent struct {
	Type           EventType   `json:"type"`
	ReservationIDs []uuid.UUID `json:"reservation_ids"`
	SeriesID       *uuid.UUID  `json:"series_id,omitempty"`
	VehicleIDs     []uuid.UUID `json:"vehicle_ids"`
	ActorID        uuid.UUID   `json:"actor_id"`
	Scope          Scope       `json:"scope,omitempty"`
	OccurredAt     time.Time   `json:"occurred_at"`
}
