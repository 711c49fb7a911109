package domain

import (
	"time"

	"github.com/google/uuid"
)

// Vehicle is a bookable resource. Vehicles are managed by admins outside
// this service; the booking API only reads them.
type Vehicle struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	KeyLocation string    `json:"key_location,omitempty"`
	Comment     string    `json:"comment,omitempty"`
	HasAlert    bool      `json:"has_alert"` // comment should be shown prominently
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
