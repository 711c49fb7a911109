package domain

import "time"

// ExportRow is a single row in the usage export admins pull for billing.
// It is a flat, denormalized view: one row per reservation, with the vehicle
// name repeated on every row of that vehicle.
type ExportRow struct {
	ReservationID string
	VehicleName   string
	OwnerName     string

	Start time.Time
	End   time.Time
	// Hours is the booked duration, whole-day bookings included.
	Hours      float64
	IsWholeDay bool

	Destination string
	SeriesID    string // empty string for standalone reservations
}
