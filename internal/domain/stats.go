package domain

import "github.com/google/uuid"

// UsageStats is the admin dashboard summary over every reservation.
type UsageStats struct {
	TotalReservations int
	TotalVehicles     int
	TotalMembers      int

	// PerVehicle lists every vehicle, busiest first. A vehicle that was
	// never booked has Count 0.
	PerVehicle []VehicleUsage

	// PerWeekday counts reservations by the weekday they start on, 0=Sunday.
	PerWeekday [7]int
}

// VehicleUsage is the number of reservations made on one vehicle.
type VehicleUsage struct {
	VehicleID uuid.UUID
	Name      string
	Count     int
}
