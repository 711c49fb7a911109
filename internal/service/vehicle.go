package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pkordes/carshare/backend/internal/calendar"
	"github.com/pkordes/carshare/backend/internal/domain"
	"github.com/pkordes/carshare/backend/internal/repo"
)

// VehicleService exposes the read-only vehicle catalogue and per-vehicle
// calendar feeds.
type VehicleService struct {
	vehicles     repo.VehicleRepo
	reservations repo.ReservationRepo
	now          func() time.Time
}

// NewVehicleService constructs a VehicleService backed by the provided repos.
func NewVehicleService(vehicles repo.VehicleRepo, reservations repo.ReservationRepo) *VehicleService {
	return &VehicleService{vehicles: vehicles, reservations: reservations, now: time.Now}
}

// List returns all vehicles. Always returns a non-nil slice.
func (s *VehicleService) List(ctx context.Context) ([]domain.Vehicle, error) {
	vs, err := s.vehicles.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("service.VehicleService.List: %w", err)
	}
	if vs == nil {
		return []domain.Vehicle{}, nil
	}
	return vs, nil
}

// GetByID returns a single vehicle.
// Returns domain.ErrNotFound if it does not exist.
func (s *VehicleService) GetByID(ctx context.Context, id uuid.UUID) (domain.Vehicle, error) {
	v, err := s.vehicles.GetByID(ctx, id)
	if err != nil {
		return domain.Vehicle{}, fmt.Errorf("service.VehicleService.GetByID: %w", err)
	}
	return v, nil
}

// CalendarFeed renders the vehicle's reservations overlapping [from, to) as
// an iCalendar document.
func (s *VehicleService) CalendarFeed(ctx context.Context, id uuid.UUID, from, to time.Time) (string, error) {
	if !to.After(from) {
		return "", fmt.Errorf("%w: window end must be after its start", domain.ErrValidation)
	}
	v, err := s.vehicles.GetByID(ctx, id)
	if err != nil {
		return "", fmt.Errorf("service.VehicleService.CalendarFeed: %w", err)
	}
	rs, err := s.reservations.ListWindow(ctx, &id, from, to)
	if err != nil {
		return "", fmt.Errorf("service.VehicleService.CalendarFeed: %w", err)
	}
	return calendar.Encode(v, rs, s.now()), nil
}
