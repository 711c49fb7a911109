package service

import (
	"context"
	"fmt"
	"time"

	"github.com/pkordes/carshare/backend/internal/domain"
	"github.com/pkordes/carshare/backend/internal/repo"
)

// ExportService serves the admin views of fleet usage: a flat export of every
// reservation in a window and the dashboard totals.
type ExportService struct {
	reservations repo.ReservationRepo
	vehicles     repo.VehicleRepo
	stats        repo.StatsRepo
}

// NewExportService constructs an ExportService backed by the provided repos.
func NewExportService(reservations repo.ReservationRepo, vehicles repo.VehicleRepo, stats repo.StatsRepo) *ExportService {
	return &ExportService{reservations: reservations, vehicles: vehicles, stats: stats}
}

// Stats returns fleet-wide usage totals. Only admins may read them.
func (s *ExportService) Stats(ctx context.Context, actor domain.Actor) (domain.UsageStats, error) {
	if !actor.IsAdmin {
		return domain.UsageStats{}, fmt.Errorf("service.ExportService.Stats: %w", domain.ErrForbidden)
	}
	stats, err := s.stats.Usage(ctx)
	if err != nil {
		return domain.UsageStats{}, fmt.Errorf("service.ExportService.Stats: %w", err)
	}
	if stats.PerVehicle == nil {
		stats.PerVehicle = []domain.VehicleUsage{}
	}
	return stats, nil
}

// Export returns one ExportRow per reservation overlapping [from, to), in
// start order. Only admins may export.
func (s *ExportService) Export(ctx context.Context, actor domain.Actor, from, to time.Time) ([]domain.ExportRow, error) {
	if !actor.IsAdmin {
		return nil, fmt.Errorf("service.ExportService.Export: %w", domain.ErrForbidden)
	}
	if !to.After(from) {
		return nil, fmt.Errorf("service.ExportService.Export: %w: window end must be after its start", domain.ErrValidation)
	}

	vehicles, err := s.vehicles.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("service.ExportService.Export: %w", err)
	}
	names := make(map[string]string, len(vehicles))
	for _, v := range vehicles {
		names[v.ID.String()] = v.Name
	}

	rs, err := s.reservations.ListWindow(ctx, nil, from, to)
	if err != nil {
		return nil, fmt.Errorf("service.ExportService.Export: %w", err)
	}

	rows := make([]domain.ExportRow, 0, len(rs))
	for _, r := range rs {
		row := domain.ExportRow{
			ReservationID: r.ID.String(),
			VehicleName:   names[r.VehicleID.String()],
			OwnerName:     r.OwnerName,
			Start:         r.StartTime,
			End:           r.EndTime,
			Hours:         r.Interval().Duration().Hours(),
			IsWholeDay:    r.IsWholeDay,
			Destination:   r.Destination,
		}
		if r.SeriesID != nil {
			row.SeriesID = r.SeriesID.String()
		}
		rows = append(rows, row)
	}
	return rows, nil
}
