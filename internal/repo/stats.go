package repo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/pkordes/carshare/backend/internal/domain"
)

// StatsRepo computes aggregate views over reservations for admins.
type StatsRepo interface {
	// Usage returns totals, per-vehicle counts and per-weekday counts over
	// every reservation ever made.
	Usage(ctx context.Context) (domain.UsageStats, error)
}

type pgStatsRepo struct {
	db db
}

// NewStatsRepo constructs a StatsRepo backed by the provided db connection.
func NewStatsRepo(db db) StatsRepo {
	return &pgStatsRepo{db: db}
}

func (r *pgStatsRepo) Usage(ctx context.Context) (domain.UsageStats, error) {
	var stats domain.UsageStats

	const totalsQ = `
		SELECT (SELECT COUNT(*) FROM reservations),
		       (SELECT COUNT(*) FROM vehicles),
		       (SELECT COUNT(*) FROM members)`

	err := r.db.QueryRow(ctx, totalsQ).Scan(&stats.TotalReservations, &stats.TotalVehicles, &stats.TotalMembers)
	if err != nil {
		return domain.UsageStats{}, fmt.Errorf("repo.StatsRepo.Usage: totals: %w", err)
	}

	if stats.PerVehicle, err = r.perVehicle(ctx); err != nil {
		return domain.UsageStats{}, fmt.Errorf("repo.StatsRepo.Usage: per vehicle: %w", err)
	}
	if stats.PerWeekday, err = r.perWeekday(ctx); err != nil {
		return domain.UsageStats{}, fmt.Errorf("repo.StatsRepo.Usage: per weekday: %w", err)
	}
	return stats, nil
}

func (r *pgStatsRepo) perVehicle(ctx context.Context) ([]domain.VehicleUsage, error) {
	const q = `
		SELECT v.id, v.name, COUNT(r.id)
		FROM vehicles v
		LEFT JOIN reservations r ON r.vehicle_id = v.id
		GROUP BY v.id, v.name
		ORDER BY COUNT(r.id) DESC, v.name, v.id`

	rows, err := r.db.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	usage := []domain.VehicleUsage{}
	for rows.Next() {
		var (
			u  domain.VehicleUsage
			id pgtype.UUID
		)
		if err := rows.Scan(&id, &u.Name, &u.Count); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		u.VehicleID = uuid.UUID(id.Bytes)
		usage = append(usage, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return usage, nil
}

func (r *pgStatsRepo) perWeekday(ctx context.Context) ([7]int, error) {
	const q = `
		SELECT extract(dow FROM start_time)::int AS dow, COUNT(*)
		FROM reservations
		GROUP BY dow`

	var days [7]int
	rows, err := r.db.Query(ctx, q)
	if err != nil {
		return days, err
	}
	defer rows.Close()

	for rows.Next() {
		var dow, count int
		if err := rows.Scan(&dow, &count); err != nil {
			return days, fmt.Errorf("scan: %w", err)
		}
		if dow >= 0 && dow < len(days) {
			days[dow] = count
		}
	}
	if err := rows.Err(); err != nil {
		return days, fmt.Errorf("rows: %w", err)
	}
	return days, nil
}
