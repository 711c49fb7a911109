package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/pkordes/carshare/backend/internal/domain"
)

// ReservationRepo defines the persistence operations for Reservations.
// All intervals are half-open; overlap queries use the same predicate as
// domain.Overlaps.
type ReservationRepo interface {
	// GetByID retrieves a single reservation with its owner's display name.
	// Returns domain.ErrNotFound if no reservation with that ID exists.
	GetByID(ctx context.Context, id uuid.UUID) (domain.Reservation, error)

	// FindOverlapping returns every reservation on vehicleID whose interval
	// overlaps [start, end), ordered by start_time.
	FindOverlapping(ctx context.Context, vehicleID uuid.UUID, start, end time.Time) ([]domain.Reservation, error)

	// FindBySeriesFrom returns the members of a series starting at or after
	// from, ordered by start_time.
	FindBySeriesFrom(ctx context.Context, seriesID uuid.UUID, from time.Time) ([]domain.Reservation, error)

	// InsertMany inserts every reservation and returns the persisted rows in
	// input order, with DB-generated ids and timestamps.
	InsertMany(ctx context.Context, rs []domain.Reservation) ([]domain.Reservation, error)

	// UpdateMany overwrites the mutable fields of every reservation, matched
	// by ID, and returns the updated rows in input order.
	// Returns domain.ErrNotFound if any of them no longer exists.
	UpdateMany(ctx context.Context, rs []domain.Reservation) ([]domain.Reservation, error)

	// SetRecurrenceRule writes only the rule column of one reservation; nil
	// clears it. Returns domain.ErrNotFound if the reservation does not exist.
	SetRecurrenceRule(ctx context.Context, id uuid.UUID, rule *domain.RecurrenceRule) error

	// DeleteMany removes the reservations with the given ids.
	// Returns domain.ErrNotFound if any of them no longer exists.
	DeleteMany(ctx context.Context, ids []uuid.UUID) error

	// ListWindow returns reservations overlapping [from, to), optionally for
	// one vehicle, ordered by start_time.
	ListWindow(ctx context.Context, vehicleID *uuid.UUID, from, to time.Time) ([]domain.Reservation, error)

	// ListByOwnerPaged returns one page of the owner's reservations, latest
	// first, and the owner's total reservation count.
	ListByOwnerPaged(ctx context.Context, ownerID uuid.UUID, p domain.PaginationParams) ([]domain.Reservation, int64, error)
}

// pgReservationRepo is the Postgres implementation of ReservationRepo.
type pgReservationRepo struct {
	db db
}

// NewReservationRepo constructs a ReservationRepo backed by the provided db connection.
// In production pass *pgxpool.Pool or a pgx.Tx; in tests pass a pgx.Tx for rollback isolation.
func NewReservationRepo(db db) ReservationRepo {
	return &pgReservationRepo{db: db}
}

// reservationColumns selects a reservation row aliased r joined to members m.
const reservationColumns = `
	r.id, r.vehicle_id, r.owner_id, COALESCE(m.display_name, ''),
	r.start_time, r.end_time, r.is_whole_day, COALESCE(r.destination, ''),
	r.series_id, r.recurrence_rule, r.is_exception, r.created_at, r.updated_at`

func (r *pgReservationRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.Reservation, error) {
	const q = `
		SELECT` + reservationColumns + `
		FROM reservations r
		LEFT JOIN members m ON m.id = r.owner_id
		WHERE r.id = @id`

	row := r.db.QueryRow(ctx, q, pgx.NamedArgs{"id": id})
	result, err := scanReservation(row)
	if err != nil {
		return domain.Reservation{}, fmt.Errorf("repo.ReservationRepo.GetByID: %w", err)
	}
	return result, nil
}

func (r *pgReservationRepo) FindOverlapping(ctx context.Context, vehicleID uuid.UUID, start, end time.Time) ([]domain.Reservation, error) {
	const q = `
		SELECT` + reservationColumns + `
		FROM reservations r
		LEFT JOIN members m ON m.id = r.owner_id
		WHERE r.vehicle_id = @vehicle_id
		  AND r.start_time < @end
		  AND r.end_time   > @start
		ORDER BY r.start_time, r.id`

	args := pgx.NamedArgs{"vehicle_id": vehicleID, "start": start, "end": end}
	result, err := r.queryReservations(ctx, q, args)
	if err != nil {
		return nil, fmt.Errorf("repo.ReservationRepo.FindOverlapping: %w", err)
	}
	return result, nil
}

func (r *pgReservationRepo) FindBySeriesFrom(ctx context.Context, seriesID uuid.UUID, from time.Time) ([]domain.Reservation, error) {
	const q = `
		SELECT` + reservationColumns + `
		FROM reservations r
		LEFT JOIN members m ON m.id = r.owner_id
		WHERE r.series_id = @series_id
		  AND r.start_time >= @from
		ORDER BY r.start_time, r.id`

	result, err := r.queryReservations(ctx, q, pgx.NamedArgs{"series_id": seriesID, "from": from})
	if err != nil {
		return nil, fmt.Errorf("repo.ReservationRepo.FindBySeriesFrom: %w", err)
	}
	return result, nil
}

func (r *pgReservationRepo) InsertMany(ctx context.Context, rs []domain.Reservation) ([]domain.Reservation, error) {
	const q = `
		WITH r AS (
			INSERT INTO reservations (vehicle_id, owner_id, start_time, end_time, is_whole_day,
			                          destination, series_id, recurrence_rule, is_exception)
			VALUES (@vehicle_id, @owner_id, @start_time, @end_time, @is_whole_day,
			        @destination, @series_id, @recurrence_rule, @is_exception)
			RETURNING *
		)
		SELECT` + reservationColumns + `
		FROM r
		LEFT JOIN members m ON m.id = r.owner_id`

	batch := &pgx.Batch{}
	for _, res := range rs {
		args, err := reservationArgs(res)
		if err != nil {
			return nil, fmt.Errorf("repo.ReservationRepo.InsertMany: %w", err)
		}
		batch.Queue(q, args)
	}

	result, err := r.sendReturning(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("repo.ReservationRepo.InsertMany: %w", err)
	}
	return result, nil
}

func (r *pgReservationRepo) UpdateMany(ctx context.Context, rs []domain.Reservation) ([]domain.Reservation, error) {
	const q = `
		WITH r AS (
			UPDATE reservations
			SET vehicle_id      = @vehicle_id,
			    start_time      = @start_time,
			    end_time        = @end_time,
			    is_whole_day    = @is_whole_day,
			    destination     = @destination,
			    series_id       = @series_id,
			    recurrence_rule = @recurrence_rule,
			    is_exception    = @is_exception,
			    updated_at      = now()
			WHERE id = @id
			RETURNING *
		)
		SELECT` + reservationColumns + `
		FROM r
		LEFT JOIN members m ON m.id = r.owner_id`

	batch := &pgx.Batch{}
	for _, res := range rs {
		args, err := reservationArgs(res)
		if err != nil {
			return nil, fmt.Errorf("repo.ReservationRepo.UpdateMany: %w", err)
		}
		args["id"] = res.ID
		batch.Queue(q, args)
	}

	result, err := r.sendReturning(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("repo.ReservationRepo.UpdateMany: %w", err)
	}
	return result, nil
}

func (r *pgReservationRepo) SetRecurrenceRule(ctx context.Context, id uuid.UUID, rule *domain.RecurrenceRule) error {
	const q = `
		UPDATE reservations
		SET recurrence_rule = @recurrence_rule,
		    updated_at      = now()
		WHERE id = @id`

	data, err := marshalRule(rule)
	if err != nil {
		return fmt.Errorf("repo.ReservationRepo.SetRecurrenceRule: %w", err)
	}
	tag, err := r.db.Exec(ctx, q, pgx.NamedArgs{"id": id, "recurrence_rule": data})
	if err != nil {
		return fmt.Errorf("repo.ReservationRepo.SetRecurrenceRule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("repo.ReservationRepo.SetRecurrenceRule: %w", domain.ErrNotFound)
	}
	return nil
}

func (r *pgReservationRepo) DeleteMany(ctx context.Context, ids []uuid.UUID) error {
	const q = `DELETE FROM reservations WHERE id = ANY(@ids::uuid[])`

	tag, err := r.db.Exec(ctx, q, pgx.NamedArgs{"ids": uuidStrings(ids)})
	if err != nil {
		return fmt.Errorf("repo.ReservationRepo.DeleteMany: %w", err)
	}
	if tag.RowsAffected() != int64(len(ids)) {
		return fmt.Errorf("repo.ReservationRepo.DeleteMany: %w", domain.ErrNotFound)
	}
	return nil
}

func (r *pgReservationRepo) ListWindow(ctx context.Context, vehicleID *uuid.UUID, from, to time.Time) ([]domain.Reservation, error) {
	const q = `
		SELECT` + reservationColumns + `
		FROM reservations r
		LEFT JOIN members m ON m.id = r.owner_id
		WHERE (@vehicle_id::uuid IS NULL OR r.vehicle_id = @vehicle_id::uuid)
		  AND r.start_time < @to
		  AND r.end_time   > @from
		ORDER BY r.start_time, r.vehicle_id`

	args := pgx.NamedArgs{"vehicle_id": vehicleID, "from": from, "to": to} // nil vehicle_id becomes NULL
	result, err := r.queryReservations(ctx, q, args)
	if err != nil {
		return nil, fmt.Errorf("repo.ReservationRepo.ListWindow: %w", err)
	}
	return result, nil
}

func (r *pgReservationRepo) ListByOwnerPaged(ctx context.Context, ownerID uuid.UUID, p domain.PaginationParams) ([]domain.Reservation, int64, error) {
	const countQ = `SELECT COUNT(*) FROM reservations WHERE owner_id = @owner_id`

	var total int64
	if err := r.db.QueryRow(ctx, countQ, pgx.NamedArgs{"owner_id": ownerID}).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("repo.ReservationRepo.ListByOwnerPaged: count: %w", err)
	}

	const q = `
		SELECT` + reservationColumns + `
		FROM reservations r
		LEFT JOIN members m ON m.id = r.owner_id
		WHERE r.owner_id = @owner_id
		ORDER BY r.start_time DESC, r.id
		LIMIT @limit OFFSET @offset`

	args := pgx.NamedArgs{"owner_id": ownerID, "limit": p.Limit, "offset": p.Offset()}
	result, err := r.queryReservations(ctx, q, args)
	if err != nil {
		return nil, 0, fmt.Errorf("repo.ReservationRepo.ListByOwnerPaged: %w", err)
	}
	return result, total, nil
}

func (r *pgReservationRepo) queryReservations(ctx context.Context, q string, args pgx.NamedArgs) ([]domain.Reservation, error) {
	rows, err := r.db.Query(ctx, q, args)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.Reservation{}
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		result = append(result, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return result, nil
}

// sendReturning runs a batch of single-row statements and collects their rows
// in queue order. A statement that matches nothing yields domain.ErrNotFound.
func (r *pgReservationRepo) sendReturning(ctx context.Context, batch *pgx.Batch) ([]domain.Reservation, error) {
	br := r.db.SendBatch(ctx, batch)
	defer br.Close()

	result := make([]domain.Reservation, 0, batch.Len())
	for range batch.Len() {
		res, err := scanReservation(br.QueryRow())
		if err != nil {
			return nil, err
		}
		result = append(result, res)
	}
	if err := br.Close(); err != nil {
		return nil, mapPgError(err)
	}
	return result, nil
}

// reservationArgs maps the writable columns of a reservation to named args.
func reservationArgs(res domain.Reservation) (pgx.NamedArgs, error) {
	rule, err := marshalRule(res.RecurrenceRule)
	if err != nil {
		return nil, err
	}
	var destination *string
	if res.Destination != "" {
		destination = &res.Destination
	}
	return pgx.NamedArgs{
		"vehicle_id":      res.VehicleID,
		"owner_id":        res.OwnerID,
		"start_time":      res.StartTime,
		"end_time":        res.EndTime,
		"is_whole_day":    res.IsWholeDay,
		"destination":     destination,
		"series_id":       res.SeriesID,
		"recurrence_rule": rule,
		"is_exception":    res.IsException,
	}, nil
}

// marshalRule encodes a rule for the jsonb column. nil becomes NULL.
func marshalRule(rule *domain.RecurrenceRule) ([]byte, error) {
	if rule == nil {
		return nil, nil
	}
	data, err := json.Marshal(rule)
	if err != nil {
		return nil, fmt.Errorf("marshal recurrence rule: %w", err)
	}
	return data, nil
}

// scanReservation maps a single row selected with reservationColumns.
func scanReservation(s scanner) (domain.Reservation, error) {
	var (
		res       domain.Reservation
		id        pgtype.UUID
		vehicleID pgtype.UUID
		ownerID   pgtype.UUID
		seriesID  pgtype.UUID
		start     pgtype.Timestamp
		end       pgtype.Timestamp
		rule      []byte
	)

	err := s.Scan(&id, &vehicleID, &ownerID, &res.OwnerName,
		&start, &end, &res.IsWholeDay, &res.Destination,
		&seriesID, &rule, &res.IsException, &res.CreatedAt, &res.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Reservation{}, domain.ErrNotFound
		}
		return domain.Reservation{}, mapPgError(err)
	}

	res.ID = uuid.UUID(id.Bytes)
	res.VehicleID = uuid.UUID(vehicleID.Bytes)
	res.OwnerID = uuid.UUID(ownerID.Bytes)
	res.StartTime = start.Time.UTC()
	res.EndTime = end.Time.UTC()
	if seriesID.Valid {
		sid := uuid.UUID(seriesID.Bytes)
		res.SeriesID = &sid
	}
	if rule != nil {
		var rr domain.RecurrenceRule
		if err := json.Unmarshal(rule, &rr); err != nil {
			return domain.Reservation{}, fmt.Errorf("unmarshal recurrence rule: %w", err)
		}
		res.RecurrenceRule = &rr
	}
	return res, nil
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
