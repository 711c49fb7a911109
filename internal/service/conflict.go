package service

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/pkordes/carshare/backend/internal/domain"
	"github.com/pkordes/carshare/backend/internal/repo"
)

// checkMode selects which rules a candidate must pass.
type checkMode int

const (
	// forCreate applies the whole-day block and the overlap check.
	forCreate checkMode = iota
	// forEdit applies the overlap check only.
	forEdit
)

// loadNeighbours fetches every reservation on vehicleID that shares a
// calendar day with any candidate. Day granularity is what the whole-day
// block check needs; the overlap check is satisfied by any superset.
func loadNeighbours(ctx context.Context, rr repo.ReservationRepo, vehicleID uuid.UUID, candidates []domain.Reservation) ([]domain.Reservation, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	from, to := candidates[0].StartTime, candidates[0].EndTime
	for _, c := range candidates[1:] {
		if c.StartTime.Before(from) {
			from = c.StartTime
		}
		if c.EndTime.After(to) {
			to = c.EndTime
		}
	}
	span := domain.WholeDays(from, to)
	return rr.FindOverlapping(ctx, vehicleID, span.Start, span.End)
}

// checkBatch verifies every candidate against existing and against the
// candidates before it. existing rows whose ID is in exclude are ignored; a
// batch of edits excludes its own rows so they are judged by their new
// intervals only. The first failure is returned.
func checkBatch(existing, candidates []domain.Reservation, mode checkMode, exclude []uuid.UUID) error {
	for i, c := range candidates {
		if err := checkCandidate(existing, c, mode, exclude); err != nil {
			return err
		}
		if prev, ok := domain.FirstConflict(candidates[:i], c.Interval()); ok {
			return &domain.ConflictError{With: prev, Candidate: c.Interval()}
		}
	}
	return nil
}

func checkCandidate(existing []domain.Reservation, c domain.Reservation, mode checkMode, exclude []uuid.UUID) error {
	if mode == forCreate && !c.IsWholeDay {
		for _, day := range c.Interval().Days() {
			if blocker, ok := wholeDayBlocker(existing, day, exclude); ok {
				return &domain.WholeDayBlockedError{By: blocker, Date: day}
			}
		}
	}
	if with, ok := domain.FirstConflict(existing, c.Interval(), exclude...); ok {
		return &domain.ConflictError{With: with, Candidate: c.Interval()}
	}
	return nil
}

// wholeDayBlocker finds a whole-day reservation covering day.
func wholeDayBlocker(existing []domain.Reservation, day time.Time, exclude []uuid.UUID) (domain.Reservation, bool) {
	dayIv := domain.Interval{Start: day, End: day.AddDate(0, 0, 1)}
	for _, r := range existing {
		if r.IsWholeDay && domain.Overlaps(r.Interval(), dayIv) && !slices.Contains(exclude, r.ID) {
			return r, true
		}
	}
	return domain.Reservation{}, false
}

func reservationIDs(rs []domain.Reservation) []uuid.UUID {
	ids := make([]uuid.UUID, len(rs))
	for i, r := range rs {
		ids[i] = r.ID
	}
	return ids
}
