package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pkordes/carshare/backend/internal/domain"
	"github.com/pkordes/carshare/backend/internal/recurrence"
	"github.com/pkordes/carshare/backend/internal/repo"
)

// CalendarCache stores calendar window listings. Any error is treated as a
// cache miss; the database stays authoritative. Listings are keyed by the
// scope's generation, which InvalidateVehicles advances.
type CalendarCache interface {
	Generation(ctx context.Context, vehicleID *uuid.UUID) (int64, error)
	GetWindow(ctx context.Context, vehicleID *uuid.UUID, gen int64, from, to time.Time) ([]domain.Reservation, bool, error)
	SetWindow(ctx context.Context, vehicleID *uuid.UUID, gen int64, from, to time.Time, rs []domain.Reservation) error
	InvalidateVehicles(ctx context.Context, vehicleIDs []uuid.UUID) error
}

// EventPublisher announces committed reservation changes.
type EventPublisher interface {
	Publish(ctx context.Context, ev domain.ReservationEvent) error
}

// Option configures a BookingService.
type Option func(*BookingService)

// WithHardCap bounds the number of occurrences a recurring request may create.
func WithHardCap(n int) Option {
	return func(s *BookingService) { s.hardCap = n }
}

// WithCache enables caching of calendar window listings.
func WithCache(c CalendarCache) Option {
	return func(s *BookingService) { s.cache = c }
}

// WithEvents enables publishing of reservation events after commit.
func WithEvents(p EventPublisher) Option {
	return func(s *BookingService) { s.events = p }
}

// WithLogger sets the logger used for committed changes and side-effect failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *BookingService) { s.logger = l }
}

// BookingService creates, edits and deletes reservations. Every check-then-write
// sequence runs inside repo.Store.WithinTx holding the lock of the vehicle
// being written to.
type BookingService struct {
	store    repo.Store
	vehicles repo.VehicleRepo
	hardCap  int
	cache    CalendarCache
	events   EventPublisher
	logger   *slog.Logger
	now      func() time.Time
}

// NewBookingService constructs a BookingService. Cache and events are optional.
func NewBookingService(store repo.Store, vehicles repo.VehicleRepo, opts ...Option) *BookingService {
	s := &BookingService{
		store:    store,
		vehicles: vehicles,
		hardCap:  recurrence.DefaultHardCap,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create books a single standalone reservation for the actor.
// Returns domain.ErrInvalidInterval for an empty interval, domain.ErrNotFound
// for an unknown vehicle, *domain.WholeDayBlockedError or *domain.ConflictError
// when the slot is taken.
func (s *BookingService) Create(ctx context.Context, actor domain.Actor, in domain.ReservationInput) (domain.Reservation, error) {
	iv, err := in.Normalize()
	if err != nil {
		return domain.Reservation{}, err
	}
	if _, err := s.vehicles.GetByID(ctx, in.VehicleID); err != nil {
		return domain.Reservation{}, fmt.Errorf("service.BookingService.Create: vehicle: %w", err)
	}

	candidate := newReservation(actor, in, iv)

	var created []domain.Reservation
	err = s.store.WithinTx(ctx, []uuid.UUID{in.VehicleID}, func(ctx context.Context, rr repo.ReservationRepo) error {
		existing, err := loadNeighbours(ctx, rr, in.VehicleID, []domain.Reservation{candidate})
		if err != nil {
			return err
		}
		if err := checkCandidate(existing, candidate, forCreate, nil); err != nil {
			return err
		}
		created, err = rr.InsertMany(ctx, []domain.Reservation{candidate})
		return err
	})
	if err != nil {
		return domain.Reservation{}, fmt.Errorf("service.BookingService.Create: %w", err)
	}

	s.afterCommit(ctx, domain.EventReservationCreated, actor, "", created)
	return created[0], nil
}

// CreateSeries expands rule from the input interval and books every
// occurrence, or none of them. The first occurrence is the anchor and carries
// the rule. A failing occurrence is reported through the Candidate of the
// returned *domain.ConflictError or the Date of *domain.WholeDayBlockedError.
func (s *BookingService) CreateSeries(ctx context.Context, actor domain.Actor, in domain.ReservationInput, rule domain.RecurrenceRule) ([]domain.Reservation, error) {
	iv, err := in.Normalize()
	if err != nil {
		return nil, err
	}
	occurrences, err := recurrence.Expand(iv.Start, iv.End, rule, s.hardCap)
	if err != nil {
		return nil, err
	}
	if len(occurrences) == 0 {
		return nil, fmt.Errorf("%w: rule produces no occurrences", domain.ErrInvalidRecurrenceRule)
	}
	for i := 1; i < len(occurrences); i++ {
		if domain.Overlaps(occurrences[i-1].Interval(), occurrences[i].Interval()) {
			return nil, fmt.Errorf("%w: occurrences on %s and %s overlap each other",
				domain.ErrInvalidRecurrenceRule,
				occurrences[i-1].Start.Format(time.DateOnly), occurrences[i].Start.Format(time.DateOnly))
		}
	}
	if _, err := s.vehicles.GetByID(ctx, in.VehicleID); err != nil {
		return nil, fmt.Errorf("service.BookingService.CreateSeries: vehicle: %w", err)
	}

	seriesID := uuid.New()
	candidates := make([]domain.Reservation, len(occurrences))
	for i, occ := range occurrences {
		c := newReservation(actor, in, occ.Interval())
		c.SeriesID = &seriesID
		candidates[i] = c
	}
	anchorRule := rule
	candidates[0].RecurrenceRule = &anchorRule

	var created []domain.Reservation
	err = s.store.WithinTx(ctx, []uuid.UUID{in.VehicleID}, func(ctx context.Context, rr repo.ReservationRepo) error {
		existing, err := loadNeighbours(ctx, rr, in.VehicleID, candidates)
		if err != nil {
			return err
		}
		if err := checkBatch(existing, candidates, forCreate, nil); err != nil {
			return err
		}
		created, err = rr.InsertMany(ctx, candidates)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("service.BookingService.CreateSeries: %w", err)
	}

	s.afterCommit(ctx, domain.EventReservationCreated, actor, "", created)
	return created, nil
}

// editAttempts bounds how often Edit retries when the target changes vehicle
// between the unlocked read and the lock.
const editAttempts = 3

// errMoved reports that the target is no longer on the vehicle that was locked.
var errMoved = errors.New("reservation moved to another vehicle")

// Edit replaces the interval, vehicle, whole-day flag and destination of the
// reservation id, reaching as far into its series as scope says. A zero
// in.VehicleID keeps the current vehicle. Scope is ignored for standalone
// reservations.
//
// With ScopeThisAndFuture every member starting at or after the target keeps
// its own calendar date and takes the new time of day and duration. Members
// previously edited on their own are rewritten the same way and keep their
// exception flag. The whole batch is checked and written, or nothing is.
// Afterwards the earliest member of the series carries the rule.
func (s *BookingService) Edit(ctx context.Context, actor domain.Actor, id uuid.UUID, scope domain.Scope, in domain.ReservationInput) ([]domain.Reservation, error) {
	iv, err := in.Normalize()
	if err != nil {
		return nil, err
	}

	current, err := s.store.Reservations().GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service.BookingService.Edit: %w", err)
	}
	if !actor.CanModify(current) {
		return nil, fmt.Errorf("service.BookingService.Edit: %w", domain.ErrForbidden)
	}
	if in.VehicleID != uuid.Nil && in.VehicleID != current.VehicleID {
		if _, err := s.vehicles.GetByID(ctx, in.VehicleID); err != nil {
			return nil, fmt.Errorf("service.BookingService.Edit: vehicle: %w", err)
		}
	}

	var before, updated []domain.Reservation
	for attempt := 1; ; attempt++ {
		// Both the source and the destination are locked so that a concurrent
		// move of the same row is serialized with this one.
		locks := []uuid.UUID{current.VehicleID}
		if in.VehicleID != uuid.Nil {
			locks = append(locks, in.VehicleID)
		}
		err = s.store.WithinTx(ctx, locks, func(ctx context.Context, rr repo.ReservationRepo) error {
			var err error
			before, updated, err = editLocked(ctx, rr, actor, id, scope, in, iv, current.VehicleID)
			return err
		})
		if !errors.Is(err, errMoved) || attempt == editAttempts {
			break
		}
		if current, err = s.store.Reservations().GetByID(ctx, id); err != nil {
			break
		}
	}
	if errors.Is(err, errMoved) {
		err = fmt.Errorf("%w: reservation is being moved by another request", domain.ErrConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("service.BookingService.Edit: %w", err)
	}

	s.afterCommit(ctx, domain.EventReservationUpdated, actor, scope, updated, vehicleIDs(before)...)
	return updated, nil
}

// editLocked is the body of Edit. It runs with source (and the destination)
// locked and returns the rows as they were and as they were written.
func editLocked(ctx context.Context, rr repo.ReservationRepo, actor domain.Actor, id uuid.UUID, scope domain.Scope, in domain.ReservationInput, iv domain.Interval, source uuid.UUID) (before, updated []domain.Reservation, err error) {
	// Re-read under the lock: the row may have moved or vanished since.
	target, err := rr.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if !actor.CanModify(target) {
		return nil, nil, domain.ErrForbidden
	}
	if target.VehicleID != source {
		return nil, nil, errMoved
	}
	if in.VehicleID == uuid.Nil {
		in.VehicleID = target.VehicleID
	}

	future := target.InSeries() && scope == domain.ScopeThisAndFuture
	before = []domain.Reservation{target}
	if future {
		if before, err = rr.FindBySeriesFrom(ctx, *target.SeriesID, target.StartTime); err != nil {
			return nil, nil, err
		}
	}

	batch := make([]domain.Reservation, len(before))
	for i, r := range before {
		next := iv
		if future {
			next = domain.Retime(r.StartTime, iv)
		}
		batch[i] = applyInput(r, in, next)
	}
	if target.InSeries() && scope == domain.ScopeThisOccurrence {
		batch[0].IsException = true
	}

	var moves map[uuid.UUID]*domain.RecurrenceRule
	if target.InSeries() {
		members, err := rr.FindBySeriesFrom(ctx, *target.SeriesID, time.Time{})
		if err != nil {
			return nil, nil, err
		}
		moves = reanchor(members, batch)
		for i := range batch {
			if rule, ok := moves[batch[i].ID]; ok {
				batch[i].RecurrenceRule = rule
				delete(moves, batch[i].ID)
			}
		}
	}

	existing, err := loadNeighbours(ctx, rr, in.VehicleID, batch)
	if err != nil {
		return nil, nil, err
	}
	if err := checkBatch(existing, batch, forEdit, reservationIDs(batch)); err != nil {
		return nil, nil, err
	}
	if updated, err = rr.UpdateMany(ctx, batch); err != nil {
		return nil, nil, err
	}
	// Members outside the batch may sit on unlocked vehicles, so only their
	// rule column is written.
	for memberID, rule := range moves {
		if err := rr.SetRecurrenceRule(ctx, memberID, rule); err != nil {
			return nil, nil, err
		}
	}
	return before, updated, nil
}

// reanchor returns the rule changes that keep the rule on the earliest member
// of a series once batch replaces its rows in members. A nil rule clears it.
// The result is empty when the rule holder stays the earliest member.
func reanchor(members, batch []domain.Reservation) map[uuid.UUID]*domain.RecurrenceRule {
	next := make(map[uuid.UUID]domain.Reservation, len(members))
	for _, m := range members {
		next[m.ID] = m
	}
	for _, b := range batch {
		next[b.ID] = b
	}

	var earliest, holder domain.Reservation
	var found, held bool
	for _, r := range next {
		if !found || r.StartTime.Before(earliest.StartTime) ||
			(r.StartTime.Equal(earliest.StartTime) && r.ID.String() < earliest.ID.String()) {
			earliest, found = r, true
		}
		if r.RecurrenceRule != nil {
			holder, held = r, true
		}
	}
	if !held || holder.ID == earliest.ID {
		return nil
	}
	return map[uuid.UUID]*domain.RecurrenceRule{
		holder.ID:   nil,
		earliest.ID: holder.RecurrenceRule,
	}
}

// Delete removes the reservation id, or with ScopeThisAndFuture the target
// and every later member of its series. Scope is ignored for standalone
// reservations. When the series anchor is removed and members remain, the
// earliest remaining member becomes the anchor and inherits the rule.
func (s *BookingService) Delete(ctx context.Context, actor domain.Actor, id uuid.UUID, scope domain.Scope) error {
	var removed []domain.Reservation

	// Removing bookings cannot create a conflict, so no vehicle lock is taken.
	err := s.store.WithinTx(ctx, nil, func(ctx context.Context, rr repo.ReservationRepo) error {
		target, err := rr.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if !actor.CanModify(target) {
			return domain.ErrForbidden
		}

		removed = []domain.Reservation{target}
		if target.InSeries() && scope == domain.ScopeThisAndFuture {
			if removed, err = rr.FindBySeriesFrom(ctx, *target.SeriesID, target.StartTime); err != nil {
				return err
			}
		}
		if err := rr.DeleteMany(ctx, reservationIDs(removed)); err != nil {
			return err
		}

		if target.RecurrenceRule == nil || !target.InSeries() {
			return nil
		}
		remaining, err := rr.FindBySeriesFrom(ctx, *target.SeriesID, time.Time{})
		if err != nil || len(remaining) == 0 {
			return err
		}
		// Only the rule column is written: the heir's vehicle is not locked and
		// its other columns may be changing under a concurrent edit.
		return rr.SetRecurrenceRule(ctx, remaining[0].ID, target.RecurrenceRule)
	})
	if err != nil {
		return fmt.Errorf("service.BookingService.Delete: %w", err)
	}

	s.afterCommit(ctx, domain.EventReservationDeleted, actor, scope, removed)
	return nil
}

// CheckWholeDayBlock reports whether a whole-day reservation covers day on
// vehicleID, returning *domain.WholeDayBlockedError if so.
func (s *BookingService) CheckWholeDayBlock(ctx context.Context, vehicleID uuid.UUID, day time.Time) error {
	day = domain.DayStart(day)
	existing, err := s.store.Reservations().FindOverlapping(ctx, vehicleID, day, day.AddDate(0, 0, 1))
	if err != nil {
		return fmt.Errorf("service.BookingService.CheckWholeDayBlock: %w", err)
	}
	if blocker, ok := wholeDayBlocker(existing, day, nil); ok {
		return &domain.WholeDayBlockedError{By: blocker, Date: day}
	}
	return nil
}

// GetByID returns a single reservation.
func (s *BookingService) GetByID(ctx context.Context, id uuid.UUID) (domain.Reservation, error) {
	r, err := s.store.Reservations().GetByID(ctx, id)
	if err != nil {
		return domain.Reservation{}, fmt.Errorf("service.BookingService.GetByID: %w", err)
	}
	return r, nil
}

// ListWindow returns reservations overlapping [from, to), optionally for one
// vehicle. Results are served from the cache when one is configured.
func (s *BookingService) ListWindow(ctx context.Context, vehicleID *uuid.UUID, from, to time.Time) ([]domain.Reservation, error) {
	if !to.After(from) {
		return nil, fmt.Errorf("%w: window end must be after its start", domain.ErrValidation)
	}

	// The generation is read before the database so that a listing racing an
	// invalidation is stored under a generation nobody reads any more.
	cached := s.cache != nil
	var gen int64
	if cached {
		var err error
		if gen, err = s.cache.Generation(ctx, vehicleID); err != nil {
			s.logger.WarnContext(ctx, "calendar cache generation failed", "error", err)
			cached = false
		}
	}
	if cached {
		rs, ok, err := s.cache.GetWindow(ctx, vehicleID, gen, from, to)
		if err != nil {
			s.logger.WarnContext(ctx, "calendar cache read failed", "error", err)
		}
		if ok {
			return rs, nil
		}
	}

	rs, err := s.store.Reservations().ListWindow(ctx, vehicleID, from, to)
	if err != nil {
		return nil, fmt.Errorf("service.BookingService.ListWindow: %w", err)
	}

	if cached {
		if err := s.cache.SetWindow(ctx, vehicleID, gen, from, to, rs); err != nil {
			s.logger.WarnContext(ctx, "calendar cache write failed", "error", err)
		}
	}
	return rs, nil
}

// ListByOwner returns one page of the member's reservations.
func (s *BookingService) ListByOwner(ctx context.Context, ownerID uuid.UUID, p domain.PaginationParams) (domain.Page[domain.Reservation], error) {
	rs, total, err := s.store.Reservations().ListByOwnerPaged(ctx, ownerID, p)
	if err != nil {
		return domain.Page[domain.Reservation]{}, fmt.Errorf("service.BookingService.ListByOwner: %w", err)
	}
	if rs == nil {
		rs = []domain.Reservation{}
	}
	return domain.Page[domain.Reservation]{Items: rs, Page: p.Page, Limit: p.Limit, Total: int(total)}, nil
}

// afterCommit runs the side effects of a committed change. They never fail
// the request: the change is already durable.
func (s *BookingService) afterCommit(ctx context.Context, typ domain.EventType, actor domain.Actor, scope domain.Scope, rs []domain.Reservation, extraVehicles ...uuid.UUID) {
	vehicles := uniqueIDs(append(vehicleIDs(rs), extraVehicles...))

	var seriesID *uuid.UUID
	if len(rs) > 0 {
		seriesID = rs[0].SeriesID
	}

	s.logger.InfoContext(ctx, "reservations committed",
		"event", typ,
		"count", len(rs),
		"actor_id", actor.MemberID,
		"scope", scope,
	)

	if s.cache != nil {
		if err := s.cache.InvalidateVehicles(ctx, vehicles); err != nil {
			s.logger.WarnContext(ctx, "calendar cache invalidation failed", "error", err)
		}
	}
	if s.events != nil {
		ev := domain.ReservationEvent{
			Type:           typ,
			ReservationIDs: reservationIDs(rs),
			SeriesID:       seriesID,
			VehicleIDs:     vehicles,
			ActorID:        actor.MemberID,
			Scope:          scope,
			OccurredAt:     s.now().UTC(),
		}
		if err := s.events.Publish(ctx, ev); err != nil {
			s.logger.WarnContext(ctx, "publish reservation event failed", "event", typ, "error", err)
		}
	}
}

func newReservation(actor domain.Actor, in domain.ReservationInput, iv domain.Interval) domain.Reservation {
	return domain.Reservation{
		VehicleID:   in.VehicleID,
		OwnerID:     actor.MemberID,
		StartTime:   iv.Start,
		EndTime:     iv.End,
		IsWholeDay:  in.IsWholeDay,
		Destination: in.Destination,
	}
}

// applyInput returns r with the editable fields replaced. Identity, owner,
// series membership and the rule are kept.
func applyInput(r domain.Reservation, in domain.ReservationInput, iv domain.Interval) domain.Reservation {
	r.VehicleID = in.VehicleID
	r.StartTime = iv.Start
	r.EndTime = iv.End
	r.IsWholeDay = in.IsWholeDay
	r.Destination = in.Destination
	return r
}

func vehicleIDs(rs []domain.Reservation) []uuid.UUID {
	ids := make([]uuid.UUID, len(rs))
	for i, r := range rs {
		ids[i] = r.VehicleID
	}
	return ids
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
