package service_test

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pkordes/carshare/backend/internal/domain"
	"github.com/pkordes/carshare/backend/internal/repo"
	"github.com/pkordes/carshare/backend/internal/service"
)

// memStore is an in-memory repo.Store. WithinTx works on a copy of the rows
// and swaps it in only when fn succeeds, so all-or-nothing behaviour is
// observable from tests exactly as with Postgres.
type memStore struct {
	mu     sync.Mutex
	rows   map[uuid.UUID]domain.Reservation
	names  map[uuid.UUID]string
	locked [][]uuid.UUID
	txs    int

	// failInsert, when set, is returned by every InsertMany call.
	failInsert error
	// beforeTx, when set, runs once against the committed rows before the
	// next transaction starts, standing in for a competing writer.
	beforeTx func(rows map[uuid.UUID]domain.Reservation)
	// updates counts UpdateMany calls.
	updates int
}

func newMemStore() *memStore {
	return &memStore{
		rows:  map[uuid.UUID]domain.Reservation{},
		names: map[uuid.UUID]string{},
	}
}

func (s *memStore) Reservations() repo.ReservationRepo {
	return &memRepo{store: s, rows: s.rows}
}

func (s *memStore) WithinTx(ctx context.Context, vehicleIDs []uuid.UUID, fn repo.TxFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.beforeTx != nil {
		s.beforeTx(s.rows)
		s.beforeTx = nil
	}
	s.txs++
	s.locked = append(s.locked, vehicleIDs)

	work := maps.Clone(s.rows)
	if err := fn(ctx, &memRepo{store: s, rows: work}); err != nil {
		return err
	}
	s.rows = work
	return nil
}

// seed stores rows directly, assigning ids where missing.
func (s *memStore) seed(rs ...domain.Reservation) []domain.Reservation {
	out := make([]domain.Reservation, len(rs))
	for i, r := range rs {
		if r.ID == uuid.Nil {
			r.ID = uuid.New()
		}
		r.OwnerName = s.names[r.OwnerID]
		s.rows[r.ID] = r
		out[i] = r
	}
	return out
}

// all returns every stored row ordered by start time.
func (s *memStore) all() []domain.Reservation {
	return sortByStart(slices.Collect(maps.Values(s.rows)))
}

var _ repo.Store = (*memStore)(nil)

type memRepo struct {
	store *memStore
	rows  map[uuid.UUID]domain.Reservation
}

var _ repo.ReservationRepo = (*memRepo)(nil)

func (r *memRepo) GetByID(_ context.Context, id uuid.UUID) (domain.Reservation, error) {
	res, ok := r.rows[id]
	if !ok {
		return domain.Reservation{}, domain.ErrNotFound
	}
	return res, nil
}

func (r *memRepo) FindOverlapping(_ context.Context, vehicleID uuid.UUID, start, end time.Time) ([]domain.Reservation, error) {
	return r.filter(func(res domain.Reservation) bool {
		return res.VehicleID == vehicleID && domain.Overlaps(res.Interval(), domain.Interval{Start: start, End: end})
	}), nil
}

func (r *memRepo) FindBySeriesFrom(_ context.Context, seriesID uuid.UUID, from time.Time) ([]domain.Reservation, error) {
	return r.filter(func(res domain.Reservation) bool {
		return res.SeriesID != nil && *res.SeriesID == seriesID && !res.StartTime.Before(from)
	}), nil
}

func (r *memRepo) InsertMany(_ context.Context, rs []domain.Reservation) ([]domain.Reservation, error) {
	if r.store.failInsert != nil {
		return nil, r.store.failInsert
	}
	out := make([]domain.Reservation, len(rs))
	for i, res := range rs {
		res.ID = uuid.New()
		res.OwnerName = r.store.names[res.OwnerID]
		res.CreatedAt = time.Now()
		res.UpdatedAt = res.CreatedAt
		r.rows[res.ID] = res
		out[i] = res
	}
	return out, nil
}

func (r *memRepo) UpdateMany(_ context.Context, rs []domain.Reservation) ([]domain.Reservation, error) {
	r.store.updates++
	out := make([]domain.Reservation, len(rs))
	for i, res := range rs {
		if _, ok := r.rows[res.ID]; !ok {
			return nil, domain.ErrNotFound
		}
		res.UpdatedAt = time.Now()
		r.rows[res.ID] = res
		out[i] = res
	}
	return out, nil
}

func (r *memRepo) SetRecurrenceRule(_ context.Context, id uuid.UUID, rule *domain.RecurrenceRule) error {
	res, ok := r.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	res.RecurrenceRule = rule
	r.rows[id] = res
	return nil
}

func (r *memRepo) DeleteMany(_ context.Context, ids []uuid.UUID) error {
	for _, id := range ids {
		if _, ok := r.rows[id]; !ok {
			return domain.ErrNotFound
		}
		delete(r.rows, id)
	}
	return nil
}

func (r *memRepo) ListWindow(_ context.Context, vehicleID *uuid.UUID, from, to time.Time) ([]domain.Reservation, error) {
	return r.filter(func(res domain.Reservation) bool {
		return (vehicleID == nil || res.VehicleID == *vehicleID) &&
			domain.Overlaps(res.Interval(), domain.Interval{Start: from, End: to})
	}), nil
}

func (r *memRepo) ListByOwnerPaged(_ context.Context, ownerID uuid.UUID, p domain.PaginationParams) ([]domain.Reservation, int64, error) {
	mine := r.filter(func(res domain.Reservation) bool { return res.OwnerID == ownerID })
	slices.Reverse(mine)
	total := int64(len(mine))
	lo := min(p.Offset(), len(mine))
	hi := min(lo+p.Limit, len(mine))
	return mine[lo:hi], total, nil
}

func (r *memRepo) filter(keep func(domain.Reservation) bool) []domain.Reservation {
	var out []domain.Reservation
	for _, res := range r.rows {
		if keep(res) {
			out = append(out, res)
		}
	}
	return sortByStart(out)
}

func sortByStart(rs []domain.Reservation) []domain.Reservation {
	slices.SortFunc(rs, func(a, b domain.Reservation) int {
		if c := a.StartTime.Compare(b.StartTime); c != 0 {
			return c
		}
		return cmp.Compare(a.ID.String(), b.ID.String())
	})
	return rs
}

// mockVehicleRepo is a hand-written test double for repo.VehicleRepo.
type mockVehicleRepo struct {
	getByID func(ctx context.Context, id uuid.UUID) (domain.Vehicle, error)
	list    func(ctx context.Context) ([]domain.Vehicle, error)
}

func (m *mockVehicleRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.Vehicle, error) {
	return m.getByID(ctx, id)
}
func (m *mockVehicleRepo) List(ctx context.Context) ([]domain.Vehicle, error) {
	return m.list(ctx)
}

var _ repo.VehicleRepo = (*mockVehicleRepo)(nil)

// knownVehicles returns a VehicleRepo that recognises exactly ids.
func knownVehicles(ids ...uuid.UUID) *mockVehicleRepo {
	return &mockVehicleRepo{
		getByID: func(_ context.Context, id uuid.UUID) (domain.Vehicle, error) {
			if slices.Contains(ids, id) {
				return domain.Vehicle{ID: id, Name: "Vehicle " + id.String()[:4]}, nil
			}
			return domain.Vehicle{}, domain.ErrNotFound
		},
		list: func(_ context.Context) ([]domain.Vehicle, error) {
			out := make([]domain.Vehicle, len(ids))
			for i, id := range ids {
				out[i] = domain.Vehicle{ID: id}
			}
			return out, nil
		},
	}
}

// mockCache records invalidations and serves whatever windows were stored
// under the current generation.
type mockCache struct {
	windows     map[string][]domain.Reservation
	gens        map[string]int64
	invalidated []uuid.UUID
	getErr      error
	genErr      error

	// beforeSet, when set, runs before every SetWindow.
	beforeSet func()
}

func scopeKey(vehicleID *uuid.UUID) string {
	if vehicleID == nil {
		return "all"
	}
	return vehicleID.String()
}

func windowKey(vehicleID *uuid.UUID, gen int64, from, to time.Time) string {
	return fmt.Sprintf("%s|%d|%s|%s", scopeKey(vehicleID), gen, from, to)
}

func (c *mockCache) Generation(_ context.Context, vehicleID *uuid.UUID) (int64, error) {
	if c.genErr != nil {
		return 0, c.genErr
	}
	return c.gens[scopeKey(vehicleID)], nil
}

func (c *mockCache) GetWindow(_ context.Context, vehicleID *uuid.UUID, gen int64, from, to time.Time) ([]domain.Reservation, bool, error) {
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	rs, ok := c.windows[windowKey(vehicleID, gen, from, to)]
	return rs, ok, nil
}

func (c *mockCache) SetWindow(_ context.Context, vehicleID *uuid.UUID, gen int64, from, to time.Time, rs []domain.Reservation) error {
	if c.beforeSet != nil {
		c.beforeSet()
	}
	if c.windows == nil {
		c.windows = map[string][]domain.Reservation{}
	}
	c.windows[windowKey(vehicleID, gen, from, to)] = rs
	return nil
}

func (c *mockCache) InvalidateVehicles(_ context.Context, ids []uuid.UUID) error {
	c.invalidated = append(c.invalidated, ids...)
	if c.gens == nil {
		c.gens = map[string]int64{}
	}
	c.gens["all"]++
	for _, id := range ids {
		c.gens[id.String()]++
	}
	return nil
}

var _ service.CalendarCache = (*mockCache)(nil)

// mockPublisher records published events and optionally fails.
type mockPublisher struct {
	events []domain.ReservationEvent
	err    error
}

func (p *mockPublisher) Publish(_ context.Context, ev domain.ReservationEvent) error {
	p.events = append(p.events, ev)
	return p.err
}

var _ service.EventPublisher = (*mockPublisher)(nil)
