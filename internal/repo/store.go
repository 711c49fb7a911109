package repo

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// TxFunc runs inside a transaction with a ReservationRepo bound to it.
type TxFunc func(ctx context.Context, reservations ReservationRepo) error

// Store hands out reservation repos, either directly on the pool or bound to
// a per-vehicle serialized transaction.
type Store interface {
	// Reservations returns a repo for reads outside any transaction.
	Reservations() ReservationRepo

	// WithinTx runs fn in one transaction after taking an exclusive lock on
	// every vehicle in vehicleIDs. Two calls that share a vehicle never run
	// their reads and writes interleaved. fn's error rolls everything back.
	WithinTx(ctx context.Context, vehicleIDs []uuid.UUID, fn TxFunc) error
}

// beginner is satisfied by *pgxpool.Pool.
type beginner interface {
	db
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

type pgStore struct {
	pool beginner
}

// NewStore constructs a Store on the pool.
func NewStore(pool beginner) Store {
	return &pgStore{pool: pool}
}

func (s *pgStore) Reservations() ReservationRepo {
	return NewReservationRepo(s.pool)
}

// WithinTx uses READ COMMITTED on purpose: each statement takes a fresh
// snapshot, so reads issued after the advisory lock see every booking
// committed by the previous lock holder.
func (s *pgStore) WithinTx(ctx context.Context, vehicleIDs []uuid.UUID, fn TxFunc) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("repo.Store.WithinTx: begin: %w", err)
	}
	defer func() {
		// No-op after a successful commit.
		_ = tx.Rollback(context.WithoutCancel(ctx))
	}()

	if err := lockVehicles(ctx, tx, vehicleIDs); err != nil {
		return fmt.Errorf("repo.Store.WithinTx: %w", err)
	}

	if err := fn(ctx, NewReservationRepo(tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("repo.Store.WithinTx: commit: %w", mapPgError(err))
	}
	return nil
}

// lockVehicles takes a transaction-scoped advisory lock per vehicle, in a
// fixed order so that two multi-vehicle transactions cannot deadlock.
func lockVehicles(ctx context.Context, tx pgx.Tx, vehicleIDs []uuid.UUID) error {
	keys := make([]string, 0, len(vehicleIDs))
	for _, id := range vehicleIDs {
		keys = append(keys, "vehicle:"+id.String())
	}
	slices.Sort(keys)
	keys = slices.Compact(keys)

	const q = `SELECT pg_advisory_xact_lock(hashtextextended(@key, 0))`
	for _, key := range keys {
		if _, err := tx.Exec(ctx, q, pgx.NamedArgs{"key": key}); err != nil {
			return fmt.Errorf("lock %s: %w", key, err)
		}
	}
	return nil
}
