package repo_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/carshare/backend/internal/domain"
	"github.com/pkordes/carshare/backend/internal/repo"
	"github.com/pkordes/carshare/backend/testutil"
)

func TestStatsRepo_Usage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	stats := repo.NewStatsRepo(f.tx)
	idle := testutil.SeedVehicle(t, f.tx, "Idle car")

	// Other tests may have committed rows, so only the deltas are asserted.
	before, err := stats.Usage(ctx)
	require.NoError(t, err)

	_, err = f.repo.InsertMany(ctx, []domain.Reservation{
		f.reservation(ts(3, 9), ts(3, 10)),   // Monday
		f.reservation(ts(10, 9), ts(10, 10)), // Monday
		f.reservation(ts(5, 9), ts(5, 10)),   // Wednesday
	})
	require.NoError(t, err)

	after, err := stats.Usage(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, after.TotalReservations-before.TotalReservations)
	assert.Equal(t, before.TotalVehicles, after.TotalVehicles)
	assert.GreaterOrEqual(t, after.TotalMembers, 1)
	assert.Equal(t, 2, after.PerWeekday[1]-before.PerWeekday[1])
	assert.Equal(t, 1, after.PerWeekday[3]-before.PerWeekday[3])

	counts := map[string]int{}
	for _, u := range after.PerVehicle {
		counts[u.VehicleID.String()] = u.Count
	}
	assert.Equal(t, 3, counts[f.vehicle.String()])
	assert.Contains(t, counts, idle.String(), "vehicles without bookings are listed")
	assert.Equal(t, 0, counts[idle.String()])
}
