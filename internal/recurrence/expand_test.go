package recurrence_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/carshare/backend/internal/domain"
	"github.com/pkordes/carshare/backend/internal/recurrence"
)

func date(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.UTC)
}

func starts(occ []domain.Occurrence) []time.Time {
	out := make([]time.Time, len(occ))
	for i, o := range occ {
		out[i] = o.Start
	}
	return out
}

// ---- Weekly ------------------------------------------------------------------

func TestExpand_Weekly_MonWedAfterFour(t *testing.T) {
	// 2025-03-03 is a Monday.
	rule := domain.RecurrenceRule{
		Frequency:  domain.FrequencyWeekly,
		Interval:   1,
		DaysOfWeek: []int{1, 3},
		EndType:    domain.EndAfterCount,
		Count:      4,
	}

	occ, err := recurrence.Expand(date(2025, 3, 3, 9, 0), date(2025, 3, 3, 10, 0), rule, 0)

	require.NoError(t, err)
	require.Len(t, occ, 4)
	assert.Equal(t, []time.Time{
		date(2025, 3, 3, 9, 0),
		date(2025, 3, 5, 9, 0),
		date(2025, 3, 10, 9, 0),
		date(2025, 3, 12, 9, 0),
	}, starts(occ))
	for _, o := range occ {
		assert.Equal(t, time.Hour, o.End.Sub(o.Start))
		assert.Equal(t, 10, o.End.Hour())
	}
}

func TestExpand_Weekly_SkipsDaysBeforeAnchor(t *testing.T) {
	// Anchored on Tuesday: Monday of the same week is in the past.
	rule := domain.RecurrenceRule{
		Frequency:  domain.FrequencyWeekly,
		Interval:   1,
		DaysOfWeek: []int{1, 3},
		EndType:    domain.EndAfterCount,
		Count:      3,
	}

	occ, err := recurrence.Expand(date(2025, 3, 4, 9, 0), date(2025, 3, 4, 10, 0), rule, 0)

	require.NoError(t, err)
	assert.Equal(t, []time.Time{
		date(2025, 3, 5, 9, 0),
		date(2025, 3, 10, 9, 0),
		date(2025, 3, 12, 9, 0),
	}, starts(occ))
}

func TestExpand_Weekly_IntervalTwo(t *testing.T) {
	rule := domain.RecurrenceRule{
		Frequency:  domain.FrequencyWeekly,
		Interval:   2,
		DaysOfWeek: []int{1},
		EndType:    domain.EndAfterCount,
		Count:      3,
	}

	occ, err := recurrence.Expand(date(2025, 3, 3, 9, 0), date(2025, 3, 3, 10, 0), rule, 0)

	require.NoError(t, err)
	assert.Equal(t, []time.Time{
		date(2025, 3, 3, 9, 0),
		date(2025, 3, 17, 9, 0),
		date(2025, 3, 31, 9, 0),
	}, starts(occ))
}

func TestExpand_OnDate_IsInclusive(t *testing.T) {
	end := date(2025, 3, 17, 0, 0)
	rule := domain.RecurrenceRule{
		Frequency:  domain.FrequencyWeekly,
		Interval:   1,
		DaysOfWeek: []int{1},
		EndType:    domain.EndOnDate,
		EndDate:    &end,
	}

	occ, err := recurrence.Expand(date(2025, 3, 3, 18, 0), date(2025, 3, 3, 20, 0), rule, 0)

	require.NoError(t, err)
	assert.Equal(t, []time.Time{
		date(2025, 3, 3, 18, 0),
		date(2025, 3, 10, 18, 0),
		date(2025, 3, 17, 18, 0),
	}, starts(occ))
}

func TestExpand_Never_StopsAtOneYear(t *testing.T) {
	anchor := date(2025, 3, 3, 9, 0)
	rule := domain.RecurrenceRule{
		Frequency:  domain.FrequencyWeekly,
		Interval:   1,
		DaysOfWeek: []int{1},
		EndType:    domain.EndNever,
	}

	occ, err := recurrence.Expand(anchor, anchor.Add(time.Hour), rule, 100)

	require.NoError(t, err)
	assert.Len(t, occ, 53)
	assert.False(t, occ[len(occ)-1].Start.After(anchor.AddDate(1, 0, 0)))
}

func TestExpand_HardCapWins(t *testing.T) {
	rule := domain.RecurrenceRule{
		Frequency:  domain.FrequencyWeekly,
		Interval:   1,
		DaysOfWeek: []int{1},
		EndType:    domain.EndNever,
	}

	occ, err := recurrence.Expand(date(2025, 3, 3, 9, 0), date(2025, 3, 3, 10, 0), rule, 0)
	require.NoError(t, err)
	assert.Len(t, occ, recurrence.DefaultHardCap)

	rule.EndType = domain.EndAfterCount
	rule.Count = 500
	occ, err = recurrence.Expand(date(2025, 3, 3, 9, 0), date(2025, 3, 3, 10, 0), rule, 10)
	require.NoError(t, err)
	assert.Len(t, occ, 10)
}

func TestExpand_EmptyResultIsNotAnError(t *testing.T) {
	end := date(2025, 3, 1, 0, 0)
	rule := domain.RecurrenceRule{
		Frequency:  domain.FrequencyWeekly,
		Interval:   1,
		DaysOfWeek: []int{1},
		EndType:    domain.EndOnDate,
		EndDate:    &end,
	}

	occ, err := recurrence.Expand(date(2025, 3, 3, 9, 0), date(2025, 3, 3, 10, 0), rule, 0)

	require.NoError(t, err)
	assert.Empty(t, occ)
}

// ---- Monthly -----------------------------------------------------------------

func TestExpand_Monthly_ClampsToLastDay(t *testing.T) {
	rule := domain.RecurrenceRule{
		Frequency:  domain.FrequencyMonthly,
		Interval:   1,
		DayOfMonth: 31,
		EndType:    domain.EndAfterCount,
		Count:      4,
	}

	occ, err := recurrence.Expand(date(2025, 1, 31, 8, 0), date(2025, 1, 31, 12, 0), rule, 0)

	require.NoError(t, err)
	assert.Equal(t, []time.Time{
		date(2025, 1, 31, 8, 0),
		date(2025, 2, 28, 8, 0),
		date(2025, 3, 31, 8, 0),
		date(2025, 4, 30, 8, 0),
	}, starts(occ))
}

func TestExpand_Monthly_ClampsToLeapDay(t *testing.T) {
	rule := domain.RecurrenceRule{
		Frequency:  domain.FrequencyMonthly,
		Interval:   1,
		DayOfMonth: 31,
		EndType:    domain.EndAfterCount,
		Count:      2,
	}

	occ, err := recurrence.Expand(date(2024, 1, 31, 8, 0), date(2024, 1, 31, 12, 0), rule, 0)

	require.NoError(t, err)
	assert.Equal(t, date(2024, 2, 29, 8, 0), occ[1].Start)
}

func TestExpand_Monthly_DayNotYetPassedStartsThisMonth(t *testing.T) {
	rule := domain.RecurrenceRule{
		Frequency:  domain.FrequencyMonthly,
		Interval:   1,
		DayOfMonth: 15,
		EndType:    domain.EndAfterCount,
		Count:      2,
	}

	occ, err := recurrence.Expand(date(2025, 3, 3, 10, 0), date(2025, 3, 3, 11, 0), rule, 0)

	require.NoError(t, err)
	assert.Equal(t, []time.Time{date(2025, 3, 15, 10, 0), date(2025, 4, 15, 10, 0)}, starts(occ))
}

func TestExpand_Monthly_DayPassedFollowsIntervalCadence(t *testing.T) {
	rule := domain.RecurrenceRule{
		Frequency:  domain.FrequencyMonthly,
		Interval:   2,
		DayOfMonth: 15,
		EndType:    domain.EndAfterCount,
		Count:      2,
	}

	occ, err := recurrence.Expand(date(2025, 3, 20, 10, 0), date(2025, 3, 20, 11, 0), rule, 0)

	require.NoError(t, err)
	assert.Equal(t, []time.Time{date(2025, 5, 15, 10, 0), date(2025, 7, 15, 10, 0)}, starts(occ))
}

// ---- Properties --------------------------------------------------------------

func TestExpand_IsDeterministicAndOrdered(t *testing.T) {
	rule := domain.RecurrenceRule{
		Frequency:  domain.FrequencyWeekly,
		Interval:   1,
		DaysOfWeek: []int{5, 1, 3},
		EndType:    domain.EndNever,
	}
	start, end := date(2025, 3, 3, 9, 0), date(2025, 3, 4, 11, 30)

	a, err := recurrence.Expand(start, end, rule, 0)
	require.NoError(t, err)
	b, err := recurrence.Expand(start, end, rule, 0)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	for i := 1; i < len(a); i++ {
		assert.True(t, a[i].Start.After(a[i-1].Start), "occurrence %d out of order", i)
	}
	for _, o := range a {
		assert.Equal(t, end.Sub(start), o.End.Sub(o.Start))
	}
}

func TestExpand_SubSecondStartKeepsAnchorEnd(t *testing.T) {
	rule := domain.RecurrenceRule{
		Frequency:  domain.FrequencyWeekly,
		Interval:   1,
		DaysOfWeek: []int{1},
		EndType:    domain.EndAfterCount,
		Count:      2,
	}
	start := date(2025, 3, 3, 9, 0).Add(500 * time.Millisecond)

	occ, err := recurrence.Expand(start, date(2025, 3, 3, 10, 0), rule, 0)

	require.NoError(t, err)
	require.Len(t, occ, 2)
	assert.Equal(t, date(2025, 3, 3, 9, 0), occ[0].Start)
	assert.Equal(t, date(2025, 3, 3, 10, 0), occ[0].End)
	assert.Equal(t, date(2025, 3, 10, 10, 0), occ[1].End)
}

func TestExpand_InvalidInput(t *testing.T) {
	rule := domain.RecurrenceRule{Frequency: domain.FrequencyWeekly, Interval: 1, EndType: domain.EndNever}

	_, err := recurrence.Expand(date(2025, 3, 3, 9, 0), date(2025, 3, 3, 10, 0), rule, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidRecurrenceRule)

	rule.DaysOfWeek = []int{1}
	_, err = recurrence.Expand(date(2025, 3, 3, 10, 0), date(2025, 3, 3, 9, 0), rule, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidInterval)
}

func TestRRuleString(t *testing.T) {
	rule := domain.RecurrenceRule{
		Frequency:  domain.FrequencyWeekly,
		Interval:   1,
		DaysOfWeek: []int{1, 3},
		EndType:    domain.EndAfterCount,
		Count:      4,
	}

	s := recurrence.RRuleString(date(2025, 3, 3, 9, 0), rule, 0)

	assert.Contains(t, s, "FREQ=WEEKLY")
	assert.Contains(t, s, "COUNT=4")
	assert.Contains(t, s, "BYDAY=MO,WE")
}
