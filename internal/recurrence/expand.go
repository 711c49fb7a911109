// Package recurrence turns a recurrence rule and an anchor interval into the
// concrete occurrences of a series. It does no I/O and never reads the clock:
// identical inputs always produce the identical sequence.
package recurrence

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/pkordes/carshare/backend/internal/domain"
)

// DefaultHardCap bounds every expansion regardless of its end condition.
const DefaultHardCap = 52

// neverHorizon is how far an open-ended rule is expanded past its anchor.
const neverHorizon = 1 // years

// weekdays maps 0=Sunday..6=Saturday onto rrule weekdays.
var weekdays = [7]rrule.Weekday{rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA}

// Expand returns the occurrences of rule anchored at [anchorStart, anchorEnd),
// in chronological order. Each occurrence keeps the anchor's time of day and
// duration; only the date varies. hardCap <= 0 means DefaultHardCap.
//
// An empty result is not an error here. Callers that need at least one
// occurrence decide what an empty series means.
func Expand(anchorStart, anchorEnd time.Time, rule domain.RecurrenceRule, hardCap int) ([]domain.Occurrence, error) {
	if !anchorEnd.After(anchorStart) {
		return nil, domain.ErrInvalidInterval
	}
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	if hardCap <= 0 {
		hardCap = DefaultHardCap
	}

	opt := Options(anchorStart, rule, hardCap)
	r, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, fmt.Errorf("recurrence.Expand: %w: %v", domain.ErrInvalidRecurrenceRule, err)
	}

	// Occurrences start on whole seconds, so the duration is measured from
	// the truncated start to keep every end at the anchor's end.
	duration := anchorEnd.Sub(anchorStart.Truncate(time.Second))
	starts := r.All()
	out := make([]domain.Occurrence, 0, len(starts))
	for _, s := range starts {
		out = append(out, domain.Occurrence{Start: s, End: s.Add(duration)})
	}
	return out, nil
}

// Options builds the rrule options equivalent to rule anchored at anchorStart.
// The count is always bounded by hardCap.
func Options(anchorStart time.Time, rule domain.RecurrenceRule, hardCap int) rrule.ROption {
	opt := rrule.ROption{
		Dtstart:  anchorStart.Truncate(time.Second),
		Interval: rule.Interval,
		Wkst:     rrule.SU,
		Count:    hardCap,
	}

	switch rule.Frequency {
	case domain.FrequencyWeekly:
		opt.Freq = rrule.WEEKLY
		for _, d := range rule.DaysOfWeek {
			opt.Byweekday = append(opt.Byweekday, weekdays[d])
		}
	case domain.FrequencyMonthly:
		opt.Freq = rrule.MONTHLY
		opt.Bymonthday, opt.Bysetpos = clampedMonthDay(rule.DayOfMonth)
	}

	switch rule.EndType {
	case domain.EndOnDate:
		// The end date is inclusive of its whole calendar day.
		opt.Until = domain.DayStart(*rule.EndDate).AddDate(0, 0, 1).Add(-time.Second)
	case domain.EndNever:
		opt.Until = anchorStart.AddDate(neverHorizon, 0, 0)
	case domain.EndAfterCount:
		opt.Count = min(hardCap, rule.Count)
	}
	return opt
}

// clampedMonthDay selects day of every month, or the month's last day when it
// is shorter. Days 1-28 exist in every month and need no clamp. For 29-31 the
// rule asks for every day from the 28th up to day and keeps the last one that
// exists, so Jan 31 is followed by Feb 28 (or 29) instead of Mar 3.
func clampedMonthDay(day int) (bymonthday, bysetpos []int) {
	if day <= 28 {
		return []int{day}, nil
	}
	for d := 28; d <= day; d++ {
		bymonthday = append(bymonthday, d)
	}
	return bymonthday, []int{-1}
}

// RRuleString renders rule as an RFC 5545 RRULE value, for display and for
// calendar feeds.
func RRuleString(anchorStart time.Time, rule domain.RecurrenceRule, hardCap int) string {
	if hardCap <= 0 {
		hardCap = DefaultHardCap
	}
	opt := Options(anchorStart, rule, hardCap)
	return opt.RRuleString()
}
