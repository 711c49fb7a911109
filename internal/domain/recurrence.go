package domain

import (
	"fmt"
	"time"
)

// Frequency is the repeat unit of a recurrence rule.
type Frequency string

const (
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// EndType selects how a recurring series terminates.
type EndType string

const (
	// EndNever repeats up to one year past the anchor (and never past the hard cap).
	EndNever EndType = "never"
	// EndOnDate repeats through EndDate, inclusive of that whole calendar day.
	EndOnDate EndType = "on_date"
	// EndAfterCount stops after Count occurrences, the anchor included.
	EndAfterCount EndType = "after_count"
)

// RecurrenceRule describes how a series repeats. It is stored as JSONB on
// the anchor reservation of the series.
type RecurrenceRule struct {
	Frequency Frequency `json:"frequency"`
	Interval  int       `json:"interval"`
	// DaysOfWeek uses 0=Sunday through 6=Saturday. Required for weekly rules.
	DaysOfWeek []int `json:"days_of_week,omitempty"`
	// DayOfMonth is 1-31. Months shorter than DayOfMonth use their last day.
	DayOfMonth int        `json:"day_of_month,omitempty"`
	EndType    EndType    `json:"end_type"`
	EndDate    *time.Time `json:"end_date,omitempty"`
	Count      int        `json:"count,omitempty"`
}

// Validate checks the rule's shape. It does not expand the rule, so a valid
// rule may still produce zero occurrences.
func (r RecurrenceRule) Validate() error {
	if r.Interval < 1 {
		return fmt.Errorf("%w: interval must be at least 1", ErrInvalidRecurrenceRule)
	}
	switch r.Frequency {
	case FrequencyWeekly:
		if len(r.DaysOfWeek) == 0 {
			return fmt.Errorf("%w: weekly rule needs at least one day of week", ErrInvalidRecurrenceRule)
		}
		for _, d := range r.DaysOfWeek {
			if d < 0 || d > 6 {
				return fmt.Errorf("%w: day of week %d out of range 0-6", ErrInvalidRecurrenceRule, d)
			}
		}
	case FrequencyMonthly:
		if r.DayOfMonth < 1 || r.DayOfMonth > 31 {
			return fmt.Errorf("%w: day of month must be 1-31", ErrInvalidRecurrenceRule)
		}
	default:
		return fmt.Errorf("%w: unknown frequency %q", ErrInvalidRecurrenceRule, r.Frequency)
	}
	switch r.EndType {
	case EndNever:
	case EndOnDate:
		if r.EndDate == nil {
			return fmt.Errorf("%w: on_date rule needs an end date", ErrInvalidRecurrenceRule)
		}
	case EndAfterCount:
		if r.Count < 1 {
			return fmt.Errorf("%w: after_count rule needs a count of at least 1", ErrInvalidRecurrenceRule)
		}
	default:
		return fmt.Errorf("%w: unknown end type %q", ErrInvalidRecurrenceRule, r.EndType)
	}
	return nil
}

// Occurrence is one concrete interval produced by expanding a rule.
type Occurrence struct {
	Start time.Time
	End   time.Time
}

// Interval returns the occurrence as an Interval.
func (o Occurrence) Interval() Interval {
	return Interval{Start: o.Start, End: o.End}
}
