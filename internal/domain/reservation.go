// Package domain contains the core data types for the car-sharing booking API.
// It depends only on google/uuid and is imported by every other internal
// package (recurrence, repo, service, handler).
//
// All times are naive wall-clock values. They travel as time.Time in UTC so
// that calendar arithmetic never crosses a DST transition.
package domain

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// Reservation is the atomic bookable unit: one vehicle, one member, one interval.
// Members of a recurring series share SeriesID; only the earliest member (the
// anchor) carries RecurrenceRule.
type Reservation struct {
	ID          uuid.UUID `json:"id"`
	VehicleID   uuid.UUID `json:"vehicle_id"`
	OwnerID     uuid.UUID `json:"owner_id"`
	OwnerName   string    `json:"owner_name,omitempty"` // joined from members, read-only
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	IsWholeDay  bool      `json:"is_whole_day"`
	Destination string    `json:"destination,omitempty"`

	SeriesID       *uuid.UUID      `json:"series_id,omitempty"`
	RecurrenceRule *RecurrenceRule `json:"recurrence_rule,omitempty"`
	IsException    bool            `json:"is_exception"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Interval returns the reservation's [StartTime, EndTime) span.
func (r Reservation) Interval() Interval {
	return Interval{Start: r.StartTime, End: r.EndTime}
}

// InSeries reports whether the reservation was generated from a recurring request.
func (r Reservation) InSeries() bool {
	return r.SeriesID != nil
}

// ReservationInput carries the caller-editable fields of a reservation.
// It is used both for creation and as the replacement values of an edit.
type ReservationInput struct {
	VehicleID   uuid.UUID
	Start       time.Time
	End         time.Time
	IsWholeDay  bool
	Destination string
}

// Normalize returns the interval the input describes, expanded to full days
// when IsWholeDay is set. It returns ErrInvalidInterval when the result is empty.
func (in ReservationInput) Normalize() (Interval, error) {
	iv := Interval{Start: in.Start, End: in.End}
	if in.IsWholeDay {
		iv = WholeDays(in.Start, in.End)
	}
	if !iv.Valid() {
		return Interval{}, ErrInvalidInterval
	}
	return iv, nil
}

// Interval is a half-open time span [Start, End).
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Valid reports whether End is strictly after Start.
func (i Interval) Valid() bool {
	return i.End.After(i.Start)
}

// Duration returns End - Start.
func (i Interval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}

// Days returns the midnight of every calendar day the interval touches.
// An interval ending exactly at midnight does not touch the following day.
func (i Interval) Days() []time.Time {
	var days []time.Time
	for d := DayStart(i.Start); d.Before(i.End); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// Overlaps reports whether two intervals share any instant.
// Touching endpoints (a.End == b.Start) do not overlap.
// This predicate is the only definition of a booking conflict in the system.
func Overlaps(a, b Interval) bool {
	return a.Start.Before(b.End) && a.End.After(b.Start)
}

// FirstConflict returns the earliest-starting reservation in existing that
// overlaps candidate, ignoring any reservation whose ID is in exclude.
// existing does not need to be sorted.
func FirstConflict(existing []Reservation, candidate Interval, exclude ...uuid.UUID) (Reservation, bool) {
	var (
		first Reservation
		found bool
	)
	for _, r := range existing {
		if slices.Contains(exclude, r.ID) || !Overlaps(r.Interval(), candidate) {
			continue
		}
		if !found || r.StartTime.Before(first.StartTime) {
			first, found = r, true
		}
	}
	return first, found
}

// DayStart truncates t to midnight of its calendar day, keeping t's location.
func DayStart(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// WholeDays expands [start, end] to cover every calendar day it spans:
// from midnight of start's day to midnight after the last day.
// An end exactly at midnight after start does not pull in that day.
func WholeDays(start, end time.Time) Interval {
	last := DayStart(end)
	if end.Equal(last) && end.After(start) {
		last = last.AddDate(0, 0, -1)
	}
	return Interval{Start: DayStart(start), End: last.AddDate(0, 0, 1)}
}

// Retime moves iv onto the calendar date of day, keeping iv's time-of-day
// and duration. It is how a this-and-future edit is applied to each member.
func Retime(day time.Time, iv Interval) Interval {
	offset := iv.Start.Sub(DayStart(iv.Start))
	start := DayStart(day).Add(offset)
	return Interval{Start: start, End: start.Add(iv.Duration())}
}

// Scope selects how far an edit or delete reaches into a series.
type Scope string

const (
	// ScopeThisOccurrence affects only the targeted reservation.
	ScopeThisOccurrence Scope = "this_occurrence"
	// ScopeThisAndFuture affects the target and every series member starting
	// at or after it.
	ScopeThisAndFuture Scope = "this_and_future"
)

// ParseScope converts a query-string value into a Scope.
// The empty string defaults to ScopeThisOccurrence.
func ParseScope(s string) (Scope, bool) {
	switch Scope(s) {
	case "", ScopeThisOccurrence:
		return ScopeThisOccurrence, true
	case ScopeThisAndFuture:
		return ScopeThisAndFuture, true
	}
	return "", false
}

// Actor is the member performing a request, as asserted by the upstream
// identity layer.
type Actor struct {
	MemberID uuid.UUID
	IsAdmin  bool
}

// CanModify reports whether the actor may edit or delete r.
func (a Actor) CanModify(r Reservation) bool {
	return a.IsAdmin || a.MemberID == r.OwnerID
}
