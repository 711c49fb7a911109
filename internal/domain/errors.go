package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by repo and service functions when the requested
// resource does not exist in the database. During a scoped edit or delete it
// usually means another request removed the reservation first.
// Handlers should map this to HTTP 404.
var ErrNotFound = errors.New("not found")

// ErrValidation is returned by service functions when input fails business
// rule validation. Every more specific validation error below wraps it, so
// handlers can map the whole family to HTTP 422 with a single errors.Is check.
var ErrValidation = errors.New("validation error")

// ErrInvalidInterval is returned when a reservation ends at or before it starts.
var ErrInvalidInterval = fmt.Errorf("%w: end time must be after start time", ErrValidation)

// ErrInvalidRecurrenceRule is returned when a recurrence rule is missing its
// frequency-specific field, or when a well-formed rule expands to nothing.
var ErrInvalidRecurrenceRule = fmt.Errorf("%w: invalid recurrence rule", ErrValidation)

// ErrForbidden is returned when the acting member is neither the owner of the
// reservation nor an admin. Handlers should map this to HTTP 403.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is the sentinel behind *ConflictError.
// Handlers should map this to HTTP 409.
var ErrConflict = errors.New("conflict")

// ErrWholeDayBlocked is the sentinel behind *WholeDayBlockedError.
// Handlers should map this to HTTP 409.
var ErrWholeDayBlocked = errors.New("whole-day reservation blocks this date")

// ConflictError reports the reservation that blocks a candidate interval.
// Only the first conflict (earliest start) is reported, never all of them.
type ConflictError struct {
	// With is the existing reservation the candidate collides with.
	// OwnerName is populated from the members table when available.
	With Reservation
	// Candidate is the interval that was rejected. For a series this is the
	// occurrence that failed, so callers can report its date.
	Candidate Interval
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict: %s on %s is already booked by %s from %s to %s",
		e.Candidate.Start.Format(time.DateOnly),
		e.With.VehicleID,
		ownerLabel(e.With),
		e.With.StartTime.Format(wallClockLayout),
		e.With.EndTime.Format(wallClockLayout),
	)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// WholeDayBlockedError reports a whole-day reservation that prevents any new
// partial-day booking on the same vehicle and date.
type WholeDayBlockedError struct {
	By   Reservation
	Date time.Time
}

func (e *WholeDayBlockedError) Error() string {
	return fmt.Sprintf("%s: %s is booked for the whole day by %s",
		ErrWholeDayBlocked, e.Date.Format(time.DateOnly), ownerLabel(e.By))
}

func (e *WholeDayBlockedError) Unwrap() error { return ErrWholeDayBlocked }

const wallClockLayout = "2006-01-02 15:04"

func ownerLabel(r Reservation) string {
	if r.OwnerName != "" {
		return r.OwnerName
	}
	return r.OwnerID.String()
}
