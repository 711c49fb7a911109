// Package calendar renders a vehicle's reservations as an iCalendar feed that
// members can subscribe to from their phone or desktop calendar.
package calendar

import (
	"fmt"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/pkordes/carshare/backend/internal/domain"
	"github.com/pkordes/carshare/backend/internal/recurrence"
)

const productID = "-//carshare//booking calendar//EN"

// floatingLayout writes DATE-TIME values without a zone suffix. Reservation
// times are wall-clock values, which RFC 5545 calls floating time.
const floatingLayout = "20060102T150405"

// Encode builds a VCALENDAR with one VEVENT per reservation. Series members
// are emitted as individual events; the anchor additionally carries its rule
// as an X-CARSHARE-RRULE property for display, not as an RRULE, so clients do
// not expand the series a second time.
func Encode(vehicle domain.Vehicle, rs []domain.Reservation, stamp time.Time) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	cal.SetXWRCalName(vehicle.Name)

	for _, r := range rs {
		ev := cal.AddEvent(r.ID.String() + "@carshare")
		ev.SetDtStampTime(stamp.UTC())
		ev.SetModifiedAt(r.UpdatedAt.UTC())

		if r.IsWholeDay {
			ev.SetAllDayStartAt(r.StartTime)
			ev.SetAllDayEndAt(r.EndTime)
		} else {
			ev.SetProperty(ical.ComponentPropertyDtStart, r.StartTime.Format(floatingLayout))
			ev.SetProperty(ical.ComponentPropertyDtEnd, r.EndTime.Format(floatingLayout))
		}

		ev.SetSummary(summary(vehicle, r))
		if r.Destination != "" {
			ev.SetLocation(r.Destination)
		}
		if vehicle.KeyLocation != "" {
			ev.SetDescription("Key: " + vehicle.KeyLocation)
		}
		if r.RecurrenceRule != nil {
			ev.SetProperty(ical.ComponentProperty("X-CARSHARE-RRULE"),
				recurrence.RRuleString(r.StartTime, *r.RecurrenceRule, 0))
		}
	}
	return cal.Serialize()
}

func summary(vehicle domain.Vehicle, r domain.Reservation) string {
	owner := r.OwnerName
	if owner == "" {
		owner = "reserved"
	}
	return fmt.Sprintf("%s: %s", vehicle.Name, owner)
}
