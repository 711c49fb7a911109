package handler

import (
	"encoding/json"
	"fmt"
	"time"
)

// wallLayout is how reservation times travel over the wire: local wall-clock
// time with no zone, e.g. "2025-03-03T09:00:00".
const wallLayout = "2006-01-02T15:04:05"

// wallTime is a naive wall-clock timestamp. Any zone offset sent by a client
// is dropped and the clock reading kept, so "09:00+02:00" books 09:00.
type wallTime time.Time

func (w wallTime) Time() time.Time { return time.Time(w) }

func (w wallTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(w).Format(wallLayout))
}

func (w *wallTime) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("wall-clock time must be a string: %w", err)
	}
	return w.Bind(s)
}

// Bind implements runtime.Binder so query parameters parse the same way as
// body fields. A bare date means midnight.
func (w *wallTime) Bind(src string) error {
	t, err := parseWallClock(src)
	if err != nil {
		return err
	}
	*w = wallTime(t)
	return nil
}

func parseWallClock(s string) (time.Time, error) {
	for _, layout := range []string{wallLayout, "2006-01-02T15:04", time.RFC3339Nano, time.DateOnly} {
		t, err := time.Parse(layout, s)
		if err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("%q is not a wall-clock time (want YYYY-MM-DDTHH:MM:SS)", s)
}
