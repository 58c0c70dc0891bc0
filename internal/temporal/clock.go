package temporal

import "time"

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// Clock is the request-scoped view of "now". It is captured once when a
// request arrives and threaded through every function that needs the current
// moment, so date rollover decisions stay stable within one request.
type Clock struct {
	now time.Time
	loc *time.Location
}

func NewClock(now time.Time, loc *time.Location) Clock {
	if loc == nil {
		loc = time.UTC
	}
	return Clock{now: now.In(loc), loc: loc}
}

func (c Clock) Now() time.Time {
	return c.now
}

func (c Clock) Location() *time.Location {
	return c.loc
}

// Today returns the current civil date as YYYY-MM-DD.
func (c Clock) Today() string {
	return c.now.Format(DateLayout)
}

// TimeOfDay returns the current time of day as HH:MM.
func (c Clock) TimeOfDay() string {
	return c.now.Format(TimeLayout)
}

// Midnight returns 00:00 of the given civil day in the clock's location.
func (c Clock) Midnight(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, c.loc)
}

// At combines a YYYY-MM-DD date and an HH:MM time of day into an instant in
// the clock's location.
func (c Clock) At(date, timeOfDay string) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, date, c.loc)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(TimeLayout, timeOfDay)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(d.Year(), d.Month(), d.Day(), t.Hour(), t.Minute(), 0, 0, c.loc), nil
}
