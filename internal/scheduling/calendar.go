package scheduling

import "time"

const dateLayout = "2006-01-02"

// Calendar supplies the current date in the operating timezone and the
// working-day predicate used by the planner.  It is injected so tests
// can pin "today" and the holiday set.
type Calendar interface {
	// Today returns the current date truncated to midnight in the
	// operating timezone.
	Today() time.Time
	// IsWorkingDay reports whether the clinic attends on the given
	// date.  Saturdays, Sundays and configured holidays are not
	// working days.
	IsWorkingDay(t time.Time) bool
}

// ClinicCalendar is the production Calendar.  Holidays are keyed by
// "YYYY-MM-DD" in the clinic timezone.
type ClinicCalendar struct {
	loc      *time.Location
	holidays map[string]struct{}
}

// NewClinicCalendar builds a calendar for the given location.  A nil
// location falls back to UTC.
func NewClinicCalendar(loc *time.Location, holidays []time.Time) *ClinicCalendar {
	if loc == nil {
		loc = time.UTC
	}
	set := make(map[string]struct{}, len(holidays))
	for _, h := range holidays {
		set[h.In(loc).Format(dateLayout)] = struct{}{}
	}
	return &ClinicCalendar{loc: loc, holidays: set}
}

func (c *ClinicCalendar) Today() time.Time {
	now := time.Now().In(c.loc)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, c.loc)
}

func (c *ClinicCalendar) IsWorkingDay(t time.Time) bool {
	t = t.In(c.loc)
	if wd := t.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	_, holiday := c.holidays[t.Format(dateLayout)]
	return !holiday
}

// Midnight normalizes a timestamp to the start of its day, preserving
// the location.  Quota rows are keyed by these normalized dates.
func Midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// SameDay reports whether two timestamps fall on the same calendar
// day.
func SameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}
