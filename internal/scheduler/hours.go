package scheduler

import (
	"fmt"
	"time"
)

// ActiveHours limits ticks to a daily window in a given zone. The window is [StartHour, EndHour).
type ActiveHours struct {
	Location     *time.Location
	StartHour    int
	EndHour      int
	WeekdaysOnly bool
}

// DefaultActiveHours is weekdays 08:00 to 21:00 Moscow time.
func DefaultActiveHours() (*ActiveHours, error) {
	loc, err := time.LoadLocation("Europe/Moscow")
	if err != nil {
		return nil, fmt.Errorf("load location: %w", err)
	}
	return &ActiveHours{Location: loc, StartHour: 8, EndHour: 21, WeekdaysOnly: true}, nil
}

// NewActiveHours builds a window for the named zone.
func NewActiveHours(zone string, start, end int, weekdaysOnly bool) (*ActiveHours, error) {
	if start < 0 || end > 24 || start >= end {
		return nil, fmt.Errorf("invalid active hours %d-%d", start, end)
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("load location %q: %w", zone, err)
	}
	return &ActiveHours{Location: loc, StartHour: start, EndHour: end, WeekdaysOnly: weekdaysOnly}, nil
}

// Contains reports whether t falls inside the window. A nil window always contains t.
func (a *ActiveHours) Contains(t time.Time) bool {
	if a == nil {
		return true
	}
	loc := a.Location
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	if a.WeekdaysOnly {
		if wd := local.Weekday(); wd == time.Saturday || wd == time.Sunday {
			return false
		}
	}
	h := local.Hour()
	return h >= a.StartHour && h < a.EndHour
}

func (a *ActiveHours) String() string {
	if a == nil {
		return "always"
	}
	days := "daily"
	if a.WeekdaysOnly {
		days = "weekdays"
	}
	return fmt.Sprintf("%s %02d:00-%02d:00 %s", days, a.StartHour, a.EndHour, a.Location)
}
