package imagery

import (
	"fmt"
	"time"
)

// Window is the acceptable acquisition-date range for scene selection:
// [MaxDate - DaysPeriod, MaxDate). Queries extend the upper bound by one
// day to keep same-day scenes visible to the catalogue search.
type Window struct {
	MaxDate    time.Time
	DaysPeriod int
}

func (w Window) Begin() time.Time {
	return w.MaxDate.AddDate(0, 0, -w.DaysPeriod)
}

// QueryEnd is the exclusive upper bound used in catalogue queries.
func (w Window) QueryEnd() time.Time {
	return w.MaxDate.AddDate(0, 0, 1)
}

// Contains reports whether t falls inside the selection range.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Begin()) && t.Before(w.MaxDate)
}

func (w Window) String() string {
	return fmt.Sprintf("%s to %s", w.Begin().Format("2006-01-02"), w.MaxDate.Format("2006-01-02"))
}
