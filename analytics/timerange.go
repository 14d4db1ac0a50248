package analytics

import (
	"errors"
	"fmt"
	"time"
)

const DefaultTimeRange = "7d"

var ErrInvalidTimeRange = errors.New("timeRange must be one of 7d, 30d, 90d")

// TimeRange is a rolling window of Days days ending now.
type TimeRange struct {
	Label string
	Days  int
}

var timeRanges = map[string]int{
	"7d":  7,
	"30d": 30,
	"90d": 90,
}

// ParseTimeRange accepts "7d", "30d" or "90d". An empty string means 7d.
func ParseTimeRange(s string) (TimeRange, error) {
	if s == "" {
		s = DefaultTimeRange
	}
	days, ok := timeRanges[s]
	if !ok {
		return TimeRange{}, fmt.Errorf("%w: got %q", ErrInvalidTimeRange, s)
	}
	return TimeRange{Label: s, Days: days}, nil
}

// Duration is the window length.
func (tr TimeRange) Duration() time.Duration {
	return time.Duration(tr.Days) * 24 * time.Hour
}

// Since is the window's lower bound for a window ending at now.
func (tr TimeRange) Since(now time.Time) time.Time {
	return now.Add(-tr.Duration())
}

// PreviousWindow is the window of equal length immediately before the current one.
func (tr TimeRange) PreviousWindow(now time.Time) (from, to time.Time) {
	to = tr.Since(now)
	return to.Add(-tr.Duration()), to
}

// CalendarDays lists the last tr.Days UTC calendar days, oldest first, ending with
// the day containing now.
func (tr TimeRange) CalendarDays(now time.Time) []time.Time {
	today := startOfDay(now)
	days := make([]time.Time, tr.Days)
	for i := 0; i < tr.Days; i++ {
		days[i] = today.AddDate(0, 0, i-tr.Days+1)
	}
	return days
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
