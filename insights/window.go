package insights

import (
	"time"

	"beacon/api/utils"
)

const (
	Day   = 24 * time.Hour
	Week  = 7 * Day
	Month = 30 * Day
)

// Window is the half-open interval [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// Trailing returns [now-d, now).
func Trailing(now time.Time, d time.Duration) Window {
	return Window{Start: now.Add(-d), End: now}
}

// Previous returns the window of the same length that ends where w starts.
func (w Window) Previous() Window {
	return Window{Start: w.Start.Add(-w.End.Sub(w.Start)), End: w.Start}
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// AllTime covers everything recorded before now.
func AllTime(now time.Time) Window {
	return Window{Start: time.Unix(0, 0).UTC(), End: now}
}

// PercentChange is the change from previous to current in percent, rounded
// to one decimal. A zero previous value yields 0.
func PercentChange(current, previous uint64) float64 {
	if previous == 0 {
		return 0
	}
	change := (float64(current) - float64(previous)) / float64(previous) * 100
	return utils.RoundTo(change, 1)
}
