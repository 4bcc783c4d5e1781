// Package session rebuilds user sessions from a stream of analytics events.
package session

import (
	"sort"
	"time"

	"beacon/api/models"
)

// DefaultInactivityThreshold is the gap after which a new session starts.
const DefaultInactivityThreshold = 5 * time.Minute

// Session is a run of events for one identity with no gap larger than the
// inactivity threshold. Events are ascending by date.
type Session struct {
	Start      time.Time               `json:"start"`
	End        time.Time               `json:"end"`
	DurationMs int64                   `json:"durationMs"`
	EventCount int                     `json:"eventCount"`
	Events     []models.AnalyticsEvent `json:"events"`
}

func newSession(events []models.AnalyticsEvent) Session {
	start := events[0].Date
	end := events[len(events)-1].Date
	return Session{
		Start:      start,
		End:        end,
		DurationMs: end.Sub(start).Milliseconds(),
		EventCount: len(events),
		Events:     events,
	}
}

// Segment splits events into sessions. The input is copied and sorted by date
// (ties on id) before walking it, so callers may pass it in any order.
// Sessions made only of state events are dropped. The result is most recent
// session first.
func Segment(events []models.AnalyticsEvent, threshold time.Duration) []Session {
	if len(events) == 0 {
		return []Session{}
	}

	sorted := make([]models.AnalyticsEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Before(sorted[j])
	})

	var (
		sessions []Session
		current  []models.AnalyticsEvent
		last     time.Time
	)
	for i, event := range sorted {
		if i > 0 && event.Date.Sub(last) > threshold {
			if len(current) > 0 {
				sessions = append(sessions, newSession(current))
			}
			current = nil
		}
		current = append(current, event)
		last = event.Date
	}
	if len(current) > 0 {
		sessions = append(sessions, newSession(current))
	}

	result := make([]Session, 0, len(sessions))
	for i := len(sessions) - 1; i >= 0; i-- {
		if onlyState(sessions[i].Events) {
			continue
		}
		result = append(result, sessions[i])
	}
	return result
}

// onlyState reports whether every event is a state heartbeat.
func onlyState(events []models.AnalyticsEvent) bool {
	for _, e := range events {
		if e.Type != models.EventState {
			return false
		}
	}
	return true
}
