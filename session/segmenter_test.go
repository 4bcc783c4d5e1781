package session

import (
	"fmt"
	"math/rand"
	"reflect"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"beacon/api/models"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func eventAt(i int, seconds int64, typ models.EventType) models.AnalyticsEvent {
	return models.AnalyticsEvent{
		ID:         fmt.Sprintf("%06d", i),
		IdentifyID: "device-1",
		Type:       typ,
		Date:       base.Add(time.Duration(seconds) * time.Second),
	}
}

func eventsAt(seconds ...int64) []models.AnalyticsEvent {
	events := make([]models.AnalyticsEvent, len(seconds))
	for i, s := range seconds {
		events[i] = eventAt(i, s, models.EventNavigation)
	}
	return events
}

func offsets(s Session) []int64 {
	out := make([]int64, len(s.Events))
	for i, e := range s.Events {
		out[i] = int64(e.Date.Sub(base) / time.Second)
	}
	return out
}

func TestSegment_Empty(t *testing.T) {
	sessions := Segment(nil, 2*time.Minute)
	assert.NotNil(t, sessions)
	assert.Empty(t, sessions)
}

func TestSegment_SingleEvent(t *testing.T) {
	sessions := Segment(eventsAt(0), 2*time.Minute)
	require.Len(t, sessions, 1)
	assert.Equal(t, 1, sessions[0].EventCount)
	assert.Equal(t, int64(0), sessions[0].DurationMs)
}

func TestSegment_SplitsOnGap(t *testing.T) {
	sessions := Segment(eventsAt(0, 60, 70, 400), 120*time.Second)
	require.Len(t, sessions, 2)

	// most recent first
	assert.Equal(t, []int64{400}, offsets(sessions[0]))
	assert.Equal(t, []int64{0, 60, 70}, offsets(sessions[1]))
	assert.Equal(t, int64(70_000), sessions[1].DurationMs)
}

func TestSegment_AllWithinThreshold(t *testing.T) {
	sessions := Segment(eventsAt(0, 100, 200, 300, 420), 120*time.Second)
	require.Len(t, sessions, 1)
	assert.Equal(t, 5, sessions[0].EventCount)
}

func TestSegment_GapEqualToThresholdStaysInSession(t *testing.T) {
	sessions := Segment(eventsAt(0, 120), 120*time.Second)
	assert.Len(t, sessions, 1)
}

func TestSegment_UnsortedInput(t *testing.T) {
	sessions := Segment(eventsAt(400, 70, 0, 60), 120*time.Second)
	require.Len(t, sessions, 2)
	assert.Equal(t, []int64{400}, offsets(sessions[0]))
	assert.Equal(t, []int64{0, 60, 70}, offsets(sessions[1]))
}

func TestSegment_TiesBrokenByID(t *testing.T) {
	a := eventAt(2, 10, models.EventAction)
	b := eventAt(1, 10, models.EventNavigation)
	sessions := Segment([]models.AnalyticsEvent{a, b}, time.Minute)
	require.Len(t, sessions, 1)
	assert.Equal(t, "000001", sessions[0].Events[0].ID)
	assert.Equal(t, "000002", sessions[0].Events[1].ID)
}

func TestSegment_DropsStateOnlySessions(t *testing.T) {
	events := []models.AnalyticsEvent{
		eventAt(0, 0, models.EventState),
		eventAt(1, 30, models.EventState),
		eventAt(2, 60, models.EventState),
	}
	assert.Empty(t, Segment(events, 2*time.Minute))

	// a heartbeat-only session between two real ones is removed
	events = []models.AnalyticsEvent{
		eventAt(0, 0, models.EventNavigation),
		eventAt(1, 1000, models.EventState),
		eventAt(2, 1010, models.EventState),
		eventAt(3, 2000, models.EventAction),
		eventAt(4, 2010, models.EventState),
	}
	sessions := Segment(events, 2*time.Minute)
	require.Len(t, sessions, 2)
	assert.Equal(t, []int64{2000, 2010}, offsets(sessions[0]))
	assert.Equal(t, []int64{0}, offsets(sessions[1]))
}

func TestSegment_DoesNotMutateInput(t *testing.T) {
	events := eventsAt(300, 0)
	Segment(events, time.Minute)
	assert.Equal(t, "000000", events[0].ID)
	assert.Equal(t, base.Add(300*time.Second), events[0].Date)
}

var eventTypes = []models.EventType{
	models.EventNavigation,
	models.EventAction,
	models.EventIdentify,
	models.EventState,
	models.EventError,
}

// buildEvents turns generated offsets and type indexes into an event list.
func buildEvents(secs []int64, kinds []int) []models.AnalyticsEvent {
	events := make([]models.AnalyticsEvent, len(secs))
	for i, s := range secs {
		typ := models.EventNavigation
		if len(kinds) > 0 {
			typ = eventTypes[kinds[i%len(kinds)]%len(eventTypes)]
		}
		events[i] = eventAt(i, s, typ)
	}
	return events
}

func TestProperty_Segmentation(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	threshold := 120 * time.Second
	secsGen := gen.SliceOf(gen.Int64Range(0, 3600))
	kindsGen := gen.SliceOf(gen.IntRange(0, len(eventTypes)-1))

	properties.Property("segmentation is deterministic", prop.ForAll(
		func(secs []int64, kinds []int) bool {
			events := buildEvents(secs, kinds)
			return reflect.DeepEqual(Segment(events, threshold), Segment(events, threshold))
		},
		secsGen, kindsGen,
	))

	properties.Property("adjacent events in a session are within the threshold", prop.ForAll(
		func(secs []int64, kinds []int) bool {
			for _, s := range Segment(buildEvents(secs, kinds), threshold) {
				for i := 1; i < len(s.Events); i++ {
					if s.Events[i].Date.Sub(s.Events[i-1].Date) > threshold {
						return false
					}
					if s.Events[i].Before(s.Events[i-1]) {
						return false
					}
				}
			}
			return true
		},
		secsGen, kindsGen,
	))

	properties.Property("session boundaries exceed the threshold", prop.ForAll(
		func(secs []int64, kinds []int) bool {
			sessions := Segment(buildEvents(secs, kinds), threshold)
			for i := 1; i < len(sessions); i++ {
				newer, older := sessions[i-1], sessions[i]
				if newer.Start.Sub(older.End) <= threshold {
					return false
				}
			}
			return true
		},
		secsGen, kindsGen,
	))

	properties.Property("every non-state event appears exactly once", prop.ForAll(
		func(secs []int64, kinds []int) bool {
			events := buildEvents(secs, kinds)
			seen := make(map[string]int)
			for _, s := range Segment(events, threshold) {
				for _, e := range s.Events {
					seen[e.ID]++
				}
			}
			for _, e := range events {
				n := seen[e.ID]
				if n > 1 {
					return false
				}
				if e.Type != models.EventState && n != 1 {
					return false
				}
			}
			return true
		},
		secsGen, kindsGen,
	))

	properties.Property("without state events nothing is dropped", prop.ForAll(
		func(secs []int64) bool {
			total := 0
			for _, s := range Segment(buildEvents(secs, nil), threshold) {
				total += s.EventCount
			}
			return total == len(secs)
		},
		secsGen,
	))

	properties.Property("shuffled input yields identical sessions", prop.ForAll(
		func(secs []int64, kinds []int, seed int64) bool {
			events := buildEvents(secs, kinds)
			shuffled := make([]models.AnalyticsEvent, len(events))
			copy(shuffled, events)
			rnd := rand.New(rand.NewSource(seed))
			rnd.Shuffle(len(shuffled), func(i, j int) {
				shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
			})
			return reflect.DeepEqual(Segment(events, threshold), Segment(shuffled, threshold))
		},
		secsGen, kindsGen, gen.Int64(),
	))

	properties.TestingRun(t)
}
