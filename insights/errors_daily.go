package insights

import (
	"sort"
	"strings"
	"time"

	"beacon/api/models"
)

// DailyErrorDays is the length of the daily errors lookback.
const DailyErrorDays = 7

// UnknownErrorMessage labels errors that carry no message.
const UnknownErrorMessage = "unknown"

// ErrorMessageCount is how often one message was reported on a day.
type ErrorMessageCount struct {
	Message string `json:"message"`
	Count   uint64 `json:"count"`
}

// DailyErrors holds the error counts of one UTC calendar day.
type DailyErrors struct {
	Day      string              `json:"day"`
	Total    uint64              `json:"total"`
	Messages []ErrorMessageCount `json:"messages"`
}

// NormalizeErrorMessage trims the message and collapses whitespace runs.
func NormalizeErrorMessage(msg string) string {
	msg = strings.Join(strings.Fields(msg), " ")
	if msg == "" {
		return UnknownErrorMessage
	}
	return msg
}

// dailyErrorsWindow starts at UTC midnight six days before now, so the
// window spans seven calendar days including today.
func dailyErrorsWindow(now time.Time) Window {
	today := now.UTC().Truncate(Day)
	return Window{Start: today.AddDate(0, 0, -(DailyErrorDays - 1)), End: now}
}

// groupDailyErrors folds store rows into one entry per calendar day, oldest
// first, starting at w.Start. Days without errors are present with no
// messages; today is present even when now is exactly midnight.
func groupDailyErrors(rows []models.ErrorCountRow, w Window) []DailyErrors {
	type key struct {
		day string
		msg string
	}
	counts := make(map[key]uint64)
	for _, r := range rows {
		k := key{day: r.Day.UTC().Format(time.DateOnly), msg: NormalizeErrorMessage(r.Message)}
		counts[k] += r.Count
	}

	days := make([]DailyErrors, 0, DailyErrorDays)
	index := make(map[string]int, DailyErrorDays)
	for i := 0; i < DailyErrorDays; i++ {
		label := w.Start.UTC().AddDate(0, 0, i).Format(time.DateOnly)
		index[label] = len(days)
		days = append(days, DailyErrors{Day: label, Messages: []ErrorMessageCount{}})
	}

	for k, n := range counts {
		i, ok := index[k.day]
		if !ok {
			continue
		}
		days[i].Total += n
		days[i].Messages = append(days[i].Messages, ErrorMessageCount{Message: k.msg, Count: n})
	}

	for i := range days {
		msgs := days[i].Messages
		sort.Slice(msgs, func(a, b int) bool {
			if msgs[a].Count != msgs[b].Count {
				return msgs[a].Count > msgs[b].Count
			}
			return msgs[a].Message < msgs[b].Message
		})
	}
	return days
}
