package schedule

import (
	"sort"
	"strings"
	"time"

	"eventcal/internal/model"
)

// ReminderWindow is how far ahead of now an event may start and still be
// reported as a reminder.
const ReminderWindow = time.Hour

// SortedByStart returns a copy of events ordered by start time ascending.
// Events with equal start times keep their relative order.
func SortedByStart(events []model.Event) []model.Event {
	out := make([]model.Event, len(events))
	copy(out, events)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out
}

// Search returns every event whose title or description contains query,
// ignoring case. An empty query is a validation error rather than a match-all.
func Search(events []model.Event, query string) ([]model.Event, error) {
	if query == "" {
		return nil, model.NewValidationError("q", "search query is required")
	}

	needle := strings.ToLower(query)
	out := make([]model.Event, 0)
	for _, ev := range events {
		if strings.Contains(strings.ToLower(ev.Title), needle) ||
			strings.Contains(strings.ToLower(ev.Description), needle) {
			out = append(out, ev)
		}
	}
	return out, nil
}

// Reminders returns the events starting within [now, now+ReminderWindow],
// both ends inclusive. Events that already started are excluded.
func Reminders(events []model.Event, now time.Time) []model.Event {
	until := now.Add(ReminderWindow)
	out := make([]model.Event, 0)
	for _, ev := range events {
		if ev.StartTime.Before(now) || ev.StartTime.After(until) {
			continue
		}
		out = append(out, ev)
	}
	return out
}
