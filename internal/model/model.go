package model

import (
	"strings"
	"time"
)

// Recurrence names the rule used to generate instances of a series at
// creation time.
type Recurrence string

const (
	RecurrenceNone    Recurrence = "none"
	RecurrenceDaily   Recurrence = "daily"
	RecurrenceWeekly  Recurrence = "weekly"
	RecurrenceMonthly Recurrence = "monthly"
)

// Event is the only stored entity. Generated instances of a recurring event
// are ordinary Events whose ParentID points at the record that produced them.
type Event struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	StartTime   time.Time  `json:"startTime"`
	EndTime     time.Time  `json:"endTime"`
	Recurrence  Recurrence `json:"recurrence"`
	ParentID    string     `json:"parentId,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Duration is the length of the event; it is preserved across every
// instance of a series.
func (e Event) Duration() time.Duration {
	return e.EndTime.Sub(e.StartTime)
}

// IsInstance reports whether e was generated by recurrence expansion.
func (e Event) IsInstance() bool {
	return e.ParentID != ""
}

// Input carries the caller-supplied fields for both create and update. Update
// is a full replacement: every field is required, there is no sparse patch.
type Input struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	StartTime   time.Time  `json:"startTime"`
	EndTime     time.Time  `json:"endTime"`
	Recurrence  Recurrence `json:"recurrence"`
}

// RecurrenceOrDefault maps an empty rule to none.
func (in Input) RecurrenceOrDefault() Recurrence {
	r := Recurrence(strings.TrimSpace(string(in.Recurrence)))
	if r == "" {
		return RecurrenceNone
	}
	return r
}
