package model

import "strings"

// Validate checks the input against the event invariants. The returned list
// is empty when the input is acceptable; a missing time is reported once and
// suppresses the ordering check.
func (in Input) Validate() Violations {
	var out Violations

	if strings.TrimSpace(in.Title) == "" {
		out = append(out, Violation{Field: "title", Message: "is required"})
	}
	if strings.TrimSpace(in.Description) == "" {
		out = append(out, Violation{Field: "description", Message: "is required"})
	}
	if in.StartTime.IsZero() {
		out = append(out, Violation{Field: "startTime", Message: "is required"})
	}
	if in.EndTime.IsZero() {
		out = append(out, Violation{Field: "endTime", Message: "is required"})
	}
	if !in.StartTime.IsZero() && !in.EndTime.IsZero() && !in.StartTime.Before(in.EndTime) {
		out = append(out, Violation{Field: "endTime", Message: "must be after start time"})
	}

	return out
}
