package schedule

import (
	"time"

	"eventcal/internal/model"
)

// InstanceCount is the number of future instances generated for a recurring
// event, in addition to the event itself.
const InstanceCount = 10

// Expand returns the start instants of the generated instances for rule,
// computed from the original start with calendar arithmetic in UTC. Index i
// (1..InstanceCount) is always derived from start, never from the previous
// instance, so a monthly series starting on the 31st normalizes each month
// independently (Jan 31 + 1 month = Mar 3 in a non-leap year).
//
// none, empty and unrecognized rules yield no instances.
func Expand(rule model.Recurrence, start time.Time) []time.Time {
	step, ok := stepFor(rule)
	if !ok {
		return nil
	}

	base := start.UTC()
	out := make([]time.Time, 0, InstanceCount)
	for i := 1; i <= InstanceCount; i++ {
		out = append(out, step(base, i))
	}
	return out
}

func stepFor(rule model.Recurrence) (func(time.Time, int) time.Time, bool) {
	switch rule {
	case model.RecurrenceDaily:
		return func(t time.Time, i int) time.Time { return t.AddDate(0, 0, i) }, true
	case model.RecurrenceWeekly:
		return func(t time.Time, i int) time.Time { return t.AddDate(0, 0, 7*i) }, true
	case model.RecurrenceMonthly:
		return func(t time.Time, i int) time.Time { return t.AddDate(0, i, 0) }, true
	default:
		return nil, false
	}
}

// Instances builds the generated records for parent. Each is a copy of the
// parent (timestamps included) with a fresh id from newID, the expanded start,
// an end preserving the parent's duration, and ParentID set to parent.ID.
func Instances(parent model.Event, newID func() string) []model.Event {
	starts := Expand(parent.Recurrence, parent.StartTime)
	if len(starts) == 0 {
		return nil
	}

	dur := parent.Duration()
	out := make([]model.Event, 0, len(starts))
	for _, s := range starts {
		inst := parent
		inst.ID = newID()
		inst.StartTime = s
		inst.EndTime = s.Add(dur)
		inst.ParentID = parent.ID
		out = append(out, inst)
	}
	return out
}
