package ics

import (
	"time"

	ical "github.com/arran4/golang-ical"

	"eventcal/internal/model"
	"eventcal/internal/schedule"
)

const productID = "-//eventcal//eventcal//EN"

// Export renders events as a VCALENDAR. Every stored record, generated
// instances included, becomes its own VEVENT because the stored instances are
// authoritative (a deleted instance must not reappear through an RRULE).
// Instances carry RELATED-TO pointing at their parent's UID.
func Export(events []model.Event, now time.Time) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)

	for _, e := range schedule.SortedByStart(events) {
		ve := cal.AddEvent(UID(e.ID))
		ve.SetDtStampTime(now.UTC())
		ve.SetCreatedTime(e.CreatedAt.UTC())
		ve.SetModifiedAt(e.UpdatedAt.UTC())
		ve.SetStartAt(e.StartTime.UTC())
		ve.SetEndAt(e.EndTime.UTC())
		ve.SetSummary(e.Title)
		ve.SetDescription(e.Description)
		if e.Recurrence != "" && e.Recurrence != model.RecurrenceNone {
			ve.SetProperty(ical.ComponentProperty("X-EVENTCAL-RECURRENCE"), string(e.Recurrence))
		}
		if e.IsInstance() {
			ve.SetProperty(ical.ComponentProperty("RELATED-TO"), UID(e.ParentID))
		}
	}

	return cal.Serialize()
}

// UID is the iCalendar UID used for an event id.
func UID(id string) string {
	return id + "@eventcal"
}
