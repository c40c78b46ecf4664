package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	appLog "eventcal/internal/log"
	"eventcal/internal/model"
)

// Skipped describes a VEVENT that could not be turned into an event.
type Skipped struct {
	UID    string
	Reason string
}

// ParseResult is the outcome of reading one ICS payload.
type ParseResult struct {
	Inputs  []model.Input
	Skipped []Skipped
}

// ParseICS converts the VEVENTs of an ICS payload into event inputs.
//
//   - SUMMARY becomes the title; DESCRIPTION the description, falling back
//     to the title when absent since both are required.
//   - All-day events span [DTSTART, DTSTART+24h) unless DTEND says otherwise.
//   - RRULE with FREQ=DAILY/WEEKLY/MONTHLY and INTERVAL=1 maps onto the
//     matching recurrence; any other rule imports the first occurrence only.
//   - RECURRENCE-ID overrides are skipped: instances are regenerated from the
//     parent on insert.
func ParseICS(body []byte) (ParseResult, error) {
	var res ParseResult
	if len(body) == 0 {
		return res, errors.New("empty ICS body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return res, fmt.Errorf("ics parse: %w", err)
	}

	for _, ve := range cal.Events() {
		in, perr := parseVEvent(ve)
		if perr != nil {
			uid := ""
			if p := ve.GetProperty(ical.ComponentPropertyUniqueId); p != nil {
				uid = p.Value
			}
			appLog.Debug("ics vevent skipped", "uid", uid, "reason", perr.Error())
			res.Skipped = append(res.Skipped, Skipped{UID: uid, Reason: perr.Error()})
			continue
		}
		res.Inputs = append(res.Inputs, in)
	}

	appLog.Info("ics parse completed", "event_count", len(res.Inputs), "skipped", len(res.Skipped))
	return res, nil
}

func parseVEvent(ve *ical.VEvent) (model.Input, error) {
	var in model.Input

	if ve.GetProperty("RECURRENCE-ID") != nil {
		return in, errors.New("recurrence override")
	}

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		in.Title = p.Value
	}
	if strings.TrimSpace(in.Title) == "" {
		return in, errors.New("missing SUMMARY")
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		in.Description = p.Value
	}
	if strings.TrimSpace(in.Description) == "" {
		in.Description = in.Title
	}

	start, err := ve.GetStartAt()
	if err != nil {
		return in, fmt.Errorf("DTSTART: %w", err)
	}
	end, err := ve.GetEndAt()
	if err != nil || !end.After(start) {
		if !isAllDay(ve) {
			return in, errors.New("missing or invalid DTEND")
		}
		end = start.Add(24 * time.Hour)
	}
	in.StartTime = start
	in.EndTime = end

	in.Recurrence = model.RecurrenceNone
	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		in.Recurrence = recurrenceFromRRule(p.Value)
	}

	return in, nil
}

// recurrenceFromRRule maps the subset of RRULE this calendar can represent.
func recurrenceFromRRule(raw string) model.Recurrence {
	opt, err := rrule.StrToROption(raw)
	if err != nil {
		appLog.Debug("ics rrule not understood", "rrule", raw)
		return model.RecurrenceNone
	}
	if opt.Interval > 1 || len(opt.Byweekday) > 1 || len(opt.Bymonthday) > 0 {
		return model.RecurrenceNone
	}
	switch opt.Freq {
	case rrule.DAILY:
		return model.RecurrenceDaily
	case rrule.WEEKLY:
		return model.RecurrenceWeekly
	case rrule.MONTHLY:
		return model.RecurrenceMonthly
	default:
		return model.RecurrenceNone
	}
}

func isAllDay(ve *ical.VEvent) bool {
	p := ve.GetProperty(ical.ComponentPropertyDtStart)
	if p == nil {
		return false
	}
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}
