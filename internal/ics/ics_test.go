package ics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventcal/internal/model"
)

const sampleICS = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//test//test//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:standup@test\r\n" +
	"DTSTAMP:20250101T000000Z\r\n" +
	"DTSTART:20250106T090000Z\r\n" +
	"DTEND:20250106T091500Z\r\n" +
	"SUMMARY:Standup\r\n" +
	"DESCRIPTION:Daily sync\\, quick\r\n" +
	"RRULE:FREQ=DAILY\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:biweekly@test\r\n" +
	"DTSTAMP:20250101T000000Z\r\n" +
	"DTSTART:20250107T140000Z\r\n" +
	"DTEND:20250107T150000Z\r\n" +
	"SUMMARY:Planning\r\n" +
	"RRULE:FREQ=WEEKLY;INTERVAL=2\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:holiday@test\r\n" +
	"DTSTAMP:20250101T000000Z\r\n" +
	"DTSTART;VALUE=DATE:20250120\r\n" +
	"SUMMARY:Holiday\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:nosummary@test\r\n" +
	"DTSTAMP:20250101T000000Z\r\n" +
	"DTSTART:20250108T090000Z\r\n" +
	"DTEND:20250108T100000Z\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func TestParseICS(t *testing.T) {
	res, err := ParseICS([]byte(sampleICS))
	require.NoError(t, err)

	require.Len(t, res.Inputs, 3)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "nosummary@test", res.Skipped[0].UID)

	standup := res.Inputs[0]
	assert.Equal(t, "Standup", standup.Title)
	assert.Equal(t, "Daily sync, quick", standup.Description)
	assert.Equal(t, model.RecurrenceDaily, standup.Recurrence)
	assert.True(t, time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC).Equal(standup.StartTime))
	assert.Equal(t, 15*time.Minute, standup.EndTime.Sub(standup.StartTime))

	planning := res.Inputs[1]
	assert.Equal(t, model.RecurrenceNone, planning.Recurrence, "interval 2 cannot be represented")
	assert.Equal(t, "Planning", planning.Description, "description falls back to the title")

	holiday := res.Inputs[2]
	assert.Equal(t, 24*time.Hour, holiday.EndTime.Sub(holiday.StartTime))
	assert.Empty(t, holiday.Validate())
}

func TestParseICSRejectsEmptyBody(t *testing.T) {
	_, err := ParseICS(nil)
	assert.Error(t, err)
}

func TestExportRoundTrip(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	start := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	events := []model.Event{
		{ID: "child", Title: "Review", Description: "weekly", StartTime: start.AddDate(0, 0, 7), EndTime: start.AddDate(0, 0, 7).Add(time.Hour), Recurrence: model.RecurrenceWeekly, ParentID: "parent", CreatedAt: now, UpdatedAt: now},
		{ID: "parent", Title: "Review", Description: "weekly", StartTime: start, EndTime: start.Add(time.Hour), Recurrence: model.RecurrenceWeekly, CreatedAt: now, UpdatedAt: now},
	}

	out := Export(events, now)
	assert.Contains(t, out, "BEGIN:VCALENDAR")
	assert.Contains(t, out, "UID:parent@eventcal")
	assert.Contains(t, out, "RELATED-TO:parent@eventcal")
	assert.Contains(t, out, "X-EVENTCAL-RECURRENCE:weekly")
	assert.NotContains(t, out, "RRULE")
	assert.Less(t, strings.Index(out, "UID:parent@eventcal"), strings.Index(out, "UID:child@eventcal"))

	res, err := ParseICS([]byte(out))
	require.NoError(t, err)
	require.Len(t, res.Inputs, 2)
	assert.True(t, start.Equal(res.Inputs[0].StartTime))
	assert.Equal(t, "Review", res.Inputs[0].Title)
	assert.Equal(t, model.RecurrenceNone, res.Inputs[0].Recurrence)
}

func TestExportRoundTripKeepsSpecialCharacters(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	start := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	title := `C:\new, draft; v2`
	description := "line one\nline two; a,b \\ c"
	events := []model.Event{{
		ID: "odd", Title: title, Description: description,
		StartTime: start, EndTime: start.Add(time.Hour),
		Recurrence: model.RecurrenceNone, CreatedAt: now, UpdatedAt: now,
	}}

	res, err := ParseICS([]byte(Export(events, now)))
	require.NoError(t, err)
	require.Len(t, res.Inputs, 1)
	assert.Equal(t, title, res.Inputs[0].Title)
	assert.Equal(t, description, res.Inputs[0].Description)
}

func TestFetchFileAndHTTP(t *testing.T) {
	ctx := context.Background()
	f := NewFetcher()

	path := filepath.Join(t.TempDir(), "cal.ics")
	require.NoError(t, os.WriteFile(path, []byte(sampleICS), 0o600))
	body, err := f.Fetch(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, sampleICS, string(body))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/cal.ics" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/calendar")
		_, _ = w.Write([]byte(sampleICS))
	}))
	defer srv.Close()

	body, err = f.Fetch(ctx, srv.URL+"/cal.ics")
	require.NoError(t, err)
	assert.Equal(t, sampleICS, string(body))

	_, err = f.Fetch(ctx, srv.URL+"/missing.ics")
	assert.Error(t, err)

	_, err = f.Fetch(ctx, "")
	assert.Error(t, err)
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "https://example.com/...(redacted)", redactURL("https://example.com/private/abc.ics?token=x"))
	assert.Equal(t, "https://example.com/...(redacted)", redactURL("https://example.com"))
	assert.Equal(t, "ics://...(redacted)", redactURL("not a url"))
}
