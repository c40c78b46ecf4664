package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventcal/internal/config"
	"eventcal/internal/model"
	"eventcal/internal/schedule"
	"eventcal/internal/storage"
	"eventcal/internal/store"
)

var testNow = time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, mutate ...func(*config.Config)) *Server {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.RateLimit = 0
	for _, m := range mutate {
		m(cfg)
	}

	b, err := storage.NewFileBackend(filepath.Join(t.TempDir(), "events.json"))
	require.NoError(t, err)
	reg := prometheus.NewRegistry()
	st := store.New(b, store.WithRegisterer(reg), store.WithClock(func() time.Time { return testNow }))

	s := NewServer(cfg, st, reg)
	s.now = func() time.Time { return testNow }
	return s
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

const weeklyBody = `{"title":"Team Meeting","description":"Weekly sync","startTime":"2025-01-15T12:30:00.000Z","endTime":"2025-01-15T13:30:00.000Z","recurrence":"weekly"}`

func TestCreateListAndGet(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/events", weeklyBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	parent := decode[model.Event](t, rec)
	assert.NotEmpty(t, parent.ID)
	assert.Empty(t, parent.ParentID)
	assert.Equal(t, model.RecurrenceWeekly, parent.Recurrence)

	rec = do(t, s, http.MethodGet, "/api/events", "")
	require.Equal(t, http.StatusOK, rec.Code)
	all := decode[[]model.Event](t, rec)
	require.Len(t, all, 1+schedule.InstanceCount)
	assert.Equal(t, parent.ID, all[0].ID, "list is ordered by start")
	for i := 1; i < len(all); i++ {
		assert.False(t, all[i].StartTime.Before(all[i-1].StartTime))
	}

	rec = do(t, s, http.MethodGet, "/api/events/"+parent.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Team Meeting", decode[model.Event](t, rec).Title)

	rec = do(t, s, http.MethodGet, "/api/events/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Event not found", decode[errorResponse](t, rec).Error)
}

func TestCreateValidation(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/events", `{"title":"x"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode[errorResponse](t, rec)
	assert.Equal(t, "Missing required fields", resp.Error)
	assert.NotEmpty(t, resp.Details)

	rec = do(t, s, http.MethodPost, "/api/events",
		`{"title":"x","description":"y","startTime":"2025-01-15T13:00:00Z","endTime":"2025-01-15T12:00:00Z"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "End time must be after start time", decode[errorResponse](t, rec).Error)

	rec = do(t, s, http.MethodPost, "/api/events",
		`{"title":"x","description":"y","startTime":"yesterday","endTime":"2025-01-15T12:00:00Z"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid event", decode[errorResponse](t, rec).Error)

	rec = do(t, s, http.MethodPost, "/api/events", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/events", "")
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
}

func TestUpdate(t *testing.T) {
	s := newTestServer(t)
	parent := decode[model.Event](t, do(t, s, http.MethodPost, "/api/events", weeklyBody))

	rec := do(t, s, http.MethodPut, "/api/events/"+parent.ID,
		`{"title":"Renamed","description":"d","startTime":"2025-02-01T09:00:00Z","endTime":"2025-02-01T10:00:00Z","recurrence":"none"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[model.Event](t, rec)
	assert.Equal(t, parent.ID, updated.ID)
	assert.Equal(t, "Renamed", updated.Title)
	assert.Equal(t, parent.CreatedAt, updated.CreatedAt)

	rec = do(t, s, http.MethodPut, "/api/events/missing", `{"title":""}`)
	assert.Equal(t, http.StatusNotFound, rec.Code, "unknown id wins over an invalid body")

	rec = do(t, s, http.MethodPut, "/api/events/"+parent.ID, `{"title":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteCascades(t *testing.T) {
	s := newTestServer(t)
	parent := decode[model.Event](t, do(t, s, http.MethodPost, "/api/events", weeklyBody))

	rec := do(t, s, http.MethodDelete, "/api/events/"+parent.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[deleteResponse](t, rec)
	assert.Equal(t, "Event deleted successfully", resp.Message)
	assert.Equal(t, parent.ID, resp.Event.ID)

	rec = do(t, s, http.MethodGet, "/api/events", "")
	assert.Empty(t, decode[[]model.Event](t, rec))

	rec = do(t, s, http.MethodDelete, "/api/events/"+parent.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSearchAndReminders(t *testing.T) {
	s := newTestServer(t)
	do(t, s, http.MethodPost, "/api/events", weeklyBody)
	do(t, s, http.MethodPost, "/api/events",
		`{"title":"Lunch","description":"tacos","startTime":"2025-01-15T14:00:00Z","endTime":"2025-01-15T15:00:00Z"}`)

	rec := do(t, s, http.MethodGet, "/api/events/search?q=meeting", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.Event](t, rec), 1+schedule.InstanceCount)

	rec = do(t, s, http.MethodGet, "/api/events/search", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Search query is required", decode[errorResponse](t, rec).Error)

	// testNow is 12:00; the meeting starts at 12:30 and lunch at 14:00.
	rec = do(t, s, http.MethodGet, "/api/events/reminders", "")
	require.Equal(t, http.StatusOK, rec.Code)
	due := decode[[]model.Event](t, rec)
	require.Len(t, due, 1)
	assert.Equal(t, "Team Meeting", due[0].Title)
}

func TestExportHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)
	do(t, s, http.MethodPost, "/api/events", weeklyBody)

	rec := do(t, s, http.MethodGet, "/api/events/export.ics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/calendar")
	assert.Equal(t, 1+schedule.InstanceCount, strings.Count(rec.Body.String(), "BEGIN:VEVENT"))

	rec = do(t, s, http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	health := decode[healthResponse](t, rec)
	assert.Equal(t, "OK", health.Status)
	assert.Equal(t, testNow, health.Timestamp)

	rec = do(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "eventcal_store_mutations_total")
	assert.Contains(t, rec.Body.String(), "eventcal_http_requests_total")

	rec = do(t, s, http.MethodGet, "/api/unknown", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotEmpty(t, decode[errorResponse](t, rec).Error)
}

func TestBasicAuth(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) {
		c.BasicAuth = &config.BasicAuthConfig{Username: "admin", Password: "secret"}
	})

	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/api/health", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, s, http.MethodGet, "/api/events", "").Code)

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req.SetBasicAuth("admin", "secret")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) { c.RateLimit = 1 })

	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/api/events", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(t, s, http.MethodGet, "/api/events", "").Code)
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/api/health", "").Code)
}

func TestMetricsCountRejectedAndFailedRequests(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) {
		c.BasicAuth = &config.BasicAuthConfig{Username: "admin", Password: "secret"}
	})
	s.echo.GET("/api/fail", func(echo.Context) error { return errors.New("boom") })

	assert.Equal(t, http.StatusUnauthorized, do(t, s, http.MethodGet, "/api/events", "").Code)

	req := httptest.NewRequest(http.MethodGet, "/api/fail", nil)
	req.SetBasicAuth("admin", "secret")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, http.StatusText(http.StatusInternalServerError), decode[errorResponse](t, rec).Error)

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.SetBasicAuth("admin", "secret")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `eventcal_http_requests_total{method="GET",path="/api/events",status="401"} 1`)
	assert.Contains(t, body, `eventcal_http_requests_total{method="GET",path="/api/fail",status="500"} 1`)
}

func TestResponseStatus(t *testing.T) {
	e := echo.New()
	newCtx := func() echo.Context {
		return e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	}

	assert.Equal(t, http.StatusOK, responseStatus(newCtx(), nil))
	assert.Equal(t, http.StatusNotFound, responseStatus(newCtx(), echo.ErrNotFound))
	assert.Equal(t, http.StatusUnauthorized, responseStatus(newCtx(), fmt.Errorf("auth: %w", echo.ErrUnauthorized)))
	assert.Equal(t, http.StatusInternalServerError, responseStatus(newCtx(), errors.New("boom")))

	c := newCtx()
	require.NoError(t, c.NoContent(http.StatusAccepted))
	assert.Equal(t, http.StatusAccepted, responseStatus(c, errors.New("late failure")))
}
