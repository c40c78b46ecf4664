package web

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"eventcal/internal/ics"
	appLog "eventcal/internal/log"
	"eventcal/internal/model"
	"eventcal/internal/schedule"
)

type errorResponse struct {
	Error   string           `json:"error"`
	Details model.Violations `json:"details,omitempty"`
}

type deleteResponse struct {
	Message string      `json:"message"`
	Event   model.Event `json:"event"`
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) registerRoutes() {
	s.echo.GET("/api/health", s.handleHealth)

	g := s.echo.Group("/api/events")
	g.GET("", s.handleList)
	g.POST("", s.handleCreate)
	g.GET("/search", s.handleSearch)
	g.GET("/reminders", s.handleReminders)
	g.GET("/export.ics", s.handleExport)
	g.GET("/:id", s.handleGet)
	g.PUT("/:id", s.handleUpdate)
	g.DELETE("/:id", s.handleDelete)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{Status: "OK", Timestamp: s.now().UTC()})
}

// handleList returns every record, generated instances included, ordered by
// start time.
func (s *Server) handleList(c echo.Context) error {
	events := s.store.ListAll(c.Request().Context())
	return c.JSON(http.StatusOK, schedule.SortedByStart(events))
}

func (s *Server) handleSearch(c echo.Context) error {
	var req searchRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, http.StatusBadRequest, "Search query is required")
	}
	if err := c.Validate(&req); err != nil {
		return writeError(c, http.StatusBadRequest, "Search query is required")
	}

	found, err := schedule.Search(s.store.ListAll(c.Request().Context()), req.Q)
	if err != nil {
		return s.fail(c, err, "Failed to search events")
	}
	return c.JSON(http.StatusOK, found)
}

func (s *Server) handleReminders(c echo.Context) error {
	due := schedule.Reminders(s.store.ListAll(c.Request().Context()), s.now())
	return c.JSON(http.StatusOK, schedule.SortedByStart(due))
}

func (s *Server) handleExport(c echo.Context) error {
	body := ics.Export(s.store.ListAll(c.Request().Context()), s.now())
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="events.ics"`)
	return c.Blob(http.StatusOK, "text/calendar; charset=utf-8", []byte(body))
}

func (s *Server) handleGet(c echo.Context) error {
	ev, err := s.store.GetByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.fail(c, err, "Failed to retrieve event")
	}
	return c.JSON(http.StatusOK, ev)
}

// handleCreate stores a new event and returns the parent record only; the
// generated instances are visible through the list endpoints.
func (s *Server) handleCreate(c echo.Context) error {
	in, err := bindInput(c)
	if err != nil {
		return s.fail(c, err, "Failed to create event")
	}
	ev, err := s.store.Insert(c.Request().Context(), in)
	if err != nil {
		return s.fail(c, err, "Failed to create event")
	}
	return c.JSON(http.StatusCreated, ev)
}

func (s *Server) handleUpdate(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	in, err := bindInput(c)
	if err != nil {
		// Unknown ids answer 404 before the body is judged.
		if _, gerr := s.store.GetByID(ctx, id); errors.Is(gerr, model.ErrNotFound) {
			return s.fail(c, gerr, "Failed to update event")
		}
		return s.fail(c, err, "Failed to update event")
	}
	ev, err := s.store.Update(ctx, id, in)
	if err != nil {
		return s.fail(c, err, "Failed to update event")
	}
	return c.JSON(http.StatusOK, ev)
}

func (s *Server) handleDelete(c echo.Context) error {
	ev, err := s.store.Delete(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.fail(c, err, "Failed to delete event")
	}
	return c.JSON(http.StatusOK, deleteResponse{Message: "Event deleted successfully", Event: ev})
}

func bindInput(c echo.Context) (model.Input, error) {
	var req eventRequest
	if err := c.Bind(&req); err != nil {
		return model.Input{}, model.NewValidationError("body", "must be a JSON object")
	}
	if err := c.Validate(&req); err != nil {
		return model.Input{}, err
	}
	return req.toInput()
}

// fail maps a store error onto the HTTP status and body clients expect.
// internalMsg is used for storage failures, whose details are only logged.
func (s *Server) fail(c echo.Context, err error, internalMsg string) error {
	var verr *model.ValidationError
	switch {
	case errors.As(err, &verr):
		return c.JSON(http.StatusBadRequest, errorResponse{
			Error:   validationMessage(verr.Violations),
			Details: verr.Violations,
		})
	case errors.Is(err, model.ErrNotFound):
		return writeError(c, http.StatusNotFound, "Event not found")
	default:
		appLog.Error(internalMsg, err, "path", c.Path(), "id", c.Param("id"))
		return writeError(c, http.StatusInternalServerError, internalMsg)
	}
}

// validationMessage summarizes violations the way the web client displays
// them: missing fields first, then time ordering.
func validationMessage(v model.Violations) string {
	ordering := false
	for _, x := range v {
		if x.Message == "is required" {
			return "Missing required fields"
		}
		if x.Field == "endTime" && x.Message == "must be after start time" {
			ordering = true
		}
	}
	if ordering {
		return "End time must be after start time"
	}
	return "Invalid event"
}

func writeError(c echo.Context, status int, msg string) error {
	return c.JSON(status, errorResponse{Error: msg})
}

// errorHandler renders errors that escape the handlers (unknown routes, auth
// failures, panics) in the same {"error": ...} shape.
func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	msg := http.StatusText(status)

	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		if m, ok := he.Message.(string); ok {
			msg = m
		} else {
			msg = http.StatusText(status)
		}
	} else {
		appLog.Error("unhandled HTTP error", err, "path", c.Request().URL.Path)
	}

	var werr error
	if c.Request().Method == http.MethodHead {
		werr = c.NoContent(status)
	} else {
		werr = writeError(c, status, msg)
	}
	if werr != nil {
		appLog.Error("write error response", werr)
	}
}
