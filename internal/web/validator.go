package web

import (
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"eventcal/internal/model"
)

// eventRequest is the JSON body accepted by create and update. Times arrive
// as ISO-8601 strings so that a missing or malformed value is reported as a
// field violation rather than a decoding failure.
type eventRequest struct {
	Title       string `json:"title" validate:"required"`
	Description string `json:"description" validate:"required"`
	StartTime   string `json:"startTime" validate:"required,datetime=2006-01-02T15:04:05Z07:00"`
	EndTime     string `json:"endTime" validate:"required,datetime=2006-01-02T15:04:05Z07:00"`
	Recurrence  string `json:"recurrence" validate:"omitempty,max=32"`
}

// toInput assumes the request already passed validation.
func (r eventRequest) toInput() (model.Input, error) {
	start, err := time.Parse(time.RFC3339, r.StartTime)
	if err != nil {
		return model.Input{}, model.NewValidationError("startTime", "must be an ISO-8601 timestamp")
	}
	end, err := time.Parse(time.RFC3339, r.EndTime)
	if err != nil {
		return model.Input{}, model.NewValidationError("endTime", "must be an ISO-8601 timestamp")
	}
	return model.Input{
		Title:       r.Title,
		Description: r.Description,
		StartTime:   start,
		EndTime:     end,
		Recurrence:  model.Recurrence(r.Recurrence),
	}, nil
}

type searchRequest struct {
	Q string `query:"q" json:"q" validate:"required"`
}

// requestValidator adapts go-playground/validator to echo and reports
// failures as model violations keyed by JSON field name.
type requestValidator struct {
	validate *validator.Validate
}

func newValidator() *requestValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &requestValidator{validate: v}
}

func (rv *requestValidator) Validate(i interface{}) error {
	err := rv.validate.Struct(i)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	out := make(model.Violations, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, model.Violation{Field: fe.Field(), Message: violationMessage(fe)})
	}
	return out.Err()
}

func violationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "datetime":
		return "must be an ISO-8601 timestamp"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	default:
		return "is invalid"
	}
}
