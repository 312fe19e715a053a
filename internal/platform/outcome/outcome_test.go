package outcome

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

type sample struct {
	Sex string `json:"sex" validate:"required,oneof=male female"`
	Age int    `json:"age" validate:"gte=0,lte=130"`
}

func TestFromValidation_OneIssuePerField(t *testing.T) {
	v := validator.New()
	err := v.Struct(sample{Age: 200})
	if err == nil {
		t.Fatal("expected validation error")
	}

	o := FromValidation(err)
	if len(o.Issues) != 2 {
		t.Fatalf("expected 2 issues, got %d: %+v", len(o.Issues), o.Issues)
	}
	if o.Issues[0].Code != CodeRequired {
		t.Errorf("expected required code for Sex, got %q", o.Issues[0].Code)
	}
	if o.Issues[0].Expression[0] != "Sex" {
		t.Errorf("expected expression Sex, got %v", o.Issues[0].Expression)
	}
	if o.Issues[1].Code != CodeValue {
		t.Errorf("expected value code for Age, got %q", o.Issues[1].Code)
	}
	if !o.HasErrors() {
		t.Error("expected HasErrors")
	}
}

func TestFromValidation_PlainError(t *testing.T) {
	o := FromValidation(errors.New("boom"))
	if len(o.Issues) != 1 || o.Issues[0].Code != CodeInvalid {
		t.Fatalf("unexpected outcome: %+v", o)
	}
}

func TestHasErrors_WarningOnly(t *testing.T) {
	o := New(SeverityWarning, CodeIncomplete, "pending")
	if o.HasErrors() {
		t.Error("warnings alone should not count as errors")
	}
}

func TestErrorHandler_StringMessage(t *testing.T) {
	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler(zerolog.Nop())
	e.GET("/x", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "field not found")
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	var o Outcome
	if err := json.Unmarshal(rec.Body.Bytes(), &o); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if o.Issues[0].Code != CodeNotFound || o.Issues[0].Diagnostics != "field not found" {
		t.Errorf("unexpected issue: %+v", o.Issues[0])
	}
}

func TestErrorHandler_OutcomeMessage(t *testing.T) {
	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler(zerolog.Nop())
	e.GET("/x", func(c echo.Context) error {
		o := &Outcome{}
		o.Add(SeverityError, CodeIncomplete, "third measurement required", "tricepsFold")
		return echo.NewHTTPError(http.StatusUnprocessableEntity, o)
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	var o Outcome
	if err := json.Unmarshal(rec.Body.Bytes(), &o); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(o.Issues) != 1 || o.Issues[0].Expression[0] != "tricepsFold" {
		t.Errorf("unexpected outcome: %+v", o)
	}
}

func TestErrorHandler_PlainErrorIs500(t *testing.T) {
	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler(zerolog.Nop())
	e.GET("/x", func(c echo.Context) error { return errors.New("db down") })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}
