// Package outcome renders API errors as a list of issues, each with a
// severity, a machine-readable code and an optional location.
package outcome

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Issue severities.
const (
	SeverityFatal       = "fatal"
	SeverityError       = "error"
	SeverityWarning     = "warning"
	SeverityInformation = "information"
)

// Issue codes.
const (
	CodeInvalid      = "invalid"
	CodeRequired     = "required"
	CodeValue        = "value"
	CodeNotFound     = "not-found"
	CodeIncomplete   = "incomplete"
	CodeThrottled    = "throttled"
	CodeTooLarge     = "too-large"
	CodeTimeout      = "timeout"
	CodeNotSupported = "not-supported"
	CodeException    = "exception"
)

// Issue is a single problem report.
type Issue struct {
	Severity    string   `json:"severity"`
	Code        string   `json:"code"`
	Diagnostics string   `json:"diagnostics,omitempty"`
	Expression  []string `json:"expression,omitempty"`
}

// Outcome is the error envelope returned by the API.
type Outcome struct {
	Issues []Issue `json:"issues"`
}

// New returns an outcome with one issue.
func New(severity, code, diagnostics string) *Outcome {
	return &Outcome{Issues: []Issue{{Severity: severity, Code: code, Diagnostics: diagnostics}}}
}

// Add appends an issue located at expression (may be empty).
func (o *Outcome) Add(severity, code, diagnostics, expression string) *Outcome {
	is := Issue{Severity: severity, Code: code, Diagnostics: diagnostics}
	if expression != "" {
		is.Expression = []string{expression}
	}
	o.Issues = append(o.Issues, is)
	return o
}

// HasErrors reports whether any issue is an error or fatal.
func (o *Outcome) HasErrors() bool {
	for _, is := range o.Issues {
		if is.Severity == SeverityError || is.Severity == SeverityFatal {
			return true
		}
	}
	return false
}

// FromValidation maps validator errors to one issue per failing field. Any
// other error becomes a single invalid issue.
func FromValidation(err error) *Outcome {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return New(SeverityError, CodeInvalid, err.Error())
	}
	o := &Outcome{}
	for _, fe := range verrs {
		code := CodeValue
		if fe.Tag() == "required" {
			code = CodeRequired
		}
		o.Add(SeverityError, code, describe(fe), jsonPath(fe))
	}
	return o
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param())
	case "gte", "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "lte", "max":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	}
	return fmt.Sprintf("%s failed %q validation", fe.Field(), fe.Tag())
}

// jsonPath drops the root struct name from the validator namespace.
func jsonPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

// codeForStatus picks the issue code for a bare HTTP error.
func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return CodeInvalid
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusMethodNotAllowed:
		return CodeNotSupported
	case http.StatusRequestEntityTooLarge:
		return CodeTooLarge
	case http.StatusTooManyRequests:
		return CodeThrottled
	case http.StatusGatewayTimeout:
		return CodeTimeout
	case http.StatusUnprocessableEntity:
		return CodeIncomplete
	}
	return CodeException
}

// ErrorHandler renders every error returned by a handler as an Outcome.
// An *echo.HTTPError whose message is already an *Outcome is sent as is.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		var body *Outcome

		var he *echo.HTTPError
		if errors.As(err, &he) {
			status = he.Code
			switch m := he.Message.(type) {
			case *Outcome:
				body = m
			case string:
				body = New(SeverityError, codeForStatus(status), m)
			default:
				body = New(SeverityError, codeForStatus(status), fmt.Sprintf("%v", m))
			}
		} else {
			body = New(SeverityError, CodeException, "internal server error")
		}

		if status >= http.StatusInternalServerError {
			logger.Error().Err(err).Str("path", c.Request().URL.Path).Msg("request failed")
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, body)
		}
		if err != nil {
			logger.Error().Err(err).Msg("failed to write error response")
		}
	}
}
