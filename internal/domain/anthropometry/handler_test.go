package anthropometry

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinic/anthropometry/internal/platform/outcome"
)

func newTestHandler() (*Handler, *echo.Echo) {
	svc, _ := newTestService()
	h := NewHandler(svc)
	e := echo.New()
	e.HTTPErrorHandler = outcome.ErrorHandler(zerolog.Nop())
	h.RegisterRoutes(e.Group("/api/v1"))
	return h, e
}

func serve(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeOutcome(t *testing.T, rec *httptest.ResponseRecorder) outcome.Outcome {
	t.Helper()
	var o outcome.Outcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &o), rec.Body.String())
	require.NotEmpty(t, o.Issues)
	return o
}

func TestListCatalog(t *testing.T) {
	_, e := newTestHandler()

	rec := serve(e, http.MethodGet, "/api/v1/catalog", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Groups []Group `json:"groups"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Groups, 5)

	rec = serve(e, http.MethodGet, "/api/v1/catalog?category=skinfold", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Groups, 1)
	assert.Len(t, body.Groups[0].Fields, 8)

	rec = serve(e, http.MethodGet, "/api/v1/catalog?category=weight", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListFields_Paginated(t *testing.T) {
	_, e := newTestHandler()

	rec := serve(e, http.MethodGet, "/api/v1/catalog/fields?limit=10&offset=40", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var page struct {
		Data    []Field `json:"data"`
		Total   int     `json:"total"`
		HasMore bool    `json:"has_more"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, 43, page.Total)
	assert.Len(t, page.Data, 3)
	assert.False(t, page.HasMore)
}

func TestGetField(t *testing.T) {
	_, e := newTestHandler()

	rec := serve(e, http.MethodGet, "/api/v1/catalog/femurDiameter", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var f Field
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &f))
	assert.Equal(t, CategoryDiameter, f.Category)

	rec = serve(e, http.MethodGet, "/api/v1/catalog/weight", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, outcome.CodeNotFound, decodeOutcome(t, rec).Issues[0].Code)
}

func TestReconcileHandler(t *testing.T) {
	_, e := newTestHandler()

	rec := serve(e, http.MethodPost, "/api/v1/reconcile",
		`{"field":"tricepsFold","observations":{"measurement1":"12","measurement2":14,"measurement3":13}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var m ReconciledMeasurement
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	assert.Equal(t, SourceMediated, m.Source)
	assert.Equal(t, 13.0, *m.Value)
}

func TestReconcileHandler_Errors(t *testing.T) {
	_, e := newTestHandler()

	rec := serve(e, http.MethodPost, "/api/v1/reconcile", `{"field":"weight","observations":{}}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(e, http.MethodPost, "/api/v1/reconcile", `{"observations":{}}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	o := decodeOutcome(t, rec)
	assert.Equal(t, outcome.CodeRequired, o.Issues[0].Code)
	assert.Equal(t, []string{"field"}, o.Issues[0].Expression)

	rec = serve(e, http.MethodPost, "/api/v1/reconcile", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEnterObservationHandler(t *testing.T) {
	_, e := newTestHandler()

	rec := serve(e, http.MethodPost, "/api/v1/reconcile/entry",
		`{"field":"waistCircumference","state":{"observations":{"measurement1":70}},"slot":2,"value":"75"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var st FieldEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.True(t, st.Result.NeedsThirdMeasurement)
	assert.Equal(t, At(75), st.Observations.Measurement2)

	rec = serve(e, http.MethodPost, "/api/v1/reconcile/entry", `{"field":"waistCircumference","slot":4,"value":"1"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, []string{"slot"}, decodeOutcome(t, rec).Issues[0].Expression)
}

func TestEvaluateHandler(t *testing.T) {
	_, e := newTestHandler()
	body := `{"patient_id":"p1","sex":"masculino","age":30,"observations":{"bodyMass":{"measurement1":70,"measurement2":70},"height":{"measurement1":175,"measurement2":175}}}`

	rec := serve(e, http.MethodPost, "/api/v1/evaluations", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var ev Evaluation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ev))
	assert.Equal(t, SexMale, ev.Sex)
	assertIndex(t, "bmi", 22.857142857, ev.Result.BMI)
	assert.Equal(t, "Peso normal", ev.Result.BMIClassification)
	assert.False(t, ev.Complete)

	rec = serve(e, http.MethodPost, "/api/v1/evaluations?strict=true", body)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	o := decodeOutcome(t, rec)
	assert.Len(t, o.Issues, 41)
	assert.Equal(t, outcome.CodeIncomplete, o.Issues[0].Code)
}

func TestEvaluateHandler_Validation(t *testing.T) {
	_, e := newTestHandler()

	rec := serve(e, http.MethodPost, "/api/v1/evaluations", `{"sex":"other","age":-1}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	o := decodeOutcome(t, rec)

	paths := map[string]bool{}
	for _, is := range o.Issues {
		paths[is.Expression[0]] = true
	}
	assert.True(t, paths["sex"])
	assert.True(t, paths["age"])
	assert.True(t, paths["observations"])

	rec = serve(e, http.MethodPost, "/api/v1/evaluations", `{"sex":"female","age":30,"observations":{"weight":{}}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEvaluateBatchHandler(t *testing.T) {
	_, e := newTestHandler()
	body := `{"items":[
		{"patient_id":"a","sex":"f","age":20,"observations":{}},
		{"patient_id":"b","sex":"male","age":60,"observations":{"height":{"measurement1":180,"measurement2":180}}}
	]}`

	rec := serve(e, http.MethodPost, "/api/v1/evaluations/batch", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out struct {
		Items []BatchItem `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out.Items, 2)
	assert.Equal(t, "a", out.Items[0].Evaluation.PatientID)
	assert.Equal(t, SexFemale, out.Items[0].Evaluation.Sex)
	assert.Equal(t, "b", out.Items[1].Evaluation.PatientID)

	rec = serve(e, http.MethodPost, "/api/v1/evaluations/batch?strict=true", body)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Contains(t, out.Items[0].Error, "incomplete")

	rec = serve(e, http.MethodPost, "/api/v1/evaluations/batch", `{"items":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEvaluateBatchHandler_TooLarge(t *testing.T) {
	_, e := newTestHandler()
	items := make([]string, 21)
	for i := range items {
		items[i] = `{"sex":"male","age":30,"observations":{}}`
	}

	rec := serve(e, http.MethodPost, "/api/v1/evaluations/batch", `{"items":[`+strings.Join(items, ",")+`]}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, outcome.CodeTooLarge, decodeOutcome(t, rec).Issues[0].Code)
}

func TestClassifyBMIHandler(t *testing.T) {
	_, e := newTestHandler()

	rec := serve(e, http.MethodPost, "/api/v1/bmi/classify", `{"bmi":25}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"bmi":25,"classification":"Sobrepeso grado I"}`, rec.Body.String())

	rec = serve(e, http.MethodPost, "/api/v1/bmi/classify", `{}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"bmi":null,"classification":"No disponible"}`, rec.Body.String())
}
