package anthropometry

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/clinic/anthropometry/internal/platform/outcome"
	"github.com/clinic/anthropometry/pkg/pagination"
)

type Handler struct {
	svc      *Service
	validate *validator.Validate
}

func NewHandler(svc *Service) *Handler {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{svc: svc, validate: v}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/catalog", h.ListCatalog)
	api.GET("/catalog/fields", h.ListFields)
	api.GET("/catalog/:key", h.GetField)

	api.POST("/reconcile", h.Reconcile)
	api.POST("/reconcile/entry", h.EnterObservation)

	api.POST("/evaluations", h.Evaluate)
	api.POST("/evaluations/batch", h.EvaluateBatch)

	api.POST("/bmi/classify", h.ClassifyBMI)
}

type reconcileRequest struct {
	Field        string            `json:"field" validate:"required"`
	Observations RawObservationSet `json:"observations"`
}

type entryRequest struct {
	Field string     `json:"field" validate:"required"`
	State FieldEntry `json:"state"`
	Slot  int        `json:"slot" validate:"required,min=1,max=3"`
	Value string     `json:"value"`
}

type batchRequest struct {
	Items []*EvaluationRequest `json:"items" validate:"required,min=1,dive"`
}

type batchResponse struct {
	Items []BatchItem `json:"items"`
}

type classifyRequest struct {
	BMI *float64 `json:"bmi"`
}

type classifyResponse struct {
	BMI            *float64 `json:"bmi"`
	Classification string   `json:"classification"`
}

// -- Catalog --

func (h *Handler) ListCatalog(c echo.Context) error {
	cat := Category(c.QueryParam("category"))
	if cat != "" && !cat.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown category: "+string(cat))
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"groups": h.svc.Catalog().GroupsOf(cat)})
}

func (h *Handler) ListFields(c echo.Context) error {
	pg := pagination.FromContext(c)
	fields := h.svc.Catalog().Fields()
	start, end := pg.Window(len(fields))
	return c.JSON(http.StatusOK, pagination.NewResponse(fields[start:end], len(fields), pg.Limit, pg.Offset))
}

func (h *Handler) GetField(c echo.Context) error {
	f, ok := h.svc.Catalog().Field(c.Param("key"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "field not found")
	}
	return c.JSON(http.StatusOK, f)
}

// -- Reconciliation --

func (h *Handler) Reconcile(c echo.Context) error {
	var req reconcileRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}
	m, err := h.svc.ReconcileField(req.Field, req.Observations)
	if err != nil {
		return fieldError(err, req.Field)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) EnterObservation(c echo.Context) error {
	var req entryRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}
	next, err := h.svc.Enter(req.Field, req.State, req.Slot, req.Value)
	if err != nil {
		return fieldError(err, req.Field)
	}
	return c.JSON(http.StatusOK, next)
}

// -- Evaluations --

func (h *Handler) Evaluate(c echo.Context) error {
	var req EvaluationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req.Sex = normalizeSex(req.Sex)
	if err := h.validate.Struct(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, outcome.FromValidation(err))
	}
	if c.QueryParam("strict") == "true" {
		req.Strict = true
	}

	ev, err := h.svc.Evaluate(c.Request().Context(), &req)
	if err != nil {
		return evaluationError(err)
	}
	return c.JSON(http.StatusOK, ev)
}

func (h *Handler) EvaluateBatch(c echo.Context) error {
	var req batchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	for _, item := range req.Items {
		if item != nil {
			item.Sex = normalizeSex(item.Sex)
		}
	}
	if err := h.validate.Struct(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, outcome.FromValidation(err))
	}
	if c.QueryParam("strict") == "true" {
		for _, item := range req.Items {
			if item != nil {
				item.Strict = true
			}
		}
	}

	items, err := h.svc.EvaluateBatch(c.Request().Context(), req.Items)
	if err != nil {
		if errors.Is(err, ErrBatchTooLarge) {
			return echo.NewHTTPError(http.StatusRequestEntityTooLarge, err.Error())
		}
		return err
	}
	return c.JSON(http.StatusOK, batchResponse{Items: items})
}

// -- BMI --

func (h *Handler) ClassifyBMI(c echo.Context) error {
	var req classifyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, classifyResponse{BMI: req.BMI, Classification: ClassifyBMI(req.BMI)})
}

func (h *Handler) bind(c echo.Context, dst interface{}) error {
	if err := c.Bind(dst); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.validate.Struct(dst); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, outcome.FromValidation(err))
	}
	return nil
}

// normalizeSex maps recognised aliases ("F", "masculino") onto a Sex and
// leaves anything else for validation to reject.
func normalizeSex(s Sex) Sex {
	if p := ParseSex(string(s)); p != SexUnknown {
		return p
	}
	return Sex(strings.ToLower(strings.TrimSpace(string(s))))
}

func fieldError(err error, field string) error {
	switch {
	case errors.Is(err, ErrUnknownField):
		return echo.NewHTTPError(http.StatusNotFound, "field not found: "+field)
	case errors.Is(err, ErrInvalidSlot):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return err
}

func evaluationError(err error) error {
	var inc *IncompleteSetError
	switch {
	case errors.As(err, &inc):
		o := &outcome.Outcome{}
		for _, k := range inc.Missing {
			o.Add(outcome.SeverityError, outcome.CodeIncomplete, "measurement missing", "observations."+k)
		}
		for _, k := range inc.PendingThird {
			o.Add(outcome.SeverityError, outcome.CodeIncomplete, "third measurement required", "observations."+k)
		}
		return echo.NewHTTPError(http.StatusUnprocessableEntity, o)
	case errors.Is(err, ErrUnknownField):
		return echo.NewHTTPError(http.StatusBadRequest,
			outcome.New(outcome.SeverityError, outcome.CodeInvalid, err.Error()))
	}
	return err
}
