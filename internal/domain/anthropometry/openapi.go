package anthropometry

import (
	"net/http"
	"strings"

	"github.com/clinic/anthropometry/internal/platform/openapi"
)

// Operations documents the routes RegisterRoutes mounts under prefix.
func (h *Handler) Operations(prefix string) []openapi.Operation {
	badRequest := map[int]string{http.StatusBadRequest: "Invalid request"}
	return []openapi.Operation{
		{Method: http.MethodGet, Path: prefix + "/catalog", Summary: "List field groups", Tag: "catalog",
			Params:   []openapi.Param{{Name: "category", In: "query", Description: "basic_data, skinfold, circumference, length or diameter"}},
			Response: "CatalogGroups", Errors: badRequest},
		{Method: http.MethodGet, Path: prefix + "/catalog/fields", Summary: "List fields", Tag: "catalog",
			Params: []openapi.Param{
				{Name: "limit", In: "query", Type: "integer"},
				{Name: "offset", In: "query", Type: "integer"},
			},
			Response: "FieldPage"},
		{Method: http.MethodGet, Path: prefix + "/catalog/:key", Summary: "Get a field", Tag: "catalog",
			Response: "Field", Errors: map[int]string{http.StatusNotFound: "Unknown field"}},
		{Method: http.MethodPost, Path: prefix + "/reconcile", Summary: "Reconcile one field", Tag: "reconciliation",
			Request: "ReconcileRequest", Response: "ReconciledMeasurement",
			Errors: map[int]string{http.StatusBadRequest: "Invalid request", http.StatusNotFound: "Unknown field"}},
		{Method: http.MethodPost, Path: prefix + "/reconcile/entry", Summary: "Apply one observation to a field", Tag: "reconciliation",
			Request: "EntryRequest", Response: "FieldEntry",
			Errors: map[int]string{http.StatusBadRequest: "Invalid request", http.StatusNotFound: "Unknown field"}},
		{Method: http.MethodPost, Path: prefix + "/evaluations", Summary: "Evaluate one patient", Tag: "evaluation",
			Params:  []openapi.Param{{Name: "strict", In: "query", Type: "boolean", Description: "reject incomplete measurement sets"}},
			Request: "EvaluationRequest", Response: "Evaluation",
			Errors: map[int]string{http.StatusBadRequest: "Invalid request", http.StatusUnprocessableEntity: "Measurement set incomplete"}},
		{Method: http.MethodPost, Path: prefix + "/evaluations/batch", Summary: "Evaluate several patients", Tag: "evaluation",
			Params:  []openapi.Param{{Name: "strict", In: "query", Type: "boolean"}},
			Request: "BatchRequest", Response: "BatchResponse",
			Errors: map[int]string{http.StatusBadRequest: "Invalid request", http.StatusRequestEntityTooLarge: "Batch too large"}},
		{Method: http.MethodPost, Path: prefix + "/bmi/classify", Summary: "Classify a BMI value", Tag: "evaluation",
			Request: "ClassifyRequest", Response: "ClassifyResponse", Errors: badRequest},
	}
}

type schema = map[string]interface{}

func ref(name string) schema { return schema{"$ref": "#/components/schemas/" + name} }

func object(props schema, required ...string) schema {
	s := schema{"type": "object", "properties": props}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func arrayOf(items schema) schema { return schema{"type": "array", "items": items} }

var (
	str      = schema{"type": "string"}
	num      = schema{"type": "number", "nullable": true}
	integer  = schema{"type": "integer"}
	boolean  = schema{"type": "boolean"}
	strArray = arrayOf(str)
)

// Schemas returns the component schemas referenced by Operations.
func Schemas() map[string]interface{} {
	reading := schema{"type": "number", "nullable": true, "minimum": 0}
	indexProps := schema{}
	composition := schema{}
	for name := range (&AnthropometricResult{}).Indices() {
		if compositionIndex(name) {
			composition[name] = num
		} else {
			indexProps[name] = num
		}
	}
	indexProps["bmi_classification"] = str
	indexProps["body_composition"] = object(composition)

	return map[string]interface{}{
		"Field": object(schema{
			"key":      str,
			"label":    str,
			"category": schema{"type": "string", "enum": []string{"basic_data", "skinfold", "circumference", "length", "diameter"}},
			"unit":     str,
		}, "key", "category", "unit"),
		"CatalogGroups": object(schema{
			"groups": arrayOf(object(schema{"title": str, "category": str, "fields": arrayOf(ref("Field"))})),
		}),
		"FieldPage": object(schema{
			"data": arrayOf(ref("Field")), "total": integer, "limit": integer, "offset": integer, "has_more": boolean,
		}),
		"RawObservationSet": object(schema{"measurement1": reading, "measurement2": reading, "measurement3": reading}),
		"ReconciledMeasurement": object(schema{
			"value":                   num,
			"needs_third_measurement": boolean,
			"source":                  schema{"type": "string", "enum": []string{"pending_second", "averaged", "mediated"}},
			"diff_pct":                num,
		}, "value", "needs_third_measurement", "source"),
		"FieldEntry": object(schema{"observations": ref("RawObservationSet"), "result": ref("ReconciledMeasurement")}),
		"ReconcileRequest": object(schema{"field": str, "observations": ref("RawObservationSet")}, "field"),
		"EntryRequest": object(schema{
			"field": str, "state": ref("FieldEntry"),
			"slot":  schema{"type": "integer", "minimum": 1, "maximum": 3},
			"value": str,
		}, "field", "slot"),
		"EvaluationRequest": object(schema{
			"patient_id":   str,
			"sex":          schema{"type": "string", "enum": []string{"male", "female", "unknown"}},
			"age":          schema{"type": "integer", "minimum": 0, "maximum": 130},
			"observations": schema{"type": "object", "additionalProperties": ref("RawObservationSet")},
			"strict":       boolean,
		}, "sex", "observations"),
		"AnthropometricResult": object(indexProps),
		"Evaluation": object(schema{
			"id":             schema{"type": "string", "format": "uuid"},
			"patient_id":     str,
			"sex":            str,
			"age":            integer,
			"measurements":   schema{"type": "object", "additionalProperties": ref("ReconciledMeasurement")},
			"result":         ref("AnthropometricResult"),
			"complete":       boolean,
			"missing":        strArray,
			"pending_third":  strArray,
			"absent_indices": strArray,
			"evaluated_at":   schema{"type": "string", "format": "date-time"},
		}),
		"BatchRequest": object(schema{"items": arrayOf(ref("EvaluationRequest"))}, "items"),
		"BatchResponse": object(schema{
			"items": arrayOf(object(schema{"index": integer, "evaluation": ref("Evaluation"), "error": str})),
		}),
		"ClassifyRequest":  object(schema{"bmi": num}),
		"ClassifyResponse": object(schema{"bmi": num, "classification": str}),
	}
}

func compositionIndex(name string) bool {
	return strings.HasPrefix(name, "fat_mass_") ||
		strings.HasPrefix(name, "bone_mass_") ||
		strings.HasPrefix(name, "skeletal_muscle_mass_")
}
