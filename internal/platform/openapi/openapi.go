package openapi

import (
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

// Param is a query or path parameter.
type Param struct {
	Name        string
	In          string // query or path
	Type        string
	Description string
	Required    bool
}

// Operation describes one route. Request and Response name component
// schemas; either may be empty.
type Operation struct {
	Method   string
	Path     string // echo style, e.g. /api/v1/catalog/:key
	Summary  string
	Tag      string
	Params   []Param
	Request  string
	Response string
	// Errors maps status codes to descriptions; each is an Outcome.
	Errors map[int]string
}

// Generator builds an OpenAPI 3.0 document from registered operations.
type Generator struct {
	title   string
	version string
	ops     []Operation
	schemas map[string]interface{}
}

// NewGenerator creates a new OpenAPI spec generator. The Outcome error
// schema is always present.
func NewGenerator(title, version string) *Generator {
	return &Generator{
		title:   title,
		version: version,
		schemas: map[string]interface{}{"Outcome": buildOutcomeSchema()},
	}
}

// Add registers operations and the component schemas they reference.
func (g *Generator) Add(ops []Operation, schemas map[string]interface{}) {
	g.ops = append(g.ops, ops...)
	for name, s := range schemas {
		g.schemas[name] = s
	}
}

var pathParam = regexp.MustCompile(`:([A-Za-z_][A-Za-z0-9_]*)`)

// toOpenAPIPath converts /catalog/:key to /catalog/{key}.
func toOpenAPIPath(p string) string {
	return pathParam.ReplaceAllString(p, "{$1}")
}

// GenerateSpec produces the OpenAPI 3.0 spec as a map.
func (g *Generator) GenerateSpec() map[string]interface{} {
	paths := make(map[string]interface{})
	for _, op := range g.ops {
		p := toOpenAPIPath(op.Path)
		item, _ := paths[p].(map[string]interface{})
		if item == nil {
			item = make(map[string]interface{})
			paths[p] = item
		}
		item[strings.ToLower(op.Method)] = g.buildOperation(op)
	}

	return map[string]interface{}{
		"openapi": "3.0.3",
		"info": map[string]interface{}{
			"title":   g.title,
			"version": g.version,
		},
		"paths": paths,
		"components": map[string]interface{}{
			"schemas": g.schemas,
		},
	}
}

func (g *Generator) buildOperation(op Operation) map[string]interface{} {
	out := map[string]interface{}{
		"summary":     op.Summary,
		"operationId": operationID(op),
	}
	if op.Tag != "" {
		out["tags"] = []string{op.Tag}
	}

	var params []map[string]interface{}
	for _, m := range pathParam.FindAllStringSubmatch(op.Path, -1) {
		params = append(params, map[string]interface{}{
			"name": m[1], "in": "path", "required": true, "schema": map[string]string{"type": "string"},
		})
	}
	for _, p := range op.Params {
		typ := p.Type
		if typ == "" {
			typ = "string"
		}
		param := map[string]interface{}{
			"name": p.Name, "in": p.In, "required": p.Required, "schema": map[string]string{"type": typ},
		}
		if p.Description != "" {
			param["description"] = p.Description
		}
		params = append(params, param)
	}
	if len(params) > 0 {
		out["parameters"] = params
	}

	if op.Request != "" {
		out["requestBody"] = map[string]interface{}{
			"required": true,
			"content":  jsonContent(op.Request),
		}
	}

	responses := map[string]interface{}{}
	ok := map[string]interface{}{"description": "Success"}
	if op.Response != "" {
		ok["content"] = jsonContent(op.Response)
	}
	responses["200"] = ok
	for code, desc := range op.Errors {
		responses[strconv.Itoa(code)] = map[string]interface{}{
			"description": desc,
			"content":     jsonContent("Outcome"),
		}
	}
	out["responses"] = responses
	return out
}

func jsonContent(schema string) map[string]interface{} {
	return map[string]interface{}{
		"application/json": map[string]interface{}{
			"schema": map[string]interface{}{"$ref": "#/components/schemas/" + schema},
		},
	}
}

// operationID derives a stable id such as postApiV1EvaluationsBatch.
func operationID(op Operation) string {
	var b strings.Builder
	b.WriteString(strings.ToLower(op.Method))
	for _, seg := range strings.FieldsFunc(op.Path, func(r rune) bool { return r == '/' || r == ':' }) {
		b.WriteString(strings.ToUpper(seg[:1]) + seg[1:])
	}
	return b.String()
}

// Paths lists the documented paths, sorted.
func (g *Generator) Paths() []string {
	seen := map[string]bool{}
	var out []string
	for _, op := range g.ops {
		p := toOpenAPIPath(op.Path)
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

func buildOutcomeSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"issues": map[string]interface{}{
				"type": "array",
				"items": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"severity": map[string]interface{}{
							"type": "string",
							"enum": []string{"fatal", "error", "warning", "information"},
						},
						"code":        map[string]interface{}{"type": "string"},
						"diagnostics": map[string]interface{}{"type": "string"},
						"expression": map[string]interface{}{
							"type":  "array",
							"items": map[string]interface{}{"type": "string"},
						},
					},
					"required": []string{"severity", "code"},
				},
			},
		},
		"required": []string{"issues"},
	}
}

// RegisterRoutes serves the document at /openapi.json under apiGroup.
func (g *Generator) RegisterRoutes(apiGroup *echo.Group) {
	apiGroup.GET("/openapi.json", func(c echo.Context) error {
		return c.JSON(http.StatusOK, g.GenerateSpec())
	})
}
