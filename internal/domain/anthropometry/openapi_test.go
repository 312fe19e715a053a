package anthropometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperations_CoverRegisteredRoutes(t *testing.T) {
	h, e := newTestHandler()

	documented := map[string]bool{}
	for _, op := range h.Operations("/api/v1") {
		documented[op.Method+" "+op.Path] = true
	}
	for _, r := range e.Routes() {
		assert.True(t, documented[r.Method+" "+r.Path], "undocumented route %s %s", r.Method, r.Path)
	}
	assert.Len(t, documented, len(e.Routes()))
}

func TestOperations_ReferenceKnownSchemas(t *testing.T) {
	h, _ := newTestHandler()
	schemas := Schemas()
	for _, op := range h.Operations("/api/v1") {
		for _, name := range []string{op.Request, op.Response} {
			if name != "" {
				assert.Contains(t, schemas, name, "%s %s", op.Method, op.Path)
			}
		}
	}
}

func TestSchemas_ResultListsEveryIndex(t *testing.T) {
	result, ok := Schemas()["AnthropometricResult"].(schema)
	require.True(t, ok)
	props := result["properties"].(schema)
	composition := props["body_composition"].(schema)["properties"].(schema)

	for name := range (&AnthropometricResult{}).Indices() {
		_, top := props[name]
		_, nested := composition[name]
		assert.True(t, top != nested, "index %s should appear exactly once", name)
	}
	assert.Contains(t, props, "bmi_classification")
}
