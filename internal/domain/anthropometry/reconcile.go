package anthropometry

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

var (
	ErrUnknownField  = errors.New("unknown measurement field")
	ErrInvalidSlot   = errors.New("observation slot must be 1, 2 or 3")
	ErrIncompleteSet = errors.New("reconciled measurement set is incomplete")
)

// IncompleteSetError lists the fields that keep a set from being complete.
type IncompleteSetError struct {
	Missing      []string
	PendingThird []string
}

func (e *IncompleteSetError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing: "+strings.Join(e.Missing, ", "))
	}
	if len(e.PendingThird) > 0 {
		parts = append(parts, "third measurement required: "+strings.Join(e.PendingThird, ", "))
	}
	return fmt.Sprintf("%s (%s)", ErrIncompleteSet.Error(), strings.Join(parts, "; "))
}

func (e *IncompleteSetError) Unwrap() error { return ErrIncompleteSet }

// toleranceEpsilon absorbs binary error in diffPct so that readings exactly
// at the tolerance (19.9/20.1 is 1%) compare as within it.
const toleranceEpsilon = 1e-9

// round2 rounds half away from zero to two decimals. The nudge compensates
// for decimal halves that are not exactly representable (1.005 → 1.01).
func round2(x float64) float64 {
	return math.Round(x*100+math.Copysign(1e-9, x)) / 100
}

// Reconcile reduces the observations of one field to its canonical value.
// The decision is re-derived from scratch on every call: a third
// observation only counts while the first two disagree beyond the
// category tolerance.
func Reconcile(cat Category, obs RawObservationSet) ReconciledMeasurement {
	m1, m2 := obs.Measurement1, obs.Measurement2
	if !m1.Valid || !m2.Valid {
		return ReconciledMeasurement{Source: SourcePendingSecond}
	}

	avg := (m1.Value + m2.Value) / 2
	if avg == 0 && m1.Value == m2.Value {
		// Two identical zero readings agree; there is nothing to mediate.
		v := 0.0
		d := 0.0
		return ReconciledMeasurement{Value: &v, Source: SourceAveraged, DiffPct: &d}
	}

	var diffPct *float64
	within := false
	if avg != 0 {
		d := math.Abs(m1.Value-m2.Value) * 100 / avg
		diffPct = &d
		within = d <= cat.Tolerance()+toleranceEpsilon
	}

	if within {
		v := round2(avg)
		return ReconciledMeasurement{Value: &v, Source: SourceAveraged, DiffPct: diffPct}
	}

	if !obs.Measurement3.Valid {
		return ReconciledMeasurement{NeedsThirdMeasurement: true, Source: SourcePendingSecond, DiffPct: diffPct}
	}

	vals := []float64{m1.Value, m2.Value, obs.Measurement3.Value}
	sort.Float64s(vals)
	v := round2(vals[1])
	return ReconciledMeasurement{Value: &v, Source: SourceMediated, DiffPct: diffPct}
}

// Enter applies one new observation to a field's state and returns the
// next state. prev is not modified.
func Enter(cat Category, prev FieldEntry, slot int, raw string) (FieldEntry, error) {
	next := prev
	r := ParseReading(raw)
	switch slot {
	case 1:
		next.Observations.Measurement1 = r
	case 2:
		next.Observations.Measurement2 = r
	case 3:
		next.Observations.Measurement3 = r
	default:
		return prev, fmt.Errorf("%w: got %d", ErrInvalidSlot, slot)
	}
	next.Result = Reconcile(cat, next.Observations)
	return next, nil
}

// ReconciledMeasurementSet maps field keys to their reconciled values.
type ReconciledMeasurementSet map[string]ReconciledMeasurement

// ReconcileAll reconciles raw observations against the catalog. The result
// holds one entry per catalog field; fields without input are pending.
func ReconcileAll(c *Catalog, raw map[string]RawObservationSet) (ReconciledMeasurementSet, error) {
	for key := range raw {
		if _, ok := c.Field(key); !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownField, key)
		}
	}
	set := make(ReconciledMeasurementSet, c.Len())
	for _, f := range c.fields {
		set[f.Key] = Reconcile(f.Category, raw[f.Key])
	}
	return set, nil
}

// ReconciledFrom wraps already-canonical values as a set of averaged
// measurements. Values are rounded the same way Reconcile rounds them.
func ReconciledFrom(values map[string]float64) ReconciledMeasurementSet {
	set := make(ReconciledMeasurementSet, len(values))
	for k, v := range values {
		rv := round2(v)
		set[k] = ReconciledMeasurement{Value: &rv, Source: SourceAveraged}
	}
	return set
}

// Value returns the canonical value for key when it is terminal.
func (s ReconciledMeasurementSet) Value(key string) (float64, bool) {
	m, ok := s[key]
	if !ok || !m.Terminal() {
		return 0, false
	}
	return *m.Value, true
}

// Missing lists, sorted, the keys without a terminal value that are not
// waiting on a third observation.
func (s ReconciledMeasurementSet) Missing() []string {
	var out []string
	for k, m := range s {
		if !m.Terminal() && !m.NeedsThirdMeasurement {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// Pending lists, sorted, the keys that need a third observation.
func (s ReconciledMeasurementSet) Pending() []string {
	var out []string
	for k, m := range s {
		if m.NeedsThirdMeasurement {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// Complete reports whether every entry is terminal.
func (s ReconciledMeasurementSet) Complete() bool {
	for _, m := range s {
		if !m.Terminal() {
			return false
		}
	}
	return len(s) > 0
}

// RequireComplete returns an *IncompleteSetError naming the fields that are
// not terminal, or nil.
func (s ReconciledMeasurementSet) RequireComplete() error {
	if s.Complete() {
		return nil
	}
	return &IncompleteSetError{Missing: s.Missing(), PendingThird: s.Pending()}
}
