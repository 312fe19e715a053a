package anthropometry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Category determines the reconciliation tolerance class of a field.
type Category string

const (
	CategoryBasicData     Category = "basic_data"
	CategorySkinfold      Category = "skinfold"
	CategoryCircumference Category = "circumference"
	CategoryLength        Category = "length"
	CategoryDiameter      Category = "diameter"
)

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryBasicData, CategorySkinfold, CategoryCircumference, CategoryLength, CategoryDiameter:
		return true
	}
	return false
}

// Tolerance returns the maximum allowed percentage disagreement between the
// first two observations of a field in this category.
func (c Category) Tolerance() float64 {
	if c == CategorySkinfold {
		return SkinfoldTolerancePct
	}
	return DefaultTolerancePct
}

const (
	SkinfoldTolerancePct = 5.0
	DefaultTolerancePct  = 1.0
)

// Source describes how a reconciled value was derived.
type Source string

const (
	SourcePendingSecond Source = "pending_second"
	SourceAveraged      Source = "averaged"
	SourceMediated      Source = "mediated"
)

// Terminal reports whether the source carries a usable value.
func (s Source) Terminal() bool {
	return s == SourceAveraged || s == SourceMediated
}

// Sex of the evaluated patient. Sex-stratified equations are skipped for
// SexUnknown.
type Sex string

const (
	SexMale    Sex = "male"
	SexFemale  Sex = "female"
	SexUnknown Sex = "unknown"
)

// ParseSex maps free-form input onto a Sex. Anything unrecognised is
// SexUnknown.
func ParseSex(s string) Sex {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "male", "m", "masculino", "hombre":
		return SexMale
	case "female", "f", "femenino", "mujer":
		return SexFemale
	}
	return SexUnknown
}

// Field identifies one anatomical measurement site.
type Field struct {
	Key      string   `json:"key" yaml:"key"`
	Label    string   `json:"label" yaml:"label"`
	Category Category `json:"category" yaml:"category"`
	Unit     string   `json:"unit" yaml:"unit"`
}

// Reading is a single raw observation. The zero value is "not entered".
type Reading struct {
	Value float64
	Valid bool
}

// At returns a valid reading holding v.
func At(v float64) Reading {
	return Reading{Value: v, Valid: true}
}

// ParseReading converts user input into a Reading. Blank, non-numeric,
// non-finite and negative input yield an invalid reading. A comma is
// accepted as the decimal separator.
func ParseReading(s string) Reading {
	s = strings.TrimSpace(s)
	if s == "" {
		return Reading{}
	}
	s = strings.Replace(s, ",", ".", 1)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return Reading{}
	}
	return Reading{Value: v, Valid: true}
}

// MarshalJSON encodes an invalid reading as null.
func (r Reading) MarshalJSON() ([]byte, error) {
	if !r.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(r.Value)
}

// UnmarshalJSON accepts a number, a numeric string, "" or null. Input that
// does not parse is kept as "not entered" rather than rejected.
func (r *Reading) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*r = Reading{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("reading: %w", err)
		}
		*r = ParseReading(s)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		*r = Reading{}
		return nil
	}
	if v < 0 {
		*r = Reading{}
		return nil
	}
	*r = Reading{Value: v, Valid: true}
	return nil
}

// RawObservationSet holds the observations entered so far for one field.
type RawObservationSet struct {
	Measurement1 Reading `json:"measurement1"`
	Measurement2 Reading `json:"measurement2"`
	Measurement3 Reading `json:"measurement3"`
}

// Observations builds a RawObservationSet from up to three raw strings.
func Observations(raw ...string) RawObservationSet {
	var o RawObservationSet
	for i, s := range raw {
		switch i {
		case 0:
			o.Measurement1 = ParseReading(s)
		case 1:
			o.Measurement2 = ParseReading(s)
		case 2:
			o.Measurement3 = ParseReading(s)
		}
	}
	return o
}

// ReconciledMeasurement is the canonical outcome for one field.
type ReconciledMeasurement struct {
	Value                 *float64 `json:"value"`
	NeedsThirdMeasurement bool     `json:"needs_third_measurement"`
	Source                Source   `json:"source"`
	DiffPct               *float64 `json:"diff_pct,omitempty"`
}

// Terminal reports whether the measurement carries a usable value.
func (m ReconciledMeasurement) Terminal() bool {
	return m.Source.Terminal() && m.Value != nil
}

// FieldEntry is the reducer state for one field: the raw observations and
// the reconciliation derived from them.
type FieldEntry struct {
	Observations RawObservationSet     `json:"observations"`
	Result       ReconciledMeasurement `json:"result"`
}

// BodyComposition holds the body-composition estimates. Masses are in kg,
// percentages are of body mass.
type BodyComposition struct {
	FatMassPct            *float64 `json:"fat_mass_pct,omitempty"`
	FatMassKg             *float64 `json:"fat_mass_kg,omitempty"`
	BoneMassPct           *float64 `json:"bone_mass_pct,omitempty"`
	BoneMassKg            *float64 `json:"bone_mass_kg,omitempty"`
	SkeletalMuscleMassPct *float64 `json:"skeletal_muscle_mass_pct,omitempty"`
	SkeletalMuscleMassKg  *float64 `json:"skeletal_muscle_mass_kg,omitempty"`
}

// AnthropometricResult is the index bundle. Every index is independently
// optional and is nil when its inputs were unavailable or undefined.
type AnthropometricResult struct {
	BMI                     *float64        `json:"bmi,omitempty"`
	LiviIndex               *float64        `json:"livi_index,omitempty"`
	RohrerIndex             *float64        `json:"rohrer_index,omitempty"`
	PonderalIndex           *float64        `json:"ponderal_index,omitempty"`
	BouchardIndex           *float64        `json:"bouchard_index,omitempty"`
	PignetIndex             *float64        `json:"pignet_index,omitempty"`
	WaistHipRatio           *float64        `json:"waist_hip_ratio,omitempty"`
	WaistHeightRatio        *float64        `json:"waist_height_ratio,omitempty"`
	SADHeightIndex          *float64        `json:"sad_height_index,omitempty"`
	FatDistributionIndex    *float64        `json:"fat_distribution_index,omitempty"`
	ConicityIndex           *float64        `json:"conicity_index,omitempty"`
	CormicIndex             *float64        `json:"cormic_index,omitempty"`
	AcromioIliacIndex       *float64        `json:"acromio_iliac_index,omitempty"`
	BrachialIndex           *float64        `json:"brachial_index,omitempty"`
	RelativeUpperLimbLength *float64        `json:"relative_upper_limb_length,omitempty"`
	ManouvrierIndex         *float64        `json:"manouvrier_index,omitempty"`
	RelativeLowerLimbLength *float64        `json:"relative_lower_limb_length,omitempty"`
	CruralIndex             *float64        `json:"crural_index,omitempty"`
	SkinfoldSum6            *float64        `json:"skinfold_sum_6,omitempty"`
	SkinfoldSum8            *float64        `json:"skinfold_sum_8,omitempty"`
	BodyDensity             *float64        `json:"body_density,omitempty"`
	BodyComposition         BodyComposition `json:"body_composition"`
	BMIClassification       string          `json:"bmi_classification"`
}

// Indices flattens the result into a name → optional value map, the shape
// the report collaborator consumes.
func (r *AnthropometricResult) Indices() map[string]*float64 {
	return map[string]*float64{
		"bmi":                        r.BMI,
		"livi_index":                 r.LiviIndex,
		"rohrer_index":               r.RohrerIndex,
		"ponderal_index":             r.PonderalIndex,
		"bouchard_index":             r.BouchardIndex,
		"pignet_index":               r.PignetIndex,
		"waist_hip_ratio":            r.WaistHipRatio,
		"waist_height_ratio":         r.WaistHeightRatio,
		"sad_height_index":           r.SADHeightIndex,
		"fat_distribution_index":     r.FatDistributionIndex,
		"conicity_index":             r.ConicityIndex,
		"cormic_index":               r.CormicIndex,
		"acromio_iliac_index":        r.AcromioIliacIndex,
		"brachial_index":             r.BrachialIndex,
		"relative_upper_limb_length": r.RelativeUpperLimbLength,
		"manouvrier_index":           r.ManouvrierIndex,
		"relative_lower_limb_length": r.RelativeLowerLimbLength,
		"crural_index":               r.CruralIndex,
		"skinfold_sum_6":             r.SkinfoldSum6,
		"skinfold_sum_8":             r.SkinfoldSum8,
		"body_density":               r.BodyDensity,
		"fat_mass_pct":               r.BodyComposition.FatMassPct,
		"fat_mass_kg":                r.BodyComposition.FatMassKg,
		"bone_mass_pct":              r.BodyComposition.BoneMassPct,
		"bone_mass_kg":               r.BodyComposition.BoneMassKg,
		"skeletal_muscle_mass_pct":   r.BodyComposition.SkeletalMuscleMassPct,
		"skeletal_muscle_mass_kg":    r.BodyComposition.SkeletalMuscleMassKg,
	}
}

// AbsentIndices lists the index names that could not be computed, sorted.
func (r *AnthropometricResult) AbsentIndices() []string {
	var out []string
	for name, v := range r.Indices() {
		if v == nil {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
