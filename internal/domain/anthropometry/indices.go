package anthropometry

import "math"

// Compute derives every index it can from a reconciled set. Each index is
// guarded on its own: an absent input, a zero divisor or a non-finite
// result leaves that index nil and never affects the others.
//
// W is body mass in kg and H is stature in cm throughout.
func Compute(set ReconciledMeasurementSet, sex Sex, age int) AnthropometricResult {
	in := inputs{set: set}
	var r AnthropometricResult

	if w, h, ok := in.get2(KeyBodyMass, KeyHeight); ok {
		hm := h / 100
		r.BMI = finite(w / (hm * hm))
		r.LiviIndex = finite(100 * math.Cbrt(w) / h)
		// Rohrer in kg/m³; the W/H³·10 convention is not applied.
		r.RohrerIndex = finite(w / (hm * hm * hm))
		r.PonderalIndex = finite(h / math.Cbrt(w))
		r.BouchardIndex = finite(100 * w / h)
	}

	if v, ok := in.get(KeyHeight, KeyBodyMass, KeyChest); ok {
		r.PignetIndex = finite(v[0] - (v[1] + v[2]))
	}

	r.WaistHipRatio = in.ratio(KeyWaist, KeyHip)
	r.WaistHeightRatio = in.ratio(KeyWaist, KeyHeight)
	r.SADHeightIndex = in.ratio(KeyAbdomenAP, KeyHeight)
	r.FatDistributionIndex = in.ratio(KeySubscapular, KeyTricepsFold)
	r.ConicityIndex = conicity(in)

	r.CormicIndex = in.ratio(KeySittingHeight, KeyHeight)
	r.AcromioIliacIndex = in.ratio(KeyBiiliocristal, KeyBiacromial)
	r.BrachialIndex = in.ratio(KeyRadialStylion, KeyAcromialRadial)
	if v, ok := in.get(KeyAcromialRadial, KeyRadialStylion, KeyStylionDactyl, KeyHeight); ok {
		r.RelativeUpperLimbLength = quotient(v[0]+v[1]+v[2], v[3])
	}
	if h, sh, ok := in.get2(KeyHeight, KeySittingHeight); ok {
		r.ManouvrierIndex = quotient(h-sh, sh)
	}
	r.RelativeLowerLimbLength = in.ratio(KeyIliospinale, KeyHeight)
	r.CruralIndex = in.ratio(KeyTibialeHeight, KeyTrochTibiale)

	if v, ok := in.get(skinfoldSum6Keys...); ok {
		r.SkinfoldSum6 = finite(sum(v))
	}
	if v, ok := in.get(skinfoldSum8Keys...); ok {
		r.SkinfoldSum8 = finite(sum(v))
	}

	r.BodyDensity = bodyDensity(in, sex, age)
	r.BodyComposition = bodyComposition(in, r.BodyDensity, sex, age)
	r.BMIClassification = ClassifyBMI(r.BMI)
	return r
}

// Σ6 and Σ8 skinfold sites as defined by ISAK.
var (
	skinfoldSum6Keys = []string{KeyTricepsFold, KeySubscapular, KeySupraspinal, KeyAbdominalFold, KeyThighFold, KeyCalfFold}
	skinfoldSum8Keys = []string{KeyTricepsFold, KeySubscapular, KeyBicepsFold, KeyIliacCrestFold, KeySupraspinal, KeyAbdominalFold, KeyThighFold, KeyCalfFold}
)

// conicity is Valdez (1993): waist (m) / (0.109 · √(W / H_m)).
func conicity(in inputs) *float64 {
	v, ok := in.get(KeyWaist, KeyBodyMass, KeyHeight)
	if !ok {
		return nil
	}
	waistM, w, hm := v[0]/100, v[1], v[2]/100
	if hm <= 0 || w <= 0 {
		return nil
	}
	return quotient(waistM, 0.109*math.Sqrt(w/hm))
}

type inputs struct {
	set ReconciledMeasurementSet
}

// get returns the values for keys, or false if any is unavailable.
func (in inputs) get(keys ...string) ([]float64, bool) {
	out := make([]float64, len(keys))
	for i, k := range keys {
		v, ok := in.set.Value(k)
		if !ok {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

func (in inputs) get2(a, b string) (float64, float64, bool) {
	v, ok := in.get(a, b)
	if !ok {
		return 0, 0, false
	}
	return v[0], v[1], true
}

func (in inputs) ratio(num, den string) *float64 {
	a, b, ok := in.get2(num, den)
	if !ok {
		return nil
	}
	return quotient(a, b)
}

func quotient(a, b float64) *float64 {
	if b == 0 {
		return nil
	}
	return finite(a / b)
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func sum(v []float64) float64 {
	var t float64
	for _, x := range v {
		t += x
	}
	return t
}
