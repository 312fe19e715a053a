package anthropometry

import "math"

// durninWomersley holds the coefficients of D = c − m·log10(Σ4) for one
// sex and age bracket (Durnin & Womersley, Br J Nutr 1974).
type durninWomersley struct {
	minAge int
	c, m   float64
}

// Brackets are ordered by descending minAge. The youngest bracket starts at
// 16; younger patients fall outside the sample the equations were fitted on.
var durninWomersleyTable = map[Sex][]durninWomersley{
	SexMale: {
		{minAge: 50, c: 1.1715, m: 0.0779},
		{minAge: 40, c: 1.1620, m: 0.0700},
		{minAge: 30, c: 1.1422, m: 0.0544},
		{minAge: 20, c: 1.1631, m: 0.0632},
		{minAge: 16, c: 1.1620, m: 0.0630},
	},
	SexFemale: {
		{minAge: 50, c: 1.1339, m: 0.0645},
		{minAge: 40, c: 1.1333, m: 0.0612},
		{minAge: 30, c: 1.1423, m: 0.0632},
		{minAge: 20, c: 1.1599, m: 0.0717},
		{minAge: 16, c: 1.1549, m: 0.0678},
	},
}

// MinCompositionAge is the youngest age the body density and skeletal
// muscle equations accept.
const MinCompositionAge = 16

func durninWomersleyCoefficients(sex Sex, age int) (durninWomersley, bool) {
	for _, b := range durninWomersleyTable[sex] {
		if age >= b.minAge {
			return b, true
		}
	}
	return durninWomersley{}, false
}

// bodyDensity uses the Σ of biceps, triceps, subscapular and iliac crest
// skinfolds in mm.
func bodyDensity(in inputs, sex Sex, age int) *float64 {
	coef, ok := durninWomersleyCoefficients(sex, age)
	if !ok {
		return nil
	}
	v, ok := in.get(KeyBicepsFold, KeyTricepsFold, KeySubscapular, KeyIliacCrestFold)
	if !ok {
		return nil
	}
	s := sum(v)
	if s <= 0 {
		return nil
	}
	return finite(coef.c - coef.m*math.Log10(s))
}

// siriFatPct converts body density to percent fat (Siri 1961).
func siriFatPct(density float64) *float64 {
	if density <= 0 {
		return nil
	}
	return finite((4.95/density - 4.50) * 100)
}

// rochaBoneMass is von Döbeln's equation as modified by Rocha (1975):
// 3.02 · (H_m² · R · F · 400)^0.712 with the biestyloid (R) and femur (F)
// diameters in metres. Result in kg.
func rochaBoneMass(heightCm, biestyloidCm, femurCm float64) *float64 {
	hm := heightCm / 100
	x := hm * hm * (biestyloidCm / 100) * (femurCm / 100) * 400
	if x <= 0 {
		return nil
	}
	return finite(3.02 * math.Pow(x, 0.712))
}

// leeSkeletalMuscleMass is the anthropometric equation of Lee et al.
// (Am J Clin Nutr 2000) with skinfold-corrected girths. Girths in cm,
// skinfolds in mm, result in kg. The race term is zero. Fitted on adults,
// so callers gate it on MinCompositionAge.
func leeSkeletalMuscleMass(heightCm float64, sex Sex, age int, arm, thigh, calf, tricepsMM, thighMM, calfMM float64) *float64 {
	var sexTerm float64
	switch sex {
	case SexMale:
		sexTerm = 1
	case SexFemale:
		sexTerm = 0
	default:
		return nil
	}
	cag := arm - math.Pi*tricepsMM/10
	ctg := thigh - math.Pi*thighMM/10
	ccg := calf - math.Pi*calfMM/10
	if cag <= 0 || ctg <= 0 || ccg <= 0 {
		return nil
	}
	hm := heightCm / 100
	smm := hm*(0.00744*cag*cag+0.00088*ctg*ctg+0.00441*ccg*ccg) + 2.4*sexTerm - 0.048*float64(age) + 7.8
	if smm <= 0 {
		return nil
	}
	return finite(smm)
}

func bodyComposition(in inputs, density *float64, sex Sex, age int) BodyComposition {
	var bc BodyComposition
	w, hasMass := in.set.Value(KeyBodyMass)
	pctOf := func(kg *float64) *float64 {
		if kg == nil || !hasMass {
			return nil
		}
		return quotient(*kg*100, w)
	}

	if density != nil {
		bc.FatMassPct = siriFatPct(*density)
		if bc.FatMassPct != nil && hasMass {
			bc.FatMassKg = finite(*bc.FatMassPct * w / 100)
		}
	}

	if v, ok := in.get(KeyHeight, KeyBiestyloid, KeyFemur); ok {
		bc.BoneMassKg = rochaBoneMass(v[0], v[1], v[2])
		bc.BoneMassPct = pctOf(bc.BoneMassKg)
	}

	if age >= MinCompositionAge {
		if v, ok := in.get(KeyHeight, KeyRelaxedArm, KeyMidThigh, KeyCalf, KeyTricepsFold, KeyThighFold, KeyCalfFold); ok {
			bc.SkeletalMuscleMassKg = leeSkeletalMuscleMass(v[0], sex, age, v[1], v[2], v[3], v[4], v[5], v[6])
			bc.SkeletalMuscleMassPct = pctOf(bc.SkeletalMuscleMassKg)
		}
	}
	return bc
}
