package anthropometry

// BMIUnavailable is the label reported when BMI could not be computed.
const BMIUnavailable = "No disponible"

type bmiBand struct {
	upper float64 // exclusive
	label string
}

// bmiBands are half-open intervals [previous upper, upper).
var bmiBands = []bmiBand{
	{18.5, "Peso insuficiente"},
	{25, "Peso normal"},
	{27, "Sobrepeso grado I"},
	{30, "Sobrepeso grado II (preobesidad)"},
	{35, "Obesidad I"},
	{40, "Obesidad II"},
	{50, "Obesidad III (mórbida)"},
}

const bmiTopBand = "Obesidad IV (extrema)"

// ClassifyBMI returns the weight-status label for a BMI value. A boundary
// value belongs to the higher class.
func ClassifyBMI(bmi *float64) string {
	if bmi == nil {
		return BMIUnavailable
	}
	for _, b := range bmiBands {
		if *bmi < b.upper {
			return b.label
		}
	}
	return bmiTopBand
}
