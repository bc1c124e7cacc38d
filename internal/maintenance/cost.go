package maintenance

import (
	"math"

	"github.com/shopspring/decimal"
)

// Cost turns an optional cost input into a usable amount. Missing or
// non-finite inputs count as zero.
func Cost(v *float64) float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return 0
	}
	return *v
}

// TotalCost is labor plus parts rounded to cents and never below zero.
func TotalCost(labor, parts *float64) float64 {
	sum := decimal.NewFromFloat(Cost(labor)).Add(decimal.NewFromFloat(Cost(parts))).Round(2)
	if sum.IsNegative() {
		return 0
	}
	total, _ := sum.Float64()
	return total
}

// SumTotals adds record totals in cents so long histories do not drift.
func SumTotals(totals []float64) float64 {
	sum := decimal.Zero
	for _, t := range totals {
		if math.IsNaN(t) || math.IsInf(t, 0) {
			continue
		}
		sum = sum.Add(decimal.NewFromFloat(t))
	}
	f, _ := sum.Round(2).Float64()
	return f
}
