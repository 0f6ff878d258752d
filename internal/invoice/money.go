package invoice

import (
	"math"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

var (
	maxAmount = decimal.NewFromFloat(math.MaxFloat64)
	minAmount = maxAmount.Neg()
)

// fromFloat converts an amount to a decimal. Infinities saturate at the
// largest finite float64 and NaN counts as zero.
func fromFloat(f float64) decimal.Decimal {
	switch {
	case math.IsNaN(f):
		return decimal.Zero
	case math.IsInf(f, 1):
		return maxAmount
	case math.IsInf(f, -1):
		return minAmount
	}
	return decimal.NewFromFloat(f)
}

// toFloat converts back, saturating instead of overflowing to ±Inf.
func toFloat(d decimal.Decimal) float64 {
	switch {
	case d.GreaterThan(maxAmount):
		return math.MaxFloat64
	case d.LessThan(minAmount):
		return -math.MaxFloat64
	}
	return d.InexactFloat64()
}

// round2 rounds half away from zero to cents.
func round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

func lineTotal(quantity, unitPrice float64) float64 {
	return toFloat(round2(fromFloat(quantity).Mul(fromFloat(unitPrice))))
}

// applyTotals recomputes subtotal, tax amount and grand total from the item
// totals already present on r. Items without a total count as zero and an
// unset tax rate counts as zero.
func applyTotals(r *Record) {
	sum := decimal.Zero
	for _, item := range r.Items {
		if item.Total != nil {
			sum = sum.Add(fromFloat(*item.Total))
		}
	}
	subtotal := round2(sum)

	rate := decimal.Zero
	if r.TaxRate != nil {
		rate = fromFloat(*r.TaxRate)
	}
	tax := round2(subtotal.Mul(rate))

	r.Subtotal = lo.ToPtr(toFloat(subtotal))
	r.TaxAmount = lo.ToPtr(toFloat(tax))
	r.GrandTotal = lo.ToPtr(toFloat(round2(subtotal.Add(tax))))
}
