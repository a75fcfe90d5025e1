// Package pricing holds the single definition of what a product costs.
package pricing

import "github.com/shopspring/decimal"

var (
	hundred     = decimal.NewFromInt(100)
	zero        = decimal.Zero
	centsPlaces = int32(2)
)

// ClampDiscount bounds a discount percentage to [0,100].
func ClampDiscount(discount decimal.Decimal) decimal.Decimal {
	if discount.LessThan(zero) {
		return zero
	}
	if discount.GreaterThan(hundred) {
		return hundred
	}
	return discount
}

// EffectivePrice applies the discount percentage when hasDiscount is set and
// rounds to cents. The discount value is ignored otherwise.
func EffectivePrice(price decimal.Decimal, hasDiscount bool, discount decimal.Decimal) decimal.Decimal {
	if !hasDiscount {
		return price.Round(centsPlaces)
	}
	off := price.Mul(ClampDiscount(discount)).Div(hundred)
	return price.Sub(off).Round(centsPlaces)
}

// LineTotal multiplies a unit price by quantity.
func LineTotal(unit decimal.Decimal, quantity int) decimal.Decimal {
	return unit.Mul(decimal.NewFromInt(int64(quantity)))
}
