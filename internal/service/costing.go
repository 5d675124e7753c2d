package service

import "github.com/shopspring/decimal"

// Unit costs carry four decimal places; money carries two.
const (
	costPlaces  = 4
	moneyPlaces = 2
)

// Reweight folds an intake of inQty units at inCost into the running
// average cost of a product holding currentStock units at currentAvg.
// The average is unchanged when the combined quantity is not positive.
func Reweight(currentStock int, currentAvg decimal.Decimal, inQty int, inCost decimal.Decimal) decimal.Decimal {
	stock := decimal.NewFromInt(int64(currentStock))
	in := decimal.NewFromInt(int64(inQty))
	denom := stock.Add(in)
	if !denom.IsPositive() {
		return currentAvg
	}
	num := stock.Mul(currentAvg).Add(in.Mul(inCost))
	return num.DivRound(denom, costPlaces+4).Round(costPlaces)
}

// TrueUnitCost spreads the total cost of a line over its quantity.
func TrueUnitCost(totalCost decimal.Decimal, qty int) decimal.Decimal {
	if qty <= 0 {
		return decimal.Zero
	}
	return totalCost.DivRound(decimal.NewFromInt(int64(qty)), costPlaces+4).Round(costPlaces)
}
