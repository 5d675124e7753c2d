package service

import (
	"fmt"

	"github.com/Brunno-Ar/SistemaPDV-sub001/internal/model"

	"github.com/shopspring/decimal"
)

// PaymentLine is one tender instrument and the amount handed over with it.
type PaymentLine struct {
	Method string
	Amount decimal.Decimal
}

// SinglePayment is the legacy shape: one method for the whole sale and,
// for cash, optionally the amount the customer handed over.
type SinglePayment struct {
	Method         string
	AmountTendered *decimal.Decimal
}

// PaymentInput carries exactly one of Split or Single.
type PaymentInput struct {
	Split  []PaymentLine
	Single *SinglePayment
}

// NormalizedPayment is the canonical list of instruments for a sale.
type NormalizedPayment struct {
	Lines     []PaymentLine
	IsSplit   bool
	ChangeDue decimal.Decimal
	// AmountTendered is what actually settles the sale: the sum of the
	// lines minus the change handed back.
	AmountTendered decimal.Decimal
	// LegacyMethod is the single label stored on the sale header: the only
	// method, or for split tender the instrument with the largest amount.
	LegacyMethod string
}

// Normalize validates the tender against the sale total and turns either
// input shape into a list of instruments with the change due.
//
// Only cash produces change. When a split tender overpays in cash beyond
// the tolerance the sale is rejected instead of handing back change, so a
// split always settles the total to within tolerance.
func Normalize(in PaymentInput, total, tolerance decimal.Decimal) (*NormalizedPayment, error) {
	switch {
	case in.Single != nil && len(in.Split) > 0:
		return nil, invalid("payments", "send either split payments or a single payment method, not both")
	case in.Single != nil:
		return normalizeSingle(*in.Single, total)
	case len(in.Split) > 0:
		return normalizeSplit(in.Split, total, tolerance)
	default:
		return nil, invalid("payments", "at least one payment is required")
	}
}

func normalizeSingle(p SinglePayment, total decimal.Decimal) (*NormalizedPayment, error) {
	if !model.IsPaymentMethod(p.Method) {
		return nil, invalid("payment_method", "unknown payment method %q", p.Method)
	}

	if p.Method == model.PaymentCash && p.AmountTendered != nil {
		tendered := p.AmountTendered.Round(moneyPlaces)
		if tendered.IsNegative() {
			return nil, invalid("amount_tendered", "must not be negative")
		}
		if tendered.LessThan(total) {
			return nil, &PaymentMismatchError{Tendered: tendered, Total: total, Reason: "cash tendered is below the total"}
		}
		return &NormalizedPayment{
			Lines:          []PaymentLine{{Method: model.PaymentCash, Amount: tendered}},
			ChangeDue:      tendered.Sub(total),
			AmountTendered: total,
			LegacyMethod:   model.PaymentCash,
		}, nil
	}

	return &NormalizedPayment{
		Lines:          []PaymentLine{{Method: p.Method, Amount: total}},
		ChangeDue:      decimal.Zero,
		AmountTendered: total,
		LegacyMethod:   p.Method,
	}, nil
}

func normalizeSplit(split []PaymentLine, total, tolerance decimal.Decimal) (*NormalizedPayment, error) {
	lines := make([]PaymentLine, 0, len(split))
	sum, cash, nonCash := decimal.Zero, decimal.Zero, decimal.Zero

	for i, p := range split {
		if !model.IsPaymentMethod(p.Method) {
			return nil, invalid(fmt.Sprintf("payments[%d].method", i), "unknown payment method %q", p.Method)
		}
		amount := p.Amount.Round(moneyPlaces)
		if !amount.IsPositive() {
			return nil, invalid(fmt.Sprintf("payments[%d].amount", i), "must be greater than zero")
		}
		lines = append(lines, PaymentLine{Method: p.Method, Amount: amount})
		sum = sum.Add(amount)
		if p.Method == model.PaymentCash {
			cash = cash.Add(amount)
		} else {
			nonCash = nonCash.Add(amount)
		}
	}

	change := decimal.Max(decimal.Zero, cash.Sub(total.Sub(nonCash)))
	if len(lines) > 1 && change.GreaterThan(tolerance) {
		return nil, &PaymentMismatchError{Tendered: sum, Total: total, Reason: "split payments cannot return change"}
	}

	effective := sum.Sub(change)
	if effective.Sub(total).Abs().GreaterThan(tolerance) {
		return nil, &PaymentMismatchError{Tendered: effective, Total: total}
	}

	return &NormalizedPayment{
		Lines:          lines,
		IsSplit:        len(lines) > 1,
		ChangeDue:      change,
		AmountTendered: effective,
		LegacyMethod:   dominantMethod(lines),
	}, nil
}

// dominantMethod returns the method with the largest amount; the first line
// wins a tie.
func dominantMethod(lines []PaymentLine) string {
	best := 0
	for i := 1; i < len(lines); i++ {
		if lines[i].Amount.GreaterThan(lines[best].Amount) {
			best = i
		}
	}
	return lines[best].Method
}
