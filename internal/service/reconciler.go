package service

import (
	"github.com/Brunno-Ar/SistemaPDV-sub001/internal/dto"
	"github.com/Brunno-Ar/SistemaPDV-sub001/internal/model"

	"github.com/shopspring/decimal"
)

// Reconciliation is the register position of one cash session, re-derived
// from its committed sales and manual movements.
type Reconciliation struct {
	SalesCount      int
	SalesTotal      decimal.Decimal
	PerInstrument   map[string]decimal.Decimal
	ManualIn        decimal.Decimal
	ManualOut       decimal.Decimal
	ManualCashIn    decimal.Decimal
	ManualCashOut   decimal.Decimal
	TheoreticalCash decimal.Decimal
}

// Reconcile is a pure fold over the session's sales and movements.
//
// Cash is booked net of change: a sale contributes max(0, cash − change) to
// the cash bucket. Sales without payment rows predate split tender and are
// attributed in full to their single legacy method.
func Reconcile(session *model.CashSession, sales []model.Sale, movements []model.CashMovement) *Reconciliation {
	r := &Reconciliation{
		SalesTotal:    decimal.Zero,
		PerInstrument: make(map[string]decimal.Decimal, len(model.PaymentMethods)),
		ManualIn:      decimal.Zero,
		ManualOut:     decimal.Zero,
		ManualCashIn:  decimal.Zero,
		ManualCashOut: decimal.Zero,
	}
	for _, m := range model.PaymentMethods {
		r.PerInstrument[m] = decimal.Zero
	}

	for i := range sales {
		sale := &sales[i]
		r.SalesCount++
		r.SalesTotal = r.SalesTotal.Add(sale.Total)

		if len(sale.Payments) == 0 {
			r.PerInstrument[sale.PaymentMethod] = r.PerInstrument[sale.PaymentMethod].Add(sale.Total)
			continue
		}

		cash := decimal.Zero
		for _, p := range sale.Payments {
			if p.Method == model.PaymentCash {
				cash = cash.Add(p.Amount)
				continue
			}
			r.PerInstrument[p.Method] = r.PerInstrument[p.Method].Add(p.Amount)
		}
		netCash := decimal.Max(decimal.Zero, cash.Sub(sale.ChangeDue))
		r.PerInstrument[model.PaymentCash] = r.PerInstrument[model.PaymentCash].Add(netCash)
	}

	for _, m := range movements {
		isCash := m.Method == model.PaymentCash
		switch m.Kind {
		case model.CashDeposit:
			r.ManualIn = r.ManualIn.Add(m.Amount)
			if isCash {
				r.ManualCashIn = r.ManualCashIn.Add(m.Amount)
			}
		case model.CashWithdrawal:
			r.ManualOut = r.ManualOut.Add(m.Amount)
			if isCash {
				r.ManualCashOut = r.ManualCashOut.Add(m.Amount)
			}
		}
	}

	r.TheoreticalCash = session.OpeningBalance.
		Add(r.PerInstrument[model.PaymentCash]).
		Add(r.ManualCashIn).
		Sub(r.ManualCashOut)
	return r
}

// Divergence is the outcome of comparing a declared count with the
// theoretical cash on hand.
type Divergence struct {
	Amount         decimal.Decimal
	Percent        decimal.Decimal
	Classification string
}

// maxDivergencePct bounds the stored percentage; a tiny theoretical figure
// would otherwise produce values no column can hold.
var maxDivergencePct = decimal.RequireFromString("99999.99")

// ComputeDivergence returns declared − theoretical and its share of the
// theoretical figure. With nothing expected in the drawer any difference is
// critical. The percentage is clamped to ±maxDivergencePct after
// classification.
func ComputeDivergence(declared, theoretical decimal.Decimal) Divergence {
	amount := declared.Sub(theoretical)
	var pct decimal.Decimal
	switch {
	case !theoretical.IsZero():
		pct = amount.Div(theoretical).Mul(decimal.NewFromInt(100)).Round(2)
	case amount.IsZero():
		pct = decimal.Zero
	default:
		pct = decimal.NewFromInt(100)
	}
	class := classifyDivergence(pct)
	switch {
	case pct.GreaterThan(maxDivergencePct):
		pct = maxDivergencePct
	case pct.LessThan(maxDivergencePct.Neg()):
		pct = maxDivergencePct.Neg()
	}
	return Divergence{Amount: amount, Percent: pct, Classification: class}
}

// classifyDivergence: normal ≤ 1%, warning ≤ 5%, critical above.
func classifyDivergence(pct decimal.Decimal) string {
	abs := pct.Abs()
	switch {
	case abs.LessThanOrEqual(decimal.NewFromInt(1)):
		return model.DivergenceNormal
	case abs.LessThanOrEqual(decimal.NewFromInt(5)):
		return model.DivergenceWarning
	default:
		return model.DivergenceCritical
	}
}

func reconciliationToResponse(s *model.CashSession, r *Reconciliation) dto.ReconciliationResponse {
	return dto.ReconciliationResponse{
		SessionID:      s.ID.String(),
		Status:         s.Status,
		OpeningBalance: s.OpeningBalance,
		SalesCount:     r.SalesCount,
		SalesTotal:     r.SalesTotal,
		PerInstrument: dto.InstrumentTotals{
			Cash:   r.PerInstrument[model.PaymentCash],
			Debit:  r.PerInstrument[model.PaymentDebit],
			Credit: r.PerInstrument[model.PaymentCredit],
			Pix:    r.PerInstrument[model.PaymentPix],
		},
		ManualIn:              r.ManualIn,
		ManualOut:             r.ManualOut,
		ManualCashIn:          r.ManualCashIn,
		ManualCashOut:         r.ManualCashOut,
		TheoreticalCashOnHand: r.TheoreticalCash,
	}
}
