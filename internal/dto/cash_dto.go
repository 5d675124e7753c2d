package dto

import "github.com/shopspring/decimal"

// ─── Request DTOs ────────────────────────────────────────────────────────────

type OpenSessionRequest struct {
	OpeningBalance decimal.Decimal `json:"opening_balance" validate:"min=0"`
}

type CashMovementRequest struct {
	Kind        string          `json:"kind"        validate:"required,oneof=deposit withdrawal"`
	Method      string          `json:"method"      validate:"omitempty,oneof=cash debit credit pix"` // default cash
	Amount      decimal.Decimal `json:"amount"      validate:"gt=0"`
	Description string          `json:"description" validate:"required,min=3"`
}

type CloseSessionRequest struct {
	DeclaredCount decimal.Decimal `json:"declared_count" validate:"min=0"`
	Notes         *string         `json:"notes"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type InstrumentTotals struct {
	Cash   decimal.Decimal `json:"cash"`
	Debit  decimal.Decimal `json:"debit"`
	Credit decimal.Decimal `json:"credit"`
	Pix    decimal.Decimal `json:"pix"`
}

// ReconciliationResponse re-derives the register totals from committed sales
// and manual movements.
type ReconciliationResponse struct {
	SessionID             string           `json:"session_id"`
	Status                string           `json:"status"`
	OpeningBalance        decimal.Decimal  `json:"opening_balance"`
	SalesCount            int              `json:"sales_count"`
	SalesTotal            decimal.Decimal  `json:"sales_total"`
	PerInstrument         InstrumentTotals `json:"per_instrument"`
	ManualIn              decimal.Decimal  `json:"manual_in"`
	ManualOut             decimal.Decimal  `json:"manual_out"`
	ManualCashIn          decimal.Decimal  `json:"manual_cash_in"`
	ManualCashOut         decimal.Decimal  `json:"manual_cash_out"`
	TheoreticalCashOnHand decimal.Decimal  `json:"theoretical_cash_on_hand"`
}

type DivergenceResponse struct {
	Amount         decimal.Decimal `json:"amount"`
	Percent        decimal.Decimal `json:"percent"`
	Classification string          `json:"classification"` // normal | warning | critical
}

type CashSessionResponse struct {
	ID              string              `json:"id"`
	OperatorID      string              `json:"operator_id"`
	OpeningBalance  decimal.Decimal     `json:"opening_balance"`
	Status          string              `json:"status"`
	OpenedAt        string              `json:"opened_at"`
	DeclaredCount   *decimal.Decimal    `json:"declared_count"`
	TheoreticalCash *decimal.Decimal    `json:"theoretical_cash"`
	Divergence      *DivergenceResponse `json:"divergence"`
	Notes           *string             `json:"notes"`
	ClosedAt        *string             `json:"closed_at"`
}

type CashMovementResponse struct {
	ID          string          `json:"id"`
	SessionID   string          `json:"session_id"`
	Kind        string          `json:"kind"`
	Method      string          `json:"method"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	CreatedAt   string          `json:"created_at"`
}

type CloseSessionResponse struct {
	Session        CashSessionResponse    `json:"session"`
	Reconciliation ReconciliationResponse `json:"reconciliation"`
}

type SessionHistoryResponse struct {
	Data  []CashSessionResponse `json:"data"`
	Total int64                 `json:"total"`
	Page  int                   `json:"page"`
	Limit int                   `json:"limit"`
}
