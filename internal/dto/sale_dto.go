package dto

import "github.com/shopspring/decimal"

// ─── Request DTOs ────────────────────────────────────────────────────────────

type SaleItemRequest struct {
	ProductID string           `json:"product_id" validate:"required,uuid"`
	Quantity  int              `json:"quantity"   validate:"required,min=1"`
	UnitPrice *decimal.Decimal `json:"unit_price"`
	Discount  decimal.Decimal  `json:"discount"   validate:"min=0"`
}

type PaymentRequest struct {
	Method string          `json:"method" validate:"required,oneof=cash debit credit pix"`
	Amount decimal.Decimal `json:"amount" validate:"gt=0"`
}

// FinalizeSaleRequest accepts either split payments or the legacy
// payment_method (+ amount_tendered for cash).
type FinalizeSaleRequest struct {
	Items          []SaleItemRequest `json:"items"           validate:"required,min=1,dive"`
	Payments       []PaymentRequest  `json:"payments"        validate:"omitempty,dive"`
	PaymentMethod  string            `json:"payment_method"  validate:"omitempty,oneof=cash debit credit pix"`
	AmountTendered *decimal.Decimal  `json:"amount_tendered"`
}

// ─── Filter / List ──────────────────────────────────────────────────────────

// SaleFilter is bound from the query string of GET /v1/sales.
type SaleFilter struct {
	From       string `form:"from"` // YYYY-MM-DD, inclusive
	To         string `form:"to"`   // YYYY-MM-DD, inclusive
	OperatorID string `form:"operator_id" validate:"omitempty,uuid"`
	SessionID  string `form:"session_id"  validate:"omitempty,uuid"`
	Page       int    `form:"page,default=1"   validate:"min=1"`
	Limit      int    `form:"limit,default=50" validate:"min=1,max=200"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type PaymentResponse struct {
	Method string          `json:"method"`
	Amount decimal.Decimal `json:"amount"`
}

type SaleLineResponse struct {
	ProductID    string          `json:"product_id"`
	ProductName  string          `json:"product_name,omitempty"`
	Quantity     int             `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Discount     decimal.Decimal `json:"discount"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	TrueUnitCost decimal.Decimal `json:"true_unit_cost"`
}

type SaleResponse struct {
	ID             string             `json:"id"`
	TicketNumber   int64              `json:"ticket_number"`
	OperatorID     string             `json:"operator_id"`
	CashSessionID  *string            `json:"cash_session_id"`
	Total          decimal.Decimal    `json:"total"`
	PaymentMethod  string             `json:"payment_method"`
	IsSplit        bool               `json:"is_split"`
	Payments       []PaymentResponse  `json:"payments"`
	AmountTendered decimal.Decimal    `json:"amount_tendered"`
	ChangeDue      decimal.Decimal    `json:"change_due"`
	Lines          []SaleLineResponse `json:"lines"`
	CreatedAt      string             `json:"created_at"`
}

type SaleListResponse struct {
	Data  []SaleResponse `json:"data"`
	Total int64          `json:"total"`
	Page  int            `json:"page"`
	Limit int            `json:"limit"`
}
