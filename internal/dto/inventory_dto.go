package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// ─── Request DTOs ────────────────────────────────────────────────────────────

type IntakeRequest struct {
	ProductID string          `json:"product_id" validate:"required,uuid"`
	Quantity  int             `json:"quantity"   validate:"required,min=1"`
	UnitCost  decimal.Decimal `json:"unit_cost"  validate:"min=0"`
	ExpiresAt *string         `json:"expires_at" validate:"omitempty,datetime=2006-01-02"`
	LotCode   string          `json:"lot_code"   validate:"omitempty,max=64"`
}

// AdjustmentRequest is a manual stock correction. Negative quantities draw
// from batches in FEFO order; positive ones create a batch at the current
// average cost.
type AdjustmentRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Kind      string `json:"kind"       validate:"required,oneof=adjustment breakage count_correction"`
	Quantity  int    `json:"quantity"   validate:"required,ne=0"`
	Reason    string `json:"reason"     validate:"required,min=3"`
}

type MovementFilter struct {
	ProductID string `form:"product_id" validate:"omitempty,uuid"`
	Kind      string `form:"kind"       validate:"omitempty,oneof=intake sale adjustment breakage count_correction"`
	SaleID    string `form:"sale_id"    validate:"omitempty,uuid"`
	Page      int    `form:"page,default=1"    validate:"min=1"`
	Limit     int    `form:"limit,default=100" validate:"min=1,max=500"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type BatchResponse struct {
	ID           string          `json:"id"`
	ProductID    string          `json:"product_id"`
	LotCode      string          `json:"lot_code"`
	ExpiresAt    *string         `json:"expires_at"`
	InitialQty   int             `json:"initial_qty"`
	RemainingQty int             `json:"remaining_qty"`
	UnitCost     decimal.Decimal `json:"unit_cost"`
	ReceivedAt   string          `json:"received_at"`
}

type StockMovementResponse struct {
	ID          string  `json:"id"`
	ProductID   string  `json:"product_id"`
	ProductName string  `json:"product_name,omitempty"`
	BatchID     *string `json:"batch_id"`
	ActorID     string  `json:"actor_id"`
	Kind        string  `json:"kind"`
	Quantity    int     `json:"quantity"`
	StockBefore int     `json:"stock_before"`
	StockAfter  int     `json:"stock_after"`
	Reason      string  `json:"reason"`
	ReferenceID *string `json:"reference_id"`
	CreatedAt   string  `json:"created_at"`
}

type MovementListResponse struct {
	Data  []StockMovementResponse `json:"data"`
	Total int64                   `json:"total"`
	Page  int                     `json:"page"`
	Limit int                     `json:"limit"`
}

type IntakeResponse struct {
	Batch       BatchResponse         `json:"batch"`
	Movement    StockMovementResponse `json:"movement"`
	AverageCost decimal.Decimal       `json:"average_cost"`
}

type AdjustmentResponse struct {
	Movement StockMovementResponse `json:"movement"`
	// Unfulfilled is the part of a negative adjustment no batch could cover.
	Unfulfilled int `json:"unfulfilled"`
}

type LowStockAlert struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	SKU       string `json:"sku"`
	StockQty  int    `json:"stock_qty"`
	MinStock  int    `json:"min_stock"`
}

type StockDriftResponse struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	StockQty  int    `json:"stock_qty"`
	BatchQty  int    `json:"batch_qty"`
	Drift     int    `json:"drift"`
}

// ─── Job payloads ────────────────────────────────────────────────────────────

// StockAlertJob is the queue payload for a product that fell to its minimum.
type StockAlertJob struct {
	TenantID  string    `json:"tenant_id"`
	ProductID string    `json:"product_id"`
	Name      string    `json:"name"`
	SKU       string    `json:"sku"`
	StockQty  int       `json:"stock_qty"`
	MinStock  int       `json:"min_stock"`
	SaleID    string    `json:"sale_id,omitempty"`
	RaisedAt  time.Time `json:"raised_at"`
}
