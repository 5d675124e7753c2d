package model

import (
	"time"

	"github.com/google/uuid"
)

// Stock movement kinds.
const (
	MovementIntake          = "intake"
	MovementSale            = "sale"
	MovementAdjustment      = "adjustment"
	MovementBreakage        = "breakage"
	MovementCountCorrection = "count_correction"
)

// StockMovement records every change to a product's stock. Rows are
// append-only; corrections are new movements.
type StockMovement struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	TenantID    uuid.UUID  `gorm:"type:uuid;not null;index"`
	ProductID   uuid.UUID  `gorm:"type:uuid;not null;index"`
	BatchID     *uuid.UUID `gorm:"type:uuid"` // set when a single batch covered the movement
	ActorID     uuid.UUID  `gorm:"type:uuid;not null"`
	Kind        string     `gorm:"type:varchar(20);not null"`
	Quantity    int        `gorm:"not null"` // positive = in, negative = out
	StockBefore int        `gorm:"not null"`
	StockAfter  int        `gorm:"not null"`
	Reason      string
	ReferenceID *uuid.UUID `gorm:"type:uuid;index"` // sale id when Kind is sale
	CreatedAt   time.Time  `gorm:"index"`

	Product *Product `gorm:"foreignKey:ProductID"`
}

// TableName overrides GORM's default pluralization.
func (StockMovement) TableName() string { return "stock_movements" }
