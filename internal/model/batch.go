package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Batch is a received lot of a product with its own expiry and unit cost.
// A nil ExpiresAt means the lot is not expiry-tracked and is consumed last.
type Batch struct {
	ID           uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	TenantID     uuid.UUID       `gorm:"type:uuid;not null;index"`
	ProductID    uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_batches_product_lot"`
	LotCode      string          `gorm:"type:varchar(64);not null;uniqueIndex:idx_batches_product_lot"`
	ExpiresAt    *time.Time      `gorm:"type:date"`
	InitialQty   int             `gorm:"not null"`
	RemainingQty int             `gorm:"not null;check:chk_batches_remaining_nonneg,remaining_qty >= 0"`
	UnitCost     decimal.Decimal `gorm:"type:decimal(12,4);not null"`
	ReceivedAt   time.Time       `gorm:"not null"`
	CreatedAt    time.Time
}

// TableName keeps GORM from pluralizing to "batchs".
func (Batch) TableName() string { return "batches" }

// ConsumesBefore reports whether b precedes other in first-expired-first-out
// order: earliest expiry first, untracked expiry last, then oldest intake,
// then id.
func (b *Batch) ConsumesBefore(other *Batch) bool {
	switch {
	case b.ExpiresAt != nil && other.ExpiresAt == nil:
		return true
	case b.ExpiresAt == nil && other.ExpiresAt != nil:
		return false
	case b.ExpiresAt != nil && other.ExpiresAt != nil && !b.ExpiresAt.Equal(*other.ExpiresAt):
		return b.ExpiresAt.Before(*other.ExpiresAt)
	}
	if !b.ReceivedAt.Equal(other.ReceivedAt) {
		return b.ReceivedAt.Before(other.ReceivedAt)
	}
	return b.ID.String() < other.ID.String()
}
