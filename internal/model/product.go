package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product is the sellable catalog entry. StockQty always equals the sum of
// RemainingQty over the product's batches once a sale or intake commits.
type Product struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	TenantID    uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_products_tenant_sku"`
	SKU         string          `gorm:"not null;uniqueIndex:idx_products_tenant_sku"`
	Name        string          `gorm:"index;not null"`
	SalePrice   decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	AverageCost decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0"`
	StockQty    int             `gorm:"not null;default:0;check:chk_products_stock_nonneg,stock_qty >= 0"`
	MinStock    int             `gorm:"not null;default:5"`
	Active      bool            `gorm:"not null;default:true"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// BelowMinimum reports whether the running stock sits at or under the alert threshold.
func (p *Product) BelowMinimum() bool {
	return p.StockQty <= p.MinStock
}
