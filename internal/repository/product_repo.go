package repository

import (
	"context"

	"github.com/Brunno-Ar/SistemaPDV-sub001/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StockDrift is a product whose running stock disagrees with its batches.
type StockDrift struct {
	ProductID uuid.UUID
	TenantID  uuid.UUID
	Name      string
	StockQty  int
	BatchQty  int
}

// ProductRepository defines the data access contract for products.
// Methods taking a tx run on it when non-nil, otherwise on the pool.
type ProductRepository interface {
	Create(ctx context.Context, p *model.Product) error
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*model.Product, error)
	FindByIDs(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]model.Product, error)

	// LockForUpdate takes row locks on the given products in ascending id
	// order so that concurrent baskets never deadlock on each other.
	LockForUpdate(ctx context.Context, tx *gorm.DB, tenantID uuid.UUID, ids []uuid.UUID) ([]model.Product, error)
	// AdjustStock adds delta to stock_qty. Negative deltas are guarded and
	// return ErrConflict instead of driving stock below zero.
	AdjustStock(ctx context.Context, tx *gorm.DB, id uuid.UUID, delta int) error
	UpdateAverageCost(ctx context.Context, tx *gorm.DB, id uuid.UUID, avg decimal.Decimal) error

	ListLowStock(ctx context.Context, tenantID uuid.UUID) ([]model.Product, error)
	// ListStockDrift returns products whose stock differs from the batch sum.
	// A nil tenantID audits every tenant.
	ListStockDrift(ctx context.Context, tenantID *uuid.UUID) ([]StockDrift, error)
}

type productRepo struct{ db *gorm.DB }

func NewProductRepository(db *gorm.DB) ProductRepository { return &productRepo{db: db} }

func (r *productRepo) Create(ctx context.Context, p *model.Product) error {
	return Classify(ctx, r.db.WithContext(ctx).Create(p).Error)
}

func (r *productRepo) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*model.Product, error) {
	var p model.Product
	err := r.db.WithContext(ctx).Where("tenant_id = ? AND id = ?", tenantID, id).First(&p).Error
	if err != nil {
		return nil, Classify(ctx, err)
	}
	return &p, nil
}

func (r *productRepo) FindByIDs(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]model.Product, error) {
	var products []model.Product
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id IN ?", tenantID, ids).
		Find(&products).Error
	return products, err
}

func (r *productRepo) LockForUpdate(ctx context.Context, tx *gorm.DB, tenantID uuid.UUID, ids []uuid.UUID) ([]model.Product, error) {
	var products []model.Product
	err := conn(ctx, r.db, tx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("tenant_id = ? AND id IN ?", tenantID, ids).
		Order("id ASC").
		Find(&products).Error
	return products, err
}

func (r *productRepo) AdjustStock(ctx context.Context, tx *gorm.DB, id uuid.UUID, delta int) error {
	q := conn(ctx, r.db, tx).Model(&model.Product{}).Where("id = ?", id)
	if delta < 0 {
		q = q.Where("stock_qty >= ?", -delta)
	}
	res := q.Update("stock_qty", gorm.Expr("stock_qty + ?", delta))
	if res.Error != nil {
		return Classify(ctx, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

func (r *productRepo) UpdateAverageCost(ctx context.Context, tx *gorm.DB, id uuid.UUID, avg decimal.Decimal) error {
	return conn(ctx, r.db, tx).Model(&model.Product{}).
		Where("id = ?", id).
		Update("average_cost", avg).Error
}

func (r *productRepo) ListLowStock(ctx context.Context, tenantID uuid.UUID) ([]model.Product, error) {
	var products []model.Product
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND active = true AND stock_qty <= min_stock", tenantID).
		Order("stock_qty ASC, name ASC").
		Find(&products).Error
	return products, err
}

func (r *productRepo) ListStockDrift(ctx context.Context, tenantID *uuid.UUID) ([]StockDrift, error) {
	q := r.db.WithContext(ctx).
		Table("products AS p").
		Select("p.id AS product_id, p.tenant_id, p.name, p.stock_qty, COALESCE(SUM(b.remaining_qty), 0) AS batch_qty").
		Joins("LEFT JOIN batches b ON b.product_id = p.id").
		Group("p.id").
		Having("p.stock_qty <> COALESCE(SUM(b.remaining_qty), 0)")
	if tenantID != nil {
		q = q.Where("p.tenant_id = ?", *tenantID)
	}
	var drifts []StockDrift
	err := q.Order("p.name ASC").Scan(&drifts).Error
	return drifts, err
}
