package repository

import (
	"context"

	"github.com/Brunno-Ar/SistemaPDV-sub001/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// fefoOrder is the consumption order of a product's batches.
const fefoOrder = "expires_at ASC NULLS LAST, received_at ASC, id ASC"

type BatchRepository interface {
	Create(ctx context.Context, tx *gorm.DB, b *model.Batch) error
	// ListConsumable returns the product's batches with stock left, in
	// consumption order, locked for update.
	ListConsumable(ctx context.Context, tx *gorm.DB, productID uuid.UUID) ([]model.Batch, error)
	// Decrement takes qty from a batch; ErrConflict when it has less left.
	Decrement(ctx context.Context, tx *gorm.DB, id uuid.UUID, qty int) error
	LotCodeExists(ctx context.Context, tx *gorm.DB, productID uuid.UUID, lotCode string) (bool, error)
	ListByProduct(ctx context.Context, tenantID, productID uuid.UUID, includeEmpty bool) ([]model.Batch, error)
}

type batchRepo struct{ db *gorm.DB }

func NewBatchRepository(db *gorm.DB) BatchRepository { return &batchRepo{db: db} }

func (r *batchRepo) Create(ctx context.Context, tx *gorm.DB, b *model.Batch) error {
	return Classify(ctx, conn(ctx, r.db, tx).Create(b).Error)
}

func (r *batchRepo) ListConsumable(ctx context.Context, tx *gorm.DB, productID uuid.UUID) ([]model.Batch, error) {
	var batches []model.Batch
	err := conn(ctx, r.db, tx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("product_id = ? AND remaining_qty > 0", productID).
		Order(fefoOrder).
		Find(&batches).Error
	return batches, err
}

func (r *batchRepo) Decrement(ctx context.Context, tx *gorm.DB, id uuid.UUID, qty int) error {
	res := conn(ctx, r.db, tx).Model(&model.Batch{}).
		Where("id = ? AND remaining_qty >= ?", id, qty).
		Update("remaining_qty", gorm.Expr("remaining_qty - ?", qty))
	if res.Error != nil {
		return Classify(ctx, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

func (r *batchRepo) LotCodeExists(ctx context.Context, tx *gorm.DB, productID uuid.UUID, lotCode string) (bool, error) {
	var n int64
	err := conn(ctx, r.db, tx).Model(&model.Batch{}).
		Where("product_id = ? AND lot_code = ?", productID, lotCode).
		Count(&n).Error
	return n > 0, err
}

func (r *batchRepo) ListByProduct(ctx context.Context, tenantID, productID uuid.UUID, includeEmpty bool) ([]model.Batch, error) {
	q := r.db.WithContext(ctx).Where("tenant_id = ? AND product_id = ?", tenantID, productID)
	if !includeEmpty {
		q = q.Where("remaining_qty > 0")
	}
	var batches []model.Batch
	err := q.Order(fefoOrder).Find(&batches).Error
	return batches, err
}
