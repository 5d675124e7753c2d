package repository

import (
	"context"
	"time"

	"github.com/Brunno-Ar/SistemaPDV-sub001/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SaleFilter narrows sale listings. TenantID is mandatory.
type SaleFilter struct {
	TenantID   uuid.UUID
	OperatorID *uuid.UUID
	SessionID  *uuid.UUID
	From       *time.Time
	To         *time.Time
	Page       int
	Limit      int
}

type SaleRepository interface {
	Create(ctx context.Context, tx *gorm.DB, s *model.Sale) error
	NextTicketNumber(ctx context.Context, tx *gorm.DB) (int64, error)
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*model.Sale, error)
	List(ctx context.Context, filter SaleFilter) ([]model.Sale, int64, error)
	// ListForSession returns the sales attributable to a cash session with
	// their payments: rows stamped with the session id, plus rows without
	// one that the same operator rang up while the session was open.
	ListForSession(ctx context.Context, tx *gorm.DB, session *model.CashSession) ([]model.Sale, error)
}

type saleRepo struct{ db *gorm.DB }

func NewSaleRepository(db *gorm.DB) SaleRepository { return &saleRepo{db: db} }

func (r *saleRepo) Create(ctx context.Context, tx *gorm.DB, s *model.Sale) error {
	return Classify(ctx, conn(ctx, r.db, tx).Create(s).Error)
}

func (r *saleRepo) NextTicketNumber(ctx context.Context, tx *gorm.DB) (int64, error) {
	var num int64
	err := conn(ctx, r.db, tx).Raw("SELECT nextval('sales_ticket_number_seq')").Scan(&num).Error
	return num, err
}

func (r *saleRepo) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*model.Sale, error) {
	var s model.Sale
	err := r.db.WithContext(ctx).
		Preload("Lines.Product").Preload("Payments").
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&s).Error
	if err != nil {
		return nil, Classify(ctx, err)
	}
	return &s, nil
}

func (r *saleRepo) List(ctx context.Context, filter SaleFilter) ([]model.Sale, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.Sale{}).Where("tenant_id = ?", filter.TenantID)
	if filter.OperatorID != nil {
		q = q.Where("operator_id = ?", *filter.OperatorID)
	}
	if filter.SessionID != nil {
		q = q.Where("cash_session_id = ?", *filter.SessionID)
	}
	if filter.From != nil {
		q = q.Where("created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		q = q.Where("created_at < ?", *filter.To)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page, limit := filter.Page, filter.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 200 {
		limit = 50
	}

	var sales []model.Sale
	err := q.Preload("Lines").Preload("Payments").
		Order("created_at DESC").
		Offset((page - 1) * limit).Limit(limit).
		Find(&sales).Error
	return sales, total, err
}

func (r *saleRepo) ListForSession(ctx context.Context, tx *gorm.DB, session *model.CashSession) ([]model.Sale, error) {
	legacy := r.db.Where("cash_session_id IS NULL AND operator_id = ? AND created_at >= ?",
		session.OperatorID, session.OpenedAt)
	if session.ClosedAt != nil {
		legacy = legacy.Where("created_at <= ?", *session.ClosedAt)
	}

	var sales []model.Sale
	err := conn(ctx, r.db, tx).
		Preload("Payments").
		Where("tenant_id = ?", session.TenantID).
		Where(r.db.Where("cash_session_id = ?", session.ID).Or(legacy)).
		Order("created_at ASC").
		Find(&sales).Error
	return sales, err
}
