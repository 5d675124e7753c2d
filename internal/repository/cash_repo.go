package repository

import (
	"context"

	"github.com/Brunno-Ar/SistemaPDV-sub001/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Row lock strengths accepted by CashRepository.LockSession.
const (
	LockShare  = "SHARE"
	LockUpdate = "UPDATE"
)

type CashRepository interface {
	// CreateSession returns ErrConflict when the operator already has an
	// open session (partial unique index on tenant_id, operator_id).
	CreateSession(ctx context.Context, s *model.CashSession) error
	FindOpenByOperator(ctx context.Context, tenantID, operatorID uuid.UUID) (*model.CashSession, error)
	FindSessionByID(ctx context.Context, tenantID, id uuid.UUID) (*model.CashSession, error)
	LockSession(ctx context.Context, tx *gorm.DB, tenantID, id uuid.UUID, strength string) (*model.CashSession, error)
	// CloseSession persists the closing fields; ErrConflict if the session
	// was closed concurrently.
	CloseSession(ctx context.Context, tx *gorm.DB, s *model.CashSession) error
	CreateMovement(ctx context.Context, tx *gorm.DB, m *model.CashMovement) error
	ListMovements(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) ([]model.CashMovement, error)
	ListSessions(ctx context.Context, tenantID uuid.UUID, page, limit int) ([]model.CashSession, int64, error)
}

type cashRepo struct{ db *gorm.DB }

func NewCashRepository(db *gorm.DB) CashRepository { return &cashRepo{db: db} }

func (r *cashRepo) CreateSession(ctx context.Context, s *model.CashSession) error {
	return Classify(ctx, r.db.WithContext(ctx).Create(s).Error)
}

func (r *cashRepo) FindOpenByOperator(ctx context.Context, tenantID, operatorID uuid.UUID) (*model.CashSession, error) {
	var s model.CashSession
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND operator_id = ? AND status = ?", tenantID, operatorID, model.SessionOpen).
		First(&s).Error
	if err != nil {
		return nil, Classify(ctx, err)
	}
	return &s, nil
}

func (r *cashRepo) FindSessionByID(ctx context.Context, tenantID, id uuid.UUID) (*model.CashSession, error) {
	var s model.CashSession
	err := r.db.WithContext(ctx).Where("tenant_id = ? AND id = ?", tenantID, id).First(&s).Error
	if err != nil {
		return nil, Classify(ctx, err)
	}
	return &s, nil
}

func (r *cashRepo) LockSession(ctx context.Context, tx *gorm.DB, tenantID, id uuid.UUID, strength string) (*model.CashSession, error) {
	var s model.CashSession
	err := conn(ctx, r.db, tx).
		Clauses(clause.Locking{Strength: strength}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&s).Error
	if err != nil {
		return nil, Classify(ctx, err)
	}
	return &s, nil
}

func (r *cashRepo) CloseSession(ctx context.Context, tx *gorm.DB, s *model.CashSession) error {
	res := conn(ctx, r.db, tx).Model(&model.CashSession{}).
		Where("id = ? AND status = ?", s.ID, model.SessionOpen).
		Updates(map[string]interface{}{
			"status":           model.SessionClosed,
			"declared_count":   s.DeclaredCount,
			"theoretical_cash": s.TheoreticalCash,
			"divergence":       s.Divergence,
			"divergence_pct":   s.DivergencePct,
			"divergence_class": s.DivergenceClass,
			"notes":            s.Notes,
			"closed_at":        s.ClosedAt,
		})
	if res.Error != nil {
		return Classify(ctx, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

func (r *cashRepo) CreateMovement(ctx context.Context, tx *gorm.DB, m *model.CashMovement) error {
	return Classify(ctx, conn(ctx, r.db, tx).Create(m).Error)
}

func (r *cashRepo) ListMovements(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) ([]model.CashMovement, error) {
	var movs []model.CashMovement
	err := conn(ctx, r.db, tx).Where("session_id = ?", sessionID).Order("created_at ASC").Find(&movs).Error
	return movs, err
}

func (r *cashRepo) ListSessions(ctx context.Context, tenantID uuid.UUID, page, limit int) ([]model.CashSession, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.CashSession{}).Where("tenant_id = ?", tenantID)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var sessions []model.CashSession
	err := q.Order("opened_at DESC").Offset((page - 1) * limit).Limit(limit).Find(&sessions).Error
	return sessions, total, err
}
