package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Cash session states. A closed session never reopens.
const (
	SessionOpen   = "open"
	SessionClosed = "closed"
)

// Divergence classifications computed on close.
const (
	DivergenceNormal   = "normal"
	DivergenceWarning  = "warning"
	DivergenceCritical = "critical"
)

// CashSession represents the lifecycle of one operator's register shift.
type CashSession struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	TenantID       uuid.UUID       `gorm:"type:uuid;not null;index"`
	OperatorID     uuid.UUID       `gorm:"type:uuid;not null;index"`
	OpeningBalance decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Status         string          `gorm:"type:varchar(20);not null;default:'open'"`
	OpenedAt       time.Time       `gorm:"not null"`
	// Filled on close
	DeclaredCount   *decimal.Decimal `gorm:"type:decimal(12,2)"`
	TheoreticalCash *decimal.Decimal `gorm:"type:decimal(12,2)"`
	Divergence      *decimal.Decimal `gorm:"type:decimal(12,2)"`
	DivergencePct   *decimal.Decimal `gorm:"type:decimal(12,2)"`
	DivergenceClass *string          `gorm:"type:varchar(20)"`
	Notes           *string
	ClosedAt        *time.Time

	Movements []CashMovement `gorm:"foreignKey:SessionID"`
}

// IsOpen reports whether the session still accepts sales and movements.
func (s *CashSession) IsOpen() bool { return s.Status == SessionOpen }

// Manual cash movement directions.
const (
	CashDeposit    = "deposit"
	CashWithdrawal = "withdrawal"
)

// CashMovement is a manual deposit or withdrawal. Movements are never
// modified or deleted.
type CashMovement struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SessionID   uuid.UUID       `gorm:"type:uuid;not null;index"`
	TenantID    uuid.UUID       `gorm:"type:uuid;not null"`
	Kind        string          `gorm:"type:varchar(20);not null"`
	Method      string          `gorm:"type:varchar(20);not null"`
	Amount      decimal.Decimal `gorm:"type:decimal(12,2);not null"` // always positive
	Description string          `gorm:"not null"`
	ActorID     uuid.UUID       `gorm:"type:uuid;not null"`
	CreatedAt   time.Time
}
