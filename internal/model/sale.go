package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Payment instruments accepted at the register.
const (
	PaymentCash   = "cash"
	PaymentDebit  = "debit"
	PaymentCredit = "credit"
	PaymentPix    = "pix"
)

// PaymentMethods lists the instruments in reporting order.
var PaymentMethods = []string{PaymentCash, PaymentDebit, PaymentCredit, PaymentPix}

// IsPaymentMethod reports whether m is one of the accepted instruments.
func IsPaymentMethod(m string) bool {
	for _, pm := range PaymentMethods {
		if pm == m {
			return true
		}
	}
	return false
}

// Sale is a finalized basket. CashSessionID is captured at creation; rows
// written before it existed are attributed to sessions by operator and time.
type Sale struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	TenantID       uuid.UUID       `gorm:"type:uuid;not null;index"`
	OperatorID     uuid.UUID       `gorm:"type:uuid;not null;index"`
	CashSessionID  *uuid.UUID      `gorm:"type:uuid;index"`
	TicketNumber   int64           `gorm:"not null;uniqueIndex"`
	Total          decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	PaymentMethod  string          `gorm:"type:varchar(20);not null"` // legacy single label, derived
	IsSplit        bool            `gorm:"not null;default:false"`
	AmountTendered decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	ChangeDue      decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	CreatedAt      time.Time       `gorm:"index"`

	Lines    []SaleLine    `gorm:"foreignKey:SaleID"`
	Payments []SalePayment `gorm:"foreignKey:SaleID"`
}

// SaleLine records one basket row with the real cost of the units it consumed.
type SaleLine struct {
	ID           uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SaleID       uuid.UUID       `gorm:"type:uuid;not null;index"`
	ProductID    uuid.UUID       `gorm:"type:uuid;not null;index"`
	Quantity     int             `gorm:"not null"`
	UnitPrice    decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Discount     decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	Subtotal     decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	TrueUnitCost decimal.Decimal `gorm:"type:decimal(12,4);not null"`

	Product *Product `gorm:"foreignKey:ProductID"`
}

// SalePayment is one tender instrument of a sale.
type SalePayment struct {
	ID     uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SaleID uuid.UUID       `gorm:"type:uuid;not null;index"`
	Method string          `gorm:"type:varchar(20);not null"`
	Amount decimal.Decimal `gorm:"type:decimal(12,2);not null"`
}
