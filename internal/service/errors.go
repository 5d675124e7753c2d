package service

import (
	"errors"
	"fmt"

	"github.com/Brunno-Ar/SistemaPDV-sub001/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ValidationError rejects malformed input before any effect.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// InsufficientStockError names the product that cannot cover the basket.
type InsufficientStockError struct {
	ProductID   uuid.UUID
	ProductName string
	Available   int
	Requested   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: available %d, requested %d",
		e.ProductName, e.Available, e.Requested)
}

// PaymentMismatchError is returned when the tendered instruments do not
// settle the sale total within tolerance.
type PaymentMismatchError struct {
	Tendered decimal.Decimal
	Total    decimal.Decimal
	Reason   string
}

func (e *PaymentMismatchError) Error() string {
	msg := fmt.Sprintf("payments %s do not settle total %s", e.Tendered.StringFixed(2), e.Total.StringFixed(2))
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// SessionClosedError is returned when an operation needs an open cash
// session and there is none.
type SessionClosedError struct {
	OperatorID uuid.UUID
	SessionID  *uuid.UUID
}

func (e *SessionClosedError) Error() string {
	if e.SessionID != nil {
		return fmt.Sprintf("cash session %s is closed", e.SessionID)
	}
	return "no open cash session for operator"
}

// IntegrityError reports state that breaks a ledger invariant, for example
// a product that disappeared between validation and locking. It is logged
// and surfaced without detail.
type IntegrityError struct {
	Detail string
}

func (e *IntegrityError) Error() string { return "integrity violation: " + e.Detail }

// Retryable sentinels surfaced from the persistence layer.
var (
	ErrConflict  = repository.ErrConflict
	ErrTxTimeout = repository.ErrTxTimeout
	ErrNotFound  = repository.ErrNotFound
)

// IsRetryable reports whether the caller may safely resubmit the operation.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrTxTimeout)
}
