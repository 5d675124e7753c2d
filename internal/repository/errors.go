package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when a lookup matches no row in the caller's tenant.
	ErrNotFound = errors.New("record not found")
	// ErrConflict signals a concurrent modification: a guarded update matched
	// no row, a serialization failure, a deadlock or a constraint race.
	// Callers may retry the whole operation.
	ErrConflict = errors.New("concurrent modification conflict")
	// ErrTxTimeout signals that a lock wait or the transaction itself ran out
	// of time. Callers may retry.
	ErrTxTimeout = errors.New("transaction timed out")
)

// PostgreSQL SQLSTATE codes the engine reacts to.
const (
	sqlstateUniqueViolation      = "23505"
	sqlstateCheckViolation       = "23514"
	sqlstateSerializationFailure = "40001"
	sqlstateDeadlockDetected     = "40P01"
	sqlstateLockNotAvailable     = "55P03"
	sqlstateQueryCanceled        = "57014"
)

// Classify maps driver errors onto the repository sentinels. Errors that are
// not database errors (including domain errors returned from a transaction
// body) pass through unchanged.
func Classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) || errors.Is(err, ErrTxTimeout) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case sqlstateSerializationFailure, sqlstateDeadlockDetected,
			sqlstateCheckViolation, sqlstateUniqueViolation:
			return fmt.Errorf("%w: %s (%s)", ErrConflict, pgErr.Message, pgErr.Code)
		case sqlstateLockNotAvailable, sqlstateQueryCanceled:
			return fmt.Errorf("%w: %s (%s)", ErrTxTimeout, pgErr.Message, pgErr.Code)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) || (ctx != nil && errors.Is(ctx.Err(), context.DeadlineExceeded)) {
		return fmt.Errorf("%w: %v", ErrTxTimeout, err)
	}
	return err
}
