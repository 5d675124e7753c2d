package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// TxManager scopes a unit of work to one database transaction. The handle
// passed to fn must be threaded into every repository call of that unit;
// the transaction commits when fn returns nil and rolls back otherwise.
type TxManager interface {
	Run(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type gormTxManager struct {
	db          *gorm.DB
	timeout     time.Duration
	lockTimeout time.Duration
}

// NewTxManager bounds every transaction by timeout and every row-lock wait
// inside it by lockTimeout. Zero disables the respective bound.
func NewTxManager(db *gorm.DB, timeout, lockTimeout time.Duration) TxManager {
	return &gormTxManager{db: db, timeout: timeout, lockTimeout: lockTimeout}
}

func (m *gormTxManager) Run(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if m.lockTimeout > 0 {
			// SET LOCAL does not accept bind parameters.
			stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", m.lockTimeout.Milliseconds())
			if err := tx.Exec(stmt).Error; err != nil {
				return err
			}
		}
		return fn(tx)
	})
	return Classify(ctx, err)
}

// conn returns the caller's transaction when there is one, otherwise the
// repository's own pool, bound to ctx either way.
func conn(ctx context.Context, db, tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx.WithContext(ctx)
	}
	return db.WithContext(ctx)
}
