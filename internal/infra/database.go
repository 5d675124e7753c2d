package infra

import (
	"fmt"

	"github.com/Brunno-Ar/SistemaPDV-sub001/internal/model"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDatabase establishes a GORM connection backed by pgx and brings the
// schema up to date.
func NewDatabase(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)

	if err := RunMigrations(db); err != nil {
		return nil, err
	}
	return db, nil
}

// RunMigrations creates or updates every table, then applies the DDL that
// AutoMigrate cannot express.
func RunMigrations(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.Product{},
		&model.Batch{},
		&model.Sale{},
		&model.SaleLine{},
		&model.SalePayment{},
		&model.StockMovement{},
		&model.CashSession{},
		&model.CashMovement{},
	); err != nil {
		return fmt.Errorf("AutoMigrate: %w", err)
	}
	return applySchemaPatches(db)
}

// applySchemaPatches runs idempotent DDL statements (sequences, partial
// indexes, extra checks). Each one is safe to re-run.
func applySchemaPatches(db *gorm.DB) error {
	patches := []struct{ descr, sql string }{
		{"ticket number sequence",
			`CREATE SEQUENCE IF NOT EXISTS sales_ticket_number_seq`},
		// one open register per operator per tenant
		{"one open cash session per operator",
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_cash_sessions_one_open
			     ON cash_sessions (tenant_id, operator_id)
			     WHERE status = 'open'`},
		{"fefo scan index",
			`CREATE INDEX IF NOT EXISTS idx_batches_fefo
			     ON batches (product_id, expires_at ASC NULLS LAST, received_at ASC, id ASC)
			     WHERE remaining_qty > 0`},
		{"sales by session window",
			`CREATE INDEX IF NOT EXISTS idx_sales_operator_created
			     ON sales (operator_id, created_at)
			     WHERE cash_session_id IS NULL`},
		{"cash movement amount positive", `
DO $$ BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_cash_movements_amount_pos') THEN
    ALTER TABLE cash_movements ADD CONSTRAINT chk_cash_movements_amount_pos CHECK (amount > 0);
  END IF;
END $$`},
		{"sale line quantity positive", `
DO $$ BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_sale_lines_qty_pos') THEN
    ALTER TABLE sale_lines ADD CONSTRAINT chk_sale_lines_qty_pos CHECK (quantity > 0);
  END IF;
END $$`},
	}

	for _, p := range patches {
		if err := db.Exec(p.sql).Error; err != nil {
			return fmt.Errorf("patch %q: %w", p.descr, err)
		}
	}
	return nil
}
