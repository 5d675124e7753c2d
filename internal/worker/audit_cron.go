package worker

// audit_cron.go
// Background goroutine that periodically compares every product's running
// stock with the sum of its batch remainders and reports any drift.

import (
	"context"
	"time"

	"github.com/Brunno-Ar/SistemaPDV-sub001/internal/repository"

	"github.com/rs/zerolog/log"
)

// StockAuditConfig holds all dependencies for the audit goroutine.
type StockAuditConfig struct {
	Products repository.ProductRepository
	Interval time.Duration
}

// StartStockAudit launches the audit ticker. A non-positive interval leaves
// it disabled. It respects the context for graceful shutdown.
func StartStockAudit(ctx context.Context, cfg StockAuditConfig) {
	if cfg.Interval <= 0 {
		log.Info().Msg("stock_audit: disabled")
		return
	}
	go func() {
		ticker := time.NewTicker(cfg.Interval)
		defer ticker.Stop()

		log.Info().Dur("interval", cfg.Interval).Msg("stock_audit: started")

		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("stock_audit: shutting down")
				return
			case <-ticker.C:
				runStockAudit(ctx, cfg.Products)
			}
		}
	}()
}

// runStockAudit returns the number of drifting products found.
func runStockAudit(ctx context.Context, products repository.ProductRepository) int {
	drifts, err := products.ListStockDrift(ctx, nil)
	if err != nil {
		log.Error().Err(err).Msg("stock_audit: failed to query drift")
		return 0
	}
	for _, d := range drifts {
		log.Warn().
			Str("tenant_id", d.TenantID.String()).
			Str("product_id", d.ProductID.String()).
			Str("name", d.Name).
			Int("stock_qty", d.StockQty).
			Int("batch_qty", d.BatchQty).
			Int("drift", d.StockQty-d.BatchQty).
			Msg("stock_audit: stock does not match batches")
	}
	if len(drifts) == 0 {
		log.Debug().Msg("stock_audit: stock matches batches")
	}
	return len(drifts)
}
