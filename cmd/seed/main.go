// Command seed creates a demo catalog with stocked batches for one tenant.
// Usage: go run ./cmd/seed -tenant <uuid>
package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/Brunno-Ar/SistemaPDV-sub001/internal/config"
	"github.com/Brunno-Ar/SistemaPDV-sub001/internal/infra"
	"github.com/Brunno-Ar/SistemaPDV-sub001/internal/model"
	"github.com/Brunno-Ar/SistemaPDV-sub001/internal/repository"
	"github.com/Brunno-Ar/SistemaPDV-sub001/internal/service"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type demoItem struct {
	sku, name  string
	price      string
	cost       string
	qty        int
	expiryDays int // 0 means no expiry
}

var demoCatalog = []demoItem{
	{"MILK-1L", "Whole milk 1L", "6.49", "4.10", 48, 10},
	{"BREAD-500", "Sliced bread 500g", "8.90", "5.20", 20, 5},
	{"RICE-5KG", "Rice 5kg", "27.90", "19.80", 30, 0},
	{"COFFEE-500", "Ground coffee 500g", "18.50", "12.30", 24, 180},
}

func main() {
	tenant := flag.String("tenant", "", "tenant UUID (random when empty)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	tenantID := uuid.New()
	if *tenant != "" {
		if tenantID, err = uuid.Parse(*tenant); err != nil {
			log.Fatal().Err(err).Msg("invalid tenant")
		}
	}

	db, err := infra.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect error")
	}

	products := repository.NewProductRepository(db)
	batches := repository.NewBatchRepository(db)
	movements := repository.NewStockMovementRepository(db)
	ledger := service.NewBatchLedger(batches, products, movements, cfg.LotCodePrefix)
	tx := repository.NewTxManager(db, cfg.SaleTxTimeout, cfg.LockTimeout)

	ctx := context.Background()
	now := time.Now().UTC()
	for _, item := range demoCatalog {
		p := &model.Product{
			ID:        uuid.New(),
			TenantID:  tenantID,
			SKU:       item.sku,
			Name:      item.name,
			SalePrice: decimal.RequireFromString(item.price),
			MinStock:  5,
			Active:    true,
		}
		if err := products.Create(ctx, p); err != nil {
			log.Fatal().Err(err).Str("sku", item.sku).Msg("create product")
		}

		var expires *time.Time
		if item.expiryDays > 0 {
			e := now.AddDate(0, 0, item.expiryDays)
			expires = &e
		}
		err := tx.Run(ctx, func(gtx *gorm.DB) error {
			_, err := ledger.Intake(ctx, gtx, service.IntakeParams{
				TenantID:   tenantID,
				ActorID:    uuid.Nil,
				ProductID:  p.ID,
				Qty:        item.qty,
				UnitCost:   decimal.RequireFromString(item.cost),
				ExpiresAt:  expires,
				ReceivedAt: now,
				Kind:       model.MovementIntake,
				Reason:     "demo seed",
			})
			return err
		})
		if err != nil {
			log.Fatal().Err(err).Str("sku", item.sku).Msg("intake")
		}
		fmt.Printf("%s  %-22s %3d units  id=%s\n", item.sku, item.name, item.qty, p.ID)
	}
	fmt.Printf("tenant %s seeded\n", tenantID)
}
