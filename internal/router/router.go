package router

import (
	"context"
	"time"

	"github.com/Brunno-Ar/SistemaPDV-sub001/internal/cache"
	"github.com/Brunno-Ar/SistemaPDV-sub001/internal/config"
	"github.com/Brunno-Ar/SistemaPDV-sub001/internal/handler"
	"github.com/Brunno-Ar/SistemaPDV-sub001/internal/middleware"
	"github.com/Brunno-Ar/SistemaPDV-sub001/internal/model"
	"github.com/Brunno-Ar/SistemaPDV-sub001/internal/repository"
	"github.com/Brunno-Ar/SistemaPDV-sub001/internal/service"
	"github.com/Brunno-Ar/SistemaPDV-sub001/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"
)

// New wires all dependencies and returns a configured Gin engine.
// Dependency graph: Handler ← Service ← Repository ← DB/Redis
func New(cfg *config.Config, db *gorm.DB, rdb *redis.Client, limiter *middleware.RateLimiter) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Global middleware chain (order matters)
	r.Use(middleware.RequestID())
	r.Use(otelgin.Middleware(cfg.ServiceName))
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.CORS(cfg.AllowedOrigins()...))
	r.Use(middleware.ErrorHandler())

	// ── Repositories ─────────────────────────────────────────────────────────
	tx := repository.NewTxManager(db, cfg.SaleTxTimeout, cfg.LockTimeout)
	productRepo := repository.NewProductRepository(db)
	batchRepo := repository.NewBatchRepository(db)
	saleRepo := repository.NewSaleRepository(db)
	movementRepo := repository.NewStockMovementRepository(db)
	cashRepo := repository.NewCashRepository(db)

	// ── Services ─────────────────────────────────────────────────────────────
	tolerance, _ := cfg.Tolerance() // validated by config.Load
	reconcileCache := cache.NewRedisCache(rdb, cfg.ServiceName+":")
	dispatcher := worker.NewDispatcher(rdb)
	ledger := service.NewBatchLedger(batchRepo, productRepo, movementRepo, cfg.LotCodePrefix)

	saleSvc := service.NewSaleService(service.SaleDeps{
		Tx:        tx,
		Products:  productRepo,
		Sales:     saleRepo,
		Movements: movementRepo,
		Cash:      cashRepo,
		Ledger:    ledger,
		Cache:     reconcileCache,
		Alerts:    dispatcher,
		Tolerance: tolerance,
	})
	cashSvc := service.NewCashService(tx, cashRepo, saleRepo, reconcileCache, cfg.ReconcileCacheTTL)
	inventorySvc := service.NewInventoryService(tx, productRepo, batchRepo, movementRepo, ledger, dispatcher)

	// ── Handlers ─────────────────────────────────────────────────────────────
	salesH := handler.NewSalesHandler(saleSvc)
	cashH := handler.NewCashHandler(cashSvc)
	inventoryH := handler.NewInventoryHandler(inventorySvc)

	// ── Routes ───────────────────────────────────────────────────────────────

	// Public
	r.GET("/health", handler.Health(map[string]handler.Check{
		"db": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
		"redis": func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	}))

	if limiter == nil {
		limiter = middleware.NewRateLimiter(cfg.RateLimitPerMinute, time.Minute)
	}

	// Protected routes: every role may sell and run its own register,
	// stock management is elevated only.
	elevated := middleware.RequireRole(model.RoleSupervisor, model.RoleAdmin)
	v1 := r.Group("/v1", middleware.JWTAuth(cfg.JWTSecret), limiter.Handler())
	{
		sales := v1.Group("/sales")
		{
			sales.POST("", salesH.FinalizeSale)
			sales.GET("", salesH.ListSales)
			sales.GET("/:id", salesH.GetSale)
		}

		cash := v1.Group("/cash/sessions")
		{
			cash.POST("", cashH.Open)
			cash.GET("/active", cashH.Active)
			cash.GET("", elevated, cashH.History)
			cash.POST("/:id/movements", cashH.RegisterMovement)
			cash.GET("/:id/reconciliation", cashH.Reconcile)
			cash.POST("/:id/close", cashH.Close)
		}

		inv := v1.Group("/inventory")
		{
			inv.POST("/intake", elevated, inventoryH.Intake)
			inv.POST("/adjustments", elevated, inventoryH.Adjust)
			inv.GET("/products/:id/batches", inventoryH.ListBatches)
			inv.GET("/movements", inventoryH.ListMovements)
			inv.GET("/alerts", inventoryH.LowStock)
			inv.GET("/audit", elevated, inventoryH.Audit)
		}
	}

	return r
}
