package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Brunno-Ar/SistemaPDV-sub001/internal/dto"
	"github.com/Brunno-Ar/SistemaPDV-sub001/internal/model"
	"github.com/Brunno-Ar/SistemaPDV-sub001/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"gorm.io/gorm"
)

type InventoryService interface {
	Intake(ctx context.Context, caller Caller, req dto.IntakeRequest) (*dto.IntakeResponse, error)
	Adjust(ctx context.Context, caller Caller, req dto.AdjustmentRequest) (*dto.AdjustmentResponse, error)
	ListBatches(ctx context.Context, caller Caller, productID uuid.UUID, includeEmpty bool) ([]dto.BatchResponse, error)
	ListMovements(ctx context.Context, caller Caller, filter dto.MovementFilter) (*dto.MovementListResponse, error)
	LowStock(ctx context.Context, caller Caller) ([]dto.LowStockAlert, error)
	// AuditConservation lists products whose stock differs from the sum of
	// their batches.
	AuditConservation(ctx context.Context, caller Caller) ([]dto.StockDriftResponse, error)
}

type inventoryService struct {
	tx        repository.TxManager
	products  repository.ProductRepository
	batches   repository.BatchRepository
	movements repository.StockMovementRepository
	ledger    *BatchLedger
	alerts    StockAlertPublisher
	metrics   *engineMetrics
	now       func() time.Time
}

func NewInventoryService(
	tx repository.TxManager,
	products repository.ProductRepository,
	batches repository.BatchRepository,
	movements repository.StockMovementRepository,
	ledger *BatchLedger,
	alerts StockAlertPublisher,
) InventoryService {
	return &inventoryService{
		tx:        tx,
		products:  products,
		batches:   batches,
		movements: movements,
		ledger:    ledger,
		alerts:    alerts,
		metrics:   newEngineMetrics(),
		now:       time.Now,
	}
}

// ── Intake ────────────────────────────────────────────────────────────────────

func (s *inventoryService) Intake(ctx context.Context, caller Caller, req dto.IntakeRequest) (*dto.IntakeResponse, error) {
	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		return nil, invalid("product_id", "invalid id")
	}
	var expires *time.Time
	if req.ExpiresAt != nil && *req.ExpiresAt != "" {
		t, err := time.Parse("2006-01-02", *req.ExpiresAt)
		if err != nil {
			return nil, invalid("expires_at", "expected YYYY-MM-DD")
		}
		expires = &t
	}

	var res *IntakeResult
	err = s.tx.Run(ctx, func(tx *gorm.DB) error {
		var err error
		res, err = s.ledger.Intake(ctx, tx, IntakeParams{
			TenantID:  caller.TenantID,
			ActorID:   caller.OperatorID,
			ProductID: productID,
			Qty:       req.Quantity,
			UnitCost:  req.UnitCost,
			ExpiresAt: expires,
			LotCode:   req.LotCode,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("product_id", productID.String()).
		Str("lot", res.Batch.LotCode).
		Int("qty", res.Batch.InitialQty).
		Str("average_cost", res.AverageCost.String()).
		Msg("batch received")

	return &dto.IntakeResponse{
		Batch:       batchToResponse(res.Batch),
		Movement:    stockMovementToResponse(res.Movement),
		AverageCost: res.AverageCost,
	}, nil
}

// ── Adjust ────────────────────────────────────────────────────────────────────
// Negative quantities draw from batches in FEFO order. Positive ones enter as
// a new batch at the product's current average cost so the average does not
// move.

func (s *inventoryService) Adjust(ctx context.Context, caller Caller, req dto.AdjustmentRequest) (*dto.AdjustmentResponse, error) {
	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		return nil, invalid("product_id", "invalid id")
	}
	switch req.Kind {
	case model.MovementAdjustment, model.MovementBreakage, model.MovementCountCorrection:
	default:
		return nil, invalid("kind", "unsupported adjustment kind %q", req.Kind)
	}
	if req.Quantity == 0 {
		return nil, invalid("quantity", "must not be zero")
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, invalid("reason", "is required")
	}

	var (
		mov         *model.StockMovement
		unfulfilled int
		after       model.Product
	)
	err = s.tx.Run(ctx, func(tx *gorm.DB) error {
		locked, err := s.products.LockForUpdate(ctx, tx, caller.TenantID, []uuid.UUID{productID})
		if err != nil {
			return fmt.Errorf("lock product: %w", err)
		}
		if len(locked) == 0 {
			return invalid("product_id", "unknown product %s", productID)
		}
		product := locked[0]

		if req.Quantity > 0 {
			res, err := s.ledger.Intake(ctx, tx, IntakeParams{
				TenantID:  caller.TenantID,
				ActorID:   caller.OperatorID,
				ProductID: productID,
				Qty:       req.Quantity,
				UnitCost:  product.AverageCost,
				Kind:      req.Kind,
				Reason:    reason,
			})
			if err != nil {
				return err
			}
			mov = res.Movement
			after = product
			after.StockQty += req.Quantity
			return nil
		}

		out := -req.Quantity
		if product.StockQty < out {
			return &InsufficientStockError{ProductID: productID, ProductName: product.Name, Available: product.StockQty, Requested: out}
		}
		cons, err := s.ledger.ConsumeFEFO(ctx, tx, productID, out)
		if err != nil {
			return err
		}
		if err := s.products.AdjustStock(ctx, tx, productID, -out); err != nil {
			return fmt.Errorf("decrement stock: %w", err)
		}

		mov = &model.StockMovement{
			ID:          uuid.New(),
			TenantID:    caller.TenantID,
			ProductID:   productID,
			ActorID:     caller.OperatorID,
			Kind:        req.Kind,
			Quantity:    req.Quantity,
			StockBefore: product.StockQty,
			StockAfter:  product.StockQty - out,
			Reason:      adjustmentReason(reason, cons),
			CreatedAt:   s.now(),
		}
		if len(cons.Touched) == 1 && cons.Unfulfilled == 0 {
			id := cons.Touched[0].BatchID
			mov.BatchID = &id
		}
		if err := s.movements.Create(ctx, tx, mov); err != nil {
			return fmt.Errorf("record movement: %w", err)
		}
		unfulfilled = cons.Unfulfilled
		after = product
		after.StockQty -= out
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.stockAdjusted.Add(ctx, int64(abs(req.Quantity)), metric.WithAttributes(attribute.String("kind", req.Kind)))
	log.Info().
		Str("product_id", productID.String()).
		Str("kind", req.Kind).
		Int("qty", req.Quantity).
		Int("stock_after", after.StockQty).
		Msg("stock adjusted")
	if unfulfilled > 0 {
		log.Warn().
			Str("product_id", productID.String()).
			Int("qty", unfulfilled).
			Msg("adjustment removed units not covered by any batch")
	}

	if req.Quantity < 0 && after.BelowMinimum() && after.StockQty-req.Quantity > after.MinStock && s.alerts != nil {
		job := dto.StockAlertJob{
			TenantID:  caller.TenantID.String(),
			ProductID: after.ID.String(),
			Name:      after.Name,
			SKU:       after.SKU,
			StockQty:  after.StockQty,
			MinStock:  after.MinStock,
			RaisedAt:  s.now(),
		}
		if err := s.alerts.EnqueueStockAlert(ctx, job); err != nil {
			log.Warn().Err(err).Str("product_id", job.ProductID).Msg("stock alert enqueue failed")
		}
	}

	return &dto.AdjustmentResponse{Movement: stockMovementToResponse(mov), Unfulfilled: unfulfilled}, nil
}

// ── Queries ───────────────────────────────────────────────────────────────────

func (s *inventoryService) ListBatches(ctx context.Context, caller Caller, productID uuid.UUID, includeEmpty bool) ([]dto.BatchResponse, error) {
	if _, err := s.products.FindByID(ctx, caller.TenantID, productID); err != nil {
		return nil, err
	}
	batches, err := s.batches.ListByProduct(ctx, caller.TenantID, productID, includeEmpty)
	if err != nil {
		return nil, err
	}
	out := make([]dto.BatchResponse, 0, len(batches))
	for i := range batches {
		out = append(out, batchToResponse(&batches[i]))
	}
	return out, nil
}

func (s *inventoryService) ListMovements(ctx context.Context, caller Caller, filter dto.MovementFilter) (*dto.MovementListResponse, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = 100
	}
	rf := repository.StockMovementFilter{
		TenantID: caller.TenantID,
		Kind:     filter.Kind,
		Page:     filter.Page,
		Limit:    filter.Limit,
	}
	if filter.ProductID != "" {
		id, err := uuid.Parse(filter.ProductID)
		if err != nil {
			return nil, invalid("product_id", "invalid id")
		}
		rf.ProductID = &id
	}
	if filter.SaleID != "" {
		id, err := uuid.Parse(filter.SaleID)
		if err != nil {
			return nil, invalid("sale_id", "invalid id")
		}
		rf.ReferenceID = &id
	}

	movements, total, err := s.movements.List(ctx, rf)
	if err != nil {
		return nil, err
	}
	data := make([]dto.StockMovementResponse, 0, len(movements))
	for i := range movements {
		data = append(data, stockMovementToResponse(&movements[i]))
	}
	return &dto.MovementListResponse{Data: data, Total: total, Page: filter.Page, Limit: filter.Limit}, nil
}

func (s *inventoryService) LowStock(ctx context.Context, caller Caller) ([]dto.LowStockAlert, error) {
	products, err := s.products.ListLowStock(ctx, caller.TenantID)
	if err != nil {
		return nil, err
	}
	out := make([]dto.LowStockAlert, 0, len(products))
	for _, p := range products {
		out = append(out, dto.LowStockAlert{
			ProductID: p.ID.String(),
			Name:      p.Name,
			SKU:       p.SKU,
			StockQty:  p.StockQty,
			MinStock:  p.MinStock,
		})
	}
	return out, nil
}

func (s *inventoryService) AuditConservation(ctx context.Context, caller Caller) ([]dto.StockDriftResponse, error) {
	drifts, err := s.products.ListStockDrift(ctx, &caller.TenantID)
	if err != nil {
		return nil, err
	}
	return DriftToResponse(drifts), nil
}

// DriftToResponse converts audit rows for the API and the audit worker.
func DriftToResponse(drifts []repository.StockDrift) []dto.StockDriftResponse {
	out := make([]dto.StockDriftResponse, 0, len(drifts))
	for _, d := range drifts {
		out = append(out, dto.StockDriftResponse{
			ProductID: d.ProductID.String(),
			Name:      d.Name,
			StockQty:  d.StockQty,
			BatchQty:  d.BatchQty,
			Drift:     d.StockQty - d.BatchQty,
		})
	}
	return out
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func adjustmentReason(reason string, c *Consumption) string {
	parts := make([]string, 0, len(c.Touched)+1)
	for _, t := range c.Touched {
		parts = append(parts, fmt.Sprintf("%s×%d", t.LotCode, t.Qty))
	}
	if c.Unfulfilled > 0 {
		parts = append(parts, fmt.Sprintf("no lot ×%d [no-batch]", c.Unfulfilled))
	}
	return fmt.Sprintf("%s (%s)", reason, strings.Join(parts, ", "))
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func batchToResponse(b *model.Batch) dto.BatchResponse {
	resp := dto.BatchResponse{
		ID:           b.ID.String(),
		ProductID:    b.ProductID.String(),
		LotCode:      b.LotCode,
		InitialQty:   b.InitialQty,
		RemainingQty: b.RemainingQty,
		UnitCost:     b.UnitCost,
		ReceivedAt:   b.ReceivedAt.UTC().Format(time.RFC3339),
	}
	if b.ExpiresAt != nil {
		d := b.ExpiresAt.Format("2006-01-02")
		resp.ExpiresAt = &d
	}
	return resp
}

func stockMovementToResponse(m *model.StockMovement) dto.StockMovementResponse {
	resp := dto.StockMovementResponse{
		ID:          m.ID.String(),
		ProductID:   m.ProductID.String(),
		ActorID:     m.ActorID.String(),
		Kind:        m.Kind,
		Quantity:    m.Quantity,
		StockBefore: m.StockBefore,
		StockAfter:  m.StockAfter,
		Reason:      m.Reason,
		CreatedAt:   m.CreatedAt.UTC().Format(time.RFC3339),
	}
	if m.Product != nil {
		resp.ProductName = m.Product.Name
	}
	if m.BatchID != nil {
		id := m.BatchID.String()
		resp.BatchID = &id
	}
	if m.ReferenceID != nil {
		id := m.ReferenceID.String()
		resp.ReferenceID = &id
	}
	return resp
}
