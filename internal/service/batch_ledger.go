package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Brunno-Ar/SistemaPDV-sub001/internal/model"
	"github.com/Brunno-Ar/SistemaPDV-sub001/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// BatchTake is the quantity drawn from one batch.
type BatchTake struct {
	BatchID  uuid.UUID
	LotCode  string
	Qty      int
	UnitCost decimal.Decimal
}

// Consumption is the outcome of a FEFO draw. Unfulfilled is the quantity no
// batch could cover; the caller decides how to cost it.
type Consumption struct {
	Touched      []BatchTake
	CostConsumed decimal.Decimal
	Unfulfilled  int
}

// IntakeParams describes a batch being received into stock.
type IntakeParams struct {
	TenantID   uuid.UUID
	ActorID    uuid.UUID
	ProductID  uuid.UUID
	Qty        int
	UnitCost   decimal.Decimal
	ExpiresAt  *time.Time
	LotCode    string // generated when empty
	ReceivedAt time.Time
	Kind       string // model.MovementIntake unless a positive manual correction
	Reason     string
}

// IntakeResult reports what an intake wrote.
type IntakeResult struct {
	Batch       *model.Batch
	Movement    *model.StockMovement
	AverageCost decimal.Decimal
}

// BatchLedger owns batch quantities. Every method runs on the caller's
// transaction handle and never commits on its own.
type BatchLedger struct {
	batches   repository.BatchRepository
	products  repository.ProductRepository
	movements repository.StockMovementRepository
	lotPrefix string
	now       func() time.Time
}

func NewBatchLedger(
	batches repository.BatchRepository,
	products repository.ProductRepository,
	movements repository.StockMovementRepository,
	lotPrefix string,
) *BatchLedger {
	if lotPrefix == "" {
		lotPrefix = "LOT"
	}
	return &BatchLedger{
		batches:   batches,
		products:  products,
		movements: movements,
		lotPrefix: lotPrefix,
		now:       time.Now,
	}
}

// ConsumeFEFO draws qty units of a product from its batches, earliest
// expiry first. Expired batches are not skipped. Exhausting every batch is
// not an error: the remainder comes back as Unfulfilled.
func (l *BatchLedger) ConsumeFEFO(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) (*Consumption, error) {
	if qty <= 0 {
		return nil, invalid("quantity", "must be greater than zero")
	}

	batches, err := l.batches.ListConsumable(ctx, tx, productID)
	if err != nil {
		return nil, fmt.Errorf("load batches: %w", err)
	}
	sort.SliceStable(batches, func(i, j int) bool {
		return batches[i].ConsumesBefore(&batches[j])
	})

	out := &Consumption{CostConsumed: decimal.Zero}
	needed := qty
	for i := range batches {
		if needed == 0 {
			break
		}
		b := &batches[i]
		if b.RemainingQty <= 0 {
			continue
		}
		take := min(b.RemainingQty, needed)
		if err := l.batches.Decrement(ctx, tx, b.ID, take); err != nil {
			return nil, fmt.Errorf("decrement batch %s: %w", b.LotCode, err)
		}
		b.RemainingQty -= take
		needed -= take
		out.Touched = append(out.Touched, BatchTake{
			BatchID:  b.ID,
			LotCode:  b.LotCode,
			Qty:      take,
			UnitCost: b.UnitCost,
		})
		out.CostConsumed = out.CostConsumed.Add(b.UnitCost.Mul(decimal.NewFromInt(int64(take))))
	}
	out.Unfulfilled = needed
	return out, nil
}

// Intake receives a new batch: it creates the batch, re-weights the
// product's average cost, raises its stock and records the movement.
func (l *BatchLedger) Intake(ctx context.Context, tx *gorm.DB, p IntakeParams) (*IntakeResult, error) {
	if p.Qty <= 0 {
		return nil, invalid("quantity", "must be greater than zero")
	}
	if p.UnitCost.IsNegative() {
		return nil, invalid("unit_cost", "must not be negative")
	}
	if p.Kind == "" {
		p.Kind = model.MovementIntake
	}

	locked, err := l.products.LockForUpdate(ctx, tx, p.TenantID, []uuid.UUID{p.ProductID})
	if err != nil {
		return nil, fmt.Errorf("lock product: %w", err)
	}
	if len(locked) == 0 {
		return nil, invalid("product_id", "unknown product %s", p.ProductID)
	}
	product := locked[0]

	lotCode := strings.TrimSpace(p.LotCode)
	if lotCode == "" {
		lotCode, err = l.freeLotCode(ctx, tx, p.ProductID)
		if err != nil {
			return nil, err
		}
	} else if exists, err := l.batches.LotCodeExists(ctx, tx, p.ProductID, lotCode); err != nil {
		return nil, err
	} else if exists {
		return nil, invalid("lot_code", "lot %s already exists for this product", lotCode)
	}

	receivedAt := p.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = l.now()
	}
	batch := &model.Batch{
		ID:           uuid.New(),
		TenantID:     p.TenantID,
		ProductID:    p.ProductID,
		LotCode:      lotCode,
		ExpiresAt:    p.ExpiresAt,
		InitialQty:   p.Qty,
		RemainingQty: p.Qty,
		UnitCost:     p.UnitCost.Round(costPlaces),
		ReceivedAt:   receivedAt,
	}
	if err := l.batches.Create(ctx, tx, batch); err != nil {
		return nil, fmt.Errorf("create batch: %w", err)
	}

	newAvg := Reweight(product.StockQty, product.AverageCost, p.Qty, batch.UnitCost)
	if err := l.products.UpdateAverageCost(ctx, tx, product.ID, newAvg); err != nil {
		return nil, fmt.Errorf("update average cost: %w", err)
	}
	if err := l.products.AdjustStock(ctx, tx, product.ID, p.Qty); err != nil {
		return nil, fmt.Errorf("raise stock: %w", err)
	}

	reason := p.Reason
	if reason == "" {
		reason = fmt.Sprintf("intake lot %s ×%d @ %s", lotCode, p.Qty, batch.UnitCost.StringFixed(costPlaces))
	}
	batchID := batch.ID
	mov := &model.StockMovement{
		ID:          uuid.New(),
		TenantID:    p.TenantID,
		ProductID:   product.ID,
		BatchID:     &batchID,
		ActorID:     p.ActorID,
		Kind:        p.Kind,
		Quantity:    p.Qty,
		StockBefore: product.StockQty,
		StockAfter:  product.StockQty + p.Qty,
		Reason:      reason,
		CreatedAt:   receivedAt,
	}
	if err := l.movements.Create(ctx, tx, mov); err != nil {
		return nil, fmt.Errorf("record movement: %w", err)
	}

	return &IntakeResult{Batch: batch, Movement: mov, AverageCost: newAvg}, nil
}

const lotSuffixAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// freeLotCode generates PREFIX-YYYY-MM-DD-XXXXXX codes until one is unused.
func (l *BatchLedger) freeLotCode(ctx context.Context, tx *gorm.DB, productID uuid.UUID) (string, error) {
	for attempt := 0; attempt < 5; attempt++ {
		code := fmt.Sprintf("%s-%s-%s", l.lotPrefix, l.now().Format("2006-01-02"), randomSuffix(6))
		exists, err := l.batches.LotCodeExists(ctx, tx, productID, code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
	}
	return "", &IntegrityError{Detail: "could not generate a unique lot code"}
}

func randomSuffix(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return strings.ToUpper(uuid.NewString()[:n])
	}
	for i, b := range buf {
		buf[i] = lotSuffixAlphabet[int(b)%len(lotSuffixAlphabet)]
	}
	return string(buf)
}
