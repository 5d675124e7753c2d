package service

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/Brunno-Ar/SistemaPDV-sub001/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReweight(t *testing.T) {
	cases := []struct {
		name   string
		stock  int
		avg    string
		inQty  int
		inCost string
		want   string
	}{
		{"blend", 10, "10.00", 10, "20.00", "15"},
		{"empty stock takes incoming cost", 0, "0", 5, "7.25", "7.25"},
		{"uneven weights", 3, "2.00", 1, "6.00", "3"},
		{"zero denominator keeps average", 0, "4.50", 0, "9.00", "4.50"},
		{"repeating decimal rounds to four places", 2, "1.00", 1, "2.00", "1.3333"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Reweight(tc.stock, dec(tc.avg), tc.inQty, dec(tc.inCost))
			assert.True(t, got.Equal(dec(tc.want)), "got %s want %s", got, tc.want)
		})
	}
}

func TestTrueUnitCost(t *testing.T) {
	assert.True(t, TrueUnitCost(dec("30"), 3).Equal(dec("10")))
	assert.True(t, TrueUnitCost(dec("10"), 3).Equal(dec("3.3333")))
	assert.True(t, TrueUnitCost(dec("10"), 0).IsZero())
}

func TestConsumeFEFO_Ordering(t *testing.T) {
	f := newFixture()
	p := f.seedProduct("Yogurt", "1.00", 0)
	t0 := f.baseTime

	// Seeded out of order on purpose: the ledger must sort.
	undated := f.seedBatch(p.ID, "L-NULL", 10, "1.00", nil, t0)
	late := f.seedBatch(p.ID, "L-E2", 5, "2.00", datePtr(2026, 6, 1), t0)
	early := f.seedBatch(p.ID, "L-E1", 4, "3.00", datePtr(2026, 4, 1), t0.Add(time.Hour))

	ctx := context.Background()

	t.Run("within first batch only touches it", func(t *testing.T) {
		c, err := f.ledger.ConsumeFEFO(ctx, nil, p.ID, 3)
		require.NoError(t, err)
		require.Len(t, c.Touched, 1)
		assert.Equal(t, "L-E1", c.Touched[0].LotCode)
		assert.Equal(t, 0, c.Unfulfilled)
		assert.True(t, c.CostConsumed.Equal(dec("9")))
		assert.Equal(t, 1, f.batch(early.ID).RemainingQty)
	})

	t.Run("spills into next dated batch before undated", func(t *testing.T) {
		c, err := f.ledger.ConsumeFEFO(ctx, nil, p.ID, 4)
		require.NoError(t, err)
		require.Len(t, c.Touched, 2)
		assert.Equal(t, "L-E1", c.Touched[0].LotCode)
		assert.Equal(t, 1, c.Touched[0].Qty)
		assert.Equal(t, "L-E2", c.Touched[1].LotCode)
		assert.Equal(t, 3, c.Touched[1].Qty)
		assert.True(t, c.CostConsumed.Equal(dec("9")), "1×3 + 3×2: %s", c.CostConsumed)
		assert.Equal(t, 10, f.batch(undated.ID).RemainingQty)
	})

	t.Run("exhaustion reports unfulfilled", func(t *testing.T) {
		c, err := f.ledger.ConsumeFEFO(ctx, nil, p.ID, 15)
		require.NoError(t, err)
		assert.Equal(t, 3, c.Unfulfilled)
		assert.Equal(t, 0, f.batch(late.ID).RemainingQty)
		assert.Equal(t, 0, f.batch(undated.ID).RemainingQty)
	})
}

func TestConsumeFEFO_TieBreaksOnReceivedAt(t *testing.T) {
	f := newFixture()
	p := f.seedProduct("Milk", "1.00", 0)
	exp := datePtr(2026, 5, 1)

	f.seedBatch(p.ID, "NEWER", 5, "1.00", exp, f.baseTime.Add(48*time.Hour))
	f.seedBatch(p.ID, "OLDER", 5, "1.00", exp, f.baseTime)

	c, err := f.ledger.ConsumeFEFO(context.Background(), nil, p.ID, 6)
	require.NoError(t, err)
	require.Len(t, c.Touched, 2)
	assert.Equal(t, "OLDER", c.Touched[0].LotCode)
	assert.Equal(t, 5, c.Touched[0].Qty)
	assert.Equal(t, "NEWER", c.Touched[1].LotCode)
}

func TestConsumeFEFO_RejectsNonPositive(t *testing.T) {
	f := newFixture()
	_, err := f.ledger.ConsumeFEFO(context.Background(), nil, uuid.New(), 0)
	var ve *ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestIntake_GeneratesLotAndReweights(t *testing.T) {
	f := newFixture()
	p := f.seedProduct("Coffee", "10.00", 0)
	f.seedBatch(p.ID, "OPENING", 10, "10.00", nil, f.baseTime)

	f.ledger.now = func() time.Time { return f.baseTime }
	res, err := f.ledger.Intake(context.Background(), nil, IntakeParams{
		TenantID:  f.tenant,
		ActorID:   f.admin.OperatorID,
		ProductID: p.ID,
		Qty:       10,
		UnitCost:  dec("20.00"),
	})
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^LOT-2026-03-02-[A-Z2-9]{6}$`), res.Batch.LotCode)
	assert.True(t, res.AverageCost.Equal(dec("15")))
	assert.Equal(t, model.MovementIntake, res.Movement.Kind)
	assert.Equal(t, 10, res.Movement.StockBefore)
	assert.Equal(t, 20, res.Movement.StockAfter)
	assert.Contains(t, res.Movement.Reason, res.Batch.LotCode)

	got := f.product(p.ID)
	assert.Equal(t, 20, got.StockQty)
	assert.True(t, got.AverageCost.Equal(dec("15")))
	assert.Equal(t, got.StockQty, f.batchSum(p.ID))
}

func TestIntake_DuplicateLotCode(t *testing.T) {
	f := newFixture()
	p := f.seedProduct("Tea", "1.00", 0)
	f.seedBatch(p.ID, "A-1", 1, "1.00", nil, f.baseTime)

	_, err := f.ledger.Intake(context.Background(), nil, IntakeParams{
		TenantID: f.tenant, ProductID: p.ID, Qty: 1, UnitCost: dec("1"), LotCode: "A-1",
	})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "lot_code", ve.Field)
}

func TestIntake_UnknownProduct(t *testing.T) {
	f := newFixture()
	_, err := f.ledger.Intake(context.Background(), nil, IntakeParams{
		TenantID: f.tenant, ProductID: uuid.New(), Qty: 1, UnitCost: dec("1"),
	})
	var ve *ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestBatch_ConsumesBefore(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	dated := &model.Batch{ID: uuid.New(), ExpiresAt: datePtr(2026, 2, 1), ReceivedAt: t0.Add(time.Hour)}
	undated := &model.Batch{ID: uuid.New(), ReceivedAt: t0}

	assert.True(t, dated.ConsumesBefore(undated))
	assert.False(t, undated.ConsumesBefore(dated))
}
