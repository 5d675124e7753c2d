package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/Brunno-Ar/SistemaPDV-sub001/internal/dto"
	"github.com/Brunno-Ar/SistemaPDV-sub001/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcile_NetCashAndLegacySales(t *testing.T) {
	opened := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	session := &model.CashSession{ID: uuid.New(), OpeningBalance: dec("50"), Status: model.SessionOpen, OpenedAt: opened}

	sales := []model.Sale{
		{ // cash 60 for 45, change 15
			Total: dec("45"), PaymentMethod: model.PaymentCash, ChangeDue: dec("15"),
			Payments: []model.SalePayment{{Method: model.PaymentCash, Amount: dec("60")}},
		},
		{ // split pix + cash
			Total: dec("45"), PaymentMethod: model.PaymentPix, IsSplit: true,
			Payments: []model.SalePayment{
				{Method: model.PaymentPix, Amount: dec("30")},
				{Method: model.PaymentCash, Amount: dec("15")},
			},
		},
		{ // legacy row without payments
			Total: dec("20"), PaymentMethod: model.PaymentCredit,
		},
	}
	movements := []model.CashMovement{
		{Kind: model.CashDeposit, Method: model.PaymentCash, Amount: dec("10")},
		{Kind: model.CashWithdrawal, Method: model.PaymentCash, Amount: dec("5")},
		{Kind: model.CashDeposit, Method: model.PaymentPix, Amount: dec("7")},
	}

	r := Reconcile(session, sales, movements)

	assert.Equal(t, 3, r.SalesCount)
	assert.True(t, r.SalesTotal.Equal(dec("110")))
	assert.True(t, r.PerInstrument[model.PaymentCash].Equal(dec("60")), "cash: %s", r.PerInstrument[model.PaymentCash])
	assert.True(t, r.PerInstrument[model.PaymentPix].Equal(dec("30")))
	assert.True(t, r.PerInstrument[model.PaymentCredit].Equal(dec("20")))
	assert.True(t, r.PerInstrument[model.PaymentDebit].IsZero())
	assert.True(t, r.ManualIn.Equal(dec("17")))
	assert.True(t, r.ManualCashIn.Equal(dec("10")))
	assert.True(t, r.ManualOut.Equal(dec("5")))
	// 50 + 60 + 10 − 5
	assert.True(t, r.TheoreticalCash.Equal(dec("115")), "theoretical: %s", r.TheoreticalCash)
}

func TestReconcile_CashNeverNegative(t *testing.T) {
	session := &model.CashSession{OpeningBalance: dec("0")}
	sales := []model.Sale{{
		Total: dec("10"), ChangeDue: dec("5"),
		Payments: []model.SalePayment{{Method: model.PaymentDebit, Amount: dec("10")}},
	}}
	r := Reconcile(session, sales, nil)
	assert.True(t, r.PerInstrument[model.PaymentCash].IsZero())
}

func TestComputeDivergence(t *testing.T) {
	cases := []struct {
		declared, theoretical string
		class                 string
	}{
		{"100", "100", model.DivergenceNormal},
		{"99", "100", model.DivergenceNormal},
		{"97", "100", model.DivergenceWarning},
		{"105", "100", model.DivergenceWarning},
		{"90", "100", model.DivergenceCritical},
		{"0", "0", model.DivergenceNormal},
		{"5", "0", model.DivergenceCritical},
		{"600.00", "0.50", model.DivergenceCritical},
		{"99999999.99", "0.01", model.DivergenceCritical},
		{"-500000", "0.01", model.DivergenceCritical},
	}
	for _, tc := range cases {
		d := ComputeDivergence(dec(tc.declared), dec(tc.theoretical))
		assert.Equal(t, tc.class, d.Classification, "%s vs %s", tc.declared, tc.theoretical)
		assert.True(t, d.Amount.Equal(dec(tc.declared).Sub(dec(tc.theoretical))))
		assert.True(t, d.Percent.Abs().LessThanOrEqual(dec("99999.99")), "%s vs %s: pct %s", tc.declared, tc.theoretical, d.Percent)
	}

	assert.True(t, ComputeDivergence(dec("600.00"), dec("0.50")).Percent.Equal(dec("99999.99")))
	assert.True(t, ComputeDivergence(dec("-500000"), dec("0.01")).Percent.Equal(dec("-99999.99")))
	assert.True(t, ComputeDivergence(dec("150"), dec("100")).Percent.Equal(dec("50")))
}

// A tiny expected drawer with a large count still closes as critical.
func TestCashSession_CloseWithTinyTheoretical(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	session := f.openSession(t, f.cashier, "0")
	sessionID := uuid.MustParse(session.ID)

	p := f.seedProduct("Candy", "0.10", 0)
	f.seedBatch(p.ID, "C-1", 10, "0.10", nil, f.baseTime)
	_, err := f.saleSvc.FinalizeSale(ctx, f.cashier, dto.FinalizeSaleRequest{
		Items:    []dto.SaleItemRequest{item(p.ID, 1, "0.50")},
		Payments: cashPayment("0.50"),
	})
	require.NoError(t, err)

	notes := "float left from previous shift"
	closed, err := f.cashSvc.Close(ctx, f.cashier, sessionID, dto.CloseSessionRequest{DeclaredCount: dec("600.00"), Notes: &notes})
	require.NoError(t, err)
	require.NotNil(t, closed.Session.Divergence)
	assert.Equal(t, model.DivergenceCritical, closed.Session.Divergence.Classification)
	assert.True(t, closed.Session.Divergence.Amount.Equal(dec("599.50")))
	assert.True(t, closed.Session.Divergence.Percent.Equal(dec("99999.99")))
}

// A sale committing while a reconciliation is in flight must not leave the
// pre-sale figure in the cache.
func TestCashSession_ReconcileRacingSaleDoesNotCacheStaleFigure(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	session := f.openSession(t, f.cashier, "10")
	sessionID := uuid.MustParse(session.ID)

	p := f.seedProduct("Water", "1.00", 0)
	f.seedBatch(p.ID, "W-1", 10, "1.00", nil, f.baseTime)

	fired := false
	f.cache.beforeSet = func(key string) {
		if fired || !strings.HasPrefix(key, "reconcile:") {
			return
		}
		fired = true
		_, err := f.saleSvc.FinalizeSale(ctx, f.cashier, dto.FinalizeSaleRequest{
			Items:    []dto.SaleItemRequest{item(p.ID, 1, "3")},
			Payments: cashPayment("3"),
		})
		require.NoError(t, err)
	}

	stale, err := f.cashSvc.Reconcile(ctx, f.cashier, sessionID)
	require.NoError(t, err)
	require.True(t, fired)
	assert.True(t, stale.TheoreticalCashOnHand.Equal(dec("10")))

	fresh, err := f.cashSvc.Reconcile(ctx, f.cashier, sessionID)
	require.NoError(t, err)
	assert.True(t, fresh.TheoreticalCashOnHand.Equal(dec("13")))
}

// Open with 100, sell 2 × 25 in cash, withdraw 20: 130 in the drawer.
func TestCashSession_EndToEnd(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	session := f.openSession(t, f.cashier, "100.00")
	sessionID := uuid.MustParse(session.ID)

	p := f.seedProduct("Pizza", "8.00", 0)
	f.seedBatch(p.ID, "PZ-1", 10, "8.00", nil, f.baseTime)

	_, err := f.saleSvc.FinalizeSale(ctx, f.cashier, dto.FinalizeSaleRequest{
		Items:    []dto.SaleItemRequest{item(p.ID, 2, "25.00")},
		Payments: cashPayment("50.00"),
	})
	require.NoError(t, err)

	_, err = f.cashSvc.RegisterMovement(ctx, f.cashier, sessionID, dto.CashMovementRequest{
		Kind: model.CashWithdrawal, Amount: dec("20.00"), Description: "bank run",
	})
	require.NoError(t, err)

	rec, err := f.cashSvc.Reconcile(ctx, f.cashier, sessionID)
	require.NoError(t, err)
	assert.True(t, rec.TheoreticalCashOnHand.Equal(dec("130.00")), "theoretical: %s", rec.TheoreticalCashOnHand)
	assert.Equal(t, 1, rec.SalesCount)
	assert.True(t, rec.ManualCashOut.Equal(dec("20")))

	closed, err := f.cashSvc.Close(ctx, f.cashier, sessionID, dto.CloseSessionRequest{DeclaredCount: dec("130.00")})
	require.NoError(t, err)
	assert.Equal(t, model.SessionClosed, closed.Session.Status)
	require.NotNil(t, closed.Session.Divergence)
	assert.Equal(t, model.DivergenceNormal, closed.Session.Divergence.Classification)
	assert.True(t, closed.Session.Divergence.Amount.IsZero())
	assert.NotNil(t, closed.Session.ClosedAt)
}

func TestCashSession_ReconcileIsIdempotent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	session := f.openSession(t, f.cashier, "10")
	sessionID := uuid.MustParse(session.ID)

	p := f.seedProduct("Water", "1.00", 0)
	f.seedBatch(p.ID, "W-1", 10, "1.00", nil, f.baseTime)
	_, err := f.saleSvc.FinalizeSale(ctx, f.cashier, dto.FinalizeSaleRequest{
		Items:    []dto.SaleItemRequest{item(p.ID, 1, "3")},
		Payments: cashPayment("5"),
	})
	require.NoError(t, err)

	first, err := f.cashSvc.Reconcile(ctx, f.cashier, sessionID)
	require.NoError(t, err)
	second, err := f.cashSvc.Reconcile(ctx, f.cashier, sessionID)
	require.NoError(t, err)

	assert.Equal(t, 1, f.cache.hits, "second call served from cache")
	assert.True(t, first.TheoreticalCashOnHand.Equal(second.TheoreticalCashOnHand))
	assert.True(t, first.SalesTotal.Equal(second.SalesTotal))
	assert.True(t, first.TheoreticalCashOnHand.Equal(dec("13")))

	// A new sale invalidates the cached figure.
	_, err = f.saleSvc.FinalizeSale(ctx, f.cashier, dto.FinalizeSaleRequest{
		Items:    []dto.SaleItemRequest{item(p.ID, 1, "3")},
		Payments: cashPayment("3"),
	})
	require.NoError(t, err)
	third, err := f.cashSvc.Reconcile(ctx, f.cashier, sessionID)
	require.NoError(t, err)
	assert.True(t, third.TheoreticalCashOnHand.Equal(dec("16")))
}

func TestCashSession_CloseClassification(t *testing.T) {
	notes := "recount done with supervisor"
	cases := []struct {
		name     string
		declared string
		notes    *string
		class    string
		wantErr  bool
	}{
		{"normal", "100.50", nil, model.DivergenceNormal, false},
		{"warning", "96", nil, model.DivergenceWarning, false},
		{"critical without notes", "80", nil, "", true},
		{"critical with notes", "80", &notes, model.DivergenceCritical, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture()
			session := f.openSession(t, f.cashier, "100")

			resp, err := f.cashSvc.Close(context.Background(), f.cashier, uuid.MustParse(session.ID), dto.CloseSessionRequest{
				DeclaredCount: dec(tc.declared),
				Notes:         tc.notes,
			})
			if tc.wantErr {
				var ve *ValidationError
				require.ErrorAs(t, err, &ve)
				assert.Equal(t, "notes", ve.Field)
				stored := f.store.sessions[uuid.MustParse(session.ID)]
				assert.True(t, stored.IsOpen(), "failed close leaves the session open")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.class, resp.Session.Divergence.Classification)
		})
	}
}

func TestCashSession_ClosedIsTerminal(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	session := f.openSession(t, f.cashier, "0")
	sessionID := uuid.MustParse(session.ID)

	_, err := f.cashSvc.Close(ctx, f.cashier, sessionID, dto.CloseSessionRequest{DeclaredCount: dec("0")})
	require.NoError(t, err)

	var sc *SessionClosedError
	_, err = f.cashSvc.Close(ctx, f.cashier, sessionID, dto.CloseSessionRequest{DeclaredCount: dec("0")})
	assert.ErrorAs(t, err, &sc)

	_, err = f.cashSvc.RegisterMovement(ctx, f.cashier, sessionID, dto.CashMovementRequest{
		Kind: model.CashDeposit, Amount: dec("1"), Description: "late",
	})
	assert.ErrorAs(t, err, &sc)

	// The cashier can sell again only after opening a new session.
	p := f.seedProduct("Nuts", "1.00", 0)
	f.seedBatch(p.ID, "N-1", 1, "1.00", nil, f.baseTime)
	_, err = f.saleSvc.FinalizeSale(ctx, f.cashier, dto.FinalizeSaleRequest{
		Items:    []dto.SaleItemRequest{item(p.ID, 1, "1")},
		Payments: cashPayment("1"),
	})
	assert.ErrorAs(t, err, &sc)
}

func TestCashSession_OneOpenPerOperator(t *testing.T) {
	f := newFixture()
	f.openSession(t, f.cashier, "0")

	_, err := f.cashSvc.Open(context.Background(), f.cashier, dto.OpenSessionRequest{})
	assert.ErrorIs(t, err, ErrConflict)

	active, err := f.cashSvc.GetActive(context.Background(), f.cashier)
	require.NoError(t, err)
	assert.Equal(t, model.SessionOpen, active.Status)

	_, err = f.cashSvc.GetActive(context.Background(), f.admin)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCashSession_OtherOperatorsSessionIsHidden(t *testing.T) {
	f := newFixture()
	session := f.openSession(t, f.cashier, "0")
	other := Caller{TenantID: f.tenant, OperatorID: uuid.New(), Role: model.RoleCashier}

	_, err := f.cashSvc.Reconcile(context.Background(), other, uuid.MustParse(session.ID))
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.cashSvc.Reconcile(context.Background(), f.admin, uuid.MustParse(session.ID))
	assert.NoError(t, err)
}

func TestCashSession_MovementValidation(t *testing.T) {
	f := newFixture()
	session := f.openSession(t, f.cashier, "0")
	id := uuid.MustParse(session.ID)

	cases := map[string]dto.CashMovementRequest{
		"bad kind":       {Kind: "refund", Amount: dec("1"), Description: "x y z"},
		"zero amount":    {Kind: model.CashDeposit, Amount: dec("0"), Description: "x y z"},
		"bad method":     {Kind: model.CashDeposit, Method: "voucher", Amount: dec("1"), Description: "x y z"},
		"no description": {Kind: model.CashDeposit, Amount: dec("1"), Description: "   "},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.cashSvc.RegisterMovement(context.Background(), f.cashier, id, req)
			var ve *ValidationError
			assert.ErrorAs(t, err, &ve)
		})
	}
	assert.Empty(t, f.store.cashMovs)
}
