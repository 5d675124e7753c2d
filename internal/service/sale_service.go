package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Brunno-Ar/SistemaPDV-sub001/internal/cache"
	"github.com/Brunno-Ar/SistemaPDV-sub001/internal/dto"
	"github.com/Brunno-Ar/SistemaPDV-sub001/internal/model"
	"github.com/Brunno-Ar/SistemaPDV-sub001/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"gorm.io/gorm"
)

// StockAlertPublisher hands low-stock notifications to the background workers.
type StockAlertPublisher interface {
	EnqueueStockAlert(ctx context.Context, job dto.StockAlertJob) error
}

type SaleService interface {
	FinalizeSale(ctx context.Context, caller Caller, req dto.FinalizeSaleRequest) (*dto.SaleResponse, error)
	GetSale(ctx context.Context, caller Caller, id uuid.UUID) (*dto.SaleResponse, error)
	ListSales(ctx context.Context, caller Caller, filter dto.SaleFilter) (*dto.SaleListResponse, error)
}

// SaleDeps groups the collaborators of the sale orchestrator.
type SaleDeps struct {
	Tx        repository.TxManager
	Products  repository.ProductRepository
	Sales     repository.SaleRepository
	Movements repository.StockMovementRepository
	Cash      repository.CashRepository
	Ledger    *BatchLedger
	Cache     cache.Cache         // optional
	Alerts    StockAlertPublisher // optional
	Tolerance decimal.Decimal
}

type saleService struct {
	SaleDeps
	metrics *engineMetrics
	now     func() time.Time
}

func NewSaleService(deps SaleDeps) SaleService {
	if deps.Cache == nil {
		deps.Cache = cache.Noop{}
	}
	return &saleService{SaleDeps: deps, metrics: newEngineMetrics(), now: time.Now}
}

// basketLine is a validated request item.
type basketLine struct {
	productID uuid.UUID
	qty       int
	unitPrice decimal.Decimal
	discount  decimal.Decimal
	subtotal  decimal.Decimal
}

// noLotShortfall is a line quantity no batch could cover.
type noLotShortfall struct {
	productID uuid.UUID
	qty       int
	avgCost   decimal.Decimal
}

// ── FinalizeSale ──────────────────────────────────────────────────────────────
//   1. validate lines and the sale total
//   2. normalize payments
//   3. check products and aggregated stock (pre-flight, outside TX)
//   4. require an open cash session unless the caller is elevated
//   5. BEGIN TX: lock session + products, FEFO per line, stock decrement,
//      sale + lines + payments, stock movements
//   6. COMMIT, then best-effort cache invalidation, metrics and alerts

func (s *saleService) FinalizeSale(ctx context.Context, caller Caller, req dto.FinalizeSaleRequest) (resp *dto.SaleResponse, err error) {
	ctx, span := tracer().Start(ctx, "sale.finalize")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.metrics.salesRejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", rejectionReason(err))))
		}
		span.End()
	}()

	basket, total, err := validateBasket(req.Items)
	if err != nil {
		return nil, err
	}

	payment, err := Normalize(paymentInputFrom(req), total, s.Tolerance)
	if err != nil {
		return nil, err
	}

	products, err := s.checkStock(ctx, caller.TenantID, basket)
	if err != nil {
		return nil, err
	}

	session, err := s.requireSession(ctx, caller)
	if err != nil {
		return nil, err
	}

	var (
		sale       *model.Sale
		shortfalls []noLotShortfall
		lowStock   []model.Product
	)
	started := s.now()
	txErr := s.Tx.Run(ctx, func(tx *gorm.DB) error {
		sale, shortfalls, lowStock = nil, nil, nil

		if session != nil {
			locked, err := s.Cash.LockSession(ctx, tx, caller.TenantID, session.ID, repository.LockShare)
			if err != nil {
				return fmt.Errorf("lock cash session: %w", err)
			}
			if !locked.IsOpen() {
				return &SessionClosedError{OperatorID: caller.OperatorID, SessionID: &locked.ID}
			}
		}

		stock, err := s.lockProducts(ctx, tx, caller.TenantID, basket)
		if err != nil {
			return err
		}

		ticket, err := s.Sales.NextTicketNumber(ctx, tx)
		if err != nil {
			return fmt.Errorf("ticket number: %w", err)
		}

		sale = &model.Sale{
			ID:             uuid.New(),
			TenantID:       caller.TenantID,
			OperatorID:     caller.OperatorID,
			TicketNumber:   ticket,
			Total:          total,
			PaymentMethod:  payment.LegacyMethod,
			IsSplit:        payment.IsSplit,
			AmountTendered: payment.AmountTendered,
			ChangeDue:      payment.ChangeDue,
			CreatedAt:      s.now(),
		}
		if session != nil {
			sale.CashSessionID = &session.ID
		}

		movements := make([]model.StockMovement, 0, len(basket))
		for _, line := range basket {
			product := stock[line.productID]

			cons, err := s.Ledger.ConsumeFEFO(ctx, tx, line.productID, line.qty)
			if err != nil {
				return err
			}
			totalCost := cons.CostConsumed
			if cons.Unfulfilled > 0 {
				totalCost = totalCost.Add(product.AverageCost.Mul(decimal.NewFromInt(int64(cons.Unfulfilled))))
				shortfalls = append(shortfalls, noLotShortfall{
					productID: line.productID,
					qty:       cons.Unfulfilled,
					avgCost:   product.AverageCost,
				})
			}

			if err := s.Products.AdjustStock(ctx, tx, line.productID, -line.qty); err != nil {
				return fmt.Errorf("decrement stock of %s: %w", product.Name, err)
			}
			before := product.StockQty
			product.StockQty -= line.qty

			mov := model.StockMovement{
				ID:          uuid.New(),
				TenantID:    caller.TenantID,
				ProductID:   line.productID,
				ActorID:     caller.OperatorID,
				Kind:        model.MovementSale,
				Quantity:    -line.qty,
				StockBefore: before,
				StockAfter:  product.StockQty,
				Reason:      saleMovementReason(ticket, cons),
				ReferenceID: &sale.ID,
				CreatedAt:   sale.CreatedAt,
			}
			if len(cons.Touched) == 1 && cons.Unfulfilled == 0 {
				batchID := cons.Touched[0].BatchID
				mov.BatchID = &batchID
			}
			movements = append(movements, mov)

			sale.Lines = append(sale.Lines, model.SaleLine{
				ID:           uuid.New(),
				SaleID:       sale.ID,
				ProductID:    line.productID,
				Quantity:     line.qty,
				UnitPrice:    line.unitPrice,
				Discount:     line.discount,
				Subtotal:     line.subtotal,
				TrueUnitCost: TrueUnitCost(totalCost, line.qty),
			})
		}

		for _, p := range payment.Lines {
			sale.Payments = append(sale.Payments, model.SalePayment{
				ID:     uuid.New(),
				SaleID: sale.ID,
				Method: p.Method,
				Amount: p.Amount,
			})
		}

		if err := s.Sales.Create(ctx, tx, sale); err != nil {
			return fmt.Errorf("persist sale: %w", err)
		}
		for i := range movements {
			if err := s.Movements.Create(ctx, tx, &movements[i]); err != nil {
				return fmt.Errorf("record stock movement: %w", err)
			}
		}

		for _, id := range sortedProductIDs(basket) {
			p := stock[id]
			if p.BelowMinimum() && p.StockQty+requestedQty(basket, id) > p.MinStock {
				lowStock = append(lowStock, *p)
			}
		}
		return nil
	})
	s.metrics.txDuration.Record(ctx, float64(s.now().Sub(started).Milliseconds()))

	if txErr != nil {
		var integrity *IntegrityError
		if errors.As(txErr, &integrity) {
			log.Error().Err(txErr).
				Str("tenant_id", caller.TenantID.String()).
				Str("operator_id", caller.OperatorID.String()).
				Msg("sale rolled back on integrity violation")
		}
		return nil, txErr
	}

	s.afterCommit(ctx, caller, sale, shortfalls, lowStock)

	names := make(map[uuid.UUID]string, len(products))
	for id, p := range products {
		names[id] = p.Name
	}
	return saleToResponse(sale, names), nil
}

// afterCommit runs the best-effort side effects of a committed sale. Nothing
// here can fail the sale.
func (s *saleService) afterCommit(ctx context.Context, caller Caller, sale *model.Sale, shortfalls []noLotShortfall, lowStock []model.Product) {
	log.Info().
		Str("sale_id", sale.ID.String()).
		Int64("ticket", sale.TicketNumber).
		Str("tenant_id", caller.TenantID.String()).
		Str("total", sale.Total.StringFixed(2)).
		Bool("split", sale.IsSplit).
		Msg("sale committed")

	s.metrics.salesFinalized.Add(ctx, 1, metric.WithAttributes(attribute.String("payment_method", sale.PaymentMethod)))
	s.metrics.saleAmount.Add(ctx, sale.Total.InexactFloat64())

	for _, sf := range shortfalls {
		log.Warn().
			Str("sale_id", sale.ID.String()).
			Str("product_id", sf.productID.String()).
			Int("qty", sf.qty).
			Str("avg_cost", sf.avgCost.String()).
			Msg("sold units without a batch; costed at average cost")
		s.metrics.noLotUnits.Add(ctx, int64(sf.qty))
	}

	if sale.CashSessionID != nil {
		invalidateReconciliation(ctx, s.Cache, caller.TenantID, *sale.CashSessionID)
	}

	if s.Alerts == nil {
		return
	}
	for _, p := range lowStock {
		job := dto.StockAlertJob{
			TenantID:  caller.TenantID.String(),
			ProductID: p.ID.String(),
			Name:      p.Name,
			SKU:       p.SKU,
			StockQty:  p.StockQty,
			MinStock:  p.MinStock,
			SaleID:    sale.ID.String(),
			RaisedAt:  s.now(),
		}
		if err := s.Alerts.EnqueueStockAlert(ctx, job); err != nil {
			log.Warn().Err(err).Str("product_id", job.ProductID).Msg("stock alert enqueue failed")
		}
	}
}

// validateBasket checks every line and computes the sale total.
func validateBasket(items []dto.SaleItemRequest) ([]basketLine, decimal.Decimal, error) {
	if len(items) == 0 {
		return nil, decimal.Zero, invalid("items", "at least one item is required")
	}

	basket := make([]basketLine, 0, len(items))
	total := decimal.Zero
	for i, item := range items {
		field := fmt.Sprintf("items[%d]", i)
		pid, err := uuid.Parse(item.ProductID)
		if err != nil {
			return nil, decimal.Zero, invalid(field+".product_id", "invalid id")
		}
		if item.Quantity <= 0 {
			return nil, decimal.Zero, invalid(field+".quantity", "must be greater than zero")
		}
		if item.UnitPrice == nil {
			return nil, decimal.Zero, invalid(field+".unit_price", "is required")
		}
		if item.UnitPrice.IsNegative() {
			return nil, decimal.Zero, invalid(field+".unit_price", "must not be negative")
		}
		if item.Discount.IsNegative() {
			return nil, decimal.Zero, invalid(field+".discount", "must not be negative")
		}
		price := item.UnitPrice.Round(moneyPlaces)
		discount := item.Discount.Round(moneyPlaces)
		subtotal := price.Mul(decimal.NewFromInt(int64(item.Quantity))).Sub(discount)
		basket = append(basket, basketLine{
			productID: pid,
			qty:       item.Quantity,
			unitPrice: price,
			discount:  discount,
			subtotal:  subtotal,
		})
		total = total.Add(subtotal)
	}

	if total.IsNegative() {
		return nil, decimal.Zero, invalid("items", "sale total must not be negative")
	}
	return basket, total, nil
}

func paymentInputFrom(req dto.FinalizeSaleRequest) PaymentInput {
	var in PaymentInput
	for _, p := range req.Payments {
		in.Split = append(in.Split, PaymentLine{Method: p.Method, Amount: p.Amount})
	}
	if req.PaymentMethod != "" {
		in.Single = &SinglePayment{Method: req.PaymentMethod, AmountTendered: req.AmountTendered}
	}
	return in
}

// checkStock verifies that every product exists in the tenant and that its
// running stock covers the quantity requested across all lines.
func (s *saleService) checkStock(ctx context.Context, tenantID uuid.UUID, basket []basketLine) (map[uuid.UUID]*model.Product, error) {
	ids := sortedProductIDs(basket)
	found, err := s.Products.FindByIDs(ctx, tenantID, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]*model.Product, len(found))
	for i := range found {
		byID[found[i].ID] = &found[i]
	}

	for i, line := range basket {
		p, ok := byID[line.productID]
		if !ok {
			return nil, invalid(fmt.Sprintf("items[%d].product_id", i), "unknown product %s", line.productID)
		}
		if !p.Active {
			return nil, invalid(fmt.Sprintf("items[%d].product_id", i), "product %s is inactive", p.Name)
		}
	}
	for _, id := range ids {
		p := byID[id]
		if want := requestedQty(basket, id); p.StockQty < want {
			return nil, &InsufficientStockError{ProductID: id, ProductName: p.Name, Available: p.StockQty, Requested: want}
		}
	}
	return byID, nil
}

// requireSession returns the caller's open session. Elevated callers may
// sell without one, in which case it returns nil.
func (s *saleService) requireSession(ctx context.Context, caller Caller) (*model.CashSession, error) {
	session, err := s.Cash.FindOpenByOperator(ctx, caller.TenantID, caller.OperatorID)
	if errors.Is(err, repository.ErrNotFound) {
		if caller.Elevated() {
			return nil, nil
		}
		return nil, &SessionClosedError{OperatorID: caller.OperatorID}
	}
	if err != nil {
		return nil, err
	}
	return session, nil
}

// lockProducts takes row locks on every product of the basket and re-checks
// stock under the lock.
func (s *saleService) lockProducts(ctx context.Context, tx *gorm.DB, tenantID uuid.UUID, basket []basketLine) (map[uuid.UUID]*model.Product, error) {
	ids := sortedProductIDs(basket)
	locked, err := s.Products.LockForUpdate(ctx, tx, tenantID, ids)
	if err != nil {
		return nil, fmt.Errorf("lock products: %w", err)
	}
	byID := make(map[uuid.UUID]*model.Product, len(locked))
	for i := range locked {
		byID[locked[i].ID] = &locked[i]
	}
	for _, id := range ids {
		p, ok := byID[id]
		if !ok {
			return nil, &IntegrityError{Detail: fmt.Sprintf("product %s vanished during sale", id)}
		}
		if want := requestedQty(basket, id); p.StockQty < want {
			return nil, fmt.Errorf("%w: stock of %s dropped to %d, %d requested", ErrConflict, p.Name, p.StockQty, want)
		}
	}
	return byID, nil
}

func sortedProductIDs(basket []basketLine) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(basket))
	ids := make([]uuid.UUID, 0, len(basket))
	for _, l := range basket {
		if !seen[l.productID] {
			seen[l.productID] = true
			ids = append(ids, l.productID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

func requestedQty(basket []basketLine, id uuid.UUID) int {
	n := 0
	for _, l := range basket {
		if l.productID == id {
			n += l.qty
		}
	}
	return n
}

// saleMovementReason lists every lot drawn and flags uncovered units.
func saleMovementReason(ticket int64, c *Consumption) string {
	parts := make([]string, 0, len(c.Touched)+1)
	for _, t := range c.Touched {
		parts = append(parts, fmt.Sprintf("%s×%d", t.LotCode, t.Qty))
	}
	if c.Unfulfilled > 0 {
		parts = append(parts, fmt.Sprintf("no lot ×%d [no-batch]", c.Unfulfilled))
	}
	return fmt.Sprintf("sale #%d: %s", ticket, strings.Join(parts, ", "))
}

func rejectionReason(err error) string {
	var (
		ve *ValidationError
		se *InsufficientStockError
		pe *PaymentMismatchError
		ce *SessionClosedError
	)
	switch {
	case errors.As(err, &ve):
		return "validation"
	case errors.As(err, &se):
		return "insufficient_stock"
	case errors.As(err, &pe):
		return "payment_mismatch"
	case errors.As(err, &ce):
		return "session_closed"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrTxTimeout):
		return "timeout"
	default:
		return "internal"
	}
}

// ── Read side ─────────────────────────────────────────────────────────────────

func (s *saleService) GetSale(ctx context.Context, caller Caller, id uuid.UUID) (*dto.SaleResponse, error) {
	sale, err := s.Sales.FindByID(ctx, caller.TenantID, id)
	if err != nil {
		return nil, err
	}
	if !caller.Elevated() && sale.OperatorID != caller.OperatorID {
		return nil, ErrNotFound
	}
	return saleToResponse(sale, nil), nil
}

// ListSales returns a page of sales. Cashiers only see their own.
func (s *saleService) ListSales(ctx context.Context, caller Caller, filter dto.SaleFilter) (*dto.SaleListResponse, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 || filter.Limit > 200 {
		filter.Limit = 50
	}

	rf := repository.SaleFilter{TenantID: caller.TenantID, Page: filter.Page, Limit: filter.Limit}
	if filter.OperatorID != "" {
		id, err := uuid.Parse(filter.OperatorID)
		if err != nil {
			return nil, invalid("operator_id", "invalid id")
		}
		rf.OperatorID = &id
	}
	if !caller.Elevated() {
		rf.OperatorID = &caller.OperatorID
	}
	if filter.SessionID != "" {
		id, err := uuid.Parse(filter.SessionID)
		if err != nil {
			return nil, invalid("session_id", "invalid id")
		}
		rf.SessionID = &id
	}
	if filter.From != "" {
		from, err := time.Parse("2006-01-02", filter.From)
		if err != nil {
			return nil, invalid("from", "expected YYYY-MM-DD")
		}
		rf.From = &from
	}
	if filter.To != "" {
		to, err := time.Parse("2006-01-02", filter.To)
		if err != nil {
			return nil, invalid("to", "expected YYYY-MM-DD")
		}
		end := to.AddDate(0, 0, 1)
		rf.To = &end
	}

	sales, total, err := s.Sales.List(ctx, rf)
	if err != nil {
		return nil, err
	}
	data := make([]dto.SaleResponse, 0, len(sales))
	for i := range sales {
		data = append(data, *saleToResponse(&sales[i], nil))
	}
	return &dto.SaleListResponse{Data: data, Total: total, Page: filter.Page, Limit: filter.Limit}, nil
}

func saleToResponse(s *model.Sale, names map[uuid.UUID]string) *dto.SaleResponse {
	lines := make([]dto.SaleLineResponse, 0, len(s.Lines))
	for _, l := range s.Lines {
		name := names[l.ProductID]
		if name == "" && l.Product != nil {
			name = l.Product.Name
		}
		lines = append(lines, dto.SaleLineResponse{
			ProductID:    l.ProductID.String(),
			ProductName:  name,
			Quantity:     l.Quantity,
			UnitPrice:    l.UnitPrice,
			Discount:     l.Discount,
			Subtotal:     l.Subtotal,
			TrueUnitCost: l.TrueUnitCost,
		})
	}
	payments := make([]dto.PaymentResponse, 0, len(s.Payments))
	for _, p := range s.Payments {
		payments = append(payments, dto.PaymentResponse{Method: p.Method, Amount: p.Amount})
	}
	resp := &dto.SaleResponse{
		ID:             s.ID.String(),
		TicketNumber:   s.TicketNumber,
		OperatorID:     s.OperatorID.String(),
		Total:          s.Total,
		PaymentMethod:  s.PaymentMethod,
		IsSplit:        s.IsSplit,
		Payments:       payments,
		AmountTendered: s.AmountTendered,
		ChangeDue:      s.ChangeDue,
		Lines:          lines,
		CreatedAt:      s.CreatedAt.UTC().Format(time.RFC3339),
	}
	if s.CashSessionID != nil {
		id := s.CashSessionID.String()
		resp.CashSessionID = &id
	}
	return resp
}
