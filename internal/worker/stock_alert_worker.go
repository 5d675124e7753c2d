package worker

// stock_alert_worker.go
// Processes jobs from QueueStockAlert: a product fell to or below its
// minimum stock after a sale or an adjustment.

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Brunno-Ar/SistemaPDV-sub001/internal/dto"
	"github.com/Brunno-Ar/SistemaPDV-sub001/internal/infra"

	"github.com/rs/zerolog/log"
)

// Notifier delivers a plain-text message. *infra.Mailer satisfies it.
type Notifier interface {
	Configured() bool
	Send(to, subject, body string) error
}

// StockAlertWorker mails low-stock notices through a circuit breaker so an
// unreachable SMTP relay does not stall the pool.
type StockAlertWorker struct {
	notifier Notifier
	cb       *infra.CircuitBreaker
	to       string
}

func NewStockAlertWorker(notifier Notifier, cb *infra.CircuitBreaker, to string) *StockAlertWorker {
	return &StockAlertWorker{notifier: notifier, cb: cb, to: to}
}

// Process logs every alert and mails it when SMTP and a recipient are
// configured. Malformed payloads are dropped, delivery failures retried.
func (w *StockAlertWorker) Process(_ context.Context, raw json.RawMessage) error {
	var job dto.StockAlertJob
	if err := json.Unmarshal(raw, &job); err != nil {
		log.Error().Err(err).Msg("stock_alert_worker: invalid payload")
		return nil
	}

	log.Warn().
		Str("tenant_id", job.TenantID).
		Str("product_id", job.ProductID).
		Str("sku", job.SKU).
		Int("stock_qty", job.StockQty).
		Int("min_stock", job.MinStock).
		Msg("stock_alert_worker: product at or below minimum stock")

	if w.to == "" || !w.notifier.Configured() {
		return nil
	}

	subject, body := renderStockAlert(job)
	err := w.cb.Execute(func() error {
		return w.notifier.Send(w.to, subject, body)
	})
	if err != nil {
		return fmt.Errorf("stock alert for %s: %w", job.ProductID, err)
	}
	log.Info().Str("to", w.to).Str("product_id", job.ProductID).Msg("stock_alert_worker: alert sent")
	return nil
}

func renderStockAlert(job dto.StockAlertJob) (subject, body string) {
	subject = fmt.Sprintf("Low stock: %s", job.Name)

	var b strings.Builder
	fmt.Fprintf(&b, "Product:   %s (%s)\n", job.Name, job.SKU)
	fmt.Fprintf(&b, "In stock:  %d\n", job.StockQty)
	fmt.Fprintf(&b, "Minimum:   %d\n", job.MinStock)
	if job.SaleID != "" {
		fmt.Fprintf(&b, "Triggered by sale %s\n", job.SaleID)
	}
	fmt.Fprintf(&b, "Raised at: %s\n", job.RaisedAt.UTC().Format("2006-01-02 15:04 MST"))
	return subject, b.String()
}
