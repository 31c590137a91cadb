package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// ReceiptHandler renders and delivers sale receipts. Delivery here is the
// structured log sink; a mail or printer integration hangs off the same
// handler.
type ReceiptHandler struct {
	logger  *slog.Logger
	printer *message.Printer
}

// NewReceiptHandler constructs ReceiptHandler.
func NewReceiptHandler(logger *slog.Logger) *ReceiptHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReceiptHandler{logger: logger, printer: message.NewPrinter(language.English)}
}

// Handle processes TaskSaleReceipt tasks.
func (h *ReceiptHandler) Handle(ctx context.Context, t *asynq.Task) error {
	var payload ReceiptPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	var b strings.Builder
	b.WriteString(h.printer.Sprintf("Sale %s total %.2f\n", payload.SaleNumber, payload.Total))
	for _, ln := range payload.Lines {
		b.WriteString(h.printer.Sprintf("  product %d x%.2f = %.2f\n", ln.ProductID, ln.Qty, ln.Amount))
	}
	for _, p := range payload.Payments {
		b.WriteString(h.printer.Sprintf("  paid %s %.2f\n", p.Method, p.Amount))
	}

	h.logger.Info("receipt delivered",
		slog.String("sale", payload.SaleNumber),
		slog.Int64("cashier", payload.CashierID),
		slog.String("receipt", b.String()))
	return nil
}
