package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/meridian-pos/meridian-pos/internal/stock"
)

// LowStockLister exposes the read used by the scan.
type LowStockLister interface {
	ListBelowMinimum(ctx context.Context) ([]stock.Product, error)
}

// LowStockHandler scans for products that fell below their minimum stock.
type LowStockHandler struct {
	logger *slog.Logger
	lister LowStockLister
}

// NewLowStockHandler constructs LowStockHandler.
func NewLowStockHandler(logger *slog.Logger, lister LowStockLister) *LowStockHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LowStockHandler{logger: logger, lister: lister}
}

// Handle processes TaskLowStockScan tasks.
func (h *LowStockHandler) Handle(ctx context.Context, _ *asynq.Task) error {
	products, err := h.lister.ListBelowMinimum(ctx)
	if err != nil {
		return err
	}
	for _, p := range products {
		h.logger.Warn("product below minimum stock",
			slog.String("sku", p.SKU),
			slog.Float64("current", p.CurrentStock),
			slog.Float64("minimum", p.MinStock))
	}
	return nil
}
