package jobs

import (
	"context"

	"github.com/hibiken/asynq"

	"github.com/meridian-pos/meridian-pos/internal/sales"
)

// Notifier enqueues receipt delivery for completed sales. It implements
// sales.Notifier on top of the job queue.
type Notifier struct {
	client *Client
}

// NewNotifier constructs Notifier.
func NewNotifier(client *Client) *Notifier {
	return &Notifier{client: client}
}

// SaleCompleted enqueues the receipt task for the sale.
func (n *Notifier) SaleCompleted(ctx context.Context, sale sales.Sale) error {
	payload := ReceiptPayload{
		SaleNumber: sale.Number,
		CashierID:  sale.CashierID,
		Total:      sale.Total,
		CreatedAt:  sale.CreatedAt,
	}
	for _, ln := range sale.Lines {
		payload.Lines = append(payload.Lines, ReceiptLine{
			ProductID: ln.ProductID,
			Qty:       ln.Qty,
			Amount:    ln.LineTotal,
		})
	}
	for _, p := range sale.Payments {
		payload.Payments = append(payload.Payments, ReceiptEntry{
			Method: string(p.Method),
			Amount: p.Amount,
		})
	}
	task, err := NewSaleReceiptTask(payload)
	if err != nil {
		return err
	}
	_, err = n.client.Enqueue(ctx, task, asynq.Queue(QueueDefault))
	return err
}
