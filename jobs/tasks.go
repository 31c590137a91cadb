package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSaleReceipt delivers the receipt notification for a completed sale.
	TaskSaleReceipt = "sale:receipt"
	// TaskLowStockScan flags products that fell below their minimum stock.
	TaskLowStockScan = "stock:lowscan"
)

// ReceiptPayload carries the data needed to render a receipt notification.
type ReceiptPayload struct {
	SaleNumber string         `json:"sale_number"`
	CashierID  int64          `json:"cashier_id"`
	Total      float64        `json:"total"`
	Lines      []ReceiptLine  `json:"lines"`
	Payments   []ReceiptEntry `json:"payments"`
	CreatedAt  time.Time      `json:"created_at"`
}

// ReceiptLine is one line on the receipt.
type ReceiptLine struct {
	ProductID int64   `json:"product_id"`
	Qty       float64 `json:"qty"`
	Amount    float64 `json:"amount"`
}

// ReceiptEntry is one payment on the receipt.
type ReceiptEntry struct {
	Method string  `json:"method"`
	Amount float64 `json:"amount"`
}

// NewSaleReceiptTask constructs the receipt task.
func NewSaleReceiptTask(payload ReceiptPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSaleReceipt, data, asynq.MaxRetry(3)), nil
}

// NewLowStockScanTask constructs the low-stock scan task.
func NewLowStockScanTask() *asynq.Task {
	return asynq.NewTask(TaskLowStockScan, nil)
}
