package reports

import "time"

// DailySummary aggregates one day of completed sales.
type DailySummary struct {
	Day            string             `json:"day"`
	SaleCount      int64              `json:"sale_count"`
	GrossTotal     float64            `json:"gross_total"`
	ByMethod       map[string]float64 `json:"by_method"`
	GrossFormatted string             `json:"gross_formatted"`
	GeneratedAt    time.Time          `json:"generated_at"`
}

// ValuationRow is one product's contribution to stock valuation.
type ValuationRow struct {
	ProductID    int64   `json:"product_id"`
	SKU          string  `json:"sku"`
	CurrentStock float64 `json:"current_stock"`
	UnitPrice    float64 `json:"unit_price"`
	Value        float64 `json:"value"`
}

// Valuation is the stock valuation report.
type Valuation struct {
	Rows           []ValuationRow `json:"rows"`
	Total          float64        `json:"total"`
	TotalFormatted string         `json:"total_formatted"`
	GeneratedAt    time.Time      `json:"generated_at"`
}
