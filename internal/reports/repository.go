package reports

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads aggregates for reporting. It holds read-only queries
// only; reporting is never granted write access to the ledgers.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// DailySales aggregates completed sales for one calendar day (UTC).
func (r *Repository) DailySales(ctx context.Context, day time.Time) (DailySummary, error) {
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)

	summary := DailySummary{
		Day:      from.Format("2006-01-02"),
		ByMethod: map[string]float64{},
	}
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*), COALESCE(SUM(total), 0)
FROM sales WHERE status IN ('COMPLETED', 'RETURNED') AND created_at >= $1 AND created_at < $2`, from, to).
		Scan(&summary.SaleCount, &summary.GrossTotal)
	if err != nil {
		return DailySummary{}, err
	}

	rows, err := r.pool.Query(ctx, `SELECT p.method, COALESCE(SUM(p.amount), 0)
FROM sale_payments p
JOIN sales s ON s.id = p.sale_id
WHERE s.status IN ('COMPLETED', 'RETURNED') AND s.created_at >= $1 AND s.created_at < $2
GROUP BY p.method`, from, to)
	if err != nil {
		return DailySummary{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var method string
		var amount float64
		if err := rows.Scan(&method, &amount); err != nil {
			return DailySummary{}, err
		}
		summary.ByMethod[method] = amount
	}
	return summary, rows.Err()
}

// StockValuation values every active product at its unit price.
func (r *Repository) StockValuation(ctx context.Context) ([]ValuationRow, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, sku, current_stock, unit_price, current_stock * unit_price
FROM products WHERE is_active ORDER BY sku ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ValuationRow
	for rows.Next() {
		var row ValuationRow
		if err := rows.Scan(&row.ProductID, &row.SKU, &row.CurrentStock, &row.UnitPrice, &row.Value); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	return result, rows.Err()
}
