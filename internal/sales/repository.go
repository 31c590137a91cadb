package sales

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-pos/meridian-pos/internal/credit"
	"github.com/meridian-pos/meridian-pos/internal/platform/db"
	"github.com/meridian-pos/meridian-pos/internal/stock"
	"github.com/meridian-pos/meridian-pos/internal/till"
)

// TxLedgers bundles every ledger's transactional port bound to one shared
// transaction. The sale engine works exclusively through this bundle, so a
// sale either lands in all ledgers or in none.
type TxLedgers struct {
	Stock  stock.TxRepository
	Credit credit.TxRepository
	Till   till.TxRepository
	Sales  TxRepository
}

// Coordinator is the unit-of-work boundary for sale processing. RunAtomically
// executes fn inside one storage transaction: every ledger operation issued
// through the supplied TxLedgers commits together or rolls back together.
type Coordinator interface {
	RunAtomically(ctx context.Context, fn func(context.Context, TxLedgers) error) error
}

// TxRepository exposes transactional sale persistence.
type TxRepository interface {
	InsertSale(ctx context.Context, sale Sale) (int64, error)
	InsertLine(ctx context.Context, line Line) (int64, error)
	InsertPayment(ctx context.Context, payment Payment) (int64, error)
	GetSaleForUpdate(ctx context.Context, saleID int64) (Sale, error)
	UpdateStatus(ctx context.Context, saleID int64, status Status, reason string, closedAt time.Time) error
	UpdateLineReturned(ctx context.Context, lineID int64, returnedQty float64) error
}

// Repository persists sale orders in PostgreSQL and implements Coordinator.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// RunAtomically implements Coordinator on top of a repeatable-read pgx
// transaction shared by all four ledgers.
func (r *Repository) RunAtomically(ctx context.Context, fn func(context.Context, TxLedgers) error) error {
	if r == nil {
		return errors.New("sales repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, TxLedgers{
			Stock:  stock.NewTxRepository(tx),
			Credit: credit.NewTxRepository(tx),
			Till:   till.NewTxRepository(tx),
			Sales:  &txRepository{tx: tx},
		})
	})
}

// GetSale loads a sale with its lines and payments, without locking.
func (r *Repository) GetSale(ctx context.Context, saleID int64) (Sale, error) {
	return loadSale(ctx, r.pool, saleID, false)
}

type queryer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const saleSelect = `SELECT id, number, customer_id, cashier_id, session_id, subtotal, discount, tax, total, status, reason, created_at, closed_at
FROM sales`

func loadSale(ctx context.Context, q queryer, saleID int64, forUpdate bool) (Sale, error) {
	query := saleSelect + ` WHERE id=$1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var s Sale
	err := q.QueryRow(ctx, query, saleID).Scan(&s.ID, &s.Number, &s.CustomerID, &s.CashierID, &s.SessionID,
		&s.Subtotal, &s.Discount, &s.Tax, &s.Total, &s.Status, &s.Reason, &s.CreatedAt, &s.ClosedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Sale{}, ErrSaleNotFound
		}
		return Sale{}, err
	}

	rows, err := q.Query(ctx, `SELECT id, sale_id, product_id, qty, unit_price, discount, tax, line_total, returned_qty
FROM sale_lines WHERE sale_id=$1 ORDER BY id ASC`, saleID)
	if err != nil {
		return Sale{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.SaleID, &l.ProductID, &l.Qty, &l.UnitPrice, &l.Discount, &l.Tax, &l.LineTotal, &l.ReturnedQty); err != nil {
			return Sale{}, err
		}
		s.Lines = append(s.Lines, l)
	}
	if err := rows.Err(); err != nil {
		return Sale{}, err
	}

	payRows, err := q.Query(ctx, `SELECT id, sale_id, method, amount, reference
FROM sale_payments WHERE sale_id=$1 ORDER BY id ASC`, saleID)
	if err != nil {
		return Sale{}, err
	}
	defer payRows.Close()
	for payRows.Next() {
		var p Payment
		if err := payRows.Scan(&p.ID, &p.SaleID, &p.Method, &p.Amount, &p.Reference); err != nil {
			return Sale{}, err
		}
		s.Payments = append(s.Payments, p)
	}
	return s, payRows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) InsertSale(ctx context.Context, sale Sale) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO sales (number, customer_id, cashier_id, session_id, subtotal, discount, tax, total, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING id`, sale.Number, sale.CustomerID, sale.CashierID, sale.SessionID,
		sale.Subtotal, sale.Discount, sale.Tax, sale.Total, sale.Status, sale.CreatedAt).Scan(&id)
	return id, err
}

func (r *txRepository) InsertLine(ctx context.Context, line Line) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO sale_lines (sale_id, product_id, qty, unit_price, discount, tax, line_total, returned_qty)
VALUES ($1, $2, $3, $4, $5, $6, $7, 0)
RETURNING id`, line.SaleID, line.ProductID, line.Qty, line.UnitPrice, line.Discount, line.Tax, line.LineTotal).Scan(&id)
	return id, err
}

func (r *txRepository) InsertPayment(ctx context.Context, payment Payment) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO sale_payments (sale_id, method, amount, reference)
VALUES ($1, $2, $3, $4)
RETURNING id`, payment.SaleID, payment.Method, payment.Amount, payment.Reference).Scan(&id)
	return id, err
}

func (r *txRepository) GetSaleForUpdate(ctx context.Context, saleID int64) (Sale, error) {
	return loadSale(ctx, r.tx, saleID, true)
}

func (r *txRepository) UpdateStatus(ctx context.Context, saleID int64, status Status, reason string, closedAt time.Time) error {
	tag, err := r.tx.Exec(ctx, `UPDATE sales SET status=$2, reason=$3, closed_at=$4 WHERE id=$1`, saleID, status, reason, closedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSaleNotFound
	}
	return nil
}

func (r *txRepository) UpdateLineReturned(ctx context.Context, lineID int64, returnedQty float64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE sale_lines SET returned_qty=$2 WHERE id=$1`, lineID, returnedQty)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUnknownLine
	}
	return nil
}
