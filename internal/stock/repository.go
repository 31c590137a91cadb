package stock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-pos/meridian-pos/internal/platform/db"
)

// Repository persists the stock ledger in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the transactional operations the ledger math runs
// against. The sale engine composes it with the other ledgers inside one
// coordinator transaction.
type TxRepository interface {
	GetProductForUpdate(ctx context.Context, productID int64) (Product, error)
	InsertMovement(ctx context.Context, m Movement) (int64, error)
	UpdateStock(ctx context.Context, productID int64, newQty float64) error
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository binds a TxRepository to an open transaction.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("stock repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

// CreateProduct inserts a new product row.
func (r *Repository) CreateProduct(ctx context.Context, p Product) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO products (sku, name, unit_price, current_stock, min_stock, allow_negative, is_active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
RETURNING id`, p.SKU, p.Name, p.UnitPrice, p.CurrentStock, p.MinStock, p.AllowNegative, p.IsActive, time.Now().UTC()).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, fmt.Errorf("%w: %s", ErrSKUExists, p.SKU)
		}
		return 0, err
	}
	return id, nil
}

// GetProduct fetches a product without locking.
func (r *Repository) GetProduct(ctx context.Context, productID int64) (Product, error) {
	return scanProduct(r.pool.QueryRow(ctx, productSelect+` WHERE id=$1`, productID))
}

// ListProducts returns products ordered by SKU.
func (r *Repository) ListProducts(ctx context.Context, limit int) ([]Product, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, productSelect+` ORDER BY sku ASC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// ListBelowMinimum returns active products whose projection dropped below
// their minimum stock.
func (r *Repository) ListBelowMinimum(ctx context.Context) ([]Product, error) {
	rows, err := r.pool.Query(ctx, productSelect+` WHERE is_active AND min_stock > 0 AND current_stock < min_stock ORDER BY sku ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// ListMovements returns the movement history for a product, oldest first.
func (r *Repository) ListMovements(ctx context.Context, productID int64, limit int) ([]Movement, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT id, product_id, kind, delta, prior_qty, result_qty, reason, reference, created_at
FROM stock_movements WHERE product_id=$1 ORDER BY id ASC LIMIT $2`, productID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var movements []Movement
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.ProductID, &m.Kind, &m.Delta, &m.PriorQty, &m.ResultQty, &m.Reason, &m.Reference, &m.CreatedAt); err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

// SumDeltas replays the full movement history of a product. Audit path only.
func (r *Repository) SumDeltas(ctx context.Context, productID int64) (float64, error) {
	var sum float64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(delta), 0) FROM stock_movements WHERE product_id=$1`, productID).Scan(&sum)
	return sum, err
}

const productSelect = `SELECT id, sku, name, unit_price, current_stock, min_stock, allow_negative, is_active, created_at, updated_at
FROM products`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.UnitPrice, &p.CurrentStock, &p.MinStock, &p.AllowNegative, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrProductNotFound
		}
		return Product{}, err
	}
	return p, nil
}

func (r *txRepository) GetProductForUpdate(ctx context.Context, productID int64) (Product, error) {
	return scanProduct(r.tx.QueryRow(ctx, productSelect+` WHERE id=$1 FOR UPDATE`, productID))
}

func (r *txRepository) InsertMovement(ctx context.Context, m Movement) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_movements (product_id, kind, delta, prior_qty, result_qty, reason, reference, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id`, m.ProductID, m.Kind, m.Delta, m.PriorQty, m.ResultQty, m.Reason, m.Reference, m.CreatedAt).Scan(&id)
	return id, err
}

func (r *txRepository) UpdateStock(ctx context.Context, productID int64, newQty float64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE products SET current_stock=$2, updated_at=NOW() WHERE id=$1`, productID, newQty)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}
