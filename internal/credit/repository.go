package credit

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

// Repository persists the credit ledger in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the transactional operations the ledger math runs
// against.
type TxRepository interface {
	GetCustomerForUpdate(ctx context.Context, customerID int64) (Customer, error)
	InsertMovement(ctx context.Context, m Movement) (int64, error)
	UpdateBalance(ctx context.Context, customerID int64, newBalance float64) error
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
		return errors.New("credit repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

// CreateCustomer inserts a new customer row.
func (r *Repository) CreateCustomer(ctx context.Context, c Customer) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO customers (code, name, credit_limit, balance, is_active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $6)
RETURNING id`, c.Code, c.Name, c.CreditLimit, c.Balance, c.IsActive, time.Now().UTC()).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, fmt.Errorf("%w: %s", ErrCodeExists, c.Code)
		}
		return 0, err
	}
	return id, nil
}

// GetCustomer fetches a customer without locking.
func (r *Repository) GetCustomer(ctx context.Context, customerID int64) (Customer, error) {
	return scanCustomer(r.pool.QueryRow(ctx, customerSelect+` WHERE id=$1`, customerID))
}

// ListMovements returns the movement history for a customer, oldest first.
func (r *Repository) ListMovements(ctx context.Context, customerID int64, limit int) ([]Movement, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT id, customer_id, kind, amount, prior_balance, result_balance, reference, created_at
FROM credit_movements WHERE customer_id=$1 ORDER BY id ASC LIMIT $2`, customerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var movements []Movement
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.CustomerID, &m.Kind, &m.Amount, &m.PriorBalance, &m.ResultBalance, &m.Reference, &m.CreatedAt); err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

// SumMovements replays the customer's history: sum(CHARGE) - sum(PAYMENT).
// Audit path only.
func (r *Repository) SumMovements(ctx context.Context, customerID int64) (float64, error) {
	var sum float64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(CASE kind WHEN 'CHARGE' THEN amount ELSE -amount END), 0)
FROM credit_movements WHERE customer_id=$1`, customerID).Scan(&sum)
	return sum, err
}

const customerSelect = `SELECT id, code, name, credit_limit, balance, is_active, created_at, updated_at
FROM customers`

func scanCustomer(row pgx.Row) (Customer, error) {
	var c Customer
	err := row.Scan(&c.ID, &c.Code, &c.Name, &c.CreditLimit, &c.Balance, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Customer{}, ErrCustomerNotFound
		}
		return Customer{}, err
	}
	return c, nil
}

func (r *txRepository) GetCustomerForUpdate(ctx context.Context, customerID int64) (Customer, error) {
	return scanCustomer(r.tx.QueryRow(ctx, customerSelect+` WHERE id=$1 FOR UPDATE`, customerID))
}

func (r *txRepository) InsertMovement(ctx context.Context, m Movement) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO credit_movements (customer_id, kind, amount, prior_balance, result_balance, reference, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id`, m.CustomerID, m.Kind, m.Amount, m.PriorBalance, m.ResultBalance, m.Reference, m.CreatedAt).Scan(&id)
	return id, err
}

func (r *txRepository) UpdateBalance(ctx context.Context, customerID int64, newBalance float64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE customers SET balance=$2, updated_at=NOW() WHERE id=$1`, customerID, newBalance)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCustomerNotFound
	}
	return nil
}
