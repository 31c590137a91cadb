package till

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-pos/meridian-pos/internal/platform/db"
)

// Repository persists cash sessions in PostgreSQL.
//
// The one-open-session-per-register invariant is enforced by a partial
// unique index on cash_sessions (register_id) WHERE status='OPEN'; two
// near-simultaneous opens race on the index and the loser gets 23505.
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
	InsertSession(ctx context.Context, s Session) (int64, error)
	GetSessionForUpdate(ctx context.Context, sessionID int64) (Session, error)
	InsertMovement(ctx context.Context, m Movement) (int64, error)
	UpdateTotals(ctx context.Context, sessionID int64, balance, salesTotal float64) error
	CloseSession(ctx context.Context, sessionID int64, closing, variance float64, closedAt time.Time) error
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
		return errors.New("till repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

// GetSession fetches a session without locking.
func (r *Repository) GetSession(ctx context.Context, sessionID int64) (Session, error) {
	return scanSession(r.pool.QueryRow(ctx, sessionSelect+` WHERE id=$1`, sessionID))
}

// GetOpenSession returns the OPEN session for a register, if any.
func (r *Repository) GetOpenSession(ctx context.Context, registerID int64) (Session, error) {
	return scanSession(r.pool.QueryRow(ctx, sessionSelect+` WHERE register_id=$1 AND status='OPEN'`, registerID))
}

// ListMovements returns a session's cash ledger, oldest first.
func (r *Repository) ListMovements(ctx context.Context, sessionID int64, limit int) ([]Movement, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := r.pool.Query(ctx, `SELECT id, session_id, kind, amount, prior_balance, result_balance, reference, created_at
FROM cash_movements WHERE session_id=$1 ORDER BY id ASC LIMIT $2`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var movements []Movement
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Kind, &m.Amount, &m.PriorBalance, &m.ResultBalance, &m.Reference, &m.CreatedAt); err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

const sessionSelect = `SELECT id, register_id, cashier_id, opening_balance, balance, sales_total, status, closing_balance, variance, opened_at, closed_at
FROM cash_sessions`

func scanSession(row pgx.Row) (Session, error) {
	var s Session
	err := row.Scan(&s.ID, &s.RegisterID, &s.CashierID, &s.OpeningBalance, &s.Balance, &s.SalesTotal, &s.Status, &s.ClosingBalance, &s.Variance, &s.OpenedAt, &s.ClosedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, err
	}
	return s, nil
}

func (r *txRepository) InsertSession(ctx context.Context, s Session) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO cash_sessions (register_id, cashier_id, opening_balance, balance, sales_total, status, opened_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id`, s.RegisterID, s.CashierID, s.OpeningBalance, s.Balance, s.SalesTotal, s.Status, s.OpenedAt).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrSessionAlreadyOpen
		}
		return 0, err
	}
	return id, nil
}

func (r *txRepository) GetSessionForUpdate(ctx context.Context, sessionID int64) (Session, error) {
	return scanSession(r.tx.QueryRow(ctx, sessionSelect+` WHERE id=$1 FOR UPDATE`, sessionID))
}

func (r *txRepository) InsertMovement(ctx context.Context, m Movement) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO cash_movements (session_id, kind, amount, prior_balance, result_balance, reference, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id`, m.SessionID, m.Kind, m.Amount, m.PriorBalance, m.ResultBalance, m.Reference, m.CreatedAt).Scan(&id)
	return id, err
}

func (r *txRepository) UpdateTotals(ctx context.Context, sessionID int64, balance, salesTotal float64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE cash_sessions SET balance=$2, sales_total=$3 WHERE id=$1`, sessionID, balance, salesTotal)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (r *txRepository) CloseSession(ctx context.Context, sessionID int64, closing, variance float64, closedAt time.Time) error {
	tag, err := r.tx.Exec(ctx, `UPDATE cash_sessions SET status='CLOSED', balance=$2, closing_balance=$2, variance=$3, closed_at=$4 WHERE id=$1`,
		sessionID, closing, variance, closedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}
