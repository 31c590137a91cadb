package till

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/meridian-pos/meridian-pos/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetSession(ctx context.Context, sessionID int64) (Session, error)
	GetOpenSession(ctx context.Context, registerID int64) (Session, error)
	ListMovements(ctx context.Context, sessionID int64, limit int) ([]Movement, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates cash session operations.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// OpenSession opens a register with its counted float. At most one OPEN
// session may exist per register; sessions on different registers are
// independent.
func (s *Service) OpenSession(ctx context.Context, req OpenSessionRequest, cashierID int64) (Session, error) {
	now := time.Now().UTC()
	session := Session{
		RegisterID:     req.RegisterID,
		CashierID:      cashierID,
		OpeningBalance: req.OpeningBalance,
		Status:         SessionOpen,
		OpenedAt:       now,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertSession(ctx, session)
		if err != nil {
			return err
		}
		session.ID = id
		m, err := ApplyMovement(ctx, tx, id, MovementOpening, req.OpeningBalance, fmt.Sprintf("register:%d", req.RegisterID))
		if err != nil {
			return err
		}
		session.Balance = m.ResultBalance
		return nil
	})
	if err != nil {
		return Session{}, err
	}
	s.recordAudit(ctx, cashierID, "till:OPEN", session.ID, map[string]any{
		"register_id": req.RegisterID,
		"opening":     req.OpeningBalance,
	})
	return session, nil
}

// RecordMovement posts a manual EXPENSE or WITHDRAWAL. Sales go through the
// coordinator and call ApplyMovement directly.
func (s *Service) RecordMovement(ctx context.Context, sessionID int64, req MovementRequest, actorID int64) (Movement, error) {
	if req.Kind != MovementExpense && req.Kind != MovementWithdrawal {
		return Movement{}, fmt.Errorf("%w: %s", ErrInvalidKind, req.Kind)
	}
	var movement Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		movement, err = ApplyMovement(ctx, tx, sessionID, req.Kind, req.Amount, req.Reference)
		return err
	})
	if err != nil {
		return Movement{}, err
	}
	s.recordAudit(ctx, actorID, fmt.Sprintf("till:%s", req.Kind), sessionID, map[string]any{
		"amount":    req.Amount,
		"reference": req.Reference,
	})
	return movement, nil
}

// CloseSession reconciles the drawer against the counted balance. The
// variance between counted and expected is appended as a SURPLUS or SHORTAGE
// movement before the session transitions to CLOSED.
func (s *Service) CloseSession(ctx context.Context, sessionID int64, req CloseSessionRequest, actorID int64) (Session, error) {
	var closed Session
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		session, err := tx.GetSessionForUpdate(ctx, sessionID)
		if err != nil {
			return err
		}
		if session.Status != SessionOpen {
			return fmt.Errorf("%w: session %d is %s", ErrSessionNotOpen, sessionID, session.Status)
		}

		expected := session.Balance
		variance := req.CountedBalance - expected
		if math.Abs(variance) > 1e-9 {
			kind := MovementSurplus
			if variance < 0 {
				kind = MovementShortage
			}
			if _, err := ApplyMovement(ctx, tx, sessionID, kind, math.Abs(variance), "close-count"); err != nil {
				return err
			}
		}

		now := time.Now().UTC()
		if err := tx.CloseSession(ctx, sessionID, req.CountedBalance, variance, now); err != nil {
			return err
		}
		closed = session
		closed.Status = SessionClosed
		closed.Balance = req.CountedBalance
		closed.ClosingBalance = &req.CountedBalance
		closed.Variance = &variance
		closed.ClosedAt = &now
		return nil
	})
	if err != nil {
		return Session{}, err
	}
	s.recordAudit(ctx, actorID, "till:CLOSE", sessionID, map[string]any{
		"counted":  req.CountedBalance,
		"variance": *closed.Variance,
	})
	return closed, nil
}

// GetSession returns a session with its projections.
func (s *Service) GetSession(ctx context.Context, sessionID int64) (Session, error) {
	return s.repo.GetSession(ctx, sessionID)
}

// GetOpenSession returns the OPEN session for a register.
func (s *Service) GetOpenSession(ctx context.Context, registerID int64) (Session, error) {
	return s.repo.GetOpenSession(ctx, registerID)
}

// ListMovements returns a session's cash ledger.
func (s *Service) ListMovements(ctx context.Context, sessionID int64, limit int) ([]Movement, error) {
	if _, err := s.repo.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.repo.ListMovements(ctx, sessionID, limit)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, sessionID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "cash_session",
		EntityID: fmt.Sprintf("%d", sessionID),
		Meta:     meta,
	})
}
