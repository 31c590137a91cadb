package credit

import (
	"context"
	"fmt"
	"time"

	"github.com/meridian-pos/meridian-pos/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	CreateCustomer(ctx context.Context, c Customer) (int64, error)
	GetCustomer(ctx context.Context, customerID int64) (Customer, error)
	ListMovements(ctx context.Context, customerID int64, limit int) ([]Movement, error)
	SumMovements(ctx context.Context, customerID int64) (float64, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates credit ledger operations.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// CreateCustomer registers a customer account.
func (s *Service) CreateCustomer(ctx context.Context, req CreateCustomerRequest) (Customer, error) {
	now := time.Now().UTC()
	customer := Customer{
		Code:        req.Code,
		Name:        req.Name,
		CreditLimit: req.CreditLimit,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	id, err := s.repo.CreateCustomer(ctx, customer)
	if err != nil {
		return Customer{}, err
	}
	customer.ID = id
	return customer, nil
}

// Charge posts a CHARGE against a customer outside of a sale (manual entry).
// Sales go through the coordinator and call ApplyCharge directly.
func (s *Service) Charge(ctx context.Context, customerID int64, amount float64, reference string, actorID int64) (Movement, error) {
	var movement Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		movement, err = ApplyCharge(ctx, tx, customerID, amount, reference)
		return err
	})
	if err != nil {
		return Movement{}, err
	}
	s.recordAudit(ctx, actorID, movement)
	return movement, nil
}

// Pay posts a PAYMENT against a customer's balance.
func (s *Service) Pay(ctx context.Context, customerID int64, req PaymentRequest, actorID int64) (Movement, error) {
	var movement Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		movement, err = ApplyPayment(ctx, tx, customerID, req.Amount, req.Reference)
		return err
	})
	if err != nil {
		return Movement{}, err
	}
	s.recordAudit(ctx, actorID, movement)
	return movement, nil
}

// GetCustomer returns the account with its current balance.
func (s *Service) GetCustomer(ctx context.Context, customerID int64) (Customer, error) {
	return s.repo.GetCustomer(ctx, customerID)
}

// GetBalance returns the current balance projection.
func (s *Service) GetBalance(ctx context.Context, customerID int64) (float64, error) {
	customer, err := s.repo.GetCustomer(ctx, customerID)
	if err != nil {
		return 0, err
	}
	return customer.Balance, nil
}

// ListMovements returns the movement history for a customer.
func (s *Service) ListMovements(ctx context.Context, customerID int64, limit int) ([]Movement, error) {
	if _, err := s.repo.GetCustomer(ctx, customerID); err != nil {
		return nil, err
	}
	return s.repo.ListMovements(ctx, customerID, limit)
}

// Recompute replays the movement history and reports drift against the
// balance projection.
func (s *Service) Recompute(ctx context.Context, customerID int64) (float64, error) {
	customer, err := s.repo.GetCustomer(ctx, customerID)
	if err != nil {
		return 0, err
	}
	replayed, err := s.repo.SumMovements(ctx, customerID)
	if err != nil {
		return 0, err
	}
	return customer.Balance - replayed, nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, m Movement) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   fmt.Sprintf("credit:%s", m.Kind),
		Entity:   "credit_movement",
		EntityID: fmt.Sprintf("%d", m.ID),
		Meta: map[string]any{
			"customer_id":    m.CustomerID,
			"amount":         m.Amount,
			"result_balance": m.ResultBalance,
		},
	})
}
