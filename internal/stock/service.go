package stock

import (
	"context"
	"fmt"
	"time"

	"github.com/meridian-pos/meridian-pos/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	CreateProduct(ctx context.Context, p Product) (int64, error)
	GetProduct(ctx context.Context, productID int64) (Product, error)
	ListProducts(ctx context.Context, limit int) ([]Product, error)
	ListBelowMinimum(ctx context.Context) ([]Product, error)
	ListMovements(ctx context.Context, productID int64, limit int) ([]Movement, error)
	SumDeltas(ctx context.Context, productID int64) (float64, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates stock ledger operations.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// CreateProduct registers a product with its opening stock.
func (s *Service) CreateProduct(ctx context.Context, req CreateProductRequest) (Product, error) {
	now := time.Now().UTC()
	product := Product{
		SKU:           req.SKU,
		Name:          req.Name,
		UnitPrice:     req.UnitPrice,
		CurrentStock:  req.InitialStock,
		MinStock:      req.MinStock,
		AllowNegative: req.AllowNegative,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	id, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return Product{}, err
	}
	product.ID = id
	return product, nil
}

// Decrement posts an OUT movement outside of a sale (damage, shrinkage).
func (s *Service) Decrement(ctx context.Context, productID int64, req MovementRequest, actorID int64) (Movement, error) {
	var movement Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		movement, err = ApplyDecrement(ctx, tx, productID, req.Qty, req.Reason, req.Reference)
		return err
	})
	if err != nil {
		return Movement{}, err
	}
	s.recordAudit(ctx, actorID, movement)
	return movement, nil
}

// Increment posts an IN movement (restock).
func (s *Service) Increment(ctx context.Context, productID int64, req MovementRequest, actorID int64) (Movement, error) {
	var movement Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		movement, err = ApplyIncrement(ctx, tx, productID, req.Qty, req.Reason, req.Reference)
		return err
	})
	if err != nil {
		return Movement{}, err
	}
	s.recordAudit(ctx, actorID, movement)
	return movement, nil
}

// Adjust moves a product to an absolute quantity after a physical count.
func (s *Service) Adjust(ctx context.Context, productID int64, req AdjustRequest, actorID int64) (Movement, error) {
	var movement Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		movement, err = ApplyAdjust(ctx, tx, productID, req.NewQty, req.Reason)
		return err
	})
	if err != nil {
		return Movement{}, err
	}
	s.recordAudit(ctx, actorID, movement)
	return movement, nil
}

// GetProduct returns the current projection.
func (s *Service) GetProduct(ctx context.Context, productID int64) (Product, error) {
	return s.repo.GetProduct(ctx, productID)
}

// ListProducts lists products.
func (s *Service) ListProducts(ctx context.Context, limit int) ([]Product, error) {
	return s.repo.ListProducts(ctx, limit)
}

// ListBelowMinimum lists products under their minimum stock.
func (s *Service) ListBelowMinimum(ctx context.Context) ([]Product, error) {
	return s.repo.ListBelowMinimum(ctx)
}

// ListMovements returns the movement history for a product.
func (s *Service) ListMovements(ctx context.Context, productID int64, limit int) ([]Movement, error) {
	if _, err := s.repo.GetProduct(ctx, productID); err != nil {
		return nil, err
	}
	return s.repo.ListMovements(ctx, productID, limit)
}

// Recompute replays the movement history and reports drift against the
// projection. Used by integrity audits, never on the sale path.
func (s *Service) Recompute(ctx context.Context, productID int64) (Integrity, error) {
	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return Integrity{}, err
	}
	replayed, err := s.repo.SumDeltas(ctx, productID)
	if err != nil {
		return Integrity{}, err
	}
	return Integrity{
		ProductID:    productID,
		CurrentStock: product.CurrentStock,
		ReplayedQty:  replayed,
		Drift:        product.CurrentStock - replayed,
	}, nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, m Movement) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   fmt.Sprintf("stock:%s", m.Kind),
		Entity:   "stock_movement",
		EntityID: fmt.Sprintf("%d", m.ID),
		Meta: map[string]any{
			"product_id": m.ProductID,
			"delta":      m.Delta,
			"result_qty": m.ResultQty,
			"reason":     m.Reason,
		},
	})
}
