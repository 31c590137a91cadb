package sales

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-pos/meridian-pos/internal/credit"
	"github.com/meridian-pos/meridian-pos/internal/shared"
	"github.com/meridian-pos/meridian-pos/internal/stock"
	"github.com/meridian-pos/meridian-pos/internal/till"
)

// ReaderPort reads persisted sales outside of a unit of work.
type ReaderPort interface {
	GetSale(ctx context.Context, saleID int64) (Sale, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Notifier delivers best-effort notifications after a sale completes. A
// failing notifier is logged and never rolls back or blocks the sale.
type Notifier interface {
	SaleCompleted(ctx context.Context, sale Sale) error
}

// Service is the sale order engine. It drives the three ledgers through the
// Coordinator so every sale-affecting operation is all-or-nothing.
type Service struct {
	coord       Coordinator
	reader      ReaderPort
	authz       shared.Authorizer
	idempotency *shared.IdempotencyStore
	audit       AuditPort
	notifier    Notifier
	logger      *slog.Logger
}

// NewService builds Service. idempotency, audit and notifier are optional.
func NewService(coord Coordinator, reader ReaderPort, authz shared.Authorizer, idem *shared.IdempotencyStore, audit AuditPort, notifier Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		coord:       coord,
		reader:      reader,
		authz:       authz,
		idempotency: idem,
		audit:       audit,
		notifier:    notifier,
		logger:      logger,
	}
}

// CreateSale validates the request, then runs stock decrements, credit
// charges, cash movements and sale persistence as one unit of work. On any
// failure nothing is persisted and no ledger changes.
func (s *Service) CreateSale(ctx context.Context, req CreateSaleRequest, actor shared.Actor) (Sale, error) {
	if err := s.authz.Allow(ctx, actor, CapCreate); err != nil {
		return Sale{}, err
	}

	sale, err := buildSale(req, actor.ID)
	if err != nil {
		return Sale{}, err
	}

	insertedKey := false
	if s.idempotency != nil && req.IdempotencyKey != "" {
		if err := s.idempotency.CheckAndInsert(ctx, req.IdempotencyKey, "sales"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return Sale{}, fmt.Errorf("%w: key %s", ErrDuplicateRequest, req.IdempotencyKey)
			}
			return Sale{}, err
		}
		insertedKey = true
	}

	err = s.coord.RunAtomically(ctx, func(ctx context.Context, lx TxLedgers) error {
		for i, ln := range req.Lines {
			if ln.SkipStock {
				product, err := lx.Stock.GetProductForUpdate(ctx, ln.ProductID)
				if err != nil {
					return err
				}
				if !product.IsActive {
					return fmt.Errorf("%w: product %d", stock.ErrProductInactive, ln.ProductID)
				}
				if product.AllowNegative {
					continue
				}
				// Opt-out is only honoured for products flagged for it.
			}
			if _, err := stock.ApplyDecrement(ctx, lx.Stock, ln.ProductID, ln.Qty, "sale", sale.Number); err != nil {
				return fmt.Errorf("line %d: %w", i+1, err)
			}
		}

		for _, p := range req.Payments {
			switch p.Method {
			case MethodCredit:
				if _, err := credit.ApplyCharge(ctx, lx.Credit, *req.CustomerID, p.Amount, sale.Number); err != nil {
					return err
				}
			case MethodCash:
				if _, err := till.ApplyMovement(ctx, lx.Till, *req.SessionID, till.MovementSale, p.Amount, sale.Number); err != nil {
					return err
				}
			}
		}

		sale.Status = StatusCompleted
		saleID, err := lx.Sales.InsertSale(ctx, sale)
		if err != nil {
			return fmt.Errorf("sales: insert sale: %w", err)
		}
		sale.ID = saleID
		for i := range sale.Lines {
			sale.Lines[i].SaleID = saleID
			lineID, err := lx.Sales.InsertLine(ctx, sale.Lines[i])
			if err != nil {
				return fmt.Errorf("sales: insert line: %w", err)
			}
			sale.Lines[i].ID = lineID
		}
		for i := range sale.Payments {
			sale.Payments[i].SaleID = saleID
			paymentID, err := lx.Sales.InsertPayment(ctx, sale.Payments[i])
			if err != nil {
				return fmt.Errorf("sales: insert payment: %w", err)
			}
			sale.Payments[i].ID = paymentID
		}
		return nil
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, req.IdempotencyKey)
		}
		return Sale{}, err
	}

	s.recordAudit(ctx, actor.ID, "sales:CREATE", sale)
	s.notify(ctx, sale)
	return sale, nil
}

// CancelSale fully reverses a COMPLETED sale: stock comes back for every
// line's unreturned quantity and every CREDIT charge is paid back. The
// reversal is one unit of work; a mid-operation failure leaves the sale
// COMPLETED and every ledger untouched.
func (s *Service) CancelSale(ctx context.Context, saleID int64, req CancelSaleRequest, actor shared.Actor) (Sale, error) {
	if err := s.authz.Allow(ctx, actor, CapCancel); err != nil {
		return Sale{}, err
	}

	var cancelled Sale
	err := s.coord.RunAtomically(ctx, func(ctx context.Context, lx TxLedgers) error {
		sale, err := lx.Sales.GetSaleForUpdate(ctx, saleID)
		if err != nil {
			return err
		}
		if sale.Status != StatusCompleted {
			return fmt.Errorf("%w: cannot cancel %s sale %d", ErrInvalidStateTransition, sale.Status, saleID)
		}

		for _, ln := range sale.Lines {
			remaining := ln.Qty - ln.ReturnedQty
			if remaining <= 0 {
				continue
			}
			if _, err := stock.ApplyIncrement(ctx, lx.Stock, ln.ProductID, remaining, "sale cancelled", sale.Number); err != nil {
				return err
			}
		}
		for _, p := range sale.Payments {
			if p.Method != MethodCredit {
				continue
			}
			if sale.CustomerID == nil {
				return fmt.Errorf("%w: credit payment without customer on sale %d", ErrInvalidStateTransition, saleID)
			}
			if _, err := credit.ApplyPayment(ctx, lx.Credit, *sale.CustomerID, p.Amount, sale.Number); err != nil {
				return err
			}
		}

		now := time.Now().UTC()
		if err := lx.Sales.UpdateStatus(ctx, saleID, StatusCancelled, req.Reason, now); err != nil {
			return err
		}
		cancelled = sale
		cancelled.Status = StatusCancelled
		cancelled.Reason = &req.Reason
		cancelled.ClosedAt = &now
		return nil
	})
	if err != nil {
		return Sale{}, err
	}

	s.recordAudit(ctx, actor.ID, "sales:CANCEL", cancelled)
	return cancelled, nil
}

// ProcessReturn restores stock for the returned quantities. When every line
// has been fully returned the sale transitions to RETURNED; otherwise it
// stays COMPLETED with the per-line return counters advanced. Cash and
// credit refunds are deliberately not posted here; they are explicit
// follow-up operations on the respective ledgers.
func (s *Service) ProcessReturn(ctx context.Context, saleID int64, req ReturnRequest, actor shared.Actor) (Sale, error) {
	if err := s.authz.Allow(ctx, actor, CapReturn); err != nil {
		return Sale{}, err
	}

	var updated Sale
	err := s.coord.RunAtomically(ctx, func(ctx context.Context, lx TxLedgers) error {
		sale, err := lx.Sales.GetSaleForUpdate(ctx, saleID)
		if err != nil {
			return err
		}
		if sale.Status != StatusCompleted {
			return fmt.Errorf("%w: cannot return %s sale %d", ErrInvalidStateTransition, sale.Status, saleID)
		}

		lines := make(map[int64]*Line, len(sale.Lines))
		for i := range sale.Lines {
			lines[sale.Lines[i].ID] = &sale.Lines[i]
		}

		for _, ret := range req.Lines {
			ln, ok := lines[ret.LineID]
			if !ok {
				return fmt.Errorf("%w: line %d", ErrUnknownLine, ret.LineID)
			}
			remaining := ln.Qty - ln.ReturnedQty
			if ret.Qty > remaining+1e-9 {
				return fmt.Errorf("%w: line %d has %.3f left, requested %.3f", ErrReturnExceedsQuantity, ret.LineID, remaining, ret.Qty)
			}
			if _, err := stock.ApplyIncrement(ctx, lx.Stock, ln.ProductID, ret.Qty, "sale returned", sale.Number); err != nil {
				return err
			}
			ln.ReturnedQty += ret.Qty
			if err := lx.Sales.UpdateLineReturned(ctx, ln.ID, ln.ReturnedQty); err != nil {
				return err
			}
		}

		if allReturned(sale.Lines) {
			now := time.Now().UTC()
			if err := lx.Sales.UpdateStatus(ctx, saleID, StatusReturned, req.Reason, now); err != nil {
				return err
			}
			sale.Status = StatusReturned
			sale.Reason = &req.Reason
			sale.ClosedAt = &now
		}
		updated = sale
		return nil
	})
	if err != nil {
		return Sale{}, err
	}

	s.recordAudit(ctx, actor.ID, "sales:RETURN", updated)
	return updated, nil
}

// GetSale loads a sale with its lines and payments.
func (s *Service) GetSale(ctx context.Context, saleID int64) (Sale, error) {
	return s.reader.GetSale(ctx, saleID)
}

// buildSale validates the request shape and assembles the transient ACTIVE
// sale. All domain-validation failures happen here, before any ledger is
// touched.
func buildSale(req CreateSaleRequest, cashierID int64) (Sale, error) {
	if len(req.Lines) == 0 {
		return Sale{}, fmt.Errorf("%w: at least one line required", ErrInvalidRequest)
	}
	if len(req.Payments) == 0 {
		return Sale{}, fmt.Errorf("%w: at least one payment required", ErrInvalidRequest)
	}

	sale := Sale{
		Number:     uuid.NewString(),
		CustomerID: req.CustomerID,
		CashierID:  cashierID,
		SessionID:  req.SessionID,
		Status:     StatusActive,
		CreatedAt:  time.Now().UTC(),
	}

	for i, ln := range req.Lines {
		if ln.ProductID <= 0 || ln.Qty <= 0 || ln.UnitPrice < 0 || ln.Discount < 0 || ln.Tax < 0 {
			return Sale{}, fmt.Errorf("%w: line %d", ErrInvalidRequest, i+1)
		}
		gross := ln.Qty * ln.UnitPrice
		lineTotal := gross - ln.Discount + ln.Tax
		sale.Subtotal += gross
		sale.Discount += ln.Discount
		sale.Tax += ln.Tax
		sale.Lines = append(sale.Lines, Line{
			ProductID: ln.ProductID,
			Qty:       ln.Qty,
			UnitPrice: ln.UnitPrice,
			Discount:  ln.Discount,
			Tax:       ln.Tax,
			LineTotal: lineTotal,
		})
	}
	sale.Total = sale.Subtotal - sale.Discount + sale.Tax

	var paid float64
	for _, p := range req.Payments {
		if p.Amount <= 0 {
			return Sale{}, fmt.Errorf("%w: payment amount must be positive", ErrInvalidRequest)
		}
		paid += p.Amount
		switch p.Method {
		case MethodCredit:
			if req.CustomerID == nil {
				return Sale{}, ErrCustomerRequired
			}
		case MethodCash:
			if req.SessionID == nil {
				return Sale{}, ErrSessionRequired
			}
		}
		sale.Payments = append(sale.Payments, Payment{
			Method:    p.Method,
			Amount:    p.Amount,
			Reference: p.Reference,
		})
	}
	if math.Abs(paid-sale.Total) > PaymentTolerance {
		return Sale{}, fmt.Errorf("%w: paid %.2f, total %.2f", ErrPaymentMismatch, paid, sale.Total)
	}
	return sale, nil
}

func allReturned(lines []Line) bool {
	for _, ln := range lines {
		if ln.Qty-ln.ReturnedQty > 1e-9 {
			return false
		}
	}
	return true
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, sale Sale) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "sale",
		EntityID: sale.Number,
		Meta: map[string]any{
			"sale_id": sale.ID,
			"total":   sale.Total,
			"status":  sale.Status,
		},
	})
}

func (s *Service) notify(ctx context.Context, sale Sale) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.SaleCompleted(ctx, sale); err != nil {
		s.logger.Warn("sale notification failed",
			slog.String("sale", sale.Number),
			slog.Any("error", err))
	}
}
