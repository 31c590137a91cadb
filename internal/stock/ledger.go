package stock

import (
	"context"
	"fmt"
	"math"
	"time"
)

// The Apply functions hold the ledger math. They run against a TxRepository
// so the guard, the movement append, and the projection update share one
// transaction whether the caller is this package's Service or the sale
// engine's coordinator.

// ApplyDecrement posts an OUT movement for qty. The product row is locked for
// the duration of the transaction, so the availability check and the append
// cannot be separated by a concurrent writer.
func ApplyDecrement(ctx context.Context, tx TxRepository, productID int64, qty float64, reason, reference string) (Movement, error) {
	if qty <= 0 {
		return Movement{}, ErrInvalidQuantity
	}
	product, err := tx.GetProductForUpdate(ctx, productID)
	if err != nil {
		return Movement{}, err
	}
	if !product.IsActive {
		return Movement{}, fmt.Errorf("%w: product %d", ErrProductInactive, productID)
	}
	result := product.CurrentStock - qty
	if result < 0 && !product.AllowNegative {
		return Movement{}, fmt.Errorf("%w: product %d has %.3f, requested %.3f", ErrInsufficientStock, productID, product.CurrentStock, qty)
	}
	return appendMovement(ctx, tx, product, Movement{
		ProductID: productID,
		Kind:      MovementOut,
		Delta:     -qty,
		Reason:    reason,
		Reference: reference,
	})
}

// ApplyIncrement posts an IN movement for qty. Increments are accepted for
// inactive products so cancellations and returns can always restock.
func ApplyIncrement(ctx context.Context, tx TxRepository, productID int64, qty float64, reason, reference string) (Movement, error) {
	if qty <= 0 {
		return Movement{}, ErrInvalidQuantity
	}
	product, err := tx.GetProductForUpdate(ctx, productID)
	if err != nil {
		return Movement{}, err
	}
	return appendMovement(ctx, tx, product, Movement{
		ProductID: productID,
		Kind:      MovementIn,
		Delta:     qty,
		Reason:    reason,
		Reference: reference,
	})
}

// ApplyAdjust posts an ADJUST movement whose delta moves the product to an
// absolute quantity.
func ApplyAdjust(ctx context.Context, tx TxRepository, productID int64, newQty float64, reason string) (Movement, error) {
	product, err := tx.GetProductForUpdate(ctx, productID)
	if err != nil {
		return Movement{}, err
	}
	delta := newQty - product.CurrentStock
	if math.Abs(delta) < 1e-9 {
		return Movement{}, fmt.Errorf("%w: adjustment is a no-op", ErrInvalidQuantity)
	}
	return appendMovement(ctx, tx, product, Movement{
		ProductID: productID,
		Kind:      MovementAdjust,
		Delta:     delta,
		Reason:    reason,
	})
}

func appendMovement(ctx context.Context, tx TxRepository, product Product, m Movement) (Movement, error) {
	m.PriorQty = product.CurrentStock
	m.ResultQty = product.CurrentStock + m.Delta
	m.CreatedAt = time.Now().UTC()

	id, err := tx.InsertMovement(ctx, m)
	if err != nil {
		return Movement{}, fmt.Errorf("stock: insert movement: %w", err)
	}
	m.ID = id
	if err := tx.UpdateStock(ctx, m.ProductID, m.ResultQty); err != nil {
		return Movement{}, fmt.Errorf("stock: update projection: %w", err)
	}
	return m, nil
}
