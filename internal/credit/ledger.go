package credit

import (
	"context"
	"fmt"
	"time"
)

// ApplyCharge posts a CHARGE movement. The customer row stays locked for the
// duration of the transaction, so the limit check and the append are one
// atomic step: two concurrent charges that individually fit the limit cannot
// jointly exceed it.
func ApplyCharge(ctx context.Context, tx TxRepository, customerID int64, amount float64, reference string) (Movement, error) {
	if amount <= 0 {
		return Movement{}, ErrInvalidAmount
	}
	customer, err := tx.GetCustomerForUpdate(ctx, customerID)
	if err != nil {
		return Movement{}, err
	}
	if !customer.IsActive {
		return Movement{}, fmt.Errorf("%w: customer %d", ErrCustomerInactive, customerID)
	}
	if customer.CreditLimit <= 0 {
		return Movement{}, fmt.Errorf("%w: customer %d", ErrCreditNotAllowed, customerID)
	}
	projected := customer.Balance + amount
	if projected > customer.CreditLimit {
		return Movement{}, fmt.Errorf("%w: customer %d balance %.2f + %.2f exceeds limit %.2f",
			ErrCreditLimitExceeded, customerID, customer.Balance, amount, customer.CreditLimit)
	}
	return appendMovement(ctx, tx, customer, Movement{
		CustomerID: customerID,
		Kind:       MovementCharge,
		Amount:     amount,
		Reference:  reference,
	})
}

// ApplyPayment posts a PAYMENT movement. The balance may go negative, which
// represents credit held by the customer.
func ApplyPayment(ctx context.Context, tx TxRepository, customerID int64, amount float64, reference string) (Movement, error) {
	if amount <= 0 {
		return Movement{}, ErrInvalidAmount
	}
	customer, err := tx.GetCustomerForUpdate(ctx, customerID)
	if err != nil {
		return Movement{}, err
	}
	return appendMovement(ctx, tx, customer, Movement{
		CustomerID: customerID,
		Kind:       MovementPayment,
		Amount:     amount,
		Reference:  reference,
	})
}

func appendMovement(ctx context.Context, tx TxRepository, customer Customer, m Movement) (Movement, error) {
	m.PriorBalance = customer.Balance
	if m.Kind == MovementCharge {
		m.ResultBalance = customer.Balance + m.Amount
	} else {
		m.ResultBalance = customer.Balance - m.Amount
	}
	m.CreatedAt = time.Now().UTC()

	id, err := tx.InsertMovement(ctx, m)
	if err != nil {
		return Movement{}, fmt.Errorf("credit: insert movement: %w", err)
	}
	m.ID = id
	if err := tx.UpdateBalance(ctx, m.CustomerID, m.ResultBalance); err != nil {
		return Movement{}, fmt.Errorf("credit: update projection: %w", err)
	}
	return m, nil
}
