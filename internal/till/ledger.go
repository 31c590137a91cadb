package till

import (
	"context"
	"fmt"
	"time"
)

// ApplyMovement posts a movement against an OPEN session. The session row is
// locked for the duration of the transaction, so the status check, the
// append, and the projection update are one atomic step.
func ApplyMovement(ctx context.Context, tx TxRepository, sessionID int64, kind MovementKind, amount float64, reference string) (Movement, error) {
	// Only the opening float may be zero.
	if amount < 0 || (amount == 0 && kind != MovementOpening) {
		return Movement{}, ErrInvalidAmount
	}
	session, err := tx.GetSessionForUpdate(ctx, sessionID)
	if err != nil {
		return Movement{}, err
	}
	if session.Status != SessionOpen {
		return Movement{}, fmt.Errorf("%w: session %d is %s", ErrSessionNotOpen, sessionID, session.Status)
	}

	m := Movement{
		SessionID:    sessionID,
		Kind:         kind,
		Amount:       amount,
		PriorBalance: session.Balance,
		Reference:    reference,
		CreatedAt:    time.Now().UTC(),
	}
	if kind.increases() {
		m.ResultBalance = session.Balance + amount
	} else {
		m.ResultBalance = session.Balance - amount
	}

	id, err := tx.InsertMovement(ctx, m)
	if err != nil {
		return Movement{}, fmt.Errorf("till: insert movement: %w", err)
	}
	m.ID = id

	salesTotal := session.SalesTotal
	if kind == MovementSale {
		salesTotal += amount
	}
	if err := tx.UpdateTotals(ctx, sessionID, m.ResultBalance, salesTotal); err != nil {
		return Movement{}, fmt.Errorf("till: update projection: %w", err)
	}
	return m, nil
}
