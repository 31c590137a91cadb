package till

import (
	"errors"
	"time"
)

// SessionStatus enumerates cash session states.
type SessionStatus string

const (
	// SessionOpen means the register is operating.
	SessionOpen SessionStatus = "OPEN"
	// SessionClosed means the drawer has been counted and reconciled.
	SessionClosed SessionStatus = "CLOSED"
)

// MovementKind enumerates cash movement kinds.
type MovementKind string

const (
	// MovementOpening records the opening float.
	MovementOpening MovementKind = "OPENING"
	// MovementSale records cash received for a sale.
	MovementSale MovementKind = "SALE"
	// MovementExpense records cash paid out of the drawer.
	MovementExpense MovementKind = "EXPENSE"
	// MovementWithdrawal records cash removed to the safe.
	MovementWithdrawal MovementKind = "WITHDRAWAL"
	// MovementSurplus reconciles a positive count variance at close.
	MovementSurplus MovementKind = "SURPLUS"
	// MovementShortage reconciles a negative count variance at close.
	MovementShortage MovementKind = "SHORTAGE"
)

// Session is the operating period of one register between an opening count
// and a closing count. Balance and SalesTotal are projections over the
// session's movements.
type Session struct {
	ID             int64         `json:"id"`
	RegisterID     int64         `json:"register_id"`
	CashierID      int64         `json:"cashier_id"`
	OpeningBalance float64       `json:"opening_balance"`
	Balance        float64       `json:"balance"`
	SalesTotal     float64       `json:"sales_total"`
	Status         SessionStatus `json:"status"`
	ClosingBalance *float64      `json:"closing_balance,omitempty"`
	Variance       *float64      `json:"variance,omitempty"`
	OpenedAt       time.Time     `json:"opened_at"`
	ClosedAt       *time.Time    `json:"closed_at,omitempty"`
}

// Movement is one immutable entry in a session's cash ledger.
type Movement struct {
	ID            int64        `json:"id"`
	SessionID     int64        `json:"session_id"`
	Kind          MovementKind `json:"kind"`
	Amount        float64      `json:"amount"`
	PriorBalance  float64      `json:"prior_balance"`
	ResultBalance float64      `json:"result_balance"`
	Reference     string       `json:"reference"`
	CreatedAt     time.Time    `json:"created_at"`
}

// OpenSessionRequest opens a register.
type OpenSessionRequest struct {
	RegisterID     int64   `json:"register_id" validate:"required,gt=0"`
	OpeningBalance float64 `json:"opening_balance" validate:"gte=0"`
}

// MovementRequest posts a manual in-session movement.
type MovementRequest struct {
	Kind      MovementKind `json:"kind" validate:"required,oneof=EXPENSE WITHDRAWAL"`
	Amount    float64      `json:"amount" validate:"required,gt=0"`
	Reference string       `json:"reference" validate:"max=100"`
}

// CloseSessionRequest closes a register with the counted drawer amount.
type CloseSessionRequest struct {
	CountedBalance float64 `json:"counted_balance" validate:"gte=0"`
}

var (
	// ErrSessionNotFound indicates an unknown session id.
	ErrSessionNotFound = errors.New("till: session not found")
	// ErrSessionAlreadyOpen is returned when the register already has an
	// OPEN session.
	ErrSessionAlreadyOpen = errors.New("till: register already has an open session")
	// ErrSessionNotOpen is returned for movements against a closed session.
	ErrSessionNotOpen = errors.New("till: session not open")
	// ErrInvalidAmount indicates a non-positive amount.
	ErrInvalidAmount = errors.New("till: amount must be positive")
	// ErrInvalidKind indicates a movement kind callers may not post directly.
	ErrInvalidKind = errors.New("till: invalid movement kind")
)

// increases reports whether a movement kind adds cash to the drawer.
func (k MovementKind) increases() bool {
	switch k {
	case MovementSale, MovementSurplus, MovementOpening:
		return true
	default:
		return false
	}
}
