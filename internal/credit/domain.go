package credit

import (
	"errors"
	"time"
)

// MovementKind enumerates credit ledger movement kinds.
type MovementKind string

const (
	// MovementCharge increases the customer's debt.
	MovementCharge MovementKind = "CHARGE"
	// MovementPayment decreases the customer's debt.
	MovementPayment MovementKind = "PAYMENT"
)

// Customer is the credit projection for one account. Balance is derived
// state: it always equals sum(CHARGE) - sum(PAYMENT). A positive balance
// means the customer owes money; CreditLimit 0 disables credit sales.
type Customer struct {
	ID          int64     `json:"id"`
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	CreditLimit float64   `json:"credit_limit"`
	Balance     float64   `json:"balance"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Movement is one immutable entry in the credit ledger.
type Movement struct {
	ID            int64        `json:"id"`
	CustomerID    int64        `json:"customer_id"`
	Kind          MovementKind `json:"kind"`
	Amount        float64      `json:"amount"`
	PriorBalance  float64      `json:"prior_balance"`
	ResultBalance float64      `json:"result_balance"`
	Reference     string       `json:"reference"`
	CreatedAt     time.Time    `json:"created_at"`
}

// CreateCustomerRequest describes a new customer account.
type CreateCustomerRequest struct {
	Code        string  `json:"code" validate:"required,max=50"`
	Name        string  `json:"name" validate:"required,max=200"`
	CreditLimit float64 `json:"credit_limit" validate:"gte=0"`
}

// PaymentRequest posts a payment against the balance.
type PaymentRequest struct {
	Amount    float64 `json:"amount" validate:"required,gt=0"`
	Reference string  `json:"reference" validate:"max=100"`
}

var (
	// ErrCustomerNotFound indicates an unknown customer id.
	ErrCustomerNotFound = errors.New("credit: customer not found")
	// ErrCustomerInactive indicates the account is closed.
	ErrCustomerInactive = errors.New("credit: customer inactive")
	// ErrCreditLimitExceeded is returned when a charge would push the
	// balance past the customer's limit.
	ErrCreditLimitExceeded = errors.New("credit: credit limit exceeded")
	// ErrCreditNotAllowed indicates the customer has no credit line.
	ErrCreditNotAllowed = errors.New("credit: customer has no credit line")
	// ErrInvalidAmount indicates a non-positive amount.
	ErrInvalidAmount = errors.New("credit: amount must be positive")
	// ErrCodeExists indicates a duplicate customer code.
	ErrCodeExists = errors.New("credit: customer code already exists")
)
