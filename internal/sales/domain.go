package sales

import (
	"errors"
	"time"
)

// Status enumerates sale order states. ACTIVE is transient: a sale is only
// ever persisted as COMPLETED, and may later move to CANCELLED (full
// reversal) or RETURNED (all lines returned). Both are terminal.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
	StatusReturned  Status = "RETURNED"
)

// PaymentMethod enumerates how a sale was settled.
type PaymentMethod string

const (
	// MethodCash settles against the register's cash session.
	MethodCash PaymentMethod = "CASH"
	// MethodCredit charges the customer's credit account.
	MethodCredit PaymentMethod = "CREDIT"
	// MethodOther covers vouchers, cards and external terminals.
	MethodOther PaymentMethod = "OTHER"
)

// PaymentTolerance is the largest accepted gap between the payment sum and
// the sale total. Half a minor currency unit: a one-cent mismatch fails.
const PaymentTolerance = 0.005

// Sale is a customer transaction with its lines and payments.
type Sale struct {
	ID         int64      `json:"id"`
	Number     string     `json:"number"`
	CustomerID *int64     `json:"customer_id,omitempty"`
	CashierID  int64      `json:"cashier_id"`
	SessionID  *int64     `json:"session_id,omitempty"`
	Subtotal   float64    `json:"subtotal"`
	Discount   float64    `json:"discount"`
	Tax        float64    `json:"tax"`
	Total      float64    `json:"total"`
	Status     Status     `json:"status"`
	Reason     *string    `json:"reason,omitempty"`
	Lines      []Line     `json:"lines"`
	Payments   []Payment  `json:"payments"`
	CreatedAt  time.Time  `json:"created_at"`
	ClosedAt   *time.Time `json:"closed_at,omitempty"`
}

// Line is one product position on a sale. ReturnedQty tracks partial
// returns against the original quantity.
type Line struct {
	ID          int64   `json:"id"`
	SaleID      int64   `json:"sale_id"`
	ProductID   int64   `json:"product_id"`
	Qty         float64 `json:"qty"`
	UnitPrice   float64 `json:"unit_price"`
	Discount    float64 `json:"discount"`
	Tax         float64 `json:"tax"`
	LineTotal   float64 `json:"line_total"`
	ReturnedQty float64 `json:"returned_qty"`
}

// Payment is one settlement leg of a sale.
type Payment struct {
	ID        int64         `json:"id"`
	SaleID    int64         `json:"sale_id"`
	Method    PaymentMethod `json:"method"`
	Amount    float64       `json:"amount"`
	Reference string        `json:"reference,omitempty"`
}

// CreateSaleRequest describes a sale to process.
type CreateSaleRequest struct {
	CustomerID     *int64             `json:"customer_id,omitempty" validate:"omitempty,gt=0"`
	SessionID      *int64             `json:"session_id,omitempty" validate:"omitempty,gt=0"`
	IdempotencyKey string             `json:"idempotency_key,omitempty" validate:"max=100"`
	Lines          []CreateLineReq    `json:"lines" validate:"required,min=1,dive"`
	Payments       []CreatePaymentReq `json:"payments" validate:"required,min=1,dive"`
}

// CreateLineReq is one requested line. SkipStock asks the engine to leave
// the stock ledger untouched; it is honoured only for products flagged to
// allow negative stock (services, drop-shipped goods).
type CreateLineReq struct {
	ProductID int64   `json:"product_id" validate:"required,gt=0"`
	Qty       float64 `json:"qty" validate:"required,gt=0"`
	UnitPrice float64 `json:"unit_price" validate:"gte=0"`
	Discount  float64 `json:"discount" validate:"gte=0"`
	Tax       float64 `json:"tax" validate:"gte=0"`
	SkipStock bool    `json:"skip_stock,omitempty"`
}

// CreatePaymentReq is one requested settlement leg.
type CreatePaymentReq struct {
	Method    PaymentMethod `json:"method" validate:"required,oneof=CASH CREDIT OTHER"`
	Amount    float64       `json:"amount" validate:"required,gt=0"`
	Reference string        `json:"reference,omitempty" validate:"max=100"`
}

// CancelSaleRequest reverses a completed sale.
type CancelSaleRequest struct {
	Reason string `json:"reason" validate:"required,max=200"`
}

// ReturnLineReq is one line position of a return.
type ReturnLineReq struct {
	LineID int64   `json:"line_id" validate:"required,gt=0"`
	Qty    float64 `json:"qty" validate:"required,gt=0"`
}

// ReturnRequest returns part or all of a completed sale.
type ReturnRequest struct {
	Reason string          `json:"reason" validate:"required,max=200"`
	Lines  []ReturnLineReq `json:"lines" validate:"required,min=1,dive"`
}

var (
	// ErrSaleNotFound indicates an unknown sale id.
	ErrSaleNotFound = errors.New("sales: sale not found")
	// ErrInvalidRequest indicates a malformed sale request: no lines, no
	// payments, or non-positive quantities and amounts.
	ErrInvalidRequest = errors.New("sales: invalid sale request")
	// ErrPaymentMismatch is returned when payments do not add up to the
	// sale total within PaymentTolerance.
	ErrPaymentMismatch = errors.New("sales: payments do not match total")
	// ErrInvalidStateTransition guards the sale state machine.
	ErrInvalidStateTransition = errors.New("sales: invalid state transition")
	// ErrCustomerRequired is returned for CREDIT payments without a customer.
	ErrCustomerRequired = errors.New("sales: credit payment requires a customer")
	// ErrSessionRequired is returned for CASH payments without a session.
	ErrSessionRequired = errors.New("sales: cash payment requires an open cash session")
	// ErrReturnExceedsQuantity is returned when a return exceeds what is
	// left to return on a line.
	ErrReturnExceedsQuantity = errors.New("sales: return exceeds remaining quantity")
	// ErrUnknownLine indicates a return referenced a line not on the sale.
	ErrUnknownLine = errors.New("sales: line does not belong to sale")
	// ErrDuplicateRequest indicates the idempotency key was already used.
	ErrDuplicateRequest = errors.New("sales: duplicate request")
)

// capabilities checked through the injected authorizer.
const (
	CapCreate = "sales:create"
	CapCancel = "sales:cancel"
	CapReturn = "sales:return"
)
