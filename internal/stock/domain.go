package stock

import (
	"errors"
	"time"
)

// MovementKind enumerates stock ledger movement kinds.
type MovementKind string

const (
	// MovementIn records quantity entering stock (restock, cancellation, return).
	MovementIn MovementKind = "IN"
	// MovementOut records quantity leaving stock (sale).
	MovementOut MovementKind = "OUT"
	// MovementAdjust records a manual correction to an absolute quantity.
	MovementAdjust MovementKind = "ADJUST"
)

// Product is the stock projection for a sellable item. CurrentStock is
// derived state: it always equals the sum of movement deltas.
type Product struct {
	ID            int64     `json:"id"`
	SKU           string    `json:"sku"`
	Name          string    `json:"name"`
	UnitPrice     float64   `json:"unit_price"`
	CurrentStock  float64   `json:"current_stock"`
	MinStock      float64   `json:"min_stock"`
	AllowNegative bool      `json:"allow_negative"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Movement is one immutable entry in the stock ledger. Delta is signed:
// positive for IN, negative for OUT, either sign for ADJUST.
type Movement struct {
	ID        int64        `json:"id"`
	ProductID int64        `json:"product_id"`
	Kind      MovementKind `json:"kind"`
	Delta     float64      `json:"delta"`
	PriorQty  float64      `json:"prior_qty"`
	ResultQty float64      `json:"result_qty"`
	Reason    string       `json:"reason"`
	Reference string       `json:"reference"`
	CreatedAt time.Time    `json:"created_at"`
}

// CreateProductRequest describes a new product.
type CreateProductRequest struct {
	SKU           string  `json:"sku" validate:"required,max=50"`
	Name          string  `json:"name" validate:"required,max=200"`
	UnitPrice     float64 `json:"unit_price" validate:"gte=0"`
	InitialStock  float64 `json:"initial_stock" validate:"gte=0"`
	MinStock      float64 `json:"min_stock" validate:"gte=0"`
	AllowNegative bool    `json:"allow_negative"`
}

// AdjustRequest sets a product to an absolute quantity.
type AdjustRequest struct {
	NewQty float64 `json:"new_qty"`
	Reason string  `json:"reason" validate:"required,max=200"`
}

// MovementRequest describes a manual increment or decrement.
type MovementRequest struct {
	Qty       float64 `json:"qty" validate:"required,gt=0"`
	Reason    string  `json:"reason" validate:"required,max=200"`
	Reference string  `json:"reference" validate:"max=100"`
}

// Integrity reports the drift between the stock projection and the replayed
// movement history for one product.
type Integrity struct {
	ProductID    int64   `json:"product_id"`
	CurrentStock float64 `json:"current_stock"`
	ReplayedQty  float64 `json:"replayed_qty"`
	Drift        float64 `json:"drift"`
}

var (
	// ErrProductNotFound indicates an unknown product id.
	ErrProductNotFound = errors.New("stock: product not found")
	// ErrProductInactive indicates the product exists but cannot be sold.
	ErrProductInactive = errors.New("stock: product inactive")
	// ErrInsufficientStock is returned when a decrement would push stock
	// below zero and the product does not allow negative stock.
	ErrInsufficientStock = errors.New("stock: insufficient stock")
	// ErrInvalidQuantity indicates a non-positive quantity.
	ErrInvalidQuantity = errors.New("stock: quantity must be positive")
	// ErrSKUExists indicates a duplicate SKU.
	ErrSKUExists = errors.New("stock: sku already exists")
)
