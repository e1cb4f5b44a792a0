package inventory

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrMissingInventoryTarget agrupa produto ou variação removidos depois da compra
	ErrMissingInventoryTarget = errors.New("inventory target no longer exists")
	ErrProductNotFound        = fmt.Errorf("product not found: %w", ErrMissingInventoryTarget)
	ErrMeasurementNotFound    = fmt.Errorf("product measurement not found: %w", ErrMissingInventoryTarget)
	ErrInvalidQuantity        = errors.New("restock quantity must be positive")
)

// Product representa o estoque de um produto. Quando HasMeasurements é true,
// StockQuantity é a soma das variações
type Product struct {
	ID              int64     `json:"id" db:"id"`
	Name            string    `json:"name" db:"name"`
	HasMeasurements bool      `json:"has_measurements" db:"has_measurements"`
	StockQuantity   int       `json:"stock_quantity" db:"stock_quantity"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// ProductMeasurement é uma variação com estoque próprio
type ProductMeasurement struct {
	ID            int64     `json:"id" db:"id"`
	ProductID     int64     `json:"product_id" db:"product_id"`
	Label         string    `json:"label" db:"label"`
	StockQuantity int       `json:"stock_quantity" db:"stock_quantity"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// Restock descreve uma devolução de estoque ligada a um pedido
type Restock struct {
	OrderID       int64  `json:"order_id"`
	ProductID     int64  `json:"product_id"`
	MeasurementID *int64 `json:"measurement_id,omitempty"`
	Quantity      int    `json:"quantity"`
	Reason        string `json:"reason"`
}

func (r Restock) Validate() error {
	if r.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	return nil
}

// MovementTypeIncreased é o tipo gravado em inventory_movements para devoluções
const MovementTypeIncreased = "increased"

// ReasonOrderExpired identifica devoluções feitas pela expiração de pedidos
const ReasonOrderExpired = "order_expired"
