package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/matheusmosca/order-lifecycle/pkg/database"
)

// Repository define as operações atômicas do ledger de estoque
type Repository interface {
	// Increase devolve estoque à variação (se informada) ou ao produto
	Increase(ctx context.Context, tx database.Tx, restock Restock) error

	GetProduct(ctx context.Context, productID int64) (*Product, error)
	GetMeasurement(ctx context.Context, measurementID int64) (*ProductMeasurement, error)
}

// PostgresInventoryRepository implementa Repository usando PostgreSQL
type PostgresInventoryRepository struct {
	db *pgxpool.Pool
}

// NewInventoryRepository cria uma nova instância de PostgresInventoryRepository
func NewInventoryRepository(db *pgxpool.Pool) *PostgresInventoryRepository {
	return &PostgresInventoryRepository{db: db}
}

// Increase incrementa o estoque com UPDATE atômico (stock = stock + n), sem
// read-modify-write na aplicação, e registra o movimento
func (r *PostgresInventoryRepository) Increase(ctx context.Context, tx database.Tx, restock Restock) error {
	if err := restock.Validate(); err != nil {
		return err
	}

	pgTx, err := database.PgxTx(tx)
	if err != nil {
		return err
	}

	productID := restock.ProductID
	if restock.MeasurementID != nil {
		productID, err = increaseMeasurement(ctx, pgTx, *restock.MeasurementID, restock.Quantity)
		if err != nil {
			return err
		}
		if err := syncProductStock(ctx, pgTx, productID); err != nil {
			return err
		}
	} else {
		if err := increaseProduct(ctx, pgTx, productID, restock.Quantity); err != nil {
			return err
		}
	}

	_, err = pgTx.Exec(ctx, `
		INSERT INTO inventory_movements (id, product_id, measurement_id, order_id, change_quantity, movement_type, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, uuid.New(), productID, restock.MeasurementID, restock.OrderID, restock.Quantity, MovementTypeIncreased, restock.Reason)
	if err != nil {
		return fmt.Errorf("failed to insert movement record: %w", err)
	}

	return nil
}

func increaseProduct(ctx context.Context, tx pgx.Tx, productID int64, quantity int) error {
	tag, err := tx.Exec(ctx, `
		UPDATE products
		SET stock_quantity = stock_quantity + $1,
		    updated_at = NOW()
		WHERE id = $2
	`, quantity, productID)
	if err != nil {
		return fmt.Errorf("failed to increase product stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("product %d: %w", productID, ErrProductNotFound)
	}
	return nil
}

func increaseMeasurement(ctx context.Context, tx pgx.Tx, measurementID int64, quantity int) (int64, error) {
	var productID int64
	err := tx.QueryRow(ctx, `
		UPDATE product_measurements
		SET stock_quantity = stock_quantity + $1,
		    updated_at = NOW()
		WHERE id = $2
		RETURNING product_id
	`, quantity, measurementID).Scan(&productID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("measurement %d: %w", measurementID, ErrMeasurementNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to increase measurement stock: %w", err)
	}
	return productID, nil
}

// syncProductStock mantém o estoque do produto igual à soma das variações
func syncProductStock(ctx context.Context, tx pgx.Tx, productID int64) error {
	_, err := tx.Exec(ctx, `
		UPDATE products
		SET stock_quantity = (
		        SELECT COALESCE(SUM(stock_quantity), 0)
		        FROM product_measurements
		        WHERE product_id = $1
		    ),
		    updated_at = NOW()
		WHERE id = $1
	`, productID)
	if err != nil {
		return fmt.Errorf("failed to sync product stock: %w", err)
	}
	return nil
}

// GetProduct busca o estoque de um produto
func (r *PostgresInventoryRepository) GetProduct(ctx context.Context, productID int64) (*Product, error) {
	var product Product
	err := r.db.QueryRow(ctx, `
		SELECT id, name, has_measurements, stock_quantity, updated_at
		FROM products
		WHERE id = $1
	`, productID).Scan(&product.ID, &product.Name, &product.HasMeasurements, &product.StockQuantity, &product.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// GetMeasurement busca o estoque de uma variação
func (r *PostgresInventoryRepository) GetMeasurement(ctx context.Context, measurementID int64) (*ProductMeasurement, error) {
	var m ProductMeasurement
	err := r.db.QueryRow(ctx, `
		SELECT id, product_id, label, stock_quantity, updated_at
		FROM product_measurements
		WHERE id = $1
	`, measurementID).Scan(&m.ID, &m.ProductID, &m.Label, &m.StockQuantity, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrMeasurementNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}
