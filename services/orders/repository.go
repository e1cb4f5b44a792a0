package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/matheusmosca/order-lifecycle/pkg/database"
)

var ErrOrderNotFound = errors.New("order not found")

// Repository define a interface para operações de banco de dados de pedidos
type Repository interface {
	database.TxBeginner

	// GetOrder busca um pedido e seus itens sem lock
	GetOrder(ctx context.Context, orderID int64) (*Order, error)

	// GetOrderForUpdate busca o pedido com LOCK PESSIMISTA (SELECT FOR UPDATE)
	GetOrderForUpdate(ctx context.Context, tx database.Tx, orderID int64) (*Order, error)

	// ListExpirable lista pedidos elegíveis para expiração em ordem de id,
	// a partir de afterID (paginação por chave). Itens não são carregados
	ListExpirable(ctx context.Context, cutoff time.Time, afterID int64, limit int) ([]Order, error)

	// SaveStatus persiste status, status de pagamento e expired_at
	SaveStatus(ctx context.Context, tx database.Tx, order *Order) error

	// MarkExpirationNotified grava o marcador de idempotência da notificação.
	// Retorna false se o marcador já existia
	MarkExpirationNotified(ctx context.Context, orderID int64, at time.Time) (bool, error)
}

// PostgresOrderRepository implementa Repository usando PostgreSQL
type PostgresOrderRepository struct {
	db *pgxpool.Pool
	*database.Postgres
}

// NewOrderRepository cria uma nova instância de PostgresOrderRepository
func NewOrderRepository(db *pgxpool.Pool) *PostgresOrderRepository {
	return &PostgresOrderRepository{
		db:       db,
		Postgres: database.NewPostgres(db),
	}
}

const orderColumns = `
	id, order_number, user_id, coupon_id, status, payment_status,
	subtotal, discount, tax, shipping_fee, grand_total,
	expired_at, expiration_notified_at, created_at, updated_at`

func scanOrder(row pgx.Row) (*Order, error) {
	var order Order
	err := row.Scan(
		&order.ID,
		&order.OrderNumber,
		&order.UserID,
		&order.CouponID,
		&order.Status,
		&order.PaymentStatus,
		&order.Subtotal,
		&order.Discount,
		&order.Tax,
		&order.ShippingFee,
		&order.GrandTotal,
		&order.ExpiredAt,
		&order.ExpirationNotifiedAt,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadItems(ctx context.Context, q querier, orderID int64) ([]OrderItem, error) {
	rows, err := q.Query(ctx, `
		SELECT id, order_id, product_id, measurement_id, quantity, unit_price
		FROM order_items
		WHERE order_id = $1
		ORDER BY id
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order items: %w", err)
	}
	defer rows.Close()

	var items []OrderItem
	for rows.Next() {
		var item OrderItem
		if err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.MeasurementID,
			&item.Quantity,
			&item.UnitPrice,
		); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// GetOrder busca um pedido pelo ID
func (r *PostgresOrderRepository) GetOrder(ctx context.Context, orderID int64) (*Order, error) {
	order, err := scanOrder(r.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID))
	if err != nil {
		return nil, err
	}

	order.Items, err = loadItems(ctx, r.db, orderID)
	if err != nil {
		return nil, err
	}
	return order, nil
}

// GetOrderForUpdate obtém o pedido com lock pessimista (FOR UPDATE)
func (r *PostgresOrderRepository) GetOrderForUpdate(ctx context.Context, tx database.Tx, orderID int64) (*Order, error) {
	pgTx, err := database.PgxTx(tx)
	if err != nil {
		return nil, err
	}

	order, err := scanOrder(pgTx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, orderID))
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get order with lock: %w", err)
	}

	order.Items, err = loadItems(ctx, pgTx, orderID)
	if err != nil {
		return nil, err
	}
	return order, nil
}

// ListExpirable lista pedidos pendentes, não pagos, criados antes do corte
func (r *PostgresOrderRepository) ListExpirable(ctx context.Context, cutoff time.Time, afterID int64, limit int) ([]Order, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE status = $1
		  AND payment_status = $2
		  AND expired_at IS NULL
		  AND created_at < $3
		  AND id > $4
		ORDER BY id
		LIMIT $5
	`, StatusPending, PaymentPending, cutoff, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list expirable orders: %w", err)
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		out = append(out, *order)
	}
	return out, rows.Err()
}

// SaveStatus atualiza o status de um pedido dentro da transação
func (r *PostgresOrderRepository) SaveStatus(ctx context.Context, tx database.Tx, order *Order) error {
	pgTx, err := database.PgxTx(tx)
	if err != nil {
		return err
	}

	tag, err := pgTx.Exec(ctx, `
		UPDATE orders
		SET status = $1,
		    payment_status = $2,
		    expired_at = $3,
		    updated_at = $4
		WHERE id = $5
	`, order.Status, order.PaymentStatus, order.ExpiredAt, order.UpdatedAt, order.ID)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// MarkExpirationNotified só grava o marcador em pedidos expirados ainda não notificados
func (r *PostgresOrderRepository) MarkExpirationNotified(ctx context.Context, orderID int64, at time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE orders
		SET expiration_notified_at = $1,
		    updated_at = NOW()
		WHERE id = $2
		  AND expired_at IS NOT NULL
		  AND expiration_notified_at IS NULL
	`, at, orderID)
	if err != nil {
		return false, fmt.Errorf("failed to mark expiration notified: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
