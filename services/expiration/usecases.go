package expiration

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/matheusmosca/order-lifecycle/pkg/events"
	"github.com/matheusmosca/order-lifecycle/services/coupons"
	"github.com/matheusmosca/order-lifecycle/services/inventory"
	"github.com/matheusmosca/order-lifecycle/services/orders"
)

// Expirer executa a unidade de trabalho de expiração de um pedido
type Expirer struct {
	orders    orders.Repository
	inventory inventory.Repository
	coupons   coupons.Repository
	publisher events.Publisher
	tracer    trace.Tracer
	metrics   *expirationMetrics
	now       func() time.Time
}

type Option func(*Expirer)

// WithClock troca o relógio usado para expired_at e para o corte
func WithClock(now func() time.Time) Option {
	return func(e *Expirer) {
		e.now = now
	}
}

// NewExpirer cria uma nova instância de Expirer
func NewExpirer(
	ordersRepo orders.Repository,
	inventoryRepo inventory.Repository,
	couponsRepo coupons.Repository,
	publisher events.Publisher,
	tracer trace.Tracer,
	meter metric.Meter,
	opts ...Option,
) (*Expirer, error) {
	m, err := newExpirationMetrics(meter)
	if err != nil {
		return nil, err
	}

	e := &Expirer{
		orders:    ordersRepo,
		inventory: inventoryRepo,
		coupons:   couponsRepo,
		publisher: publisher,
		tracer:    tracer,
		metrics:   m,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Now retorna o horário atual segundo o relógio configurado
func (e *Expirer) Now() time.Time {
	return e.now().UTC()
}

// ExpireOrder expira um pedido dentro de uma única transação. Um pedido que
// deixou de ser elegível não é um erro: Result.Expired fica false.
// O evento OrderExpired só é publicado depois do commit
func (e *Expirer) ExpireOrder(ctx context.Context, orderID int64, cutoff time.Time) (Result, error) {
	ctx, span := e.tracer.Start(ctx, "expire_order")
	defer span.End()
	span.SetAttributes(attribute.Int64("order_id", orderID))

	result, err := e.expireInTx(ctx, orderID, cutoff)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return result, err
	}
	if !result.Expired {
		e.metrics.skipped.Add(ctx, 1)
		span.SetAttributes(attribute.Bool("skipped", true))
		return result, nil
	}

	e.metrics.expired.Add(ctx, 1)
	e.metrics.restockedUnits.Add(ctx, int64(result.Restocked))

	evt := newOrderExpiredEvent(*result.Order, e.Now())
	if err := e.publisher.Publish(ctx, evt); err != nil {
		log.Printf("❌ [PUBLISH] OrderExpired | OrderID=%d | Error=%v", orderID, err)
		e.metrics.publishFailed.Add(ctx, 1)
		span.RecordError(err)
		result.PublishErr = err
	}
	return result, nil
}

func (e *Expirer) expireInTx(ctx context.Context, orderID int64, cutoff time.Time) (Result, error) {
	// 1. Inicia a transação
	tx, err := e.orders.BeginTx(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// 2. Relê o pedido com LOCK PESSIMISTA; o último estado comitado vence
	order, err := e.orders.GetOrderForUpdate(ctx, tx, orderID)
	if err != nil {
		return Result{}, err
	}

	if !order.IsExpirable(cutoff) {
		log.Printf("ℹ️ [EXPIRE ORDER] OrderID=%d no longer eligible | Status=%s | Payment=%s",
			order.ID, order.Status, order.PaymentStatus)
		return Result{Order: order}, nil
	}

	// 3. Transição de estado antes de qualquer devolução de estoque
	expired, err := orders.Expire(*order, e.Now())
	if err != nil {
		log.Printf("ℹ️ [EXPIRE ORDER] OrderID=%d rejected: %v", order.ID, err)
		return Result{Order: order}, nil
	}

	// 4. Devolve o estoque de cada item
	restocked := 0
	for _, item := range expired.Items {
		err := e.inventory.Increase(ctx, tx, inventory.Restock{
			OrderID:       expired.ID,
			ProductID:     item.ProductID,
			MeasurementID: item.MeasurementID,
			Quantity:      item.Quantity,
			Reason:        inventory.ReasonOrderExpired,
		})
		if errors.Is(err, inventory.ErrMissingInventoryTarget) || errors.Is(err, inventory.ErrInvalidQuantity) {
			log.Printf("⚠️  [RESTOCK] skipping item | OrderID=%d | ItemID=%d | ProductID=%d | Error=%v",
				expired.ID, item.ID, item.ProductID, err)
			continue
		}
		if err != nil {
			return Result{}, fmt.Errorf("failed to restock item %d: %w", item.ID, err)
		}
		restocked += item.Quantity
	}

	// 5. Libera o uso do cupom
	if expired.CouponID != nil {
		err := e.coupons.ReleaseUsage(ctx, tx, *expired.CouponID)
		if errors.Is(err, coupons.ErrCouponNotFound) {
			log.Printf("⚠️  [COUPON] coupon missing | OrderID=%d | CouponID=%d", expired.ID, *expired.CouponID)
		} else if err != nil {
			return Result{}, err
		}
	}

	if err := e.orders.SaveStatus(ctx, tx, &expired); err != nil {
		return Result{}, err
	}

	// 6. Commit
	if err := tx.Commit(ctx); err != nil {
		return Result{}, fmt.Errorf("failed to commit expiration: %w", err)
	}

	log.Printf("✅ [EXPIRE ORDER] OrderID=%d | Number=%s | Restocked=%d", expired.ID, expired.OrderNumber, restocked)
	return Result{Order: &expired, Expired: true, Restocked: restocked}, nil
}

// ExpireNow expira um pedido por ação administrativa, sem idade mínima.
// Implementa orders.Expirer
func (e *Expirer) ExpireNow(ctx context.Context, orderID int64) (*orders.Order, error) {
	result, err := e.ExpireOrder(ctx, orderID, e.Now())
	if err != nil {
		return nil, err
	}
	if !result.Expired {
		return nil, &orders.TransitionError{
			OrderID: orderID,
			From:    result.Order.Status,
			To:      orders.StatusExpired,
			Reason:  orders.ErrNotExpirable,
		}
	}
	return result.Order, nil
}

func newOrderExpiredEvent(order orders.Order, occurredAt time.Time) events.OrderExpired {
	return events.OrderExpired{
		ID:          events.NewID(),
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		CouponID:    order.CouponID,
		GrandTotal:  order.GrandTotal,
		ItemCount:   order.TotalQuantity(),
		ExpiredAt:   *order.ExpiredAt,
		OccurredAt:  occurredAt,
	}
}

type expirationMetrics struct {
	expired        metric.Int64Counter
	skipped        metric.Int64Counter
	failed         metric.Int64Counter
	publishFailed  metric.Int64Counter
	restockedUnits metric.Int64Counter
}

func newExpirationMetrics(meter metric.Meter) (*expirationMetrics, error) {
	var (
		m   expirationMetrics
		err error
	)
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.expired, "orders_expired_total", "Orders moved to expired"},
		{&m.skipped, "orders_expiration_skipped_total", "Orders no longer eligible when re-checked"},
		{&m.failed, "orders_expiration_failed_total", "Orders whose expiration unit of work failed"},
		{&m.publishFailed, "orders_expired_publish_failed_total", "OrderExpired events that could not be published"},
		{&m.restockedUnits, "inventory_restocked_units_total", "Units returned to stock by expiration"},
	}
	for _, c := range counters {
		*c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, fmt.Errorf("failed to create counter %s: %w", c.name, err)
		}
	}
	return &m, nil
}
