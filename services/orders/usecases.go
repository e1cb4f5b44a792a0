package orders

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/matheusmosca/order-lifecycle/pkg/events"
)

// Expirer expira um pedido imediatamente, devolvendo estoque e cupom.
// A implementação fica no pacote de expiração
type Expirer interface {
	ExpireNow(ctx context.Context, orderID int64) (*Order, error)
}

// OrderUseCase contém a lógica de mudança de status feita por administradores
type OrderUseCase struct {
	repository Repository
	expirer    Expirer
	publisher  events.Publisher
	tracer     trace.Tracer
	now        func() time.Time
}

// NewOrderUseCase cria uma nova instância de OrderUseCase
func NewOrderUseCase(repository Repository, expirer Expirer, publisher events.Publisher, tracer trace.Tracer) *OrderUseCase {
	return &OrderUseCase{
		repository: repository,
		expirer:    expirer,
		publisher:  publisher,
		tracer:     tracer,
		now:        time.Now,
	}
}

// UpdateStatus aplica uma transição administrativa. Toda mudança passa pela
// tabela de transições; estados terminais nunca são alterados
func (uc *OrderUseCase) UpdateStatus(ctx context.Context, orderID int64, target Status) (*Order, error) {
	ctx, span := uc.tracer.Start(ctx, "update_order_status")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("order_id", orderID),
		attribute.String("target_status", target.String()),
	)

	order, err := uc.updateStatus(ctx, orderID, target)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Printf("❌ [UPDATE STATUS] OrderID=%d | Target=%s | Error=%v", orderID, target, err)
		return nil, err
	}
	return order, nil
}

func (uc *OrderUseCase) updateStatus(ctx context.Context, orderID int64, target Status) (*Order, error) {
	// expirar também devolve estoque e cupom
	if target == StatusExpired {
		return uc.expirer.ExpireNow(ctx, orderID)
	}

	tx, err := uc.repository.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := uc.repository.GetOrderForUpdate(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}

	updated, err := Transition(*current, target, uc.now().UTC())
	if err != nil {
		return nil, err
	}

	if err := uc.repository.SaveStatus(ctx, tx, &updated); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit status update: %w", err)
	}

	log.Printf("✅ [UPDATE STATUS] OrderID=%d | %s -> %s | Payment %s -> %s",
		orderID, current.Status, updated.Status, current.PaymentStatus, updated.PaymentStatus)

	evt := events.OrderStatusChanged{
		ID:            events.NewID(),
		OrderID:       updated.ID,
		OrderNumber:   updated.OrderNumber,
		UserID:        updated.UserID,
		From:          current.Status.String(),
		To:            updated.Status.String(),
		PaymentStatus: string(updated.PaymentStatus),
		OccurredAt:    updated.UpdatedAt,
	}
	if err := uc.publisher.Publish(ctx, evt); err != nil {
		log.Printf("❌ [PUBLISH] OrderStatusChanged | OrderID=%d | Error=%v", orderID, err)
	}

	return &updated, nil
}
