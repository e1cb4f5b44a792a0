package notifications

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/matheusmosca/order-lifecycle/pkg/events"
	"github.com/matheusmosca/order-lifecycle/services/orders"
	"github.com/matheusmosca/order-lifecycle/services/users"
)

// OrderStore é o subconjunto do repositório de pedidos usado pelas notificações
type OrderStore interface {
	GetOrder(ctx context.Context, orderID int64) (*orders.Order, error)
	MarkExpirationNotified(ctx context.Context, orderID int64, at time.Time) (bool, error)
}

// ExpirationNotifier avisa o cliente que o pedido expirou, no máximo uma vez
// com sucesso por pedido
type ExpirationNotifier struct {
	orders OrderStore
	users  users.Repository
	sender Sender
	now    func() time.Time
}

func NewExpirationNotifier(orderStore OrderStore, userRepo users.Repository, sender Sender) *ExpirationNotifier {
	return &ExpirationNotifier{
		orders: orderStore,
		users:  userRepo,
		sender: sender,
		now:    time.Now,
	}
}

func (n *ExpirationNotifier) Name() string { return "expiration-notification" }

func (n *ExpirationNotifier) Handle(ctx context.Context, evt events.Event) error {
	expired, ok := evt.(events.OrderExpired)
	if !ok {
		return nil
	}

	// 1. Idempotência: o marcador só existe após um envio confirmado
	order, err := n.orders.GetOrder(ctx, expired.OrderID)
	if err != nil {
		return err
	}
	if order.ExpirationNotifiedAt != nil {
		log.Printf("ℹ️ [IDEMPOTENCY] expiration already notified for OrderID=%d", order.ID)
		return nil
	}

	// 2. Resolve o cliente
	if order.UserID == nil {
		log.Printf("⚠️  [NOTIFY EXPIRED] OrderID=%d has no user, skipping", order.ID)
		return nil
	}
	user, err := n.users.GetUser(ctx, *order.UserID)
	if errors.Is(err, users.ErrUserNotFound) {
		log.Printf("⚠️  [NOTIFY EXPIRED] OrderID=%d user %d not found, skipping", order.ID, *order.UserID)
		return nil
	}
	if err != nil {
		return err
	}

	expiredAt := expired.ExpiredAt
	if order.ExpiredAt != nil {
		expiredAt = *order.ExpiredAt
	}
	msg, err := render(expiredSubject, expiredBody, expiredData{
		Name:        user.Name,
		OrderNumber: order.OrderNumber,
		GrandTotal:  order.GrandTotal,
		ItemCount:   expired.ItemCount,
		ExpiredAt:   expiredAt,
	})
	if err != nil {
		return err
	}

	// 3. Envia; em caso de falha o marcador não é gravado e uma nova entrega pode tentar de novo
	if err := n.sender.Send(ctx, *user, msg); err != nil {
		log.Printf("❌ [NOTIFY EXPIRED] OrderID=%d | UserID=%d | Error=%v", order.ID, user.ID, err)
		return err
	}

	// 4. Grava o marcador
	marked, err := n.orders.MarkExpirationNotified(ctx, order.ID, n.now().UTC())
	if err != nil {
		return err
	}
	if !marked {
		log.Printf("ℹ️ [IDEMPOTENCY] marker already present for OrderID=%d", order.ID)
		return nil
	}

	log.Printf("✅ [NOTIFY EXPIRED] OrderID=%d | UserID=%d", order.ID, user.ID)
	return nil
}

// StatusNotifier avisa o cliente sobre mudanças de status feitas por administradores
type StatusNotifier struct {
	users  users.Repository
	sender Sender
}

func NewStatusNotifier(userRepo users.Repository, sender Sender) *StatusNotifier {
	return &StatusNotifier{users: userRepo, sender: sender}
}

func (n *StatusNotifier) Name() string { return "status-notification" }

func (n *StatusNotifier) Handle(ctx context.Context, evt events.Event) error {
	changed, ok := evt.(events.OrderStatusChanged)
	if !ok {
		return nil
	}
	if changed.UserID == nil {
		return nil
	}

	user, err := n.users.GetUser(ctx, *changed.UserID)
	if errors.Is(err, users.ErrUserNotFound) {
		log.Printf("⚠️  [NOTIFY STATUS] OrderID=%d user %d not found, skipping", changed.OrderID, *changed.UserID)
		return nil
	}
	if err != nil {
		return err
	}

	msg, err := render(statusSubject, statusBody, statusData{
		Name:          user.Name,
		OrderNumber:   changed.OrderNumber,
		From:          changed.From,
		Status:        changed.To,
		PaymentStatus: changed.PaymentStatus,
	})
	if err != nil {
		return err
	}

	if err := n.sender.Send(ctx, *user, msg); err != nil {
		log.Printf("❌ [NOTIFY STATUS] OrderID=%d | UserID=%d | Error=%v", changed.OrderID, user.ID, err)
		return err
	}

	log.Printf("✅ [NOTIFY STATUS] OrderID=%d | %s -> %s", changed.OrderID, changed.From, changed.To)
	return nil
}
