package analytics

import (
	"context"
	"log"

	"github.com/matheusmosca/order-lifecycle/pkg/events"
)

type Recorder interface {
	RecordExpiration(ctx context.Context, rec Expiration) (bool, error)
}

// ExpirationRecorder agrega pedidos expirados. Falhas aqui nunca afetam o
// pedido nem a notificação
type ExpirationRecorder struct {
	store Recorder
}

func NewExpirationRecorder(store Recorder) *ExpirationRecorder {
	return &ExpirationRecorder{store: store}
}

func (h *ExpirationRecorder) Name() string { return "expiration-analytics" }

func (h *ExpirationRecorder) Handle(ctx context.Context, evt events.Event) error {
	expired, ok := evt.(events.OrderExpired)
	if !ok {
		return nil
	}

	applied, err := h.store.RecordExpiration(ctx, Expiration{
		EventID: expired.ID,
		Day:     expired.ExpiredAt.UTC(),
		UserID:  expired.UserID,
		Value:   expired.GrandTotal,
	})
	if err != nil {
		log.Printf("❌ [ANALYTICS] OrderID=%d | Event=%s | Error=%v", expired.OrderID, expired.ID, err)
		return err
	}
	if !applied {
		log.Printf("ℹ️ [IDEMPOTENCY] analytics already recorded for Event=%s", expired.ID)
		return nil
	}

	log.Printf("✅ [ANALYTICS] OrderID=%d | Value=%d", expired.OrderID, expired.GrandTotal)
	return nil
}
