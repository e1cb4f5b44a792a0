package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

const (
	TypeOrderExpired       = "order.expired"
	TypeOrderStatusChanged = "order.status_changed"
)

var ErrUnknownEventType = errors.New("unknown event type")

// Event é uma mensagem imutável publicada depois do commit
type Event interface {
	EventID() string
	EventType() string
	// Key é a chave de particionamento (id do pedido)
	Key() string
}

// Publisher publica eventos; a entrega é at-least-once
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// Handler reage a eventos. Deve ser idempotente
type Handler interface {
	Name() string
	Handle(ctx context.Context, evt Event) error
}

// OrderExpired carrega um snapshot do pedido no momento da expiração
type OrderExpired struct {
	ID          string    `json:"event_id"`
	OrderID     int64     `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	UserID      *int64    `json:"user_id,omitempty"`
	CouponID    *int64    `json:"coupon_id,omitempty"`
	GrandTotal  int64     `json:"grand_total"`
	ItemCount   int       `json:"item_count"`
	ExpiredAt   time.Time `json:"expired_at"`
	OccurredAt  time.Time `json:"occurred_at"`
}

func (e OrderExpired) EventID() string   { return e.ID }
func (e OrderExpired) EventType() string { return TypeOrderExpired }
func (e OrderExpired) Key() string       { return strconv.FormatInt(e.OrderID, 10) }

// OrderStatusChanged é publicado quando um administrador muda o status
type OrderStatusChanged struct {
	ID            string    `json:"event_id"`
	OrderID       int64     `json:"order_id"`
	OrderNumber   string    `json:"order_number"`
	UserID        *int64    `json:"user_id,omitempty"`
	From          string    `json:"from"`
	To            string    `json:"to"`
	PaymentStatus string    `json:"payment_status"`
	OccurredAt    time.Time `json:"occurred_at"`
}

func (e OrderStatusChanged) EventID() string   { return e.ID }
func (e OrderStatusChanged) EventType() string { return TypeOrderStatusChanged }
func (e OrderStatusChanged) Key() string       { return strconv.FormatInt(e.OrderID, 10) }

// NewID gera o identificador usado para deduplicar entregas repetidas
func NewID() string {
	return uuid.NewString()
}

// envelope é o formato no fio: o tipo decide como Data é decodificado
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Encode serializa um evento com seu tipo
func Encode(evt Event) ([]byte, error) {
	data, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", evt.EventType(), err)
	}
	return json.Marshal(envelope{Type: evt.EventType(), Data: data})
}

// Decode reconstrói o evento concreto a partir do envelope
func Decode(payload []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("failed to decode envelope: %w", err)
	}

	switch env.Type {
	case TypeOrderExpired:
		var evt OrderExpired
		if err := json.Unmarshal(env.Data, &evt); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", env.Type, err)
		}
		return evt, nil
	case TypeOrderStatusChanged:
		var evt OrderStatusChanged
		if err := json.Unmarshal(env.Data, &evt); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", env.Type, err)
		}
		return evt, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, env.Type)
}
