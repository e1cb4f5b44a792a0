package orders

import (
	"fmt"
	"time"
)

// Status representa os possíveis status de um pedido
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
	StatusExpired    Status = "expired"
)

// IsTerminal indica se nenhuma transição é permitida a partir do status
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusRefunded, StatusExpired:
		return true
	}
	return false
}

func (s Status) String() string {
	return string(s)
}

// ParseStatus valida um status recebido de fora do domínio
func ParseStatus(value string) (Status, error) {
	s := Status(value)
	switch s {
	case StatusPending, StatusProcessing, StatusShipped, StatusDelivered,
		StatusCompleted, StatusCancelled, StatusRefunded, StatusExpired:
		return s, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, value)
}

// PaymentStatus representa os possíveis status de pagamento
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// Order representa um pedido; valores monetários em unidades mínimas (kobo)
type Order struct {
	ID            int64         `json:"id" db:"id"`
	OrderNumber   string        `json:"order_number" db:"order_number"`
	UserID        *int64        `json:"user_id" db:"user_id"`
	CouponID      *int64        `json:"coupon_id" db:"coupon_id"`
	Status        Status        `json:"status" db:"status"`
	PaymentStatus PaymentStatus `json:"payment_status" db:"payment_status"`

	Subtotal    int64 `json:"subtotal" db:"subtotal"`
	Discount    int64 `json:"discount" db:"discount"`
	Tax         int64 `json:"tax" db:"tax"`
	ShippingFee int64 `json:"shipping_fee" db:"shipping_fee"`
	GrandTotal  int64 `json:"grand_total" db:"grand_total"`

	Items []OrderItem `json:"items"`

	ExpiredAt            *time.Time `json:"expired_at" db:"expired_at"`
	ExpirationNotifiedAt *time.Time `json:"expiration_notified_at" db:"expiration_notified_at"`
	CreatedAt            time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at" db:"updated_at"`
}

// OrderItem é uma linha imutável do pedido
type OrderItem struct {
	ID            int64  `json:"id" db:"id"`
	OrderID       int64  `json:"order_id" db:"order_id"`
	ProductID     int64  `json:"product_id" db:"product_id"`
	MeasurementID *int64 `json:"measurement_id" db:"measurement_id"`
	Quantity      int    `json:"quantity" db:"quantity"`
	UnitPrice     int64  `json:"unit_price" db:"unit_price"`
}

// IsExpirable é o predicado de elegibilidade da expiração: pendente, não pago,
// criado antes do corte e ainda sem expired_at
func (o Order) IsExpirable(cutoff time.Time) bool {
	return o.Status == StatusPending &&
		o.PaymentStatus == PaymentPending &&
		o.ExpiredAt == nil &&
		o.CreatedAt.Before(cutoff)
}

// TotalQuantity soma as quantidades de todos os itens
func (o Order) TotalQuantity() int {
	total := 0
	for _, item := range o.Items {
		total += item.Quantity
	}
	return total
}
