package expiration

import (
	"time"

	"github.com/matheusmosca/order-lifecycle/services/inventory"
	"github.com/matheusmosca/order-lifecycle/services/orders"
)

// Options parametriza uma varredura
type Options struct {
	// Timeout é a idade mínima de um pedido pendente para ser expirado
	Timeout time.Duration
	// DryRun executa a varredura completa sem gravar nada
	DryRun bool
}

// Summary é o resultado agregado de uma varredura
type Summary struct {
	Cutoff        time.Time `json:"cutoff"`
	Scanned       int       `json:"scanned"`
	Expired       int       `json:"expired"`
	Skipped       int       `json:"skipped"`
	Failed        int       `json:"failed"`
	PublishFailed int       `json:"publish_failed"`
	DryRun        bool      `json:"dry_run"`
	Planned       []Plan    `json:"planned,omitempty"`
}

// Succeeded conta pedidos efetivamente expirados (ou planejados, em dry-run)
func (s Summary) Succeeded() int {
	if s.DryRun {
		return len(s.Planned)
	}
	return s.Expired
}

// Result descreve o que aconteceu com um único pedido
type Result struct {
	Order     *orders.Order
	Expired   bool
	Restocked int
	// PublishErr não desfaz a expiração; apenas é contabilizado
	PublishErr error
}

// Plan é o que seria feito com um pedido em dry-run
type Plan struct {
	OrderID     int64            `json:"order_id"`
	OrderNumber string           `json:"order_number"`
	CreatedAt   time.Time        `json:"created_at"`
	Restocks    []PlannedRestock `json:"restocks"`
	Coupon      *PlannedCoupon   `json:"coupon,omitempty"`
}

type PlannedRestock struct {
	inventory.Restock
	StockBefore int  `json:"stock_before"`
	StockAfter  int  `json:"stock_after"`
	Missing     bool `json:"missing"`
}

type PlannedCoupon struct {
	CouponID        int64 `json:"coupon_id"`
	UsedCountBefore int   `json:"used_count_before"`
	UsedCountAfter  int   `json:"used_count_after"`
	Missing         bool  `json:"missing"`
}
