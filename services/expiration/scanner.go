package expiration

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/matheusmosca/order-lifecycle/services/coupons"
	"github.com/matheusmosca/order-lifecycle/services/inventory"
	"github.com/matheusmosca/order-lifecycle/services/orders"
)

var ErrInvalidTimeout = errors.New("expiration timeout must be positive")

// Scanner encontra pedidos elegíveis e expira cada um de forma independente
type Scanner struct {
	expirer     *Expirer
	orders      orders.Repository
	inventory   inventory.Repository
	coupons     coupons.Repository
	tracer      trace.Tracer
	batchSize   int
	concurrency int
}

// NewScanner cria uma nova instância de Scanner. concurrency limita quantos
// pedidos são processados em paralelo dentro de um lote
func NewScanner(
	expirer *Expirer,
	ordersRepo orders.Repository,
	inventoryRepo inventory.Repository,
	couponsRepo coupons.Repository,
	tracer trace.Tracer,
	batchSize, concurrency int,
) *Scanner {
	if batchSize <= 0 {
		batchSize = 100
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Scanner{
		expirer:     expirer,
		orders:      ordersRepo,
		inventory:   inventoryRepo,
		coupons:     couponsRepo,
		tracer:      tracer,
		batchSize:   batchSize,
		concurrency: concurrency,
	}
}

// Run varre todos os pedidos elegíveis. Falhas de um pedido são contadas e a
// varredura continua; só retorna erro se não conseguir ler os candidatos
func (s *Scanner) Run(ctx context.Context, opts Options) (Summary, error) {
	if opts.Timeout <= 0 {
		return Summary{}, ErrInvalidTimeout
	}

	ctx, span := s.tracer.Start(ctx, "expiration_scan")
	defer span.End()

	cutoff := s.expirer.Now().Add(-opts.Timeout)
	summary := Summary{Cutoff: cutoff, DryRun: opts.DryRun}
	span.SetAttributes(
		attribute.String("cutoff", cutoff.Format(time.RFC3339)),
		attribute.Bool("dry_run", opts.DryRun),
	)

	log.Printf("🚀 [EXPIRATION SCAN] Cutoff=%s | DryRun=%t", cutoff.Format(time.RFC3339), opts.DryRun)

	var afterID int64
	for {
		batch, err := s.orders.ListExpirable(ctx, cutoff, afterID, s.batchSize)
		if err != nil {
			return summary, fmt.Errorf("failed to read expirable orders: %w", err)
		}
		if len(batch) == 0 {
			break
		}
		afterID = batch[len(batch)-1].ID
		summary.Scanned += len(batch)

		if opts.DryRun {
			for _, candidate := range batch {
				summary.Planned = append(summary.Planned, s.plan(ctx, candidate))
			}
		} else {
			s.expireBatch(ctx, batch, cutoff, &summary)
		}

		if len(batch) < s.batchSize {
			break
		}
	}

	span.SetAttributes(
		attribute.Int("scanned", summary.Scanned),
		attribute.Int("expired", summary.Expired),
		attribute.Int("failed", summary.Failed),
	)
	log.Printf("✅ [EXPIRATION SCAN] Scanned=%d | Expired=%d | Skipped=%d | Failed=%d | PublishFailed=%d | Planned=%d",
		summary.Scanned, summary.Expired, summary.Skipped, summary.Failed, summary.PublishFailed, len(summary.Planned))
	return summary, nil
}

func (s *Scanner) expireBatch(ctx context.Context, batch []orders.Order, cutoff time.Time, summary *Summary) {
	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(s.concurrency)

	for _, candidate := range batch {
		orderID := candidate.ID
		g.Go(func() error {
			result, err := s.expirer.ExpireOrder(ctx, orderID, cutoff)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, orders.ErrOrderNotFound):
				summary.Skipped++
			case err != nil:
				log.Printf("❌ [EXPIRE ORDER] FAILED | OrderID=%d | Error=%v", orderID, err)
				s.expirer.metrics.failed.Add(ctx, 1)
				summary.Failed++
			case !result.Expired:
				summary.Skipped++
			default:
				summary.Expired++
				if result.PublishErr != nil {
					summary.PublishFailed++
				}
			}
			// falhas ficam no resumo; o grupo nunca é interrompido
			return nil
		})
	}
	_ = g.Wait()
}

// plan monta o relatório de dry-run lendo o estado atual sem travar nada
func (s *Scanner) plan(ctx context.Context, candidate orders.Order) Plan {
	p := Plan{
		OrderID:     candidate.ID,
		OrderNumber: candidate.OrderNumber,
		CreatedAt:   candidate.CreatedAt,
	}

	order, err := s.orders.GetOrder(ctx, candidate.ID)
	if err != nil {
		log.Printf("⚠️  [DRY RUN] OrderID=%d could not load items: %v", candidate.ID, err)
		order = &candidate
	}

	for _, item := range order.Items {
		pr := PlannedRestock{Restock: inventory.Restock{
			OrderID:       order.ID,
			ProductID:     item.ProductID,
			MeasurementID: item.MeasurementID,
			Quantity:      item.Quantity,
			Reason:        inventory.ReasonOrderExpired,
		}}

		var current int
		var lookupErr error
		if item.MeasurementID != nil {
			var m *inventory.ProductMeasurement
			m, lookupErr = s.inventory.GetMeasurement(ctx, *item.MeasurementID)
			if lookupErr == nil {
				current = m.StockQuantity
			}
		} else {
			var product *inventory.Product
			product, lookupErr = s.inventory.GetProduct(ctx, item.ProductID)
			if lookupErr == nil {
				current = product.StockQuantity
			}
		}

		if lookupErr != nil {
			pr.Missing = true
		} else {
			pr.StockBefore = current
			pr.StockAfter = current + item.Quantity
		}
		p.Restocks = append(p.Restocks, pr)
	}

	if order.CouponID != nil {
		pc := &PlannedCoupon{CouponID: *order.CouponID}
		coupon, err := s.coupons.GetCoupon(ctx, *order.CouponID)
		if err != nil {
			pc.Missing = true
		} else {
			pc.UsedCountBefore = coupon.UsedCount
			pc.UsedCountAfter = coupons.ReleasedCount(coupon.UsedCount)
		}
		p.Coupon = pc
	}

	log.Printf("ℹ️ [DRY RUN] would expire OrderID=%d | Number=%s | Items=%d", p.OrderID, p.OrderNumber, len(p.Restocks))
	return p
}
