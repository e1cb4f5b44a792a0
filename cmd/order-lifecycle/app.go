package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"

	"github.com/matheusmosca/order-lifecycle/pkg/config"
	"github.com/matheusmosca/order-lifecycle/pkg/database"
	"github.com/matheusmosca/order-lifecycle/pkg/events"
	"github.com/matheusmosca/order-lifecycle/pkg/lock"
	"github.com/matheusmosca/order-lifecycle/pkg/telemetry"
	"github.com/matheusmosca/order-lifecycle/services/analytics"
	"github.com/matheusmosca/order-lifecycle/services/coupons"
	"github.com/matheusmosca/order-lifecycle/services/expiration"
	"github.com/matheusmosca/order-lifecycle/services/inventory"
	"github.com/matheusmosca/order-lifecycle/services/notifications"
	"github.com/matheusmosca/order-lifecycle/services/orders"
	"github.com/matheusmosca/order-lifecycle/services/users"
)

const handlerTimeout = 30 * time.Second

// app concentra as dependências compartilhadas pelos comandos
type app struct {
	cfg  *config.Config
	pool *pgxpool.Pool

	orders    *orders.PostgresOrderRepository
	inventory *inventory.PostgresInventoryRepository
	coupons   *coupons.PostgresCouponRepository
	users     *users.PostgresUserRepository

	kafka     *events.KafkaClient
	publisher events.Publisher
	// bus só existe sem Kafka: os handlers rodam no próprio processo
	bus *events.LocalBus

	expirer *expiration.Expirer
	scanner *expiration.Scanner

	closers []func()
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, kafka: events.NewKafkaClient(cfg.Kafka.Brokers)}

	providers, err := telemetry.Init(ctx, cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	a.onClose(func() {
		if err := providers.Shutdown(context.Background()); err != nil {
			log.Printf("Error shutting down telemetry: %v", err)
		}
	})

	a.pool, err = database.Connect(ctx, cfg.Database)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	a.onClose(a.pool.Close)

	a.orders = orders.NewOrderRepository(a.pool)
	a.inventory = inventory.NewInventoryRepository(a.pool)
	a.coupons = coupons.NewCouponRepository(a.pool)
	a.users = users.NewUserRepository(a.pool)

	if a.kafka.Enabled() {
		kp := events.NewKafkaPublisher(a.kafka.NewWriter(cfg.Kafka.Topic))
		a.publisher = kp
		a.onClose(func() { _ = kp.Close() })
		log.Printf("✅ Publishing events to Kafka topic %s", cfg.Kafka.Topic)
	} else {
		handlers, err := a.eventHandlers(ctx)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.bus = events.NewLocalBus(handlerTimeout)
		a.bus.Subscribe(handlers...)
		a.publisher = a.bus
		// espera os handlers em andamento antes de fechar o pool
		a.onClose(a.bus.Wait)
		log.Printf("ℹ️ KAFKA_BROKERS not set, dispatching events in-process")
	}

	a.expirer, err = expiration.NewExpirer(
		a.orders, a.inventory, a.coupons, a.publisher,
		otel.Tracer(cfg.ServiceName), otel.Meter(cfg.ServiceName),
	)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.scanner = expiration.NewScanner(
		a.expirer, a.orders, a.inventory, a.coupons,
		otel.Tracer(cfg.ServiceName), cfg.Scan.BatchSize, cfg.Scan.Concurrency,
	)

	return a, nil
}

// eventHandlers monta os handlers de efeitos colaterais
func (a *app) eventHandlers(ctx context.Context) ([]events.Handler, error) {
	analyticsDB, err := database.OpenSQLX(ctx, a.cfg.AnalyticsDatabase)
	if err != nil {
		return nil, err
	}
	a.onClose(func() { _ = analyticsDB.Close() })

	sender := notifications.NewDispatcher(
		notifications.NewBrevoMailer(a.cfg.Brevo),
		notifications.NewTermiiSMS(a.cfg.Termii),
	)

	return []events.Handler{
		notifications.NewExpirationNotifier(a.orders, a.users, sender),
		notifications.NewStatusNotifier(a.users, sender),
		analytics.NewExpirationRecorder(analytics.NewStore(analyticsDB)),
	}, nil
}

func (a *app) locker(ctx context.Context) lock.Locker {
	if !a.cfg.Redis.Enabled() {
		log.Printf("ℹ️ REDIS_ADDR not set, overlap locks are process-local")
		return lock.NewLocalLocker()
	}

	rl := lock.NewRedisLocker(a.cfg.Redis.Addr, a.cfg.Redis.Password, a.cfg.Redis.DB)
	if err := rl.Ping(ctx); err != nil {
		log.Printf("⚠️  Redis unavailable (%v), overlap locks are process-local", err)
		_ = rl.Close()
		return lock.NewLocalLocker()
	}
	a.onClose(func() { _ = rl.Close() })
	return rl
}

func (a *app) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

// Close encerra os recursos na ordem inversa de criação
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
