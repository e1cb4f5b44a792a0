package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/matheusmosca/order-lifecycle/pkg/config"
	"github.com/matheusmosca/order-lifecycle/pkg/database"
	"github.com/matheusmosca/order-lifecycle/pkg/events"
	"github.com/matheusmosca/order-lifecycle/services/analytics"
	"github.com/matheusmosca/order-lifecycle/services/expiration"
	"github.com/matheusmosca/order-lifecycle/services/orders"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := &cobra.Command{
		Use:          "order-lifecycle",
		Short:        "order expiration and inventory reconciliation",
		SilenceUsage: true,
	}
	rootCmd.AddCommand(
		expireCommand(),
		scheduleCommand(),
		serveCommand(),
		consumeCommand(),
		migrateCommand(),
		statsCommand(),
	)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Printf("❌ %v", err)
		os.Exit(1)
	}
}

func loadApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return newApp(ctx, cfg)
}

func expireCommand() *cobra.Command {
	var (
		hours  float64
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "expire",
		Short: "expire pending unpaid orders older than --hours",
		RunE: func(cmd *cobra.Command, args []string) error {
			if hours <= 0 {
				return fmt.Errorf("--hours must be positive, got %v", hours)
			}

			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			summary, err := a.scanner.Run(cmd.Context(), expiration.Options{
				Timeout: expiration.HoursToDuration(hours),
				DryRun:  dryRun,
			})
			if err != nil {
				return err
			}
			return printSummary(cmd, summary)
		},
	}
	cmd.Flags().Float64Var(&hours, "hours", 24, "minimum age in hours of a pending order to expire")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be expired without writing anything")
	return cmd
}

func printSummary(cmd *cobra.Command, summary expiration.Summary) error {
	out := cmd.OutOrStdout()
	if summary.DryRun {
		fmt.Fprintf(out, "Dry run: %d order(s) would be expired (cutoff %s)\n", len(summary.Planned), summary.Cutoff.Format("2006-01-02 15:04:05"))
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(summary.Planned)
	}
	fmt.Fprintf(out, "Scanned: %d | Succeeded: %d | Skipped: %d | Failed: %d | Publish failed: %d\n",
		summary.Scanned, summary.Succeeded(), summary.Skipped, summary.Failed, summary.PublishFailed)
	return nil
}

func scheduleCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "run the configured expiration sweeps until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			scheduler := expiration.NewScheduler(a.scanner, a.cfg.Sweeps, a.locker(cmd.Context()))
			log.Printf("🚀 Scheduler started with %d sweep(s)", len(a.cfg.Sweeps))
			scheduler.Start(cmd.Context())
			log.Printf("↩️ Scheduler stopped")
			return nil
		},
	}
}

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "serve the operator HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			r := gin.Default()
			r.Use(otelgin.Middleware(a.cfg.ServiceName))

			r.GET("/health", func(c *gin.Context) {
				if err := a.pool.Ping(c.Request.Context()); err != nil {
					c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
					return
				}
				c.JSON(http.StatusOK, gin.H{"status": "healthy"})
			})

			useCase := orders.NewOrderUseCase(a.orders, a.expirer, a.publisher, otel.Tracer(a.cfg.ServiceName))
			r.PATCH("/api/orders/:id/status", orders.NewOrderHandler(useCase).UpdateStatus)
			r.POST("/api/expirations/scan", expiration.NewScanHandler(a.scanner).Scan)

			srv := &http.Server{Addr: ":" + a.cfg.Port, Handler: r}
			go func() {
				<-cmd.Context().Done()
				_ = srv.Shutdown(context.Background())
			}()

			log.Printf("🚀 %s listening on port %s", a.cfg.ServiceName, a.cfg.Port)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("failed to start server: %w", err)
			}
			return nil
		},
	}
}

func consumeCommand() *cobra.Command {
	var only string
	cmd := &cobra.Command{
		Use:   "consume",
		Short: "consume lifecycle events from Kafka, one consumer group per handler",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if !a.kafka.Enabled() {
				return errors.New("KAFKA_BROKERS is required to consume events")
			}

			handlers, err := a.eventHandlers(cmd.Context())
			if err != nil {
				return err
			}

			g, ctx := errgroup.WithContext(cmd.Context())
			started := 0
			for _, h := range handlers {
				if only != "" && h.Name() != only {
					continue
				}
				reader := a.kafka.NewReader(a.cfg.Kafka.Topic, a.cfg.ServiceName+"."+h.Name())
				consumer := events.NewKafkaConsumer(reader, h, handlerTimeout)
				log.Printf("🚀 [KAFKA] consuming %s as handler=%s", a.cfg.Kafka.Topic, h.Name())
				g.Go(func() error { return consumer.Run(ctx) })
				started++
			}
			if started == 0 {
				return fmt.Errorf("unknown handler %q", only)
			}
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&only, "handler", "", "run only the named handler (expiration-notification, status-notification, expiration-analytics)")
	return cmd
}

func migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate-up",
		Short: "apply the embedded schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			urls := []string{cfg.Database.URL()}
			if cfg.AnalyticsDatabase != cfg.Database.URL() {
				urls = append(urls, cfg.AnalyticsDatabase)
			}

			for _, url := range urls {
				changed, err := database.MigrateUp(url)
				if err != nil {
					return err
				}
				if !changed {
					fmt.Fprintln(cmd.OutOrStdout(), "No change in migration")
					continue
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Migration done")
			}
			return nil
		},
	}
}

func statsCommand() *cobra.Command {
	var (
		day string
		top int
	)
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "show expiration aggregates for a day and the top abandoning customers",
		RunE: func(cmd *cobra.Command, args []string) error {
			date, err := time.Parse("2006-01-02", day)
			if err != nil {
				return fmt.Errorf("invalid --day %q: %w", day, err)
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			db, err := database.OpenSQLX(cmd.Context(), cfg.AnalyticsDatabase)
			if err != nil {
				return err
			}
			defer db.Close()

			store := analytics.NewStore(db)
			out := cmd.OutOrStdout()

			stat, err := store.GetDailyStat(cmd.Context(), date)
			switch {
			case errors.Is(err, analytics.ErrStatNotFound):
				fmt.Fprintf(out, "%s: no expired orders\n", day)
			case err != nil:
				return err
			default:
				fmt.Fprintf(out, "%s: expired=%d value=%d\n", day, stat.ExpiredCount, stat.ExpiredValue)
			}

			abandoners, err := store.TopAbandoners(cmd.Context(), top)
			if err != nil {
				return err
			}
			for _, u := range abandoners {
				fmt.Fprintf(out, "UserID=%d | Abandoned=%d | Value=%d\n", u.UserID, u.AbandonedCount, u.AbandonedValue)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&day, "day", time.Now().UTC().Format("2006-01-02"), "UTC day (YYYY-MM-DD)")
	cmd.Flags().IntVar(&top, "top", 10, "number of customers to list")
	return cmd
}
