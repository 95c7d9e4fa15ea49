package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dmehra2102/orderflow/internal/config"
	"github.com/dmehra2102/orderflow/internal/notification"
	"github.com/dmehra2102/orderflow/internal/order/application"
	ordercart "github.com/dmehra2102/orderflow/internal/order/infrastructure/cart"
	ordercatalog "github.com/dmehra2102/orderflow/internal/order/infrastructure/catalog"
	orderhttp "github.com/dmehra2102/orderflow/internal/order/infrastructure/http"
	orderkafka "github.com/dmehra2102/orderflow/internal/order/infrastructure/kafka"
	"github.com/dmehra2102/orderflow/internal/order/infrastructure/memory"
	orderpg "github.com/dmehra2102/orderflow/internal/order/infrastructure/postgres"
	"github.com/dmehra2102/orderflow/pkg/clock"
	"github.com/dmehra2102/orderflow/pkg/idempotency"
	"github.com/dmehra2102/orderflow/pkg/logging"
	"github.com/dmehra2102/orderflow/pkg/metrics"
	"github.com/dmehra2102/orderflow/pkg/outbox"
	"github.com/dmehra2102/orderflow/pkg/shutdown"
	"github.com/dmehra2102/orderflow/pkg/tracing"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:          "order-service",
		Short:        "Checkout and order lifecycle service",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to a YAML config file")
	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	log := logging.New(cfg.Log.Level)

	ctx, cancel := shutdown.WithSignals(ctx)
	defer cancel()

	tp, err := tracing.Init(ctx, cfg.Tracing.ServiceName, cfg.Tracing.Endpoint, log)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	lm := metrics.NewLifecycle(reg)
	sm := metrics.NewServerMetrics(reg, cfg.Tracing.ServiceName)

	clk := clock.New()
	store := memory.NewStore()

	var keys notification.KeyStore = idempotency.NewMemoryStore(cfg.Redis.TTL)
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		keys = idempotency.NewStore(rdb, cfg.Redis.TTL)
	}

	records := notification.NewRecords(clk)
	dispatcher := notification.NewDispatcher(log, notification.Config{
		BaseURL:        cfg.Notify.BaseURL,
		Timeout:        cfg.Notify.Timeout,
		MaxAttempts:    cfg.Notify.MaxAttempts,
		InitialBackoff: cfg.Notify.InitialBackoff,
		MaxBackoff:     cfg.Notify.MaxBackoff,
		RatePerSecond:  cfg.Notify.RatePerSecond,
		Burst:          cfg.Notify.Burst,
	}, keys, records, lm)
	notifiers := application.Notifiers{dispatcher}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.New(ctx, cfg.Postgres.URL)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer pool.Close()
		if err := orderpg.EnsureSchema(ctx, pool); err != nil {
			return err
		}
	}

	var (
		relay     *outbox.Relay
		publisher *orderkafka.StatusPublisher
	)
	if len(cfg.Kafka.Brokers) > 0 {
		var events outbox.Store = outbox.NewMemoryStore()
		if pool != nil {
			events = orderpg.NewOutboxStore(log, pool)
		}
		writer := orderkafka.NewWriter(cfg.Kafka.Brokers)
		defer writer.Close()

		relay = outbox.NewRelay(log, events, outbox.NewDispatcher(log, writer, cfg.Kafka.Topic), cfg.Tracing.ServiceName+"-relay",
			outbox.WithMaxRetries(cfg.Kafka.MaxRetries),
			outbox.WithInterval(cfg.Kafka.RelayInterval),
			outbox.WithBatchSize(cfg.Kafka.BatchSize),
			outbox.WithLease(cfg.Kafka.Lease))
		publisher = orderkafka.NewStatusPublisher(log, events)
		notifiers = append(notifiers, publisher)
	}

	reaper := application.NewReaper(log, store, clk, cfg.Lifecycle.Retention, cfg.Lifecycle.SweepInterval, lm)
	reaper.OnReap(records.Forget)
	scheduler := application.NewScheduler(log, store, notifiers, reaper, clk, application.LifecycleConfig{
		CreatedToProcessing:  cfg.Lifecycle.CreatedToProcessing,
		ProcessingToShipping: cfg.Lifecycle.ProcessingToShipping,
		ShippingMin:          cfg.Lifecycle.ShippingMin,
		ShippingMax:          cfg.Lifecycle.ShippingMax,
	}, lm)

	checkout := application.NewCheckoutCoordinator(log, store,
		application.NewStockValidator(ordercatalog.NewClient(log, cfg.Catalog.BaseURL, cfg.Catalog.Timeout)),
		ordercart.NewClient(log, cfg.Cart.BaseURL, cfg.Cart.Timeout),
		scheduler, clk, lm)
	svc := application.NewService(store, checkout, scheduler, records)

	var snapshotter *application.Snapshotter
	if pool != nil {
		snapshotter = application.NewSnapshotter(log, store, orderpg.NewSnapshotRepository(log, pool), cfg.Postgres.SnapshotInterval)
		restored, err := snapshotter.Restore(ctx)
		if err != nil {
			return fmt.Errorf("restore snapshot: %w", err)
		}
		scheduler.Resume(ctx, restored)
		log.Info("orders restored", "count", len(restored))
	}

	handler := orderhttp.NewHandler(log, svc, orderhttp.NewAuthenticator(cfg.Auth.JWTSecret), sm, reg)
	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return reaper.Run(gctx) })
	if relay != nil {
		g.Go(func() error { return relay.Run(gctx) })
	}
	if snapshotter != nil {
		g.Go(func() error { return snapshotter.Run(gctx) })
	}
	g.Go(func() error {
		log.Info("order service listening", "addr", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		drain(log, srv, scheduler, reaper, dispatcher, publisher, tp.Shutdown)
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("order service stopped", "err", err)
		return err
	}
	log.Info("order service stopped")
	return nil
}

func drain(log *slog.Logger, srv *http.Server, scheduler *application.Scheduler, reaper *application.Reaper, dispatcher *notification.Dispatcher, publisher *orderkafka.StatusPublisher, flushTraces func(context.Context) error) {
	steps := []shutdown.Step{
		{Name: "http", Fn: srv.Shutdown},
		{Name: "timers", Fn: func(context.Context) error {
			scheduler.Stop()
			reaper.Stop()
			return nil
		}},
		{Name: "notifications", Fn: dispatcher.Close},
	}
	if publisher != nil {
		steps = append(steps, shutdown.Step{Name: "outbox", Fn: publisher.Close})
	}
	steps = append(steps, shutdown.Step{Name: "tracing", Fn: flushTraces})
	shutdown.Drain(log, 10*time.Second, steps...)
}
