package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/example/ec-checkout/internal/api"
	"github.com/example/ec-checkout/internal/auth"
	"github.com/example/ec-checkout/internal/checkout"
	"github.com/example/ec-checkout/internal/config"
	"github.com/example/ec-checkout/internal/domain/cart"
	"github.com/example/ec-checkout/internal/domain/inventory"
	"github.com/example/ec-checkout/internal/domain/order"
	"github.com/example/ec-checkout/internal/infrastructure/gateway"
	"github.com/example/ec-checkout/internal/infrastructure/kafka"
	"github.com/example/ec-checkout/internal/infrastructure/store"
	"github.com/example/ec-checkout/internal/metrics"
	"github.com/example/ec-checkout/internal/notification"
	"github.com/example/ec-checkout/internal/query"
	"github.com/example/ec-checkout/internal/reconciliation"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("api stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := store.RunMigrations(db); err != nil {
		return err
	}
	logger.Info("connected to postgres, migrations applied")

	pg := store.NewPostgres(db)

	ledger, closeLedger, err := newLedger(ctx, cfg, db, logger)
	if err != nil {
		return err
	}
	defer closeLedger()

	var sink notification.Sink = notification.NewLogSink(logger)
	if brokers := cfg.Brokers(); len(brokers) > 0 {
		producer := kafka.NewProducer(brokers, cfg.NotificationTopic)
		defer producer.Close()
		sink = notification.NewKafkaSink(producer)
		logger.Info("publishing notifications to kafka", "brokers", brokers, "topic", cfg.NotificationTopic)
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	gateways := checkout.Gateways{Manual: gateway.NewManual(cfg.Gateway.ResponseURL)}
	if cfg.Gateway.Enabled {
		gateways.Online = gateway.NewClient(gateway.Config{
			CheckoutURL:     cfg.Gateway.CheckoutURL,
			MerchantID:      cfg.Gateway.MerchantID,
			AccountID:       cfg.Gateway.AccountID,
			Signer:          cfg.Signer(),
			ResponseURL:     cfg.Gateway.ResponseURL,
			ConfirmationURL: cfg.Gateway.ConfirmationURL,
			Test:            cfg.Gateway.Test,
			Timeout:         cfg.Gateway.Timeout,
		}, logger)
	} else {
		logger.Warn("payment gateway disabled, only manual payment methods are available")
	}

	orderSvc := order.NewService(pg, ledger, pg, logger)
	workflow := checkout.NewWorkflow(checkout.Deps{
		Carts:    pg,
		Catalog:  pg,
		Ledger:   ledger,
		Orders:   pg,
		Placer:   pg,
		Payments: pg,
		Gateways: gateways,
		Issues:   pg,
		Metrics:  m,
		Logger:   logger,
		Currency: cfg.Currency,
	})
	reconciler := reconciliation.New(reconciliation.Config{
		MerchantID: cfg.Gateway.MerchantID,
		Currency:   cfg.Currency,
		Signer:     cfg.Signer(),
		PendingTTL: cfg.PendingTTL,
	}, reconciliation.Deps{
		Orders:   pg,
		OrderSvc: orderSvc,
		Payments: pg,
		Issues:   pg,
		Notifier: sink,
		Metrics:  m,
		Logger:   logger,
	})

	handlers := api.NewHandlers(api.Deps{
		Carts:      cart.NewService(pg, pg, ledger, logger),
		Orders:     orderSvc,
		Checkout:   workflow,
		Queries:    query.NewHandler(pg, pg, pg, logger),
		Reconciler: reconciler,
		Issues:     pg,
		DB:         pg,
		Logger:     logger,
	})
	router := api.NewRouter(handlers, api.RouterConfig{
		Tokens:         auth.NewJWTService(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.JWTIssuer),
		Metrics:        m,
		MetricsHandler: metrics.Handler(),
		RequestTimeout: cfg.RequestTimeout,
		Logger:         logger,
	})

	var wg sync.WaitGroup
	if cfg.SweepInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sweep(ctx, reconciler, cfg.SweepInterval, logger)
		}()
	}

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server started", "addr", cfg.HTTPAddr, "inventory", cfg.InventoryBackend)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		stop()
		wg.Wait()
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	err = server.Shutdown(shutdownCtx)
	wg.Wait()
	return err
}

// newLedger selects the inventory backend. The Redis backend is seeded from
// the inventory table for products it does not know yet. The returned func
// releases it.
func newLedger(ctx context.Context, cfg *config.Config, db *sql.DB, logger *slog.Logger) (inventory.Ledger, func(), error) {
	pgLedger := store.NewPostgresLedger(db)
	if cfg.InventoryBackend != config.InventoryRedis {
		return pgLedger, func() {}, nil
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	ledger := store.NewRedisLedger(client)

	stock, err := pgLedger.Snapshot(ctx)
	if err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("load inventory: %w", err)
	}
	created, err := ledger.Seed(ctx, stock)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	logger.Info("inventory ledger on redis", "addr", cfg.RedisAddr, "seeded", created)
	return ledger, func() { client.Close() }, nil
}

// sweep cancels expired pending orders every interval until ctx is done.
func sweep(ctx context.Context, r *reconciliation.Reconciler, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			report, err := r.SweepPendingOrders(ctx, now)
			if err != nil {
				logger.Error("pending order sweep failed", "error", err, "cancelled", report.Cancelled)
				continue
			}
			if report.Scanned > 0 {
				logger.Info("pending order sweep", "scanned", report.Scanned, "cancelled", report.Cancelled, "skipped", report.Skipped)
			}
		}
	}
}
