// Command sweeper cancels pending orders whose payment never arrived. It runs
// one sweep and exits, for cron-style scheduling.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/ec-checkout/internal/config"
	"github.com/example/ec-checkout/internal/domain/inventory"
	"github.com/example/ec-checkout/internal/domain/order"
	"github.com/example/ec-checkout/internal/infrastructure/kafka"
	"github.com/example/ec-checkout/internal/infrastructure/store"
	"github.com/example/ec-checkout/internal/notification"
	"github.com/example/ec-checkout/internal/reconciliation"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))

	if err := run(cfg, logger); err != nil {
		logger.Error("sweep failed", "error", err)
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

	pg := store.NewPostgres(db)

	var sink notification.Sink = notification.NewLogSink(logger)
	if brokers := cfg.Brokers(); len(brokers) > 0 {
		producer := kafka.NewProducer(brokers, cfg.NotificationTopic)
		defer producer.Close()
		sink = notification.NewKafkaSink(producer)
	}

	var ledger inventory.Ledger = store.NewPostgresLedger(db)
	if cfg.InventoryBackend == config.InventoryRedis {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return err
		}
		ledger = store.NewRedisLedger(client)
	}

	reconciler := reconciliation.New(reconciliation.Config{
		MerchantID: cfg.Gateway.MerchantID,
		Currency:   cfg.Currency,
		Signer:     cfg.Signer(),
		PendingTTL: cfg.PendingTTL,
	}, reconciliation.Deps{
		Orders:   pg,
		OrderSvc: order.NewService(pg, ledger, pg, logger),
		Payments: pg,
		Issues:   pg,
		Notifier: sink,
		Logger:   logger,
	})

	report, err := reconciler.SweepPendingOrders(ctx, time.Now().UTC())
	logger.Info("pending order sweep finished",
		"scanned", report.Scanned,
		"cancelled", report.Cancelled,
		"skipped", report.Skipped,
		"failed", report.Failed,
		"ttl", cfg.PendingTTL,
	)
	return err
}
