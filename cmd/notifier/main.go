package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/ec-checkout/internal/config"
	"github.com/example/ec-checkout/internal/email"
	"github.com/example/ec-checkout/internal/infrastructure/kafka"
	"github.com/example/ec-checkout/internal/infrastructure/store"
	"github.com/example/ec-checkout/internal/notification"
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
		logger.Error("notifier stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	brokers := cfg.Brokers()
	if len(brokers) == 0 {
		return errors.New("KAFKA_BROKERS is required")
	}

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

	var mailer notification.Mailer
	if cfg.SMTPHost != "" {
		mailer = email.NewService(email.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			From:     cfg.SMTPFrom,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPassword,
		})
		logger.Info("email delivery enabled", "smtp_host", cfg.SMTPHost, "smtp_port", cfg.SMTPPort)
	}
	handler := notification.NewHandler(store.NewPostgres(db), mailer, logger)

	consumer := kafka.NewConsumer(brokers, cfg.NotificationTopic, cfg.NotifierGroup, logger)
	defer consumer.Close()

	logger.Info("consuming notifications", "brokers", brokers, "topic", cfg.NotificationTopic, "group", cfg.NotifierGroup)
	if err := consumer.Consume(ctx, handler.HandleMessage); err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info("shutting down")
	return nil
}
