package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/lucypulova/Elitearn/handlers"
	"github.com/lucypulova/Elitearn/internal/auth"
	"github.com/lucypulova/Elitearn/internal/cart"
	"github.com/lucypulova/Elitearn/internal/config"
	"github.com/lucypulova/Elitearn/internal/consul"
	"github.com/lucypulova/Elitearn/internal/courses"
	"github.com/lucypulova/Elitearn/internal/notify"
	"github.com/lucypulova/Elitearn/internal/orders"
	"github.com/lucypulova/Elitearn/internal/payment"
	"github.com/lucypulova/Elitearn/internal/stores/kafka"
	"github.com/lucypulova/Elitearn/internal/stores/postgres"
	"github.com/lucypulova/Elitearn/internal/users"
	"github.com/lucypulova/Elitearn/pkg/logkey"
	"github.com/lucypulova/Elitearn/pkg/mailer"
	"github.com/lucypulova/Elitearn/pkg/metrics"
)

func main() {
	if err := run(); err != nil {
		slog.Error("startup failed", slog.String(logkey.Error, err.Error()))
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if err := postgres.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migrations failed: %w", err)
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelStart()
	pool, err := postgres.OpenPool(startCtx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer pool.Close()

	keys, err := auth.NewKeys(cfg.JWTSecret)
	if err != nil {
		return err
	}

	m := metrics.New("api")

	var sender mailer.Sender
	if cfg.SMTPHost != "" {
		sender, err = mailer.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.MailFrom)
		if err != nil {
			return err
		}
	} else {
		slog.Warn("SMTP_HOST not set, outgoing mail will only be logged")
		sender = mailer.NewLogSender()
	}

	outbox, err := notify.NewStore(pool)
	if err != nil {
		return err
	}
	dispatcher, err := notify.NewDispatcher(keys, sender, outbox,
		cfg.PublicBaseURL, cfg.Currency, cfg.DownloadTokenTTL, ".")
	if err != nil {
		return err
	}

	var authorizer payment.Authorizer
	var stripeClient *payment.StripeClient
	if cfg.PaymentProvider == "stripe" {
		stripeClient, err = payment.NewStripeClient(cfg.StripeSecretKey)
		if err != nil {
			return err
		}
	} else {
		authorizer = payment.NewTestAuthorizer()
	}

	var kafkaConf *kafka.Conf
	if len(cfg.KafkaBrokers) > 0 {
		kafkaConf, err = kafka.NewConf(cfg.KafkaBrokers)
		if err != nil {
			return fmt.Errorf("kafka connection failed: %w", err)
		}
		defer kafkaConf.Close()
	} else {
		slog.Warn("KAFKA_BROKERS not set, lifecycle events will not be published")
	}

	var orderConf *orders.Conf
	if kafkaConf != nil {
		orderConf, err = orders.NewConf(pool, authorizer, stripeClient, dispatcher, kafkaConf, cfg.Currency)
	} else {
		orderConf, err = orders.NewConf(pool, authorizer, stripeClient, dispatcher, nil, cfg.Currency)
	}
	if err != nil {
		return err
	}

	userConf, err := users.NewConf(pool)
	if err != nil {
		return err
	}
	courseConf, err := courses.NewConf(pool)
	if err != nil {
		return err
	}
	cartConf, err := cart.NewConf(pool)
	if err != nil {
		return err
	}

	if cfg.ConsulAddr != "" {
		reg, err := consul.Register(cfg.ConsulAddr, cfg.ServiceName, "localhost", cfg.Port)
		if err != nil {
			return fmt.Errorf("consul registration failed: %w", err)
		}
		defer func() {
			if err := reg.Deregister(); err != nil {
				slog.Error("consul deregistration failed", slog.String(logkey.Error, err.Error()))
			}
		}()
	}

	h := handlers.NewHandler(userConf, courseConf, cartConf, orderConf,
		keys, m, cfg.PaymentProvider, cfg.UploadsDir)
	engine := handlers.API(h, keys, m)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	worker, err := notify.NewWorker(outbox, sender, cfg.WorkerBatch, cfg.WorkerInterval, m)
	if err != nil {
		return err
	}
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		worker.Run(ctx)
	}()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      engine,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("server listening",
			slog.Int("port", cfg.Port), slog.String("provider", cfg.PaymentProvider))
		serverErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown failed", slog.String(logkey.Error, err.Error()))
		_ = srv.Close()
	}

	// Let the worker finish its in-flight batch.
	<-workerDone

	slog.Info("shutdown complete")
	return nil
}
