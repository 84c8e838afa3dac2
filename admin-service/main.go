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

	"github.com/jeffsasaki/store-admin/api"
	"github.com/jeffsasaki/store-admin/catalog"
	"github.com/jeffsasaki/store-admin/checkout"
	"github.com/jeffsasaki/store-admin/clients"
	"github.com/jeffsasaki/store-admin/config"
	"github.com/jeffsasaki/store-admin/dashboard"
	"github.com/jeffsasaki/store-admin/outbox"
	"github.com/jeffsasaki/store-admin/store"
	"github.com/jeffsasaki/store-admin/webhook"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/spf13/cobra"
)

const (
	productCacheTTL = 5 * time.Minute
	shutdownTimeout = 10 * time.Second
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if err := newRootCmd(logger).Execute(); err != nil {
		logger.Error("command failed", "err", err)
		os.Exit(1)
	}
}

func newRootCmd(logger *slog.Logger) *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "admin-service",
		Short:         "Store admin backend: checkout, payment webhook and dashboard API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the outbox relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if err := cfg.ValidateServe(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			db, err := store.Open(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			defer db.Close()

			if err := store.Migrate(db); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			logger.Info("schema migrated")
			return nil
		},
	})

	return root
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	pg := store.NewPostgres(db)

	var cache catalog.Cache
	if cfg.RedisAddr != "" {
		rc := clients.NewRedisCache(cfg.RedisAddr, productCacheTTL)
		defer rc.Close()
		if err := rc.Ping(ctx); err != nil {
			logger.Warn("redis unavailable, product listings will not be cached", "addr", cfg.RedisAddr, "err", err)
		}
		cache = rc
	}
	products := catalog.NewService(pg, cache, logger)

	// Nil unless AMQP is configured; a nil channel never fires.
	var brokerClosed chan *amqp.Error
	if cfg.AmqpURL != "" {
		conn, err := amqp.Dial(cfg.AmqpURL)
		if err != nil {
			return fmt.Errorf("connect to rabbitmq: %w", err)
		}
		defer conn.Close()
		brokerClosed = conn.NotifyClose(make(chan *amqp.Error, 1))

		broker := clients.NewAmqpClient(conn)
		if err := broker.DeclareQueue(cfg.OrderEventsQueue); err != nil {
			return fmt.Errorf("declare queue %s: %w", cfg.OrderEventsQueue, err)
		}
		relay := outbox.NewRelay(pg, broker, cfg.OrderEventsQueue, cfg.OutboxInterval, logger)
		go relay.Run(ctx)
	} else {
		logger.Warn("AMQP_URL not set, order events stay in the outbox")
	}

	srv := &api.Server{
		Checkout: checkout.NewService(pg, clients.NewStripeGateway(cfg.StripeAPIKey), checkout.Config{
			Currency:   cfg.CheckoutCurrency,
			SuccessURL: cfg.SuccessURL(),
			CancelURL:  cfg.CancelURL(),
		}, logger),
		Webhook:     webhook.NewReconciler(pg, products, cfg.StripeWebhookSecret, logger),
		Catalog:     products,
		Orders:      pg,
		Stats:       dashboard.NewService(pg),
		AdminAPIKey: cfg.AdminAPIKey,
		Logger:      logger,
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.HTTPAddr)
		errCh <- httpServer.ListenAndServe()
	}()

	// Losing the broker stops the process so the supervisor restarts it with
	// a fresh connection; unpublished outbox rows are sent after the restart.
	var exitErr error
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case amqpErr := <-brokerClosed:
		exitErr = fmt.Errorf("rabbitmq connection closed: %v", amqpErr)
		logger.Error("lost rabbitmq connection", "err", amqpErr)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return exitErr
}
