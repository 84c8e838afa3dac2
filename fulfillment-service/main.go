package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jeffsasaki/store-admin/clients"
	"github.com/jeffsasaki/store-admin/config"
	model "github.com/jeffsasaki/store-admin/models"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/spf13/cobra"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	var configPath string
	cmd := &cobra.Command{
		Use:           "fulfillment-service",
		Short:         "Consume order.paid events and hand them to shipping",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cfg.AmqpURL == "" {
				return errors.New("AMQP_URL is required")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, logger)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to a YAML config file")

	if err := cmd.Execute(); err != nil {
		logger.Error("command failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	conn, err := amqp.Dial(cfg.AmqpURL)
	if err != nil {
		return fmt.Errorf("connect to rabbitmq: %w", err)
	}
	defer conn.Close()

	broker := clients.NewAmqpClient(conn)
	if err := broker.DeclareQueue(cfg.OrderEventsQueue); err != nil {
		return fmt.Errorf("declare queue %s: %w", cfg.OrderEventsQueue, err)
	}

	w := &worker{logger: logger}
	if err := broker.SetupConsumer(cfg.OrderEventsQueue, w.handle); err != nil {
		return fmt.Errorf("consume %s: %w", cfg.OrderEventsQueue, err)
	}

	logger.Info("waiting for order events", "queue", cfg.OrderEventsQueue)
	select {
	case <-ctx.Done():
		return nil
	case amqpErr := <-conn.NotifyClose(make(chan *amqp.Error, 1)):
		if amqpErr != nil {
			return amqpErr
		}
		return nil
	}
}

type worker struct {
	logger *slog.Logger
}

// handle acks events it could hand off. Malformed bodies are dropped
// without requeue since redelivery cannot fix them.
func (w *worker) handle(d amqp.Delivery) {
	event, err := decodeOrderPaid(d.Body)
	if err != nil {
		w.logger.Error("dropping malformed order event", "err", err, "body", string(d.Body))
		if err := d.Nack(false, false); err != nil {
			w.logger.Error("nack failed", "err", err)
		}
		return
	}

	w.logger.Info("order ready for shipping",
		"order_id", event.OrderID,
		"store_id", event.StoreID,
		"items", len(event.ProductIDs),
		"address", event.Address,
		"phone", event.Phone,
		"paid_at", event.PaidAt)

	if err := d.Ack(false); err != nil {
		w.logger.Error("ack failed", "order_id", event.OrderID, "err", err)
	}
}

func decodeOrderPaid(body []byte) (model.OrderPaidEvent, error) {
	var event model.OrderPaidEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return event, fmt.Errorf("decode order event: %w", err)
	}
	if event.OrderID == "" {
		return event, errors.New("order event without order_id")
	}
	return event, nil
}
