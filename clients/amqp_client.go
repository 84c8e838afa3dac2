package clients

import (
	"context"
	"errors"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrPublishNacked is returned when the broker refuses a published message.
var ErrPublishNacked = errors.New("broker nacked publish")

// AmqpClient defines the interface for all AMQP operations
type AmqpClient interface {
	DeclareQueue(queueName string) error
	Publish(ctx context.Context, queueName string, message []byte) error
	SetupConsumer(queueName string, handler func(amqp.Delivery)) error
}

// RealAmqpClient implements AmqpClient with real AMQP operations
type RealAmqpClient struct {
	conn *amqp.Connection
}

// NewAmqpClient creates a new real AMQP client
func NewAmqpClient(conn *amqp.Connection) AmqpClient {
	return &RealAmqpClient{conn: conn}
}

// DeclareQueue declares a durable queue so messages survive a broker restart
func (c *RealAmqpClient) DeclareQueue(queueName string) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	_, err = ch.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	)
	return err
}

// Publish publishes a persistent message to a specified queue and waits for
// the broker to confirm it. A nil return means the broker took ownership.
func (c *RealAmqpClient) Publish(ctx context.Context, queueName string, message []byte) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := ch.Confirm(false); err != nil {
		return err
	}

	confirm, err := ch.PublishWithDeferredConfirmWithContext(ctx,
		"",        // exchange
		queueName, // routing key (queue name)
		false,     // mandatory
		false,     // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         message,
		},
	)
	if err != nil {
		return err
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return err
	}
	if !acked {
		return ErrPublishNacked
	}
	return nil
}

// SetupConsumer sets up a manual-ack consumer on a specified queue
func (c *RealAmqpClient) SetupConsumer(queueName string, handler func(amqp.Delivery)) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return err
	}

	msgs, err := ch.Consume(
		queueName,
		"",    // consumer
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		ch.Close()
		return err
	}

	go func() {
		for d := range msgs {
			handler(d)
		}
	}()

	return nil
}
