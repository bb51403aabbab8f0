package events

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/segmentio/kafka-go"
)

const (
	EventsExchange         = "storefront.events"
	SaleRecordedRoutingKey = "sale.recorded.v1"

	publishTimeout = 3 * time.Second
)

// Transport delivers one encoded event. key is the partition key; headers
// carry trace context.
type Transport interface {
	Send(ctx context.Context, routingKey, key string, body []byte, headers map[string]string) error
	Close() error
}

// AMQPChannel is the subset of *amqp.Channel the transport needs.
type AMQPChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type AMQPTransport struct {
	ch AMQPChannel
}

func NewAMQPTransport(conn *amqp.Connection) (*AMQPTransport, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	t, err := newAMQPTransport(ch)
	if err != nil {
		_ = ch.Close()
		return nil, err
	}
	return t, nil
}

func newAMQPTransport(ch AMQPChannel) (*AMQPTransport, error) {
	if err := declareEventsExchange(ch); err != nil {
		return nil, fmt.Errorf("declare events exchange: %w", err)
	}
	return &AMQPTransport{ch: ch}, nil
}

func declareEventsExchange(ch AMQPChannel) error {
	return ch.ExchangeDeclare(
		EventsExchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	)
}

func (t *AMQPTransport) Send(ctx context.Context, routingKey, _ string, body []byte, headers map[string]string) error {
	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	table := amqp.Table{}
	for k, v := range headers {
		table[k] = v
	}

	return t.ch.PublishWithContext(
		pubCtx,
		EventsExchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Headers:      table,
			Body:         body,
		},
	)
}

func (t *AMQPTransport) Close() error {
	return t.ch.Close()
}

// KafkaWriter is the subset of *kafka.Writer the transport needs.
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaTransport struct {
	w KafkaWriter
}

func NewKafkaTransport(brokers []string, topic string) *KafkaTransport {
	return &KafkaTransport{w: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}}
}

func (t *KafkaTransport) Send(ctx context.Context, routingKey, key string, body []byte, headers map[string]string) error {
	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(key),
		Value: body,
		Headers: []kafka.Header{
			{Key: "routingKey", Value: []byte(routingKey)},
			{Key: "content-type", Value: []byte("application/json")},
		},
	}
	for k, v := range headers {
		msg.Headers = append(msg.Headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	return t.w.WriteMessages(pubCtx, msg)
}

func (t *KafkaTransport) Close() error {
	return t.w.Close()
}
