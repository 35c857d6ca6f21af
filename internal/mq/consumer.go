package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler обрабатывает одно сообщение.
// По возвращённой ошибке Consumer решает судьбу сообщения (см. settlementFor).
type Handler func(ctx context.Context, msg *Delivery) error

// Delivery — доставленное сообщение вместе с сырой AMQP доставкой.
type Delivery struct {
	Message Message
	Raw     amqp.Delivery
}

// ConsumerConfig — конфигурация consumer.
type ConsumerConfig struct {
	// Queue — имя очереди.
	Queue string

	// Handler — обработчик сообщений.
	Handler Handler

	// Prefetch — сколько неподтверждённых сообщений держит канал (default: 1).
	Prefetch int

	// Setup вызывается на каждом новом канале перед Consume.
	// Нужен для эксклюзивных очередей, которые пропадают при разрыве.
	Setup func(ch *amqp.Channel) error
}

// Consumer читает очередь и переживает переподключения Connection.
type Consumer struct {
	conn   *Connection
	logger *slog.Logger
	cfg    ConsumerConfig

	cancelFunc context.CancelFunc
}

// NewConsumer создаёт новый Consumer.
func NewConsumer(conn *Connection, logger *slog.Logger, cfg ConsumerConfig) *Consumer {
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Consumer{
		conn:   conn,
		logger: logger.With("queue", cfg.Queue),
		cfg:    cfg,
	}
}

// Start читает очередь до отмены ctx или вызова Stop.
// После разрыва соединения ждёт переподключения и подписывается заново.
func (c *Consumer) Start(ctx context.Context) error {
	ctx, c.cancelFunc = context.WithCancel(ctx)

	for ctx.Err() == nil {
		deliveries, err := c.subscribe()
		if err != nil {
			c.logger.Error("failed to subscribe", "error", err)
		} else {
			c.logger.Info("consumer started")
			c.drain(ctx, deliveries)
			if ctx.Err() != nil {
				break
			}
			c.logger.Warn("deliveries channel closed, waiting for reconnect")
		}

		select {
		case <-ctx.Done():
		case <-c.conn.ReconnectNotify():
			c.logger.Info("reconnected, restarting consumer")
		}
	}

	return ctx.Err()
}

// Stop останавливает consumer.
func (c *Consumer) Stop() {
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
}

func (c *Consumer) subscribe() (<-chan amqp.Delivery, error) {
	ch := c.conn.Channel()
	if ch == nil {
		return nil, ErrNoChannel
	}

	if c.cfg.Setup != nil {
		if err := c.cfg.Setup(ch); err != nil {
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}

	// auto-ack выключен: подтверждение после Handler
	deliveries, err := ch.Consume(c.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume: %w", err)
	}
	return deliveries, nil
}

// drain обрабатывает доставки, пока канал открыт и ctx не отменён.
func (c *Consumer) drain(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-deliveries:
			if !ok {
				return
			}
			c.settle(raw, c.dispatch(ctx, raw))
		}
	}
}

// dispatch разбирает конверт и вызывает Handler.
func (c *Consumer) dispatch(ctx context.Context, raw amqp.Delivery) settlement {
	var msg Message
	if err := json.Unmarshal(raw.Body, &msg); err != nil {
		c.logger.Error("malformed message", "error", err, "body", string(raw.Body))
		return reject
	}

	logger := c.logger.With("message_id", msg.ID, "type", msg.Type)
	logger.Debug("received message")

	err := c.cfg.Handler(ctx, &Delivery{Message: msg, Raw: raw})
	switch s := settlementFor(err, raw.Redelivered); s {
	case reject:
		if errors.Is(err, ErrUnknownMessage) {
			logger.Warn("unexpected message type")
		} else {
			logger.Error("handler failed again, dead-lettering", "error", err)
		}
		return s
	case requeue:
		logger.Error("handler failed, requeueing", "error", err)
		return s
	default:
		return s
	}
}

func (c *Consumer) settle(raw amqp.Delivery, s settlement) {
	var err error
	switch s {
	case ack:
		err = raw.Ack(false)
	case requeue:
		err = raw.Nack(false, true)
	case reject:
		err = raw.Nack(false, false)
	}
	if err != nil {
		c.logger.Warn("failed to settle delivery", "error", err)
	}
}

// settlement — что сделать с доставкой после обработки.
type settlement int

const (
	ack     settlement = iota
	requeue            // вернуть в очередь
	reject             // в DLQ
)

// settlementFor: успех подтверждается; неизвестный тип сразу уходит в DLQ;
// ошибка обработки возвращает сообщение в очередь один раз, повторная — в DLQ.
func settlementFor(err error, redelivered bool) settlement {
	switch {
	case err == nil:
		return ack
	case errors.Is(err, ErrUnknownMessage), redelivered:
		return reject
	default:
		return requeue
	}
}

// ParsePayload приводит payload сообщения к типу T.
// После json.Unmarshal конверта payload — map[string]any, поэтому он
// перекодируется через JSON.
func ParsePayload[T any](msg *Message) (T, error) {
	var result T

	data, err := json.Marshal(msg.Payload)
	if err != nil {
		return result, fmt.Errorf("marshal payload: %w", err)
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return result, fmt.Errorf("unmarshal payload: %w", err)
	}
	return result, nil
}
