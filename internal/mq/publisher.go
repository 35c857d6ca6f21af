package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeJobPending MessageType = "job.pending"
	MessageTypeJobCancel  MessageType = "job.cancel"
	MessageTypeJobEvent   MessageType = "job.event"
)

// EventKind — к чему относится событие.
type EventKind string

const (
	EventKindJob   EventKind = "job"
	EventKindStage EventKind = "stage"
)

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Message — сообщение для публикации.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage создаёт сообщение с новым ID и текущим временем.
func NewMessage(msgType MessageType, payload any) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}

// JobPendingPayload — payload для сообщения о новом job.
type JobPendingPayload struct {
	JobID uuid.UUID `json:"job_id"`
}

// JobCancelPayload — payload команды отмены.
type JobCancelPayload struct {
	JobID  uuid.UUID `json:"job_id"`
	Reason string    `json:"reason,omitempty"`
}

// EventPayload — событие job или этапа.
type EventPayload struct {
	Kind     EventKind `json:"kind"`
	JobID    uuid.UUID `json:"job_id"`
	Status   string    `json:"status"`
	Function string    `json:"function,omitempty"`
	Order    int       `json:"order,omitempty"`
	Index    int       `json:"index,omitempty"`
	Error    string    `json:"error,omitempty"`
	Duration float64   `json:"duration_seconds,omitempty"`
}

// Publish публикует сообщение в указанный exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),   // exchange
			string(routingKey), // routing key
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				MessageId:    msg.ID,
				Timestamp:    msg.Timestamp,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)

		return nil
	})
}

// PublishJobPending публикует событие о новом job, ожидающем выполнения.
// Потребитель: Worker.
func (p *Publisher) PublishJobPending(ctx context.Context, jobID uuid.UUID) error {
	msg := NewMessage(MessageTypeJobPending, JobPendingPayload{JobID: jobID})
	return p.Publish(ctx, ExchangeJobs, RoutingKeyPending, msg)
}

// PublishCancel рассылает команду отмены всем воркерам.
// Job отменяет тот воркер, у которого он выполняется.
func (p *Publisher) PublishCancel(ctx context.Context, jobID uuid.UUID, reason string) error {
	msg := NewMessage(MessageTypeJobCancel, JobCancelPayload{JobID: jobID, Reason: reason})
	return p.Publish(ctx, ExchangeControl, "", msg)
}

// PublishEvent публикует событие в printflow.events.
func (p *Publisher) PublishEvent(ctx context.Context, event EventPayload) error {
	msg := NewMessage(MessageTypeJobEvent, event)
	return p.Publish(ctx, ExchangeEvents, EventRoutingKey(event.Kind, event.Status), msg)
}
