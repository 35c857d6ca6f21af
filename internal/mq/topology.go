package mq

import (
	"context"
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	ExchangeJobs    Exchange = "printflow.jobs"
	ExchangeControl Exchange = "printflow.control"
	ExchangeEvents  Exchange = "printflow.events"
	ExchangeDLQ     Exchange = "printflow.dlq"
)

// Queues — имена очередей.
const (
	QueueJobsPending Queue = "jobs.pending"
	QueueDLQJobs     Queue = "dlq.jobs"
)

// Routing keys.
const (
	RoutingKeyPending RoutingKey = "pending"
	RoutingKeyDLQJobs RoutingKey = "jobs"
)

// EventRoutingKey возвращает ключ события в printflow.events,
// например "job.succeeded" или "stage.failed".
func EventRoutingKey(kind EventKind, status string) RoutingKey {
	return RoutingKey(fmt.Sprintf("%s.%s", kind, strings.ToLower(status)))
}

// ControlQueue возвращает имя очереди команд конкретного воркера.
func ControlQueue(workerID string) Queue {
	return Queue("control." + workerID)
}

// SetupTopology объявляет постоянные exchanges и очереди.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		if err := declareExchanges(ch); err != nil {
			return err
		}

		if err := declareQueues(ch); err != nil {
			return err
		}

		return bindQueues(ch)
	})
}

// DeclareControlQueue объявляет эксклюзивную очередь команд воркера
// и привязывает её к printflow.control. Очередь удаляется вместе с соединением,
// поэтому объявлять её нужно после каждого переподключения.
func DeclareControlQueue(ch *amqp.Channel, queue Queue) error {
	_, err := ch.QueueDeclare(
		string(queue), // name
		false,         // durable
		true,          // delete when unused
		true,          // exclusive
		false,         // no-wait
		nil,           // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", queue, err)
	}

	if err := ch.QueueBind(string(queue), "", string(ExchangeControl), false, nil); err != nil {
		return fmt.Errorf("bind queue %s to %s: %w", queue, ExchangeControl, err)
	}

	return nil
}

// declareExchanges создаёт обменники.
func declareExchanges(ch *amqp.Channel) error {
	exchanges := []struct {
		name Exchange
		kind string
	}{
		{ExchangeJobs, "direct"},
		{ExchangeControl, "fanout"},
		{ExchangeEvents, "topic"},
		{ExchangeDLQ, "direct"},
	}

	for _, ex := range exchanges {
		err := ch.ExchangeDeclare(
			string(ex.name), // name
			ex.kind,         // type
			true,            // durable
			false,           // auto-deleted
			false,           // internal
			false,           // no-wait
			nil,             // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex.name, err)
		}
	}

	return nil
}

// declareQueues создаёт очереди.
func declareQueues(ch *amqp.Channel) error {
	dlqArgs := amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeDLQ),
		"x-dead-letter-routing-key": string(RoutingKeyDLQJobs),
	}

	queues := []struct {
		name Queue
		args amqp.Table
	}{
		{QueueJobsPending, dlqArgs},
		{QueueDLQJobs, nil},
	}

	for _, q := range queues {
		_, err := ch.QueueDeclare(
			string(q.name), // name
			true,           // durable
			false,          // delete when unused
			false,          // exclusive
			false,          // no-wait
			q.args,         // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}
	}

	return nil
}

// bindQueues привязывает очереди к обменникам.
func bindQueues(ch *amqp.Channel) error {
	bindings := []struct {
		queue      Queue
		routingKey RoutingKey
		exchange   Exchange
	}{
		{QueueJobsPending, RoutingKeyPending, ExchangeJobs},
		{QueueDLQJobs, RoutingKeyDLQJobs, ExchangeDLQ},
	}

	for _, b := range bindings {
		err := ch.QueueBind(
			string(b.queue),      // queue name
			string(b.routingKey), // routing key
			string(b.exchange),   // exchange
			false,                // no-wait
			nil,                  // arguments
		)
		if err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
		}
	}

	return nil
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  Printflow RabbitMQ Topology:

    printflow.jobs (direct)
    └── jobs.pending [routing: pending]
            Consumer: Worker
            DLQ: dlq.jobs

    printflow.control (fanout)
    └── control.<worker-id> [exclusive]
            Consumer: Worker (cancel commands)

    printflow.events (topic)
    └── job.* / stage.*
            Consumers: external subscribers

    printflow.dlq (direct)
    └── dlq.jobs [routing: jobs]
            Manual processing
  `
}
