package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// Exchanges.
const (
	// ExchangeEvents — topic-обменник всех событий задач.
	// Routing key: task.<id>.<type>, для переходов статуса task.<id>.status.
	ExchangeEvents Exchange = "tramita.events"
)

// Queues.
const (
	// QueueEventsAudit собирает полный поток событий для аудита.
	QueueEventsAudit Queue = "events.audit"

	// QueueStatusChanges собирает только переходы статусов.
	QueueStatusChanges Queue = "events.status"
)

// Routing key паттерны для привязок.
const (
	bindingAllEvents    = "task.#"
	bindingStatusOnly   = "task.*.status"
	routingKeySuffixSts = "status"
)

// SetupTopology объявляет обменник и очереди. Идемпотентна; вызывается
// при старте и после каждого переподключения.
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

func declareExchanges(ch *amqp.Channel) error {
	err := ch.ExchangeDeclare(
		string(ExchangeEvents), // name
		"topic",                // type
		true,                   // durable
		false,                  // auto-deleted
		false,                  // internal
		false,                  // no-wait
		nil,                    // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange %s: %w", ExchangeEvents, err)
	}
	return nil
}

func declareQueues(ch *amqp.Channel) error {
	for _, q := range []Queue{QueueEventsAudit, QueueStatusChanges} {
		_, err := ch.QueueDeclare(
			string(q), // name
			true,      // durable
			false,     // delete when unused
			false,     // exclusive
			false,     // no-wait
			nil,       // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", q, err)
		}
	}
	return nil
}

func bindQueues(ch *amqp.Channel) error {
	bindings := []struct {
		queue   Queue
		pattern string
	}{
		{QueueEventsAudit, bindingAllEvents},
		{QueueStatusChanges, bindingStatusOnly},
	}

	for _, b := range bindings {
		err := ch.QueueBind(
			string(b.queue),        // queue name
			b.pattern,              // routing key pattern
			string(ExchangeEvents), // exchange
			false,                  // no-wait
			nil,                    // arguments
		)
		if err != nil {
			return fmt.Errorf("bind queue %s: %w", b.queue, err)
		}
	}

	return nil
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  Tramita RabbitMQ Topology:

    tramita.events (topic)
    ├── events.audit  [binding: task.#]
    │       Full event stream, one message per worker event
    └── events.status [binding: task.*.status]
            Status transitions only (PENDING → ... → terminal)
  `
}
