package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/dgarciamx/Tramita/internal/domain"
	"github.com/dgarciamx/Tramita/internal/gateway"
)

// Publisher публикует события задач в RabbitMQ.
//
// Реализует gateway.Fanout: внутренние подписчики (SSE) получают
// уведомления напрямую из шлюза, внешние потребители — через брокер.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// Контракт шлюза.
var _ gateway.Fanout = (*Publisher)(nil)

// NewPublisher создаёт Publisher поверх установленного соединения.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Envelope — конверт сообщения в брокере.
type Envelope struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Kind различает событие воркера и переход статуса.
	Kind string `json:"kind"`

	// Payload — domain.TaskEvent либо gateway.StatusChange.
	Payload any `json:"payload"`

	// Timestamp — время публикации.
	Timestamp time.Time `json:"timestamp"`
}

// Виды сообщений в конверте.
const (
	envelopeEvent  = "task.event"
	envelopeStatus = "task.status"
)

// PublishEvent публикует событие воркера с ключом task.<id>.<type>.
func (p *Publisher) PublishEvent(ctx context.Context, ev *domain.TaskEvent) error {
	key := fmt.Sprintf("task.%s.%s", ev.TaskID, ev.Type)
	return p.publish(ctx, key, &Envelope{
		ID:        uuid.New().String(),
		Kind:      envelopeEvent,
		Payload:   ev,
		Timestamp: time.Now(),
	})
}

// PublishStatus публикует переход статуса с ключом task.<id>.status.
func (p *Publisher) PublishStatus(ctx context.Context, ch *gateway.StatusChange) error {
	key := fmt.Sprintf("task.%s.%s", ch.TaskID, routingKeySuffixSts)
	return p.publish(ctx, key, &Envelope{
		ID:        uuid.New().String(),
		Kind:      envelopeStatus,
		Payload:   ch,
		Timestamp: time.Now(),
	})
}

func (p *Publisher) publish(ctx context.Context, routingKey string, env *Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(ExchangeEvents), // exchange
			routingKey,             // routing key
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent, // сообщение переживёт рестарт RabbitMQ
				MessageId:    env.ID,
				Timestamp:    env.Timestamp,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", ExchangeEvents, routingKey, err)
		}

		p.logger.Debug("published message",
			"routing_key", routingKey,
			"message_id", env.ID,
			"kind", env.Kind,
		)

		return nil
	})
}
