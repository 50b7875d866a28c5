package gateway

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/dgarciamx/Tramita/internal/domain"
)

// subscriberBuffer — буфер канала подписчика. Подписчик, не выбирающий
// события (переполненный буфер), отключается: гарантия порядка важнее
// гарантии доставки медленным потребителям.
const subscriberBuffer = 128

// Notification — одно уведомление подписчику: событие воркера либо
// переход статуса.
type Notification struct {
	Event      *domain.TaskEvent `json:"event,omitempty"`
	Transition *StatusChange     `json:"transition,omitempty"`
}

// StatusChange — уведомление о переходе статуса задачи.
type StatusChange struct {
	TaskID uuid.UUID         `json:"task_id"`
	Status domain.TaskStatus `json:"status"`
	Detail string            `json:"detail,omitempty"`

	// Reference — код подтверждения в терминальном уведомлении COMPLETED.
	Reference string `json:"reference,omitempty"`
}

// Fanout — внешний транспорт уведомлений (контракт "publish(taskID, event)").
// Реализуется mq.Publisher; nil — только внутренние подписчики.
type Fanout interface {
	PublishEvent(ctx context.Context, ev *domain.TaskEvent) error
	PublishStatus(ctx context.Context, ch *StatusChange) error
}

// Gateway — шлюз подписок на события задач.
type Gateway struct {
	mu     sync.RWMutex
	subs   map[uuid.UUID]map[int]chan Notification
	nextID int

	fanout Fanout
	logger *slog.Logger
}

// New создаёт Gateway. fanout может быть nil.
func New(fanout Fanout, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		subs:   make(map[uuid.UUID]map[int]chan Notification),
		fanout: fanout,
		logger: logger,
	}
}

// Subscribe подписывает наблюдателя на события задачи с этого момента.
// Возвращённая функция отписывает и закрывает канал.
func (g *Gateway) Subscribe(taskID uuid.UUID) (<-chan Notification, func()) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.nextID++
	id := g.nextID

	ch := make(chan Notification, subscriberBuffer)
	if g.subs[taskID] == nil {
		g.subs[taskID] = make(map[int]chan Notification)
	}
	g.subs[taskID][id] = ch

	cancel := func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		if sub, ok := g.subs[taskID][id]; ok {
			delete(g.subs[taskID], id)
			if len(g.subs[taskID]) == 0 {
				delete(g.subs, taskID)
			}
			close(sub)
		}
	}
	return ch, cancel
}

// SubscriberCount возвращает число подписчиков задачи.
func (g *Gateway) SubscriberCount(taskID uuid.UUID) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.subs[taskID])
}

// PublishEvent доставляет событие подписчикам задачи и во внешний fanout.
func (g *Gateway) PublishEvent(ctx context.Context, ev *domain.TaskEvent) {
	g.deliver(ev.TaskID, Notification{Event: ev})

	if g.fanout != nil {
		if err := g.fanout.PublishEvent(ctx, ev); err != nil {
			g.logger.Warn("event fanout failed", "task_id", ev.TaskID, "error", err)
		}
	}
}

// PublishStatus доставляет переход статуса подписчикам и во внешний fanout.
func (g *Gateway) PublishStatus(ctx context.Context, ch *StatusChange) {
	g.deliver(ch.TaskID, Notification{Transition: ch})

	if g.fanout != nil {
		if err := g.fanout.PublishStatus(ctx, ch); err != nil {
			g.logger.Warn("status fanout failed", "task_id", ch.TaskID, "error", err)
		}
	}
}

// deliver раздаёт уведомление подписчикам задачи.
//
// Переполненный буфер означает мёртвого или безнадёжно медленного
// подписчика — он отключается, чтобы не блокировать цикл диспетчера.
func (g *Gateway) deliver(taskID uuid.UUID, n Notification) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for id, ch := range g.subs[taskID] {
		select {
		case ch <- n:
		default:
			g.logger.Warn("dropping slow subscriber", "task_id", taskID, "subscriber", id)
			delete(g.subs[taskID], id)
			close(ch)
		}
	}
	if len(g.subs[taskID]) == 0 {
		delete(g.subs, taskID)
	}
}
