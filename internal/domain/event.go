package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventType — тип события, испускаемого воркером во время выполнения.
type EventType string

const (
	EventThinking    EventType = "thinking"
	EventAction      EventType = "action"
	EventObservation EventType = "observation"
	EventGoal        EventType = "goal"
	EventMemory      EventType = "memory"
	EventEvaluation  EventType = "evaluation"
	EventStatus      EventType = "status"
	EventError       EventType = "error"

	// EventRawLog — обёртка для не-JSON строк из stdout воркера.
	// Поток событий не падает из-за мусорного вывода.
	EventRawLog EventType = "raw_log"
)

// IsStep возвращает true для шаговых событий агента.
func (t EventType) IsStep() bool {
	switch t {
	case EventThinking, EventAction, EventObservation,
		EventGoal, EventMemory, EventEvaluation:
		return true
	default:
		return false
	}
}

// Valid возвращает true для известных типов событий.
func (t EventType) Valid() bool {
	return t.IsStep() || t == EventStatus || t == EventError || t == EventRawLog
}

// TaskEvent — одно типизированное событие выполнения задачи.
//
// События append-only, упорядочены по Seq в рамках одной задачи
// и удаляются janitor'ом после финального статуса + retention window.
type TaskEvent struct {
	TaskID uuid.UUID `json:"task_id"`

	// Seq — порядковый номер в потоке событий задачи (с 1).
	Seq int `json:"seq"`

	Type EventType `json:"type"`

	// Message — человекочитаемое описание шага.
	Message string `json:"message,omitempty"`

	// Data — структурированные детали события.
	Data map[string]any `json:"data,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}
