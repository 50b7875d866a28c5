package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/dgarciamx/Tramita/internal/domain"
	"github.com/dgarciamx/Tramita/internal/store"
)

// Task DTOs

// CreateTaskRequest — запрос на создание задачи.
type CreateTaskRequest struct {
	TargetURL  string                  `json:"target_url"`
	Payload    map[string]any          `json:"payload"`
	Config     domain.AutomationConfig `json:"config"`
	ProfileKey string                  `json:"profile_key,omitempty"`
}

// TaskResponse — ответ с задачей.
type TaskResponse struct {
	ID          uuid.UUID               `json:"id"`
	UserID      string                  `json:"user_id"`
	TargetURL   string                  `json:"target_url"`
	Payload     map[string]any          `json:"payload,omitempty"`
	Config      domain.AutomationConfig `json:"config"`
	ProfileKey  string                  `json:"profile_key,omitempty"`
	Status      domain.TaskStatus       `json:"status"`
	Result      *domain.TaskResult      `json:"result,omitempty"`
	Transitions []domain.Transition     `json:"transitions,omitempty"`
	CreatedAt   time.Time               `json:"created_at"`
	StartedAt   *time.Time              `json:"started_at,omitempty"`
	CompletedAt *time.Time              `json:"completed_at,omitempty"`
}

// TaskFromDomain конвертирует domain.Task в TaskResponse.
func TaskFromDomain(t *domain.Task) TaskResponse {
	return TaskResponse{
		ID:          t.ID,
		UserID:      t.UserID,
		TargetURL:   t.TargetURL,
		Payload:     t.Payload,
		Config:      t.Config,
		ProfileKey:  t.ProfileKey,
		Status:      t.Status,
		Result:      t.Result,
		Transitions: t.Transitions,
		CreatedAt:   t.CreatedAt,
		StartedAt:   t.StartedAt,
		CompletedAt: t.CompletedAt,
	}
}

// EventResponse — ответ с событием задачи.
type EventResponse struct {
	Seq       int              `json:"seq"`
	Type      domain.EventType `json:"type"`
	Message   string           `json:"message,omitempty"`
	Data      map[string]any   `json:"data,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// EventFromDomain конвертирует domain.TaskEvent в EventResponse.
func EventFromDomain(ev domain.TaskEvent) EventResponse {
	return EventResponse{
		Seq:       ev.Seq,
		Type:      ev.Type,
		Message:   ev.Message,
		Data:      ev.Data,
		Timestamp: ev.Timestamp,
	}
}

// StatsResponse — агрегированная статистика задач.
type StatsResponse struct {
	CountByStatus map[domain.TaskStatus]int `json:"count_by_status"`
	Total         int                       `json:"total"`
	SuccessRate   float64                   `json:"success_rate"`
	AvgDurationMS int64                     `json:"avg_duration_ms"`
}

// StatsFromStore конвертирует store.Stats в StatsResponse.
func StatsFromStore(s *store.Stats) StatsResponse {
	return StatsResponse{
		CountByStatus: s.CountByStatus,
		Total:         s.Total,
		SuccessRate:   s.SuccessRate,
		AvgDurationMS: s.AvgDuration.Milliseconds(),
	}
}

// HealthResponse — состояние пула и моста воркеров.
type HealthResponse struct {
	Status      string `json:"status"`
	PoolSize    int    `json:"pool_size"`
	PoolRunning int    `json:"pool_running"`
	QueueDepth  int    `json:"queue_depth"`
}
