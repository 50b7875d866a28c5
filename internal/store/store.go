package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/dgarciamx/Tramita/internal/domain"
)

// Filter — параметры выборки задач.
type Filter struct {
	// Status — фильтр по статусу. Пустой — все статусы.
	Status domain.TaskStatus

	// Limit — размер страницы. 0 — значение по умолчанию (50).
	Limit int

	// Offset — смещение страницы.
	Offset int
}

// Stats — агрегированная статистика задач.
type Stats struct {
	// CountByStatus — количество задач по статусам.
	CountByStatus map[domain.TaskStatus]int `json:"count_by_status"`

	// Total — всего задач.
	Total int `json:"total"`

	// SuccessRate — доля успешных среди завершённых.
	// AMBIGUOUS-исходы засчитываются как неуспех.
	SuccessRate float64 `json:"success_rate"`

	// AvgDuration — средняя продолжительность завершённых задач.
	AvgDuration time.Duration `json:"avg_duration"`
}

// Store — хранилище задач и событий.
//
// userID в Get/List/Stats ограничивает выборку владельцем; пустой
// userID означает внутренний (нескоупленный) доступ — им пользуются
// Dispatcher и admin-роль.
type Store interface {
	// Create валидирует дескриптор и вставляет задачу в PENDING.
	// Невалидный дескриптор — ErrInvalidPayload.
	Create(ctx context.Context, task *domain.Task) error

	// Get возвращает задачу. Чужая или несуществующая — ErrNotFound.
	Get(ctx context.Context, userID string, id uuid.UUID) (*domain.Task, error)

	// List возвращает страницу задач пользователя и общее количество.
	List(ctx context.Context, userID string, f Filter) ([]domain.Task, int, error)

	// Transition — атомарный compare-and-set перехода from → to.
	// Несовпадение текущего статуса — ErrStaleState; запрещённый
	// переход — ErrInvalidTransition. result записывается вместе с
	// переходом (для финальных статусов и INTERVENTION_NEEDED).
	// Возвращает задачу после перехода.
	Transition(ctx context.Context, id uuid.UUID, from, to domain.TaskStatus, detail string, result *domain.TaskResult) (*domain.Task, error)

	// AppendEvent добавляет событие и возвращает присвоенный Seq.
	// Для задачи в финальном статусе — ErrTerminal (вызывающий
	// логирует и продолжает, событие не фатально).
	AppendEvent(ctx context.Context, ev *domain.TaskEvent) (int, error)

	// Events возвращает события задачи с Seq > afterSeq.
	Events(ctx context.Context, id uuid.UUID, afterSeq int) ([]domain.TaskEvent, error)

	// Stats возвращает агрегированную статистику.
	Stats(ctx context.Context, userID string) (*Stats, error)

	// PurgeTerminal удаляет события задач, завершённых раньше cutoff.
	// Возвращает количество затронутых задач.
	PurgeTerminal(ctx context.Context, cutoff time.Time) (int, error)
}

// TransitionRetry выполняет переход с одним повтором после ErrStaleState:
// перечитывает задачу и, если переход из нового статуса всё ещё разрешён,
// пробует ещё раз.
func TransitionRetry(ctx context.Context, s Store, id uuid.UUID, from, to domain.TaskStatus, detail string, result *domain.TaskResult) (*domain.Task, error) {
	task, err := s.Transition(ctx, id, from, to, detail, result)
	if err == nil || !errors.Is(err, ErrStaleState) {
		return task, err
	}

	current, err := s.Get(ctx, "", id)
	if err != nil {
		return nil, err
	}
	return s.Transition(ctx, id, current.Status, to, detail, result)
}
