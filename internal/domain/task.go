package domain

import (
	"time"

	"github.com/google/uuid"
)

// Task — один запрошенный прогон автоматизации на портале поставщика.
//
// Task создаётся через API, ставится Dispatcher'ом в FIFO-очередь
// и выполняется изолированным воркер-процессом. Все мутации статуса
// проходят через compare-and-set переход в Store.
type Task struct {
	// ID — уникальный идентификатор задачи. Неизменяем после создания.
	ID uuid.UUID `json:"id"`

	// UserID — владелец задачи. Чтение и команды доступны только ему
	// (и роли admin).
	UserID string `json:"user_id"`

	// TargetURL — адрес портала, на котором заполняется форма.
	TargetURL string `json:"target_url"`

	// Payload — поля счёта для ввода (rfc, nombre, total и т.д.).
	Payload map[string]any `json:"payload,omitempty"`

	// Config — параметры автоматизации (провайдер, лимиты, таймауты).
	Config AutomationConfig `json:"config"`

	// ProfileKey — ключ vendor-профиля. Пустой ключ означает generic.
	ProfileKey string `json:"profile_key,omitempty"`

	// Status — текущий статус задачи.
	Status TaskStatus `json:"status"`

	// Result — итог выполнения. Заполняется при переходе в финальный статус.
	Result *TaskResult `json:"result,omitempty"`

	// Transitions — упорядоченная история переходов статуса.
	Transitions []Transition `json:"transitions,omitempty"`

	// CreatedAt — время создания.
	CreatedAt time.Time `json:"created_at"`

	// StartedAt — время первого перехода в RUNNING.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt — время перехода в финальный статус.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Transition — одна запись истории переходов статуса.
type Transition struct {
	From   TaskStatus `json:"from"`
	To     TaskStatus `json:"to"`
	Detail string     `json:"detail,omitempty"`
	At     time.Time  `json:"at"`
}

// AutomationConfig — параметры выполнения, передаваемые воркеру
// в дескрипторе задачи.
type AutomationConfig struct {
	// Provider — селектор LLM-провайдера воркера (opaque для оркестратора).
	Provider string `json:"provider,omitempty"`

	// Model — модель провайдера.
	Model string `json:"model,omitempty"`

	// MaxRetries — верхний предел повторов retryable-ошибок внутри воркера.
	MaxRetries int `json:"max_retries,omitempty"`

	// SessionTimeout — жёсткий wall-clock лимит всей сессии.
	SessionTimeout time.Duration `json:"session_timeout,omitempty"`

	// ActionTimeout — лимит одного действия внутри воркера.
	// Оркестратор его не применяет, только пробрасывает в дескриптор.
	ActionTimeout time.Duration `json:"action_timeout,omitempty"`

	// MaxSteps — ограничение числа шагов агента (защита от зацикливания).
	MaxSteps int `json:"max_steps,omitempty"`
}

// Duration возвращает продолжительность выполнения.
// Возвращает 0, если задача ещё не завершена.
func (t *Task) Duration() time.Duration {
	if t.StartedAt == nil || t.CompletedAt == nil {
		return 0
	}
	return t.CompletedAt.Sub(*t.StartedAt)
}

// IsFinished возвращает true, если задача в финальном статусе.
func (t *Task) IsFinished() bool {
	return t.Status.IsTerminal()
}

// Validate проверяет форму дескриптора при создании задачи.
func (t *Task) Validate() error {
	if t.UserID == "" {
		return ErrMissingUser
	}
	if t.TargetURL == "" {
		return ErrMissingTargetURL
	}
	if len(t.Payload) == 0 {
		return ErrEmptyPayload
	}
	return nil
}
