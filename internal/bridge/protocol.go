package bridge

import (
	"time"

	"github.com/google/uuid"

	"github.com/dgarciamx/Tramita/internal/domain"
)

// Descriptor — дескриптор задачи, отправляемый воркеру одной строкой
// при запуске процесса.
type Descriptor struct {
	TaskID    uuid.UUID               `json:"task_id"`
	TargetURL string                  `json:"target_url"`
	Payload   map[string]any          `json:"payload"`
	Config    domain.AutomationConfig `json:"config"`
	Profile   *domain.VendorProfile   `json:"profile,omitempty"`

	// Resume — повторный вход в приостановленную задачу: воркер обязан
	// заново проанализировать состояние страницы, не считая её неизменной.
	Resume bool `json:"resume,omitempty"`

	// TakeControl — человеку передано прямое управление браузером.
	TakeControl bool `json:"take_control,omitempty"`
}

// CommandName — команда, отправляемая воркеру после дескриптора.
type CommandName string

const (
	CommandPause       CommandName = "pause"
	CommandResume      CommandName = "resume"
	CommandTakeControl CommandName = "take_control"
	CommandStop        CommandName = "stop"
)

// Command — командная строка протокола (оркестратор → воркер).
type Command struct {
	Command CommandName `json:"command"`
}

// WireMessage — входящая строка протокола (воркер → оркестратор).
//
// Type — либо тип события (thinking, action, observation, goal, memory,
// evaluation, status, error), либо "result" для единственного финального
// сообщения.
type WireMessage struct {
	Type      string             `json:"type"`
	Message   string             `json:"message,omitempty"`
	Data      map[string]any     `json:"data,omitempty"`
	Result    *domain.TaskResult `json:"result,omitempty"`
	Timestamp time.Time          `json:"timestamp,omitempty"`
}

// wireResult — значение Type финального сообщения.
const wireResult = "result"

// SessionResult — итог сессии воркера.
//
// Если воркер завершился без финального сообщения или превысил таймаут,
// Result синтезируется мостом с соответствующим ErrorKind.
type SessionResult struct {
	Result *domain.TaskResult

	// Kind — причина синтезированного результата (WORKER_CRASHED,
	// SESSION_TIMEOUT) либо пустая строка, если результат от воркера.
	Kind domain.ErrorKind
}
