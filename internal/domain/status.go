package domain

// TaskStatus — статус выполнения задачи автоматизации.
//
// Жизненный цикл:
//
//	PENDING → RUNNING → {COMPLETED, FAILED, INTERVENTION_NEEDED, CANCELLED}
//	RUNNING ⇄ PAUSED
//	INTERVENTION_NEEDED → RUNNING (после вмешательства)
//	                    → FAILED  (отказ / таймаут вмешательства)
//	PENDING → CANCELLED (отмена до запуска)
type TaskStatus string

const (
	// StatusPending — задача создана и ожидает свободного слота.
	StatusPending TaskStatus = "PENDING"

	// StatusRunning — задача выполняется воркером.
	StatusRunning TaskStatus = "RUNNING"

	// StatusPaused — автоматизация приостановлена, браузерная
	// сессия воркера остаётся живой.
	StatusPaused TaskStatus = "PAUSED"

	// StatusInterventionNeeded — требуется вмешательство человека
	// (captcha, ручное управление). Причина записывается в detail
	// перехода: "captcha_detected" или "user_takeover".
	StatusInterventionNeeded TaskStatus = "INTERVENTION_NEEDED"

	// StatusCompleted — задача успешно завершена.
	StatusCompleted TaskStatus = "COMPLETED"

	// StatusFailed — задача завершилась с ошибкой.
	StatusFailed TaskStatus = "FAILED"

	// StatusCancelled — задача отменена пользователем.
	StatusCancelled TaskStatus = "CANCELLED"
)

// IsTerminal возвращает true, если статус финальный.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// validTransitions — разрешённые переходы машины состояний.
var validTransitions = map[TaskStatus][]TaskStatus{
	StatusPending: {StatusRunning, StatusCancelled},
	StatusRunning: {StatusCompleted, StatusFailed, StatusInterventionNeeded, StatusCancelled, StatusPaused},
	// FAILED из PAUSED нужен, чтобы крах воркера во время паузы не
	// оставил задачу подвешенной.
	StatusPaused:             {StatusRunning, StatusCancelled, StatusFailed},
	StatusInterventionNeeded: {StatusRunning, StatusFailed},
}

// CanTransition проверяет, разрешён ли переход from → to.
func CanTransition(from, to TaskStatus) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ParseTaskStatus парсит строку в TaskStatus.
// Возвращает пустой статус, если строка не распознана.
func ParseTaskStatus(s string) TaskStatus {
	switch TaskStatus(s) {
	case StatusPending, StatusRunning, StatusPaused,
		StatusInterventionNeeded, StatusCompleted, StatusFailed, StatusCancelled:
		return TaskStatus(s)
	default:
		return ""
	}
}
