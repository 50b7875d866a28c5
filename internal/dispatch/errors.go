package dispatch

import "errors"

// Ошибки диспетчера.
var (
	// ErrNoSession — у задачи нет привязанной воркер-сессии.
	ErrNoSession = errors.New("no bound worker session")

	// ErrDispatcherStopped — диспетчер остановлен, новые задачи не
	// принимаются.
	ErrDispatcherStopped = errors.New("dispatcher stopped")

	// ErrNotPaused — resume для задачи, которая не в PAUSED и не в
	// INTERVENTION_NEEDED.
	ErrNotPaused = errors.New("task is not paused")

	// ErrNotRunning — pause/take_control для задачи не в RUNNING.
	ErrNotRunning = errors.New("task is not running")
)
