package bridge

import "errors"

// Ошибки моста.
var (
	// ErrSessionClosed — сессия уже завершена, команды не принимаются.
	ErrSessionClosed = errors.New("session closed")

	// ErrSpawnFailed — не удалось запустить воркер-процесс.
	ErrSpawnFailed = errors.New("failed to spawn worker process")
)
