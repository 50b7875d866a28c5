package store

import "errors"

// Ошибки хранилища задач.
var (
	// ErrNotFound — задача не найдена либо принадлежит другому
	// пользователю. Чужие задачи намеренно неотличимы от
	// несуществующих, чтобы не раскрывать их существование.
	ErrNotFound = errors.New("task not found")

	// ErrInvalidPayload — дескриптор задачи не прошёл валидацию.
	ErrInvalidPayload = errors.New("invalid payload")

	// ErrInvalidTransition — запрошенный переход не разрешён машиной
	// состояний.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrStaleState — текущий статус не совпал с ожидаемым
	// (конкурирующий переход выиграл). Вызывающий перечитывает и
	// повторяет один раз.
	ErrStaleState = errors.New("stale state")

	// ErrTerminal — задача уже в финальном статусе. Поздние события
	// упавшего воркера не должны воскрешать состояние.
	ErrTerminal = errors.New("task already terminal")
)
