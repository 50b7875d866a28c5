package domain

import "errors"

// Ошибки валидации дескриптора задачи.
var (
	// ErrMissingUser — не указан владелец задачи.
	ErrMissingUser = errors.New("missing user id")

	// ErrMissingTargetURL — не указан адрес портала.
	ErrMissingTargetURL = errors.New("missing target url")

	// ErrEmptyPayload — пустой payload (нечего вводить в форму).
	ErrEmptyPayload = errors.New("empty payload")
)
