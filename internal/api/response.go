package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dgarciamx/Tramita/internal/dispatch"
	"github.com/dgarciamx/Tramita/internal/store"
)

// ErrorCode — код ошибки API.
type ErrorCode string

const (
	ErrCodeBadRequest        ErrorCode = "BAD_REQUEST"
	ErrCodeInvalidPayload    ErrorCode = "INVALID_PAYLOAD"
	ErrCodeNotFound          ErrorCode = "NOT_FOUND"
	ErrCodeForbidden         ErrorCode = "FORBIDDEN"
	ErrCodeUnauthorized      ErrorCode = "UNAUTHORIZED"
	ErrCodeInvalidTransition ErrorCode = "INVALID_TRANSITION"
	ErrCodeStaleState        ErrorCode = "STALE_STATE"
	ErrCodeUnavailable       ErrorCode = "UNAVAILABLE"
	ErrCodeInternalError     ErrorCode = "INTERNAL_ERROR"
)

// ErrorResponse — структура ответа с ошибкой.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody — детали ошибки.
type ErrorBody struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// DataResponse — структура успешного ответа.
type DataResponse struct {
	Data any `json:"data"`
}

// ListResponse — структура ответа со списком.
type ListResponse struct {
	Data  any `json:"data"`
	Total int `json:"total"`
}

// JSON отправляет JSON ответ.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Success отправляет успешный ответ с данными.
func Success(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, DataResponse{Data: data})
}

// Created отправляет ответ о создании ресурса.
func Created(w http.ResponseWriter, data any) {
	JSON(w, http.StatusCreated, DataResponse{Data: data})
}

// List отправляет ответ со списком.
func List(w http.ResponseWriter, data any, total int) {
	JSON(w, http.StatusOK, ListResponse{Data: data, Total: total})
}

// Error отправляет ответ с ошибкой.
func Error(w http.ResponseWriter, status int, code ErrorCode, message string) {
	JSON(w, status, ErrorResponse{
		Error: ErrorBody{
			Code:    code,
			Message: message,
		},
	})
}

// BadRequest отправляет ошибку 400.
func BadRequest(w http.ResponseWriter, message string) {
	Error(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// NotFound отправляет ошибку 404.
func NotFound(w http.ResponseWriter, message string) {
	Error(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// Forbidden отправляет ошибку 403.
func Forbidden(w http.ResponseWriter) {
	Error(w, http.StatusForbidden, ErrCodeForbidden, "forbidden")
}

// Unauthorized отправляет ошибку 401.
func Unauthorized(w http.ResponseWriter) {
	Error(w, http.StatusUnauthorized, ErrCodeUnauthorized, "unauthorized")
}

// InternalError отправляет ошибку 500.
func InternalError(w http.ResponseWriter, logger *slog.Logger, err error) {
	logger.Error("internal error", "error", err)
	Error(w, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")
}

// HandleStoreError преобразует ошибку хранилища/диспетчера в HTTP ответ.
// Возвращает true, если ошибка обработана.
func HandleStoreError(w http.ResponseWriter, logger *slog.Logger, err error, notFoundMsg string) bool {
	if err == nil {
		return false
	}

	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, dispatch.ErrNoSession):
		NotFound(w, notFoundMsg)
	case errors.Is(err, store.ErrInvalidPayload):
		Error(w, http.StatusBadRequest, ErrCodeInvalidPayload, err.Error())
	case errors.Is(err, store.ErrInvalidTransition),
		errors.Is(err, dispatch.ErrNotRunning),
		errors.Is(err, dispatch.ErrNotPaused):
		Error(w, http.StatusConflict, ErrCodeInvalidTransition, err.Error())
	case errors.Is(err, store.ErrStaleState):
		Error(w, http.StatusConflict, ErrCodeStaleState, err.Error())
	case errors.Is(err, dispatch.ErrDispatcherStopped):
		Error(w, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error())
	default:
		InternalError(w, logger, err)
	}
	return true
}
