package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/dgarciamx/Tramita/internal/domain"
	"github.com/dgarciamx/Tramita/internal/store"
	"github.com/dgarciamx/Tramita/internal/telemetry"
)

// CreateTask создаёт задачу и ставит её в очередь.
// POST /api/v1/tasks
func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	id := IdentityFrom(r.Context())

	var req CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	task := &domain.Task{
		UserID:     id.UserID,
		TargetURL:  req.TargetURL,
		Payload:    req.Payload,
		Config:     req.Config,
		ProfileKey: req.ProfileKey,
	}

	taskID, err := h.dispatcher.Submit(r.Context(), task)
	if HandleStoreError(w, h.logger, err, "") {
		return
	}

	created, err := h.store.Get(r.Context(), id.UserID, taskID)
	if HandleStoreError(w, h.logger, err, "task not found") {
		return
	}

	telemetry.WithUserID(h.logger, id.UserID).Info("task created",
		"task_id", created.ID, "target_url", created.TargetURL)
	Created(w, TaskFromDomain(created))
}

// GetTask возвращает задачу владельца.
// GET /api/v1/tasks/{id}
//
// Чужая задача — NOT_FOUND, не FORBIDDEN: существование чужих задач
// не раскрывается.
func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	taskID, ok := taskIDFrom(w, r)
	if !ok {
		return
	}

	task, err := h.store.Get(r.Context(), h.readScope(r), taskID)
	if HandleStoreError(w, h.logger, err, "task not found") {
		return
	}
	Success(w, TaskFromDomain(task))
}

// ListTasks возвращает страницу задач владельца.
// GET /api/v1/tasks?status=...&limit=...&offset=...
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	filter := store.Filter{
		Status: domain.TaskStatus(r.URL.Query().Get("status")),
		Limit:  queryInt(r, "limit", 50),
		Offset: queryInt(r, "offset", 0),
	}

	tasks, total, err := h.store.List(r.Context(), h.readScope(r), filter)
	if HandleStoreError(w, h.logger, err, "") {
		return
	}

	result := make([]TaskResponse, len(tasks))
	for i := range tasks {
		result[i] = TaskFromDomain(&tasks[i])
	}
	List(w, result, total)
}

// CancelTask отменяет задачу.
// POST /api/v1/tasks/{id}/cancel
func (h *Handler) CancelTask(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, h.dispatcher.Cancel)
}

// StopTask — алиас отмены: завершить и зафиксировать частичный результат.
// POST /api/v1/tasks/{id}/stop
func (h *Handler) StopTask(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, h.dispatcher.Cancel)
}

// PauseTask приостанавливает выполнение.
// POST /api/v1/tasks/{id}/pause
func (h *Handler) PauseTask(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, h.dispatcher.Pause)
}

// ResumeTask возобновляет выполнение.
// POST /api/v1/tasks/{id}/resume
func (h *Handler) ResumeTask(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, h.dispatcher.Resume)
}

// TakeControlTask передаёт управление страницей человеку.
// POST /api/v1/tasks/{id}/take-control
func (h *Handler) TakeControlTask(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, h.dispatcher.TakeControl)
}

// command — общий каркас команды: проверка владения, затем вызов
// диспетчера. Команда на чужую задачу — FORBIDDEN, в отличие от
// чтений: сам факт команды содержимое задачи не раскрывает.
func (h *Handler) command(w http.ResponseWriter, r *http.Request, op func(context.Context, uuid.UUID) (*domain.Task, error)) {
	taskID, ok := taskIDFrom(w, r)
	if !ok {
		return
	}

	id := IdentityFrom(r.Context())
	task, err := h.store.Get(r.Context(), "", taskID)
	if errors.Is(err, store.ErrNotFound) {
		NotFound(w, "task not found")
		return
	}
	if HandleStoreError(w, h.logger, err, "") {
		return
	}
	if !id.Admin && task.UserID != id.UserID {
		Forbidden(w)
		return
	}

	updated, err := op(r.Context(), taskID)
	if HandleStoreError(w, h.logger, err, "task not found") {
		return
	}
	Success(w, TaskFromDomain(updated))
}

// ListEvents возвращает накопленные события задачи.
// GET /api/v1/tasks/{id}/events?after_seq=...
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	taskID, ok := taskIDFrom(w, r)
	if !ok {
		return
	}

	// Скоупинг через Get: чужая задача — NOT_FOUND.
	if _, err := h.store.Get(r.Context(), h.readScope(r), taskID); HandleStoreError(w, h.logger, err, "task not found") {
		return
	}

	events, err := h.store.Events(r.Context(), taskID, queryInt(r, "after_seq", 0))
	if HandleStoreError(w, h.logger, err, "task not found") {
		return
	}

	result := make([]EventResponse, len(events))
	for i, ev := range events {
		result[i] = EventFromDomain(ev)
	}
	List(w, result, len(result))
}

// StreamEvents — SSE-поток событий и переходов задачи.
// GET /api/v1/tasks/{id}/events/stream
//
// Поздний подписчик получает события с момента подписки; финальный
// переход закрывает поток.
func (h *Handler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	taskID, ok := taskIDFrom(w, r)
	if !ok {
		return
	}

	task, err := h.store.Get(r.Context(), h.readScope(r), taskID)
	if HandleStoreError(w, h.logger, err, "task not found") {
		return
	}

	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		InternalError(w, h.logger, errors.New("response writer does not support streaming"))
		return
	}

	sub, cancel := h.gateway.Subscribe(taskID)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	// Первое сообщение — текущий статус: подписчик знает, откуда наблюдает.
	writeSSE(w, "status", map[string]any{"task_id": taskID, "status": task.Status})
	flusher.Flush()

	if task.Status.IsTerminal() {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case n, open := <-sub:
			if !open {
				return
			}
			if n.Event != nil {
				writeSSE(w, "event", EventFromDomain(*n.Event))
			}
			if n.Transition != nil {
				writeSSE(w, "transition", n.Transition)
				if n.Transition.Status.IsTerminal() {
					flusher.Flush()
					return
				}
			}
			flusher.Flush()
		}
	}
}

// GetStats возвращает статистику задач вызывающего.
// GET /api/v1/stats
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats(r.Context(), h.readScope(r))
	if HandleStoreError(w, h.logger, err, "") {
		return
	}
	Success(w, StatsFromStore(stats))
}

// Health — проба состояния пула.
// GET /healthz
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	status := "ok"
	httpStatus := http.StatusOK
	if h.dispatcher.IsStopped() {
		status = "stopped"
		httpStatus = http.StatusServiceUnavailable
	}

	JSON(w, httpStatus, HealthResponse{
		Status:      status,
		PoolSize:    h.dispatcher.PoolSize(),
		PoolRunning: h.dispatcher.RunningCount(),
		QueueDepth:  h.dispatcher.QueueDepth(),
	})
}

// --- Helpers ---

// readScope — скоуп чтения: admin видит все задачи.
func (h *Handler) readScope(r *http.Request) string {
	id := IdentityFrom(r.Context())
	if id == nil {
		return "-"
	}
	if id.Admin {
		return ""
	}
	return id.UserID
}

// taskIDFrom извлекает и валидирует {id} из пути.
func taskIDFrom(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid task id")
		return uuid.Nil, false
	}
	return id, true
}

// queryInt читает целочисленный query-параметр с значением по умолчанию.
func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}

// writeSSE пишет одно SSE-сообщение.
func writeSSE(w http.ResponseWriter, event string, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		return
	}
	w.Write([]byte("event: " + event + "\ndata: " + string(body) + "\n\n"))
}
