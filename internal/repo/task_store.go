package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dgarciamx/Tramita/internal/domain"
	"github.com/dgarciamx/Tramita/internal/store"
)

const defaultPageSize = 50

// TaskStore — PostgreSQL-реализация store.Store.
//
// Compare-and-set переходов выражен условием WHERE id = $1 AND
// status = $2: конкурирующий переход не затирается, проигравший
// получает ErrStaleState. Ошибки — сентинелы пакета store, чтобы
// вызывающие не различали бэкенды.
type TaskStore struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*TaskStore)(nil)

// NewTaskStore создаёт TaskStore поверх пула соединений.
func NewTaskStore(pool *pgxpool.Pool) *TaskStore {
	return &TaskStore{pool: pool}
}

const taskColumns = `
	id, user_id, target_url, payload, config, profile_key, status,
	result, transitions, created_at, started_at, completed_at`

// Create валидирует дескриптор и вставляет задачу в PENDING.
func (s *TaskStore) Create(ctx context.Context, task *domain.Task) error {
	if err := task.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidPayload, err)
	}

	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	task.Status = domain.StatusPending
	task.CreatedAt = time.Now().UTC()

	payloadJSON, err := json.Marshal(task.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	configJSON, err := json.Marshal(task.Config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	query := `
		INSERT INTO tasks (id, user_id, target_url, payload, config, profile_key,
		                   status, transitions, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, '[]'::jsonb, $8)
	`
	_, err = s.pool.Exec(ctx, query,
		task.ID,
		task.UserID,
		task.TargetURL,
		payloadJSON,
		configJSON,
		nullString(task.ProfileKey),
		task.Status,
		task.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// Get возвращает задачу. Чужая или несуществующая — ErrNotFound.
func (s *TaskStore) Get(ctx context.Context, userID string, id uuid.UUID) (*domain.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE id = $1 AND ($2 = '' OR user_id = $2)
	`
	return scanTask(s.pool.QueryRow(ctx, query, id, userID))
}

// List возвращает страницу задач пользователя, новые первыми,
// и общее количество подходящих.
func (s *TaskStore) List(ctx context.Context, userID string, f store.Filter) ([]domain.Task, int, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}

	query := `
		SELECT ` + taskColumns + `, COUNT(*) OVER () AS total
		FROM tasks
		WHERE ($1 = '' OR user_id = $1)
		  AND ($2::text IS NULL OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := s.pool.Query(ctx, query,
		userID,
		nullString(string(f.Status)),
		limit,
		f.Offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []domain.Task
	var total int
	for rows.Next() {
		task, n, err := scanTaskWithTotal(rows)
		if err != nil {
			return nil, 0, err
		}
		tasks = append(tasks, *task)
		total = n
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	if tasks == nil && f.Offset > 0 {
		// Страница за пределами выборки: общее количество берём отдельно.
		total, err = s.countTasks(ctx, userID, f.Status)
		if err != nil {
			return nil, 0, err
		}
	}
	return tasks, total, nil
}

func (s *TaskStore) countTasks(ctx context.Context, userID string, status domain.TaskStatus) (int, error) {
	var total int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM tasks
		WHERE ($1 = '' OR user_id = $1)
		  AND ($2::text IS NULL OR status = $2)
	`, userID, nullString(string(status))).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("count tasks: %w", err)
	}
	return total, nil
}

// Transition — атомарный compare-and-set переход from → to.
func (s *TaskStore) Transition(ctx context.Context, id uuid.UUID, from, to domain.TaskStatus, detail string, result *domain.TaskResult) (*domain.Task, error) {
	if !domain.CanTransition(from, to) {
		return nil, fmt.Errorf("%w: %s → %s", store.ErrInvalidTransition, from, to)
	}

	now := time.Now().UTC()
	transitionJSON, err := json.Marshal(domain.Transition{
		From:   from,
		To:     to,
		Detail: detail,
		At:     now,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal transition: %w", err)
	}

	var resultJSON []byte
	if result != nil {
		resultJSON, err = json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("marshal result: %w", err)
		}
	}

	query := `
		UPDATE tasks
		SET status = $3,
		    transitions = transitions || $4::jsonb,
		    result = COALESCE($5::jsonb, result),
		    started_at = CASE WHEN $3 = 'RUNNING' AND started_at IS NULL
		                      THEN $6 ELSE started_at END,
		    completed_at = CASE WHEN $7 THEN $6 ELSE completed_at END
		WHERE id = $1 AND status = $2
		RETURNING ` + taskColumns + `
	`
	task, err := scanTask(s.pool.QueryRow(ctx, query,
		id,
		from,
		to,
		transitionJSON,
		resultJSON,
		now,
		to.IsTerminal(),
	))
	if err == nil {
		return task, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	// Строка не обновилась: задача либо не существует, либо CAS проиграл.
	var current domain.TaskStatus
	err = s.pool.QueryRow(ctx, `SELECT status FROM tasks WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("check status: %w", err)
	}
	return nil, fmt.Errorf("%w: expected %s, have %s", store.ErrStaleState, from, current)
}

// AppendEvent добавляет событие с очередным Seq.
//
// Seq назначается в транзакции под блокировкой строки задачи: на одну
// задачу пишет единственная воркер-сессия, но блокировка защищает
// от гонки с поздними событиями после финализации.
func (s *TaskStore) AppendEvent(ctx context.Context, ev *domain.TaskEvent) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var status domain.TaskStatus
	err = tx.QueryRow(ctx, `SELECT status FROM tasks WHERE id = $1 FOR UPDATE`, ev.TaskID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, store.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("lock task: %w", err)
	}
	if status.IsTerminal() {
		return 0, store.ErrTerminal
	}

	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	dataJSON, err := json.Marshal(ev.Data)
	if err != nil {
		return 0, fmt.Errorf("marshal event data: %w", err)
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO task_events (task_id, seq, type, message, data, created_at)
		SELECT $1, COALESCE(MAX(seq), 0) + 1, $2, $3, $4, $5
		FROM task_events
		WHERE task_id = $1
		RETURNING seq
	`, ev.TaskID, ev.Type, ev.Message, dataJSON, ev.Timestamp).Scan(&ev.Seq)
	if err != nil {
		return 0, fmt.Errorf("insert event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return ev.Seq, nil
}

// Events возвращает события задачи с Seq > afterSeq.
func (s *TaskStore) Events(ctx context.Context, id uuid.UUID, afterSeq int) ([]domain.TaskEvent, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tasks WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check task: %w", err)
	}
	if !exists {
		return nil, store.ErrNotFound
	}

	rows, err := s.pool.Query(ctx, `
		SELECT seq, type, message, data, created_at
		FROM task_events
		WHERE task_id = $1 AND seq > $2
		ORDER BY seq ASC
	`, id, afterSeq)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []domain.TaskEvent
	for rows.Next() {
		ev := domain.TaskEvent{TaskID: id}
		var dataJSON []byte
		if err := rows.Scan(&ev.Seq, &ev.Type, &ev.Message, &dataJSON, &ev.Timestamp); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if len(dataJSON) > 0 {
			if err := json.Unmarshal(dataJSON, &ev.Data); err != nil {
				return nil, fmt.Errorf("unmarshal event data: %w", err)
			}
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Stats считает агрегаты по задачам пользователя.
func (s *TaskStore) Stats(ctx context.Context, userID string) (*store.Stats, error) {
	stats := &store.Stats{CountByStatus: make(map[domain.TaskStatus]int)}

	rows, err := s.pool.Query(ctx, `
		SELECT status, COUNT(*)
		FROM tasks
		WHERE ($1 = '' OR user_id = $1)
		GROUP BY status
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status domain.TaskStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		stats.CountByStatus[status] = count
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// AMBIGUOUS-исходы хранятся с success=false и засчитываются как неуспех.
	var finished, succeeded int
	var avgSeconds *float64
	err = s.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE (result->>'success')::boolean),
		       AVG(EXTRACT(EPOCH FROM (completed_at - started_at)))
		       FILTER (WHERE started_at IS NOT NULL)
		FROM tasks
		WHERE ($1 = '' OR user_id = $1)
		  AND status IN ('COMPLETED', 'FAILED', 'CANCELLED')
	`, userID).Scan(&finished, &succeeded, &avgSeconds)
	if err != nil {
		return nil, fmt.Errorf("aggregate finished: %w", err)
	}

	if finished > 0 {
		stats.SuccessRate = float64(succeeded) / float64(finished)
	}
	if avgSeconds != nil {
		stats.AvgDuration = time.Duration(*avgSeconds * float64(time.Second))
	}
	return stats, nil
}

// PurgeTerminal удаляет события задач, завершённых раньше cutoff.
func (s *TaskStore) PurgeTerminal(ctx context.Context, cutoff time.Time) (int, error) {
	var purged int
	err := s.pool.QueryRow(ctx, `
		WITH victims AS (
			SELECT id FROM tasks
			WHERE status IN ('COMPLETED', 'FAILED', 'CANCELLED')
			  AND completed_at <= $1
		),
		deleted AS (
			DELETE FROM task_events
			WHERE task_id IN (SELECT id FROM victims)
			RETURNING task_id
		)
		SELECT COUNT(DISTINCT task_id) FROM deleted
	`, cutoff).Scan(&purged)
	if err != nil {
		return 0, fmt.Errorf("purge events: %w", err)
	}
	return purged, nil
}

// --- Helpers ---

// scanTask сканирует одну строку в Task.
func scanTask(row pgx.Row) (*domain.Task, error) {
	task, _, err := scanTaskColumns(row, false)
	return task, err
}

// scanTaskWithTotal сканирует строку с дополнительной колонкой total.
func scanTaskWithTotal(row pgx.Row) (*domain.Task, int, error) {
	return scanTaskColumns(row, true)
}

func scanTaskColumns(row pgx.Row, withTotal bool) (*domain.Task, int, error) {
	var task domain.Task
	var payloadJSON, configJSON, transitionsJSON []byte
	var resultJSON []byte
	var profileKey *string
	var total int

	dest := []any{
		&task.ID,
		&task.UserID,
		&task.TargetURL,
		&payloadJSON,
		&configJSON,
		&profileKey,
		&task.Status,
		&resultJSON,
		&transitionsJSON,
		&task.CreatedAt,
		&task.StartedAt,
		&task.CompletedAt,
	}
	if withTotal {
		dest = append(dest, &total)
	}

	err := row.Scan(dest...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, 0, store.ErrNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("scan task: %w", err)
	}

	if len(payloadJSON) > 0 {
		if err := json.Unmarshal(payloadJSON, &task.Payload); err != nil {
			return nil, 0, fmt.Errorf("unmarshal payload: %w", err)
		}
	}
	if len(configJSON) > 0 {
		if err := json.Unmarshal(configJSON, &task.Config); err != nil {
			return nil, 0, fmt.Errorf("unmarshal config: %w", err)
		}
	}
	if len(resultJSON) > 0 {
		task.Result = &domain.TaskResult{}
		if err := json.Unmarshal(resultJSON, task.Result); err != nil {
			return nil, 0, fmt.Errorf("unmarshal result: %w", err)
		}
	}
	if len(transitionsJSON) > 0 {
		if err := json.Unmarshal(transitionsJSON, &task.Transitions); err != nil {
			return nil, 0, fmt.Errorf("unmarshal transitions: %w", err)
		}
	}
	if profileKey != nil {
		task.ProfileKey = *profileKey
	}

	return &task, total, nil
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
