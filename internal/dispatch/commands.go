package dispatch

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/dgarciamx/Tramita/internal/bridge"
	"github.com/dgarciamx/Tramita/internal/domain"
	"github.com/dgarciamx/Tramita/internal/store"
	"github.com/dgarciamx/Tramita/internal/telemetry"
)

// Команды наблюдателя. Проверка прав (владелец либо admin) выполняется
// вызывающим (API-слоем) через user-scoped store.Get; сюда задачи
// приходят уже авторизованными.

// Cancel отменяет задачу.
//
// PENDING — удаляется из очереди и сразу переходит в CANCELLED.
// RUNNING/PAUSED — воркеру отправляется stop с grace period, задача
// фиксируется CANCELLED немедленно: события, прилетающие после,
// отбрасываются. Повторный Cancel уже отменённой задачи — no-op,
// возвращающий тот же терминальный снимок.
// INTERVENTION_NEEDED — трактуется как отказ от вмешательства: FAILED.
func (d *Dispatcher) Cancel(ctx context.Context, taskID uuid.UUID) (*domain.Task, error) {
	task, err := d.store.Get(ctx, "", taskID)
	if err != nil {
		return nil, err
	}

	switch task.Status {
	case domain.StatusCancelled:
		// Идемпотентность: тот же снимок, не ошибка.
		return task, nil

	case domain.StatusCompleted, domain.StatusFailed:
		return nil, fmt.Errorf("%w: %s → %s", store.ErrInvalidTransition, task.Status, domain.StatusCancelled)

	case domain.StatusPending:
		d.mu.Lock()
		d.dequeued[taskID] = true
		d.mu.Unlock()
		return d.transition(ctx, taskID, domain.StatusPending, domain.StatusCancelled, "cancelled_before_admission", nil)

	case domain.StatusInterventionNeeded:
		ws := d.session(taskID)
		kind := domain.KindUnknown
		if ws != nil {
			ws.leaveIntervention()
			ws.markCancelled()
			kind = ws.errKind()
		}
		task, err = d.transition(ctx, taskID, domain.StatusInterventionNeeded, domain.StatusFailed, "intervention_abandoned", &domain.TaskResult{
			Outcome: domain.OutcomeFailure,
			Error: &domain.ErrorDetail{
				Kind:    kind,
				Message: "intervention abandoned by user",
			},
		})
		if err != nil {
			return nil, err
		}
		if ws != nil {
			ws.sess.Terminate()
		}
		return task, nil

	default: // RUNNING, PAUSED
		ws := d.session(taskID)
		if ws != nil {
			ws.markCancelled()
		}

		task, err = d.transition(ctx, taskID, task.Status, domain.StatusCancelled, "cancelled_by_user", &domain.TaskResult{
			Outcome: domain.OutcomePartial,
			Output:  map[string]any{"cancelled": true},
		})
		if err != nil {
			return nil, err
		}

		// Кооперативная остановка: stop-команда, grace period, kill.
		if ws != nil {
			ws.sess.Terminate()
		}
		return task, nil
	}
}

// Pause приостанавливает автоматизацию, сохраняя браузерный контекст
// воркера живым для прямого ручного взаимодействия.
func (d *Dispatcher) Pause(ctx context.Context, taskID uuid.UUID) (*domain.Task, error) {
	ws := d.session(taskID)
	if ws == nil {
		return nil, ErrNoSession
	}

	task, err := d.transition(ctx, taskID, domain.StatusRunning, domain.StatusPaused, "user_pause", nil)
	if err != nil {
		return nil, wrapNotRunning(err)
	}

	if sendErr := ws.sess.Send(bridge.CommandPause); sendErr != nil {
		d.logger.Warn("pause command failed", "task_id", taskID, "error", sendErr)
	}
	return task, nil
}

// Resume возобновляет выполнение из PAUSED или INTERVENTION_NEEDED.
// Воркер обязан заново проанализировать состояние страницы, прежде чем
// действовать: страница могла измениться, пока человек управлял ею.
func (d *Dispatcher) Resume(ctx context.Context, taskID uuid.UUID) (*domain.Task, error) {
	ws := d.session(taskID)
	if ws == nil {
		return nil, ErrNoSession
	}

	current, err := d.store.Get(ctx, "", taskID)
	if err != nil {
		return nil, err
	}

	var detail string
	switch current.Status {
	case domain.StatusPaused:
		detail = "user_resume"
	case domain.StatusInterventionNeeded:
		detail = "intervention_resolved"
		ws.leaveIntervention()
	default:
		return nil, fmt.Errorf("%w: status %s", ErrNotPaused, current.Status)
	}

	task, err := d.transition(ctx, taskID, current.Status, domain.StatusRunning, detail, nil)
	if err != nil {
		return nil, err
	}

	if sendErr := ws.sess.Send(bridge.CommandResume); sendErr != nil {
		d.logger.Warn("resume command failed", "task_id", taskID, "error", sendErr)
	}
	return task, nil
}

// TakeControl — пауза плюс передача человеку прямого управления
// браузером. Задача входит в INTERVENTION_NEEDED с причиной
// "user_takeover"; возврат управления — Resume (с повторным анализом
// страницы воркером).
func (d *Dispatcher) TakeControl(ctx context.Context, taskID uuid.UUID) (*domain.Task, error) {
	ws := d.session(taskID)
	if ws == nil {
		return nil, ErrNoSession
	}

	task, err := d.transition(ctx, taskID, domain.StatusRunning, domain.StatusInterventionNeeded, "user_takeover", nil)
	if err != nil {
		return nil, wrapNotRunning(err)
	}
	telemetry.InterventionsTotal.WithLabelValues("user_takeover").Inc()
	ws.enterIntervention(nil, domain.KindUnknown)

	if sendErr := ws.sess.Send(bridge.CommandTakeControl); sendErr != nil {
		d.logger.Warn("take_control command failed", "task_id", taskID, "error", sendErr)
	}
	return task, nil
}

// session возвращает живую сессию задачи.
func (d *Dispatcher) session(taskID uuid.UUID) *workerSession {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sessions[taskID]
}

func wrapNotRunning(err error) error {
	return fmt.Errorf("%w: %v", ErrNotRunning, err)
}
