package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dgarciamx/Tramita/internal/domain"
)

const defaultPageSize = 50

// MemStore — in-memory реализация Store.
//
// Используется в тестах и в standalone-режиме без PostgreSQL.
// Один мьютекс сериализует все переходы: инвариант "не более одного
// активного перехода на задачу" выполняется тривиально.
type MemStore struct {
	mu     sync.RWMutex
	tasks  map[uuid.UUID]*domain.Task
	events map[uuid.UUID][]domain.TaskEvent
}

// NewMemStore создаёт пустой MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		tasks:  make(map[uuid.UUID]*domain.Task),
		events: make(map[uuid.UUID][]domain.TaskEvent),
	}
}

// Create валидирует дескриптор и вставляет задачу в PENDING.
func (m *MemStore) Create(_ context.Context, task *domain.Task) error {
	if err := task.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	task.Status = domain.StatusPending
	task.CreatedAt = time.Now().UTC()

	m.tasks[task.ID] = cloneTask(task)
	return nil
}

// Get возвращает копию задачи. Чужая задача — ErrNotFound.
func (m *MemStore) Get(_ context.Context, userID string, id uuid.UUID) (*domain.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	task, ok := m.tasks[id]
	if !ok || (userID != "" && task.UserID != userID) {
		return nil, ErrNotFound
	}
	return cloneTask(task), nil
}

// List возвращает страницу задач пользователя, новые первыми.
func (m *MemStore) List(_ context.Context, userID string, f Filter) ([]domain.Task, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []*domain.Task
	for _, task := range m.tasks {
		if userID != "" && task.UserID != userID {
			continue
		}
		if f.Status != "" && task.Status != f.Status {
			continue
		}
		matched = append(matched, task)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	limit := f.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}

	start := f.Offset
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	page := make([]domain.Task, 0, end-start)
	for _, task := range matched[start:end] {
		page = append(page, *cloneTask(task))
	}
	return page, total, nil
}

// Transition — compare-and-set переход статуса.
func (m *MemStore) Transition(_ context.Context, id uuid.UUID, from, to domain.TaskStatus, detail string, result *domain.TaskResult) (*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}

	if task.Status != from {
		return nil, fmt.Errorf("%w: expected %s, have %s", ErrStaleState, from, task.Status)
	}
	if !domain.CanTransition(from, to) {
		return nil, fmt.Errorf("%w: %s → %s", ErrInvalidTransition, from, to)
	}

	now := time.Now().UTC()
	task.Status = to
	task.Transitions = append(task.Transitions, domain.Transition{
		From:   from,
		To:     to,
		Detail: detail,
		At:     now,
	})

	if to == domain.StatusRunning && task.StartedAt == nil {
		task.StartedAt = &now
	}
	if to.IsTerminal() {
		task.CompletedAt = &now
	}
	if result != nil {
		task.Result = result
	}

	return cloneTask(task), nil
}

// AppendEvent добавляет событие с очередным Seq.
func (m *MemStore) AppendEvent(_ context.Context, ev *domain.TaskEvent) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.tasks[ev.TaskID]
	if !ok {
		return 0, ErrNotFound
	}
	if task.Status.IsTerminal() {
		return 0, ErrTerminal
	}

	ev.Seq = len(m.events[ev.TaskID]) + 1
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	m.events[ev.TaskID] = append(m.events[ev.TaskID], *ev)
	return ev.Seq, nil
}

// Events возвращает события задачи с Seq > afterSeq.
func (m *MemStore) Events(_ context.Context, id uuid.UUID, afterSeq int) ([]domain.TaskEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.tasks[id]; !ok {
		return nil, ErrNotFound
	}

	all := m.events[id]
	if afterSeq >= len(all) {
		return nil, nil
	}
	out := make([]domain.TaskEvent, len(all)-afterSeq)
	copy(out, all[afterSeq:])
	return out, nil
}

// Stats считает агрегаты по задачам пользователя.
func (m *MemStore) Stats(_ context.Context, userID string) (*Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &Stats{CountByStatus: make(map[domain.TaskStatus]int)}

	var finished, succeeded int
	var totalDuration time.Duration

	for _, task := range m.tasks {
		if userID != "" && task.UserID != userID {
			continue
		}
		stats.CountByStatus[task.Status]++
		stats.Total++

		if task.Status.IsTerminal() {
			finished++
			totalDuration += task.Duration()
			// AMBIGUOUS считается неуспехом
			if task.Result != nil && task.Result.Success {
				succeeded++
			}
		}
	}

	if finished > 0 {
		stats.SuccessRate = float64(succeeded) / float64(finished)
		stats.AvgDuration = totalDuration / time.Duration(finished)
	}
	return stats, nil
}

// PurgeTerminal удаляет события задач, завершённых раньше cutoff.
func (m *MemStore) PurgeTerminal(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	purged := 0
	for id, task := range m.tasks {
		if !task.Status.IsTerminal() || task.CompletedAt == nil {
			continue
		}
		if task.CompletedAt.After(cutoff) {
			continue
		}
		if _, ok := m.events[id]; ok {
			delete(m.events, id)
			purged++
		}
	}
	return purged, nil
}

// cloneTask возвращает копию задачи: вызывающие не должны видеть
// внутреннее состояние хранилища.
func cloneTask(t *domain.Task) *domain.Task {
	c := *t
	if t.Transitions != nil {
		c.Transitions = make([]domain.Transition, len(t.Transitions))
		copy(c.Transitions, t.Transitions)
	}
	return &c
}
