package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dgarciamx/Tramita/internal/bridge"
	"github.com/dgarciamx/Tramita/internal/domain"
	"github.com/dgarciamx/Tramita/internal/gateway"
	"github.com/dgarciamx/Tramita/internal/store"
	"github.com/dgarciamx/Tramita/internal/telemetry"
)

// Default configuration values.
const (
	defaultPoolSize            = 3
	defaultInterventionTimeout = 10 * time.Minute
)

// WorkerHandle — привязанная воркер-сессия с точки зрения диспетчера.
// Реализуется bridge.Session; тесты подставляют скриптованный воркер.
type WorkerHandle interface {
	Events() <-chan domain.TaskEvent
	Done() <-chan bridge.SessionResult
	Send(cmd bridge.CommandName) error
	Terminate()
	Pid() int
}

// Spawner запускает воркер-процесс для дескриптора задачи.
type Spawner interface {
	Spawn(ctx context.Context, d bridge.Descriptor) (WorkerHandle, error)
}

// ProcessSpawner — Spawner поверх bridge.Spawn (реальный дочерний процесс).
type ProcessSpawner struct {
	// Bin — путь к бинарю tramita-worker.
	Bin string

	// Args — дополнительные аргументы воркера.
	Args []string

	// SessionTimeout — лимит сессии по умолчанию.
	SessionTimeout time.Duration

	// GracePeriod — пауза между stop и kill.
	GracePeriod time.Duration

	Logger *slog.Logger
}

// Spawn запускает воркер-процесс.
func (p *ProcessSpawner) Spawn(ctx context.Context, d bridge.Descriptor) (WorkerHandle, error) {
	return bridge.Spawn(ctx, bridge.SessionConfig{
		Bin:            p.Bin,
		Args:           p.Args,
		Descriptor:     d,
		SessionTimeout: p.SessionTimeout,
		GracePeriod:    p.GracePeriod,
		Logger:         p.Logger,
	})
}

// ProfileSource выдаёт vendor-профиль для задачи.
type ProfileSource interface {
	// Resolve возвращает профиль по ключу либо по совпадению URL.
	// Отсутствие профиля — generic, не ошибка.
	Resolve(ctx context.Context, key, targetURL string) (*domain.VendorProfile, error)
}

// StaticProfiles — ProfileSource поверх фиксированного набора профилей.
type StaticProfiles struct {
	Profiles []*domain.VendorProfile
}

// Resolve подбирает профиль по ключу, затем по URL-паттерну,
// затем generic.
func (s *StaticProfiles) Resolve(_ context.Context, key, targetURL string) (*domain.VendorProfile, error) {
	for _, p := range s.Profiles {
		if key != "" && p.Key == key {
			return p, nil
		}
	}
	for _, p := range s.Profiles {
		if p.URLPattern != "" && strings.Contains(targetURL, p.URLPattern) {
			return p, nil
		}
	}
	return domain.GenericProfile(), nil
}

// Dispatcher управляет очередью и пулом воркер-сессий.
type Dispatcher struct {
	store    store.Store
	gw       *gateway.Gateway
	profiles ProfileSource
	spawner  Spawner

	poolSize            int
	interventionTimeout time.Duration

	// queue — строгий FIFO порядок ожидающих задач.
	mu       sync.Mutex
	queue    []uuid.UUID
	dequeued map[uuid.UUID]bool // отменённые до допуска
	sessions map[uuid.UUID]*workerSession

	// slots — семафор пула: запись занимает слот, чтение освобождает.
	slots chan struct{}

	// wake будит цикл допуска при постановке в очередь.
	wake chan struct{}

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Dispatcher.
type Config struct {
	Store    store.Store
	Gateway  *gateway.Gateway
	Profiles ProfileSource
	Spawner  Spawner

	// PoolSize — максимум одновременно выполняющихся задач (default: 3).
	PoolSize int

	// InterventionTimeout — срок, за который человек должен разрешить
	// INTERVENTION_NEEDED, иначе задача завершается FAILED (default: 10m).
	InterventionTimeout time.Duration

	Logger *slog.Logger
}

// New создаёт Dispatcher.
func New(cfg Config) *Dispatcher {
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = defaultPoolSize
	}

	interventionTimeout := cfg.InterventionTimeout
	if interventionTimeout <= 0 {
		interventionTimeout = defaultInterventionTimeout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	profiles := cfg.Profiles
	if profiles == nil {
		profiles = &StaticProfiles{}
	}

	telemetry.PoolCapacity.Set(float64(poolSize))

	return &Dispatcher{
		store:               cfg.Store,
		gw:                  cfg.Gateway,
		profiles:            profiles,
		spawner:             cfg.Spawner,
		poolSize:            poolSize,
		interventionTimeout: interventionTimeout,
		dequeued:            make(map[uuid.UUID]bool),
		sessions:            make(map[uuid.UUID]*workerSession),
		slots:               make(chan struct{}, poolSize),
		wake:                make(chan struct{}, 1),
		logger:              logger,
	}
}

// Start запускает цикл допуска.
func (d *Dispatcher) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancelFunc = cancel

	d.logger.Info("starting dispatcher",
		"pool_size", d.poolSize,
		"intervention_timeout", d.interventionTimeout,
	)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.admitLoop(ctx)
	}()

	return nil
}

// Stop останавливает диспетчер: завершает все живые сессии и ждёт
// горутины.
func (d *Dispatcher) Stop() {
	d.stoppedMu.Lock()
	d.stopped = true
	d.stoppedMu.Unlock()

	d.logger.Info("stopping dispatcher...")

	d.mu.Lock()
	for _, ws := range d.sessions {
		ws.sess.Terminate()
	}
	d.mu.Unlock()

	if d.cancelFunc != nil {
		d.cancelFunc()
	}
	d.wg.Wait()

	d.logger.Info("dispatcher stopped")
}

// IsStopped проверяет, остановлен ли диспетчер.
func (d *Dispatcher) IsStopped() bool {
	d.stoppedMu.RLock()
	defer d.stoppedMu.RUnlock()
	return d.stopped
}

// Submit валидирует дескриптор, создаёт задачу в PENDING и ставит её
// в FIFO-очередь.
func (d *Dispatcher) Submit(ctx context.Context, task *domain.Task) (uuid.UUID, error) {
	if d.IsStopped() {
		return uuid.Nil, ErrDispatcherStopped
	}

	if err := d.store.Create(ctx, task); err != nil {
		return uuid.Nil, err
	}

	d.mu.Lock()
	d.queue = append(d.queue, task.ID)
	depth := len(d.queue)
	d.mu.Unlock()
	telemetry.QueueDepth.Set(float64(depth))

	select {
	case d.wake <- struct{}{}:
	default:
	}

	d.logger.Info("task queued", "task_id", task.ID, "queue_depth", depth)
	return task.ID, nil
}

// admitLoop — цикл допуска: ждёт задачу в очереди и свободный слот.
func (d *Dispatcher) admitLoop(ctx context.Context) {
	for {
		id, ok := d.popQueue()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-d.wake:
				continue
			}
		}

		// Ждём свободный слот пула.
		select {
		case <-ctx.Done():
			return
		case d.slots <- struct{}{}:
		}

		d.wg.Add(1)
		go func(taskID uuid.UUID) {
			defer d.wg.Done()
			defer func() {
				<-d.slots
				telemetry.PoolRunning.Set(float64(len(d.slots)))
			}()

			telemetry.PoolRunning.Set(float64(len(d.slots)))
			d.runTask(ctx, taskID)
		}(id)
	}
}

// popQueue извлекает голову очереди, пропуская отменённые задачи.
func (d *Dispatcher) popQueue() (uuid.UUID, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for len(d.queue) > 0 {
		id := d.queue[0]
		d.queue = d.queue[1:]
		telemetry.QueueDepth.Set(float64(len(d.queue)))
		if d.dequeued[id] {
			delete(d.dequeued, id)
			continue
		}
		return id, true
	}
	return uuid.Nil, false
}

// runTask ведёт одну допущенную задачу до финального статуса.
func (d *Dispatcher) runTask(ctx context.Context, taskID uuid.UUID) {
	logger := telemetry.WithTaskID(d.logger, taskID.String())

	task, err := d.store.Get(ctx, "", taskID)
	if err != nil {
		logger.Error("failed to load queued task", "error", err)
		return
	}
	if task.Status != domain.StatusPending {
		// Отменена, пока стояла в очереди.
		logger.Debug("skipping task no longer pending", "status", task.Status)
		return
	}

	task, err = d.transition(ctx, taskID, domain.StatusPending, domain.StatusRunning, "admitted", nil)
	if err != nil {
		logger.Error("failed to admit task", "error", err)
		return
	}

	profile, err := d.profiles.Resolve(ctx, task.ProfileKey, task.TargetURL)
	if err != nil {
		logger.Warn("profile resolution failed, using generic", "error", err)
		profile = domain.GenericProfile()
	}

	handle, err := d.spawner.Spawn(ctx, bridge.Descriptor{
		TaskID:    taskID,
		TargetURL: task.TargetURL,
		Payload:   task.Payload,
		Config:    task.Config,
		Profile:   profile,
	})
	if err != nil {
		logger.Error("failed to spawn worker", "error", err)
		_, _ = d.transition(ctx, taskID, domain.StatusRunning, domain.StatusFailed, "spawn failed", &domain.TaskResult{
			Outcome: domain.OutcomeFailure,
			Error: &domain.ErrorDetail{
				Kind:    domain.KindWorkerCrashed,
				Message: "failed to spawn worker process",
				Detail:  err.Error(),
			},
		})
		return
	}

	ws := &workerSession{taskID: taskID, sess: handle}
	d.mu.Lock()
	d.sessions[taskID] = ws
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		delete(d.sessions, taskID)
		d.mu.Unlock()
	}()

	logger.Info("worker bound", "pid", handle.Pid())

	// События читаются до закрытия канала: воркер с заполненным буфером
	// не должен зависнуть при завершении.
	for ev := range handle.Events() {
		d.handleEvent(ctx, ws, ev, logger)
	}

	res := <-handle.Done()
	d.finalize(ctx, ws, res, logger)
}

// handleEvent пересылает событие воркера в Store и Gateway и
// обрабатывает captcha-эскалацию.
func (d *Dispatcher) handleEvent(ctx context.Context, ws *workerSession, ev domain.TaskEvent, logger *slog.Logger) {
	ev.TaskID = ws.taskID

	if _, err := d.store.AppendEvent(ctx, &ev); err != nil {
		// Поздние события упавшего/отменённого воркера не воскрешают
		// состояние: логируем и отбрасываем.
		if errors.Is(err, store.ErrTerminal) {
			logger.Debug("dropping event for terminal task", "type", ev.Type)
			return
		}
		logger.Warn("failed to append event", "type", ev.Type, "error", err)
		return
	}
	telemetry.EventsTotal.WithLabelValues(string(ev.Type)).Inc()

	d.gw.PublishEvent(ctx, &ev)

	if ev.Type == domain.EventError && escalates(ev) {
		d.escalateIntervention(ctx, ws, ev, logger)
	}
}

// escalates — событие требует передачи человеку: политика воркера
// решила escalate (captcha, неисчезающее модальное окно), либо это
// captcha-событие без приложенного решения.
func escalates(ev domain.TaskEvent) bool {
	if action, ok := ev.Data["action"].(string); ok && action == "escalate" {
		return true
	}
	return errorKind(ev) == domain.KindCaptchaPresent
}

// escalateIntervention переводит задачу в INTERVENTION_NEEDED со
// снимком контекста и взводит таймер отказа. Воркер к этому моменту
// уже заморозил автоматические действия и ждёт resume.
func (d *Dispatcher) escalateIntervention(ctx context.Context, ws *workerSession, ev domain.TaskEvent, logger *slog.Logger) {
	snapshot, _ := ev.Data["snapshot_ref"].(string)
	kind := errorKind(ev)
	reason := interventionReason(kind)

	_, err := d.transition(ctx, ws.taskID, domain.StatusRunning, domain.StatusInterventionNeeded, reason, &domain.TaskResult{
		Outcome:     domain.OutcomeFailure,
		SnapshotRef: snapshot,
	})
	if err != nil {
		logger.Warn("intervention escalation transition failed", "error", err)
		return
	}
	telemetry.InterventionsTotal.WithLabelValues(reason).Inc()

	timer := time.AfterFunc(d.interventionTimeout, func() {
		d.abandonIntervention(ws, logger)
	})
	ws.enterIntervention(timer, kind)

	logger.Info("task escalated to intervention", "reason", reason, "snapshot", snapshot)
}

// interventionReason — detail перехода в INTERVENTION_NEEDED по виду
// ошибки, вызвавшей эскалацию.
func interventionReason(kind domain.ErrorKind) string {
	if kind == domain.KindCaptchaPresent {
		return "captcha_detected"
	}
	return strings.ToLower(string(kind))
}

// abandonIntervention — вмешательство не разрешено вовремя.
func (d *Dispatcher) abandonIntervention(ws *workerSession, logger *slog.Logger) {
	if !ws.leaveIntervention() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := d.transition(ctx, ws.taskID, domain.StatusInterventionNeeded, domain.StatusFailed, "intervention_timeout", &domain.TaskResult{
		Outcome: domain.OutcomeFailure,
		Error: &domain.ErrorDetail{
			Kind:    ws.errKind(),
			Message: "intervention not resolved within timeout",
		},
	})
	if err != nil {
		logger.Warn("intervention abandon transition failed", "error", err)
		return
	}
	ws.sess.Terminate()
	logger.Info("intervention abandoned by timeout")
}

// finalize записывает финальный статус по результату сессии.
func (d *Dispatcher) finalize(ctx context.Context, ws *workerSession, res bridge.SessionResult, logger *slog.Logger) {
	ws.leaveIntervention()

	task, err := d.store.Get(ctx, "", ws.taskID)
	if err != nil {
		logger.Error("failed to load task for finalization", "error", err)
		return
	}
	if task.Status.IsTerminal() {
		// Уже CANCELLED (или финализирована иным путём) — результат
		// воркера опоздал.
		logger.Debug("task already terminal", "status", task.Status)
		return
	}

	to, detail := terminalFor(res, ws.isCancelled())

	final, err := store.TransitionRetry(ctx, d.store, ws.taskID, task.Status, to, detail, res.Result)
	if err != nil {
		logger.Error("finalization transition failed", "from", task.Status, "to", to, "error", err)
		return
	}

	telemetry.ObserveTaskFinished(string(to), final.Duration())

	change := &gateway.StatusChange{TaskID: ws.taskID, Status: to, Detail: detail}
	if res.Result != nil {
		change.Reference = res.Result.Reference
	}
	d.gw.PublishStatus(ctx, change)

	logger.Info("task finalized", "status", to, "detail", detail)
}

// terminalFor выбирает финальный статус по результату сессии.
func terminalFor(res bridge.SessionResult, cancelled bool) (domain.TaskStatus, string) {
	if cancelled {
		return domain.StatusCancelled, "cancelled_by_user"
	}

	switch res.Kind {
	case domain.KindWorkerCrashed:
		return domain.StatusFailed, string(domain.KindWorkerCrashed)
	case domain.KindSessionTimeout:
		return domain.StatusFailed, string(domain.KindSessionTimeout)
	}

	if res.Result == nil {
		return domain.StatusFailed, "missing result"
	}

	switch res.Result.Outcome {
	case domain.OutcomeSuccess, domain.OutcomePartial:
		return domain.StatusCompleted, string(res.Result.Outcome)
	case domain.OutcomeAmbiguous:
		// Ни маркера успеха, ни маркера ошибки: завершаем, но в
		// статистике это не успех.
		return domain.StatusCompleted, string(domain.OutcomeAmbiguous)
	default:
		detail := "worker reported failure"
		if res.Result.Error != nil {
			detail = string(res.Result.Error.Kind)
		}
		return domain.StatusFailed, detail
	}
}

// transition — переход с публикацией в Gateway.
func (d *Dispatcher) transition(ctx context.Context, id uuid.UUID, from, to domain.TaskStatus, detail string, result *domain.TaskResult) (*domain.Task, error) {
	task, err := store.TransitionRetry(ctx, d.store, id, from, to, detail, result)
	if err != nil {
		return nil, err
	}
	d.gw.PublishStatus(ctx, &gateway.StatusChange{TaskID: id, Status: to, Detail: detail})
	return task, nil
}

// errorKind извлекает вид ошибки из данных события.
func errorKind(ev domain.TaskEvent) domain.ErrorKind {
	if kind, ok := ev.Data["kind"].(string); ok {
		return domain.ErrorKind(kind)
	}
	return domain.ClassifyError(ev.Message)
}

// Pool/queue introspection для health-probe.

// RunningCount возвращает число занятых слотов.
func (d *Dispatcher) RunningCount() int {
	return len(d.slots)
}

// PoolSize возвращает размер пула.
func (d *Dispatcher) PoolSize() int {
	return d.poolSize
}

// QueueDepth возвращает глубину очереди.
func (d *Dispatcher) QueueDepth() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// HasSession проверяет, привязана ли к задаче живая сессия.
func (d *Dispatcher) HasSession(id uuid.UUID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.sessions[id]
	return ok
}
