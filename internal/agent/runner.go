package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dgarciamx/Tramita/internal/domain"
	"github.com/dgarciamx/Tramita/internal/policy"
)

const defaultMaxSteps = 50

// Emitter получает события прогона. Воркер-процесс пишет их NDJSON
// в stdout; тесты собирают в срез.
type Emitter func(ev domain.TaskEvent)

// Config — параметры одного прогона автоматизации.
type Config struct {
	TargetURL string
	Payload   map[string]any
	Profile   *domain.VendorProfile

	// Resume — прогон возобновляет прерванную сессию: перед первым
	// действием обязательна повторная разведка страницы.
	Resume bool

	// TakeControl — страница передана человеку; прогон стартует
	// в паузе и ждёт возврата управления.
	TakeControl bool

	// MaxSteps — лимит шагов (защита от зацикливания, default: 50).
	MaxSteps int

	// ActionTimeout — лимит одного действия.
	ActionTimeout time.Duration

	Pacing Pacing
	Emit   Emitter
	Logger *slog.Logger
}

// runState — состояние цикла прогона.
type runState int

const (
	stateRunning runState = iota
	statePaused
	stateStopped
)

// Runner выполняет один прогон заполнения формы.
//
// Цикл шагов испускает события thinking/action/observation, перед
// каждым действием проходит гейт паузы и лимита шагов. После resume
// первым событием идёт observation повторной разведки: страница могла
// измениться, пока человек взаимодействовал с ней напрямую.
type Runner struct {
	cfg      Config
	page     Page
	resolver *Resolver

	mu        sync.Mutex
	cond      *sync.Cond
	state     runState
	reanalyze bool

	steps    int
	unfilled []string
}

// NewRunner создаёт Runner для страницы и конфигурации.
func NewRunner(page Page, cfg Config) *Runner {
	if cfg.Profile == nil {
		cfg.Profile = domain.GenericProfile()
	}
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = defaultMaxSteps
	}
	if cfg.Pacing == (Pacing{}) {
		cfg.Pacing = DefaultPacing()
	}
	if cfg.Emit == nil {
		cfg.Emit = func(domain.TaskEvent) {}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	r := &Runner{
		cfg:      cfg,
		page:     page,
		resolver: NewResolver(cfg.Profile),
	}
	r.cond = sync.NewCond(&r.mu)

	if cfg.TakeControl {
		r.state = statePaused
		r.reanalyze = true
	} else if cfg.Resume {
		r.reanalyze = true
	}
	return r
}

// Pause замораживает дальнейшие автоматические действия. Браузерный
// контекст остаётся живым для прямого взаимодействия человека.
func (r *Runner) Pause() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == stateRunning {
		r.state = statePaused
	}
}

// Resume возобновляет прогон. Следующим событием будет повторная
// разведка страницы.
func (r *Runner) Resume() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == statePaused {
		r.state = stateRunning
		r.reanalyze = true
		r.cond.Broadcast()
	}
}

// Stop останавливает прогон. Текущий шаг довершается, следующий гейт
// возвращает ErrStopped.
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = stateStopped
	r.cond.Broadcast()
}

// Run выполняет прогон и возвращает итоговый результат.
//
// Ошибка возвращается только при остановке (ErrStopped) или отмене
// контекста; все доменные сбои выражаются в TaskResult.
func (r *Runner) Run(ctx context.Context) (*domain.TaskResult, error) {
	r.emit(domain.EventGoal, fmt.Sprintf("fill invoice form at %s", r.cfg.TargetURL), nil)

	if err := r.gate(ctx); err != nil {
		return r.partialResult(), err
	}

	if err := r.navigate(ctx); err != nil {
		return r.failure(err), nil
	}

	if len(r.cfg.Profile.AuthSteps) > 0 && !r.cfg.Resume {
		if err := r.authenticate(ctx); err != nil {
			if errors.Is(err, ErrStopped) || ctx.Err() != nil {
				return r.partialResult(), err
			}
			return r.failure(err), nil
		}
	}

	if err := r.fillFields(ctx); err != nil {
		if errors.Is(err, ErrStopped) || ctx.Err() != nil {
			return r.partialResult(), err
		}
		return r.failure(err), nil
	}

	if err := r.submit(ctx); err != nil {
		if errors.Is(err, ErrStopped) || ctx.Err() != nil {
			return r.partialResult(), err
		}
		return r.failure(err), nil
	}

	return r.detectOutcome(ctx), nil
}

// navigate загружает целевую страницу и осматривает её.
func (r *Runner) navigate(ctx context.Context) error {
	r.emit(domain.EventAction, "navigate to target portal", map[string]any{"url": r.cfg.TargetURL})

	if err := r.page.Navigate(ctx, r.cfg.TargetURL); err != nil {
		return fmt.Errorf("navigate: %w", err)
	}
	if err := Sleep(ctx, r.cfg.Pacing.PageLoadDelay()); err != nil {
		return err
	}

	r.emit(domain.EventObservation, "page loaded, scanning form", nil)
	return nil
}

// authenticate выполняет шаги аутентификации профиля.
func (r *Runner) authenticate(ctx context.Context) error {
	r.emit(domain.EventThinking, "portal requires authentication", nil)

	for _, step := range r.cfg.Profile.AuthSteps {
		if err := r.gate(ctx); err != nil {
			return err
		}

		switch step.Action {
		case "navigate":
			if err := r.page.Navigate(ctx, step.Value); err != nil {
				return fmt.Errorf("auth navigate: %w", err)
			}
		case "fill":
			el, err := r.page.Find(ctx, step.Selector)
			if err != nil {
				return fmt.Errorf("auth field %s: %w", step.Selector, err)
			}
			if err := TypeHumanly(ctx, r.page, el, step.Value, r.cfg.Pacing); err != nil {
				return fmt.Errorf("auth fill: %w", err)
			}
		case "click":
			el, err := r.page.Find(ctx, step.Selector)
			if err != nil {
				return fmt.Errorf("auth button %s: %w", step.Selector, err)
			}
			if err := r.page.Click(ctx, el); err != nil {
				return fmt.Errorf("auth click: %w", err)
			}
		}

		if err := Sleep(ctx, r.cfg.Pacing.ActionDelay()); err != nil {
			return err
		}
	}

	r.emit(domain.EventObservation, "authentication steps completed", nil)
	return nil
}

// fillFields заполняет поля payload в детерминированном порядке.
func (r *Runner) fillFields(ctx context.Context) error {
	fields := make([]string, 0, len(r.cfg.Payload))
	for field := range r.cfg.Payload {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	for _, field := range fields {
		value := fmt.Sprintf("%v", r.cfg.Payload[field])
		if err := r.fillField(ctx, field, value); err != nil {
			return err
		}
	}
	return nil
}

// fillField заполняет одно поле с политикой восстановления.
func (r *Runner) fillField(ctx context.Context, field, value string) error {
	for attempt := 1; ; attempt++ {
		if err := r.gate(ctx); err != nil {
			return err
		}

		err := r.attemptField(ctx, field, value)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		kind := classifyAgentError(err)
		decision := policy.Decide(kind, attempt, r.cfg.Profile)

		r.emit(domain.EventError, err.Error(), map[string]any{
			"kind":   string(kind),
			"field":  field,
			"action": string(decision.Action),
		})

		switch decision.Action {
		case policy.ActionRetry:
			if decision.Delay > 0 {
				if err := Sleep(ctx, decision.Delay); err != nil {
					return err
				}
			}
			if decision.DismissModal {
				if _, err := r.page.DismissModal(ctx); err != nil {
					return err
				}
			}
			if decision.ReAuth {
				if err := r.authenticate(ctx); err != nil {
					return err
				}
			}

		case policy.ActionDegrade:
			// Частичное заполнение: поле пропускается, прогон живёт.
			r.unfilled = append(r.unfilled, field)
			r.emit(domain.EventObservation,
				fmt.Sprintf("field %s left unfilled: %s", field, decision.Reason),
				map[string]any{"kind": string(domain.KindSelectorDrift), "field": field})
			return nil

		case policy.ActionEscalate:
			// Человек должен вмешаться: прогон замирает до resume.
			r.Pause()

		case policy.ActionFail:
			return err
		}
	}
}

// attemptField — одна попытка заполнить поле.
func (r *Runner) attemptField(ctx context.Context, field, value string) error {
	r.emit(domain.EventThinking, fmt.Sprintf("locating field %s", field), nil)

	el, err := r.resolver.Resolve(ctx, r.page, field)
	if err != nil {
		return fmt.Errorf("selector drift: element not found for %s: %w", field, err)
	}

	if err := EnsureInteractable(ctx, r.page, el, r.cfg.Pacing); err != nil {
		return fmt.Errorf("field %s: %w", field, err)
	}

	if el.Type == "file" {
		r.emit(domain.EventAction, fmt.Sprintf("upload file into %s", field), map[string]any{"selector": el.Selector})
		if err := UploadFile(ctx, r.page, el, value); err != nil {
			return err
		}
	} else {
		r.emit(domain.EventAction, fmt.Sprintf("fill field %s", field), map[string]any{"selector": el.Selector})
		if err := TypeHumanly(ctx, r.page, el, value, r.cfg.Pacing); err != nil {
			return err
		}
	}

	if err := Sleep(ctx, r.cfg.Pacing.ActionDelay()); err != nil {
		return err
	}
	return nil
}

// submit находит и нажимает кнопку отправки.
func (r *Runner) submit(ctx context.Context) error {
	if err := r.gate(ctx); err != nil {
		return err
	}

	el, err := r.resolver.Resolve(ctx, r.page, "submit")
	if err != nil {
		return fmt.Errorf("submit button: %w", err)
	}
	if err := EnsureInteractable(ctx, r.page, el, r.cfg.Pacing); err != nil {
		return fmt.Errorf("submit button: %w", err)
	}

	r.emit(domain.EventAction, "submit form", map[string]any{"selector": el.Selector})
	if err := r.page.Click(ctx, el); err != nil {
		return fmt.Errorf("submit click: %w", err)
	}

	return Sleep(ctx, r.cfg.Pacing.PageLoadDelay())
}

// detectOutcome сканирует итоговую страницу и формирует результат.
func (r *Runner) detectOutcome(ctx context.Context) *domain.TaskResult {
	r.emit(domain.EventEvaluation, "scanning result page for outcome markers", nil)

	text, err := r.page.Text(ctx)
	if err != nil {
		return r.failure(fmt.Errorf("read result page: %w", err))
	}

	result := DetectOutcome(text, r.cfg.Profile)

	if result.Outcome == domain.OutcomeSuccess && len(r.unfilled) > 0 {
		result.Outcome = domain.OutcomePartial
		result.UnfilledFields = r.unfilled
	}
	if result.Outcome == domain.OutcomeAmbiguous && len(r.unfilled) > 0 {
		result.UnfilledFields = r.unfilled
	}

	return result
}

// gate — контрольная точка перед каждым шагом: отмена контекста, пауза,
// лимит шагов, повторная разведка после resume.
func (r *Runner) gate(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	for r.state == statePaused {
		r.cond.Wait()
	}
	if r.state == stateStopped {
		r.mu.Unlock()
		return ErrStopped
	}

	r.steps++
	if r.steps > r.cfg.MaxSteps {
		r.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrMaxSteps, r.cfg.MaxSteps)
	}

	needReanalyze := r.reanalyze
	r.reanalyze = false
	r.mu.Unlock()

	if needReanalyze {
		// Страница могла измениться под руками человека: осмотреть
		// заново, не предполагая прежнее состояние.
		r.emit(domain.EventObservation, "re-analyzing page state", nil)
		if err := r.page.WaitStable(ctx, r.cfg.Pacing.StabilityQuiet); err != nil {
			return err
		}
	}
	return ctx.Err()
}

// partialResult — сводка частичного результата для остановленного прогона.
func (r *Runner) partialResult() *domain.TaskResult {
	return &domain.TaskResult{
		Success:        false,
		Outcome:        domain.OutcomeFailure,
		UnfilledFields: r.unfilled,
		Output:         map[string]any{"steps": r.steps},
	}
}

// failure — результат FAILURE с классифицированной ошибкой.
func (r *Runner) failure(err error) *domain.TaskResult {
	kind := classifyAgentError(err)
	return &domain.TaskResult{
		Success:        false,
		Outcome:        domain.OutcomeFailure,
		UnfilledFields: r.unfilled,
		Error: &domain.ErrorDetail{
			Kind:    kind,
			Message: err.Error(),
		},
	}
}

// emit испускает событие прогона.
func (r *Runner) emit(evType domain.EventType, message string, data map[string]any) {
	r.cfg.Emit(domain.TaskEvent{
		Type:      evType,
		Message:   message,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
}

// classifyAgentError сопоставляет ошибки агента с доменными видами.
func classifyAgentError(err error) domain.ErrorKind {
	switch {
	case errors.Is(err, ErrFieldUnresolved), errors.Is(err, ErrElementNotFound), errors.Is(err, ErrNotInteractable):
		return domain.KindSelectorDrift
	case errors.Is(err, ErrUploadFailed):
		return domain.KindUploadFailed
	case errors.Is(err, ErrMaxSteps):
		return domain.KindUnknown
	case errors.Is(err, context.DeadlineExceeded):
		return domain.KindNetworkTimeout
	}
	if kind := domain.ClassifyError(err.Error()); kind != domain.KindUnknown {
		return kind
	}
	if strings.Contains(err.Error(), "navigate") {
		return domain.KindNetworkTimeout
	}
	return domain.KindUnknown
}
