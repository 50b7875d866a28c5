package agent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dgarciamx/Tramita/internal/domain"
)

// testPacing — без задержек, чтобы тесты не спали.
func testPacing() Pacing {
	return Pacing{
		KeystrokeMin:   time.Nanosecond,
		KeystrokeMax:   2 * time.Nanosecond,
		ActionMin:      time.Nanosecond,
		ActionMax:      2 * time.Nanosecond,
		PageLoadMin:    time.Nanosecond,
		PageLoadMax:    2 * time.Nanosecond,
		StabilityQuiet: time.Nanosecond,
	}
}

// eventSink потокобезопасно собирает события прогона.
type eventSink struct {
	mu     sync.Mutex
	events []domain.TaskEvent
}

func (s *eventSink) emit(ev domain.TaskEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *eventSink) all() []domain.TaskEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.TaskEvent, len(s.events))
	copy(out, s.events)
	return out
}

func (s *eventSink) types() []domain.EventType {
	var types []domain.EventType
	for _, ev := range s.all() {
		types = append(types, ev.Type)
	}
	return types
}

func successPage() *fakePage {
	page := newFakePage()
	page.addInput(Element{Selector: "#rfc", Name: "rfc", Label: "RFC", Visible: true})
	page.addInput(Element{Selector: "#total", Name: "total", Label: "Total", Visible: true})
	page.elements["#enviar"] = &Element{Selector: "#enviar", Type: "submit", Visible: true}
	page.text = "Factura enviada. Folio: ABC123"
	return page
}

func TestRunner_SuccessfulRun(t *testing.T) {
	page := successPage()
	sink := &eventSink{}

	r := NewRunner(page, Config{
		TargetURL: "https://portal.example.mx/facturacion",
		Payload:   map[string]any{"rfc": "XAXX010101000", "total": "1160.00"},
		Pacing:    testPacing(),
		Emit:      sink.emit,
	})

	result, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if !result.Success || result.Outcome != domain.OutcomeSuccess {
		t.Fatalf("result: %+v", result)
	}
	if result.Reference != "ABC123" {
		t.Errorf("reference %q", result.Reference)
	}

	if page.filled["#rfc"] != "XAXX010101000" {
		t.Errorf("rfc filled with %q", page.filled["#rfc"])
	}
	if len(page.clicked) != 1 || page.clicked[0] != "#enviar" {
		t.Errorf("clicked: %v", page.clicked)
	}

	types := sink.types()
	if len(types) == 0 || types[0] != domain.EventGoal {
		t.Errorf("first event must be goal, got %v", types)
	}
	var hasAction, hasEval bool
	for _, tp := range types {
		if tp == domain.EventAction {
			hasAction = true
		}
		if tp == domain.EventEvaluation {
			hasEval = true
		}
	}
	if !hasAction || !hasEval {
		t.Errorf("event stream incomplete: %v", types)
	}
}

// Нерезолвируемое поле деградирует до частичного заполнения:
// прогон не падает, поле попадает в UnfilledFields.
func TestRunner_SelectorDriftDegrades(t *testing.T) {
	page := successPage()
	sink := &eventSink{}

	r := NewRunner(page, Config{
		TargetURL: "https://portal.example.mx/facturacion",
		Payload: map[string]any{
			"rfc":               "XAXX010101000",
			"campo_inexistente": "valor",
		},
		Pacing: testPacing(),
		Emit:   sink.emit,
	})

	result, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if result.Outcome != domain.OutcomePartial {
		t.Fatalf("outcome %s, want PARTIAL", result.Outcome)
	}
	if len(result.UnfilledFields) != 1 || result.UnfilledFields[0] != "campo_inexistente" {
		t.Errorf("unfilled: %v", result.UnfilledFields)
	}

	// Drift виден в потоке как error-событие с видом SELECTOR_DRIFT.
	var sawDrift bool
	for _, ev := range sink.all() {
		if ev.Type == domain.EventError && ev.Data["kind"] == string(domain.KindSelectorDrift) {
			sawDrift = true
		}
	}
	if !sawDrift {
		t.Error("selector drift not reported in event stream")
	}
}

// Resume-прогон начинает с повторной разведки страницы: observation
// до первого action.
func TestRunner_ResumeReanalyzesFirst(t *testing.T) {
	page := successPage()
	sink := &eventSink{}

	r := NewRunner(page, Config{
		TargetURL: "https://portal.example.mx/facturacion",
		Payload:   map[string]any{"rfc": "XAXX010101000"},
		Resume:    true,
		Pacing:    testPacing(),
		Emit:      sink.emit,
	})

	if _, err := r.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	for _, ev := range sink.all() {
		if ev.Type == domain.EventAction {
			t.Fatal("action emitted before re-analysis observation")
		}
		if ev.Type == domain.EventObservation {
			if ev.Message != "re-analyzing page state" {
				t.Fatalf("first observation %q", ev.Message)
			}
			return
		}
	}
	t.Fatal("no observation emitted")
}

// Stop до старта — прогон возвращает ErrStopped, не результат успеха.
func TestRunner_StopBeforeRun(t *testing.T) {
	page := successPage()
	r := NewRunner(page, Config{
		TargetURL: "https://portal.example.mx/facturacion",
		Payload:   map[string]any{"rfc": "XAXX010101000"},
		Pacing:    testPacing(),
	})
	r.Stop()

	_, err := r.Run(context.Background())
	if !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
}

// Pause блокирует гейт; Resume снимает блокировку и прогон доходит
// до конца.
func TestRunner_PauseBlocksResumeUnblocks(t *testing.T) {
	page := successPage()
	sink := &eventSink{}

	r := NewRunner(page, Config{
		TargetURL: "https://portal.example.mx/facturacion",
		Payload:   map[string]any{"rfc": "XAXX010101000"},
		Pacing:    testPacing(),
		Emit:      sink.emit,
	})
	r.Pause()

	done := make(chan *domain.TaskResult, 1)
	go func() {
		result, _ := r.Run(context.Background())
		done <- result
	}()

	select {
	case <-done:
		t.Fatal("run finished while paused")
	case <-time.After(50 * time.Millisecond):
	}

	r.Resume()

	select {
	case result := <-done:
		if result.Outcome != domain.OutcomeSuccess {
			t.Errorf("outcome %s", result.Outcome)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("run did not resume")
	}
}

// Лимит шагов прерывает зацикленный прогон.
func TestRunner_MaxStepsGuard(t *testing.T) {
	page := successPage()

	payload := map[string]any{}
	for _, f := range []string{"rfc", "total", "email", "nombre", "telefono"} {
		payload[f] = "x"
	}

	r := NewRunner(page, Config{
		TargetURL: "https://portal.example.mx/facturacion",
		Payload:   payload,
		MaxSteps:  2,
		Pacing:    testPacing(),
	})

	result, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Success {
		t.Error("run beyond max steps must not succeed")
	}
	if result.Error == nil {
		t.Fatal("expected error detail")
	}
}

// Контекст с истёкшим дедлайном прерывает прогон немедленно.
func TestRunner_ContextCancelled(t *testing.T) {
	page := successPage()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewRunner(page, Config{
		TargetURL: "https://portal.example.mx/facturacion",
		Payload:   map[string]any{"rfc": "XAXX010101000"},
		Pacing:    testPacing(),
	})

	_, err := r.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
