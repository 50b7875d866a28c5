package bridge

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/dgarciamx/Tramita/internal/domain"
)

// spawnScript запускает сессию поверх sh-скрипта, играющего роль воркера.
func spawnScript(t *testing.T, script string, timeout time.Duration) *Session {
	t.Helper()

	s, err := Spawn(context.Background(), SessionConfig{
		Bin:            "/bin/sh",
		Args:           []string{"-c", script},
		SessionTimeout: timeout,
		GracePeriod:    time.Second,
		Descriptor: Descriptor{
			TaskID:    uuid.New(),
			TargetURL: "https://portal.example.mx",
			Payload:   map[string]any{"rfc": "XAXX010101000"},
		},
	})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	return s
}

func collectEvents(s *Session) []domain.TaskEvent {
	var events []domain.TaskEvent
	for ev := range s.Events() {
		events = append(events, ev)
	}
	return events
}

func TestSession_EventStreamAndResult(t *testing.T) {
	// Скрипт игнорирует stdin, испускает три шага и финальный результат.
	script := `
read _descriptor
echo '{"type":"thinking","message":"analyzing form"}'
echo '{"type":"action","message":"fill rfc"}'
echo '{"type":"observation","message":"rfc filled"}'
echo '{"type":"result","result":{"success":true,"outcome":"SUCCESS","reference":"ABC123"}}'
`
	s := spawnScript(t, script, 10*time.Second)

	events := collectEvents(s)
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d: %+v", len(events), events)
	}

	wantTypes := []domain.EventType{domain.EventThinking, domain.EventAction, domain.EventObservation}
	for i, want := range wantTypes {
		if events[i].Type != want {
			t.Errorf("event %d: expected %s, got %s", i, want, events[i].Type)
		}
	}

	res := <-s.Done()
	if res.Kind != "" {
		t.Fatalf("expected worker result, got synthesized %s", res.Kind)
	}
	if !res.Result.Success || res.Result.Reference != "ABC123" {
		t.Errorf("unexpected result: %+v", res.Result)
	}
}

func TestSession_NonJSONLinesWrappedAsRawLog(t *testing.T) {
	script := `
read _descriptor
echo 'random debug output'
echo '{"type":"action","message":"click"}'
echo '{"type":"result","result":{"success":true,"outcome":"SUCCESS"}}'
`
	s := spawnScript(t, script, 10*time.Second)

	events := collectEvents(s)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Type != domain.EventRawLog {
		t.Errorf("expected raw_log, got %s", events[0].Type)
	}
	if events[0].Message != "random debug output" {
		t.Errorf("raw line not preserved: %q", events[0].Message)
	}
	if events[1].Type != domain.EventAction {
		t.Errorf("stream should survive garbage line, got %s", events[1].Type)
	}

	<-s.Done()
}

func TestSession_ResultSurvivesImmediateExit(t *testing.T) {
	// Воркер печатает результат и тут же выходит. Wait закрывает
	// pipe-ы процесса, поэтому сессия обязана дочитать stdout до EOF
	// прежде, чем пожинать процесс: иначе строка результата теряется
	// и успешный прогон засчитывается как WORKER_CRASHED.
	script := `
read _descriptor
echo '{"type":"result","result":{"success":true,"outcome":"SUCCESS","reference":"QX7734"}}'
exit 0
`
	for i := 0; i < 100; i++ {
		s := spawnScript(t, script, 10*time.Second)
		go collectEvents(s)

		select {
		case res := <-s.Done():
			if res.Kind != "" {
				t.Fatalf("run %d: expected worker result, got synthesized %s", i, res.Kind)
			}
			if res.Result == nil || !res.Result.Success || res.Result.Reference != "QX7734" {
				t.Fatalf("run %d: result not preserved: %+v", i, res.Result)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("run %d: no session result", i)
		}
	}
}

func TestSession_TerminateDoesNotConsumeResult(t *testing.T) {
	// Воркер отвечает на stop частичным результатом. Наблюдатель grace
	// period внутри Terminate не должен перехватывать единственное
	// значение Done(): оно принадлежит вызывающему.
	script := `
read _descriptor
read _cmd
echo '{"type":"result","result":{"success":false,"outcome":"PARTIAL","output":{"cancelled":true}}}'
`
	for i := 0; i < 50; i++ {
		s := spawnScript(t, script, 10*time.Second)
		go collectEvents(s)

		s.Terminate()

		select {
		case res := <-s.Done():
			if res.Result == nil {
				t.Fatalf("run %d: session result lost to terminate watcher", i)
			}
			if res.Result.Outcome != domain.OutcomePartial {
				t.Fatalf("run %d: unexpected outcome %s", i, res.Result.Outcome)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("run %d: no session result after terminate", i)
		}
	}
}

func TestSession_CrashSynthesizesWorkerCrashed(t *testing.T) {
	script := `
read _descriptor
echo '{"type":"action","message":"half way"}'
exit 3
`
	s := spawnScript(t, script, 10*time.Second)

	go collectEvents(s)

	select {
	case res := <-s.Done():
		if res.Kind != domain.KindWorkerCrashed {
			t.Fatalf("expected WORKER_CRASHED, got %q", res.Kind)
		}
		if res.Result.Error == nil || res.Result.Error.Kind != domain.KindWorkerCrashed {
			t.Errorf("result should carry crash error detail: %+v", res.Result)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("crash not detected within window")
	}
}

func TestSession_TimeoutSynthesizesSessionTimeout(t *testing.T) {
	script := `
read _descriptor
sleep 30
`
	s := spawnScript(t, script, 200*time.Millisecond)

	go collectEvents(s)

	select {
	case res := <-s.Done():
		if res.Kind != domain.KindSessionTimeout {
			t.Fatalf("expected SESSION_TIMEOUT, got %q", res.Kind)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("session timeout not enforced")
	}
}

func TestSession_CommandsReachWorkerStdin(t *testing.T) {
	// Воркер зеркалит командные строки статус-событиями.
	script := `
read _descriptor
read cmd
cmd=$(printf '%s' "$cmd" | sed 's/"/\\"/g')
echo "{\"type\":\"status\",\"message\":\"got $cmd\"}"
echo '{"type":"result","result":{"success":true,"outcome":"SUCCESS"}}'
`
	s := spawnScript(t, script, 10*time.Second)

	if err := s.Send(CommandPause); err != nil {
		t.Fatalf("send: %v", err)
	}

	events := collectEvents(s)
	if len(events) != 1 || events[0].Type != domain.EventStatus {
		t.Fatalf("expected one status event, got %+v", events)
	}
	<-s.Done()

	// Сессия закрыта — команды больше не принимаются.
	if err := s.Send(CommandResume); err == nil {
		t.Error("expected error sending to closed session")
	}
}
