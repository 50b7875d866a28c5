package domain

import "testing"

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to TaskStatus }{
		{StatusPending, StatusRunning},
		{StatusPending, StatusCancelled},
		{StatusRunning, StatusCompleted},
		{StatusRunning, StatusFailed},
		{StatusRunning, StatusPaused},
		{StatusRunning, StatusInterventionNeeded},
		{StatusRunning, StatusCancelled},
		{StatusPaused, StatusRunning},
		{StatusPaused, StatusCancelled},
		{StatusPaused, StatusFailed},
		{StatusInterventionNeeded, StatusRunning},
		{StatusInterventionNeeded, StatusFailed},
	}
	for _, tr := range allowed {
		if !CanTransition(tr.from, tr.to) {
			t.Errorf("%s -> %s should be allowed", tr.from, tr.to)
		}
	}

	denied := []struct{ from, to TaskStatus }{
		{StatusPending, StatusCompleted},
		{StatusPending, StatusPaused},
		{StatusPaused, StatusCompleted},
		{StatusCompleted, StatusRunning},
		{StatusFailed, StatusRunning},
		{StatusCancelled, StatusRunning},
		{StatusInterventionNeeded, StatusCancelled},
	}
	for _, tr := range denied {
		if CanTransition(tr.from, tr.to) {
			t.Errorf("%s -> %s should be denied", tr.from, tr.to)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	terminal := []TaskStatus{StatusCompleted, StatusFailed, StatusCancelled}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}

	live := []TaskStatus{StatusPending, StatusRunning, StatusPaused, StatusInterventionNeeded}
	for _, s := range live {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestParseTaskStatus(t *testing.T) {
	if got := ParseTaskStatus("RUNNING"); got != StatusRunning {
		t.Errorf("got %q", got)
	}
	if got := ParseTaskStatus("running"); got != "" {
		t.Errorf("lowercase accepted: %q", got)
	}
	if got := ParseTaskStatus("NOPE"); got != "" {
		t.Errorf("unknown accepted: %q", got)
	}
}
