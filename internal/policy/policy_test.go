package policy

import (
	"testing"
	"time"

	"github.com/dgarciamx/Tramita/internal/domain"
)

func TestDecide_ValidationErrorNeverRetries(t *testing.T) {
	for attempt := 1; attempt <= 5; attempt++ {
		d := Decide(domain.KindValidationError, attempt, nil)
		if d.Action != ActionFail {
			t.Fatalf("attempt %d: expected fail, got %s", attempt, d.Action)
		}
	}
}

func TestDecide_NetworkTimeoutCapped(t *testing.T) {
	d := Decide(domain.KindNetworkTimeout, 1, nil)
	if d.Action != ActionRetry {
		t.Fatalf("attempt 1: expected retry, got %s", d.Action)
	}
	if d.Delay <= 0 {
		t.Error("retry should carry a backoff delay")
	}

	d = Decide(domain.KindNetworkTimeout, 2, nil)
	if d.Action != ActionRetry {
		t.Fatalf("attempt 2: expected retry, got %s", d.Action)
	}

	d = Decide(domain.KindNetworkTimeout, 3, nil)
	if d.Action != ActionFail {
		t.Fatalf("attempt 3: expected fail after cap, got %s", d.Action)
	}
}

func TestDecide_SelectorDriftDegrades(t *testing.T) {
	d := Decide(domain.KindSelectorDrift, 1, nil)
	if d.Action != ActionRetry {
		t.Fatalf("attempt 1: expected retry, got %s", d.Action)
	}

	d = Decide(domain.KindSelectorDrift, 3, nil)
	if d.Action != ActionDegrade {
		t.Fatalf("attempt 3: expected degrade, got %s", d.Action)
	}
}

func TestDecide_ModalDismissOnce(t *testing.T) {
	d := Decide(domain.KindModalBlocking, 1, nil)
	if d.Action != ActionRetry || !d.DismissModal {
		t.Fatalf("attempt 1: expected retry with dismiss, got %+v", d)
	}

	d = Decide(domain.KindModalBlocking, 2, nil)
	if d.Action != ActionEscalate {
		t.Fatalf("attempt 2: expected escalate, got %s", d.Action)
	}
}

func TestDecide_SessionExpiredReAuthOnce(t *testing.T) {
	d := Decide(domain.KindSessionExpired, 1, nil)
	if d.Action != ActionRetry || !d.ReAuth {
		t.Fatalf("attempt 1: expected retry with reauth, got %+v", d)
	}

	d = Decide(domain.KindSessionExpired, 2, nil)
	if d.Action != ActionFail {
		t.Fatalf("attempt 2: expected fail, got %s", d.Action)
	}
}

func TestDecide_CaptchaEscalates(t *testing.T) {
	d := Decide(domain.KindCaptchaPresent, 1, nil)
	if d.Action != ActionEscalate {
		t.Fatalf("expected escalate, got %s", d.Action)
	}
}

func TestDecide_TerminalKindsFail(t *testing.T) {
	for _, kind := range []domain.ErrorKind{domain.KindWorkerCrashed, domain.KindSessionTimeout} {
		d := Decide(kind, 1, nil)
		if d.Action != ActionFail {
			t.Errorf("%s: expected fail, got %s", kind, d.Action)
		}
	}
}

func TestDecide_ProfileOverride(t *testing.T) {
	profile := &domain.VendorProfile{
		MaxRetryOverride: map[domain.ErrorKind]int{
			domain.KindNetworkTimeout: 5,
		},
	}

	d := Decide(domain.KindNetworkTimeout, 4, profile)
	if d.Action != ActionRetry {
		t.Fatalf("attempt 4 with override 5: expected retry, got %s", d.Action)
	}

	d = Decide(domain.KindNetworkTimeout, 5, profile)
	if d.Action != ActionFail {
		t.Fatalf("attempt 5 with override 5: expected fail, got %s", d.Action)
	}
}

func TestBackoff(t *testing.T) {
	if Backoff(1) != 2*time.Second {
		t.Errorf("attempt 1: %v", Backoff(1))
	}
	if Backoff(2) != 4*time.Second {
		t.Errorf("attempt 2: %v", Backoff(2))
	}
	if Backoff(10) != 30*time.Second {
		t.Errorf("attempt 10 should hit cap: %v", Backoff(10))
	}
}
