package domain

import "testing"

func TestClassifyError(t *testing.T) {
	cases := []struct {
		message string
		want    ErrorKind
	}{
		{"Por favor complete el reCAPTCHA", KindCaptchaPresent},
		{"RFC inválido, verifique los datos", KindValidationError},
		{"Sesión expirada, vuelva a iniciar", KindSessionExpired},
		{"archivo corrupto, intente de nuevo", KindUploadFailed},
		{"a modal dialog is blocking the form", KindModalBlocking},
		{"connection timeout while loading page", KindNetworkTimeout},
		{"element not found: #rfc", KindSelectorDrift},
		{"algo salió muy mal", KindUnknown},
	}

	for _, tc := range cases {
		if got := ClassifyError(tc.message); got != tc.want {
			t.Errorf("ClassifyError(%q) = %s, want %s", tc.message, got, tc.want)
		}
	}
}

// Captcha выигрывает у более общих категорий: слово "captcha" в тексте
// про таймаут всё равно означает captcha.
func TestClassifyError_FirstMatchWins(t *testing.T) {
	got := ClassifyError("captcha verification timeout")
	if got != KindCaptchaPresent {
		t.Errorf("got %s, want CAPTCHA_PRESENT", got)
	}
}

func TestTaskValidate(t *testing.T) {
	task := &Task{
		UserID:    "user-1",
		TargetURL: "https://portal.example.mx",
		Payload:   map[string]any{"rfc": "XAXX010101000"},
	}
	if err := task.Validate(); err != nil {
		t.Errorf("valid task rejected: %v", err)
	}

	if err := (&Task{TargetURL: "https://x.mx", Payload: map[string]any{"a": 1}}).Validate(); err != ErrMissingUser {
		t.Errorf("got %v, want ErrMissingUser", err)
	}
	if err := (&Task{UserID: "u", Payload: map[string]any{"a": 1}}).Validate(); err != ErrMissingTargetURL {
		t.Errorf("got %v, want ErrMissingTargetURL", err)
	}
	if err := (&Task{UserID: "u", TargetURL: "https://x.mx"}).Validate(); err != ErrEmptyPayload {
		t.Errorf("got %v, want ErrEmptyPayload", err)
	}
}
