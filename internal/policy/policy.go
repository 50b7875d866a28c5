package policy

import (
	"time"

	"github.com/dgarciamx/Tramita/internal/domain"
)

// Action — решение политики восстановления.
type Action string

const (
	// ActionRetry — повторить прерванный шаг.
	ActionRetry Action = "retry"

	// ActionDegrade — продолжить с частичным результатом
	// (поле остаётся незаполненным, задача не прерывается).
	ActionDegrade Action = "degrade"

	// ActionEscalate — передать задачу человеку (INTERVENTION_NEEDED).
	ActionEscalate Action = "escalate"

	// ActionFail — завершить задачу с ошибкой.
	ActionFail Action = "fail"
)

// Лимиты повторов по умолчанию. Vendor-профиль может переопределить
// их через MaxRetryOverride.
const (
	defaultSelectorRetries = 3
	defaultNetworkRetries  = 3
	defaultUploadRetries   = 3

	// backoffBase — базовая задержка экспоненциального backoff
	// для сетевых таймаутов.
	backoffBase = 2 * time.Second

	// backoffCap — потолок задержки.
	backoffCap = 30 * time.Second
)

// Decision — решение с параметрами повтора.
type Decision struct {
	Action Action

	// Delay — пауза перед повтором (экспоненциальный backoff для
	// NETWORK_TIMEOUT, ноль для остальных).
	Delay time.Duration

	// ReAuth — перед повтором выполнить повторную аутентификацию
	// (SESSION_EXPIRED).
	ReAuth bool

	// DismissModal — перед повтором закрыть блокирующее модальное окно
	// (MODAL_BLOCKING).
	DismissModal bool

	// Reason — пояснение решения для журнала и detail перехода.
	Reason string
}

// Decide возвращает решение для вида ошибки на данной попытке.
//
// attempt нумеруется с 1 — номер только что провалившейся попытки.
func Decide(kind domain.ErrorKind, attempt int, profile *domain.VendorProfile) Decision {
	switch kind {
	case domain.KindValidationError:
		// Ошибка в данных, повтор бессмыслен. Детали отдаются наружу
		// дословно: это проблема входных данных, а не транзиентный сбой.
		return Decision{Action: ActionFail, Reason: "validation error is not retryable"}

	case domain.KindSelectorDrift:
		limit := profile.RetryLimit(kind, defaultSelectorRetries)
		if attempt < limit {
			return Decision{Action: ActionRetry, Reason: "broaden element search"}
		}
		// Поле остаётся незаполненным, задача продолжается.
		return Decision{Action: ActionDegrade, Reason: "selector fallbacks exhausted"}

	case domain.KindNetworkTimeout:
		limit := profile.RetryLimit(kind, defaultNetworkRetries)
		if attempt < limit {
			return Decision{
				Action: ActionRetry,
				Delay:  Backoff(attempt),
				Reason: "network timeout, backing off",
			}
		}
		return Decision{Action: ActionFail, Reason: "network retry cap exhausted"}

	case domain.KindModalBlocking:
		// Закрыть один раз и повторить исходное действие ровно один раз.
		if attempt == 1 {
			return Decision{Action: ActionRetry, DismissModal: true, Reason: "dismiss modal and retry once"}
		}
		return Decision{Action: ActionEscalate, Reason: "modal persists after dismissal"}

	case domain.KindSessionExpired:
		if attempt == 1 {
			return Decision{Action: ActionRetry, ReAuth: true, Reason: "re-authenticate and retry interrupted step"}
		}
		return Decision{Action: ActionFail, Reason: "re-authentication did not restore session"}

	case domain.KindCaptchaPresent:
		// По политике captcha не обходится: снимок и передача человеку.
		return Decision{Action: ActionEscalate, Reason: "captcha requires human"}

	case domain.KindUploadFailed:
		limit := profile.RetryLimit(kind, defaultUploadRetries)
		if attempt < limit {
			return Decision{Action: ActionRetry, Reason: "retry upload with next strategy"}
		}
		return Decision{Action: ActionFail, Reason: "all upload strategies failed"}

	case domain.KindWorkerCrashed, domain.KindSessionTimeout:
		// На уровне задачи не retryable; свежий top-level повтор —
		// решение вызывающего.
		return Decision{Action: ActionFail, Reason: string(kind)}

	default:
		if attempt == 1 {
			return Decision{Action: ActionRetry, Reason: "unclassified error, single retry"}
		}
		return Decision{Action: ActionFail, Reason: "unclassified error persists"}
	}
}

// Backoff возвращает экспоненциальную задержку для номера попытки:
// base, 2·base, 4·base, … с потолком backoffCap.
func Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := backoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= backoffCap {
			return backoffCap
		}
	}
	return d
}
