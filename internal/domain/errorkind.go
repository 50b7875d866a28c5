package domain

import "strings"

// ErrorKind — классификация ошибок автоматизации.
//
// Политика восстановления (internal/policy) — чистая функция от
// (ErrorKind, номер попытки, переопределения vendor-профиля).
type ErrorKind string

const (
	// KindSelectorDrift — ни один из настроенных селекторов не нашёл
	// элемент. Retryable: расширить поиск, затем деградировать до
	// частичного заполнения.
	KindSelectorDrift ErrorKind = "SELECTOR_DRIFT"

	// KindValidationError — портал отклонил введённые данные.
	// Не retryable: проблема во входных данных, повтор бессмыслен.
	KindValidationError ErrorKind = "VALIDATION_ERROR"

	// KindNetworkTimeout — сетевой таймаут. Retryable с экспоненциальной
	// задержкой до исчерпания лимита попыток.
	KindNetworkTimeout ErrorKind = "NETWORK_TIMEOUT"

	// KindModalBlocking — модальное окно перекрывает форму.
	// Закрыть один раз, повторить исходное действие один раз, затем эскалация.
	KindModalBlocking ErrorKind = "MODAL_BLOCKING"

	// KindSessionExpired — сессия портала истекла (CSRF, logout).
	// Одна повторная аутентификация, затем повтор прерванного шага.
	KindSessionExpired ErrorKind = "SESSION_EXPIRED"

	// KindCaptchaPresent — обнаружена captcha. По политике не retryable:
	// снимок контекста и переход задачи в INTERVENTION_NEEDED.
	KindCaptchaPresent ErrorKind = "CAPTCHA_PRESENT"

	// KindUploadFailed — не удалось загрузить файл. Retryable до 3 раз,
	// каждая попытка другой стратегией взаимодействия.
	KindUploadFailed ErrorKind = "UPLOAD_FAILED"

	// KindWorkerCrashed — воркер-процесс завершился без финального события.
	KindWorkerCrashed ErrorKind = "WORKER_CRASHED"

	// KindSessionTimeout — истёк жёсткий wall-clock лимит сессии.
	KindSessionTimeout ErrorKind = "SESSION_TIMEOUT"

	// KindUnknown — не классифицировано.
	KindUnknown ErrorKind = "UNKNOWN"
)

// errorKeywords — ключевые слова для классификации текстов ошибок.
// Порядок важен: первое совпадение выигрывает.
var errorKeywords = []struct {
	kind     ErrorKind
	keywords []string
}{
	{KindCaptchaPresent, []string{"captcha", "recaptcha", "turnstile", "verificación humana"}},
	{KindValidationError, []string{"validación", "validation", "rfc inválido", "invalid", "required field", "datos incompletos", "formato"}},
	{KindSessionExpired, []string{"sesión expirada", "session expired", "csrf", "logged out", "vuelva a iniciar"}},
	{KindUploadFailed, []string{"upload", "archivo corrupto", "file corrupted"}},
	{KindModalBlocking, []string{"modal", "dialog", "overlay"}},
	{KindNetworkTimeout, []string{"timeout", "connection", "unreachable", "network"}},
	{KindSelectorDrift, []string{"selector", "element not found", "locator", "no such element"}},
}

// ClassifyError сопоставляет текст ошибки с ErrorKind по ключевым
// словам. Тексты порталов встречаются на испанском и английском.
func ClassifyError(message string) ErrorKind {
	lower := strings.ToLower(message)
	for _, entry := range errorKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(lower, kw) {
				return entry.kind
			}
		}
	}
	return KindUnknown
}

// ErrorDetail — структурированный конверт ошибки в финальном результате.
type ErrorDetail struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Detail  string    `json:"detail,omitempty"`
}
