package domain

// Outcome — итог прогона с точки зрения детекции успеха.
type Outcome string

const (
	// OutcomeSuccess — найден маркер успеха, извлечён folio.
	OutcomeSuccess Outcome = "SUCCESS"

	// OutcomePartial — форма заполнена частично (selector drift
	// деградировал до частичного заполнения).
	OutcomePartial Outcome = "PARTIAL"

	// OutcomeAmbiguous — ни маркера успеха, ни маркера ошибки.
	// Не засчитывается как успех в статистике.
	OutcomeAmbiguous Outcome = "AMBIGUOUS"

	// OutcomeFailure — найден маркер ошибки либо выполнение прервано.
	OutcomeFailure Outcome = "FAILURE"
)

// TaskResult — финальный результат задачи.
type TaskResult struct {
	// Success — true только для OutcomeSuccess.
	Success bool `json:"success"`

	// Outcome — детальный итог детекции успеха.
	Outcome Outcome `json:"outcome"`

	// Reference — извлечённый folio fiscal / номер подтверждения.
	Reference string `json:"reference,omitempty"`

	// Output — структурированный вывод воркера.
	Output map[string]any `json:"output,omitempty"`

	// UnfilledFields — поля, оставшиеся незаполненными при частичном
	// завершении.
	UnfilledFields []string `json:"unfilled_fields,omitempty"`

	// SnapshotRef — ссылка на снимок контекста (например captcha),
	// показываемая при INTERVENTION_NEEDED.
	SnapshotRef string `json:"snapshot_ref,omitempty"`

	// Error — конверт ошибки для FAILED.
	Error *ErrorDetail `json:"error,omitempty"`
}
