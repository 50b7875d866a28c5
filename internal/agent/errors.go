package agent

import "errors"

// Ошибки агента.
var (
	// ErrElementNotFound — селектор не нашёл элемент на странице.
	ErrElementNotFound = errors.New("element not found")

	// ErrFieldUnresolved — все стратегии поиска поля исчерпаны.
	ErrFieldUnresolved = errors.New("field unresolved after all strategies")

	// ErrUploadFailed — загрузка файла не удалась всеми стратегиями.
	ErrUploadFailed = errors.New("upload failed")

	// ErrMaxSteps — превышен лимит шагов прогона.
	ErrMaxSteps = errors.New("max steps exceeded")

	// ErrStopped — прогон остановлен командой stop.
	ErrStopped = errors.New("run stopped")

	// ErrNotInteractable — элемент найден, но невидим или неактивен
	// после ожидания стабильности DOM.
	ErrNotInteractable = errors.New("element not interactable")
)
