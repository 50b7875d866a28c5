package agent

import (
	"context"
	"time"
)

// Element — найденный элемент формы.
type Element struct {
	// Selector — селектор, которым элемент был найден.
	Selector string

	// Tag — имя тега (input, select, button...).
	Tag string

	// Type — значение атрибута type.
	Type string

	// Name — значение атрибута name.
	Name string

	// ID — значение атрибута id.
	ID string

	// Label — текст связанного label либо соседний текст.
	Label string

	// Placeholder — значение атрибута placeholder.
	Placeholder string

	// Visible — элемент видим и доступен для взаимодействия.
	Visible bool

	// InShadow — элемент найден внутри shadow root.
	InShadow bool
}

// UploadStrategy — стратегия загрузки файла.
type UploadStrategy string

// Стратегии перебираются по порядку при повторах UPLOAD_FAILED.
const (
	// UploadNative — установка значения нативного file input.
	UploadNative UploadStrategy = "native"

	// UploadDragDrop — синтез полной последовательности drag-событий
	// (dragenter, dragover, drop), не одиночный drop.
	UploadDragDrop UploadStrategy = "dragdrop"

	// UploadProgrammatic — программное присваивание файла элементу.
	UploadProgrammatic UploadStrategy = "programmatic"
)

// uploadStrategies — порядок перебора стратегий.
var uploadStrategies = []UploadStrategy{UploadNative, UploadDragDrop, UploadProgrammatic}

// UploadState — состояние индикатора загрузки.
type UploadState struct {
	// Percent — процент завершения (0–100), -1 если индикатора нет.
	Percent int

	// StatusText — текст статуса рядом с индикатором.
	StatusText string
}

// Page — управляемый браузерный контекст.
//
// Абстракция над конкретным движком: goquery-реализация для статических
// порталов (webpage.go), скриптовая реализация в тестах. Все операции
// принимают context и обязаны уважать его отмену.
type Page interface {
	// Navigate загружает страницу по URL.
	Navigate(ctx context.Context, url string) error

	// Find ищет первый элемент по CSS-селектору.
	// Отсутствие — ErrElementNotFound.
	Find(ctx context.Context, selector string) (*Element, error)

	// Inputs возвращает все элементы ввода страницы, включая найденные
	// при проходе по shadow root'ам.
	Inputs(ctx context.Context) ([]Element, error)

	// Fill вводит значение в элемент. Темп ввода задаёт вызывающий.
	Fill(ctx context.Context, el *Element, value string) error

	// Click кликает по элементу.
	Click(ctx context.Context, el *Element) error

	// Upload передаёт файл элементу выбранной стратегией.
	Upload(ctx context.Context, el *Element, path string, strategy UploadStrategy) error

	// UploadState возвращает состояние индикатора загрузки.
	UploadState(ctx context.Context) (*UploadState, error)

	// Text возвращает видимый текст страницы.
	Text(ctx context.Context) (string, error)

	// WaitStable блокируется, пока разметка не перестанет мутировать
	// в течение quiet (либо до отмены ctx).
	WaitStable(ctx context.Context, quiet time.Duration) error

	// DismissModal закрывает перекрывающее модальное окно.
	// Возвращает false, если модального окна нет.
	DismissModal(ctx context.Context) (bool, error)
}
