package agent

import (
	"context"
	"math/rand/v2"
	"time"
)

// Pacing — параметры анти-детекта.
//
// Значения перенесены из продуктовой конфигурации: человеческий темп
// ввода, паузы между действиями, ожидание загрузки страницы.
type Pacing struct {
	// KeystrokeMin/Max — интервал задержки между нажатиями клавиш.
	KeystrokeMin time.Duration
	KeystrokeMax time.Duration

	// ActionMin/Max — интервал задержки между действиями.
	ActionMin time.Duration
	ActionMax time.Duration

	// PageLoadMin/Max — ожидание после загрузки страницы.
	PageLoadMin time.Duration
	PageLoadMax time.Duration

	// StabilityQuiet — окно тишины DOM перед разрушающим действием.
	StabilityQuiet time.Duration
}

// DefaultPacing возвращает пейсинг по умолчанию: 120–250 мс на
// клавишу, 500–1500 мс между действиями, 2–4 с после загрузки.
func DefaultPacing() Pacing {
	return Pacing{
		KeystrokeMin:   120 * time.Millisecond,
		KeystrokeMax:   250 * time.Millisecond,
		ActionMin:      500 * time.Millisecond,
		ActionMax:      1500 * time.Millisecond,
		PageLoadMin:    2 * time.Second,
		PageLoadMax:    4 * time.Second,
		StabilityQuiet: 300 * time.Millisecond,
	}
}

// KeystrokeDelay возвращает случайную задержку между нажатиями.
func (p Pacing) KeystrokeDelay() time.Duration {
	return randomBetween(p.KeystrokeMin, p.KeystrokeMax)
}

// ActionDelay возвращает случайную задержку между действиями.
func (p Pacing) ActionDelay() time.Duration {
	return randomBetween(p.ActionMin, p.ActionMax)
}

// PageLoadDelay возвращает случайное ожидание после загрузки.
func (p Pacing) PageLoadDelay() time.Duration {
	return randomBetween(p.PageLoadMin, p.PageLoadMax)
}

func randomBetween(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + rand.N(hi-lo)
}

// Sleep спит delay либо возвращает ошибку отмены контекста.
func Sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// TypeHumanly вводит значение посимвольно с человеческим темпом.
// Для каждого символа берётся свежая случайная задержка.
func TypeHumanly(ctx context.Context, page Page, el *Element, value string, pacing Pacing) error {
	typed := ""
	for _, r := range value {
		typed += string(r)
		if err := page.Fill(ctx, el, typed); err != nil {
			return err
		}
		if err := Sleep(ctx, pacing.KeystrokeDelay()); err != nil {
			return err
		}
	}
	return nil
}

// BrowserHeaders возвращает заголовки браузерного контекста для
// мексиканского рынка: локаль es-MX, обычный desktop user agent.
func BrowserHeaders() map[string]string {
	return map[string]string{
		"Accept-Language": "es-MX,es;q=0.9,en;q=0.8",
		"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
	}
}

// SuppressionFlags возвращает флаги подавления признаков автоматизации
// для запуска браузерного контекста (navigator.webdriver и связанные).
func SuppressionFlags() []string {
	return []string{
		"--disable-blink-features=AutomationControlled",
		"--lang=es-MX",
	}
}

// EnsureInteractable подтверждает, что элемент видим и кликабелен
// после окна стабильности DOM. Наличие в разметке недостаточно.
func EnsureInteractable(ctx context.Context, page Page, el *Element, pacing Pacing) error {
	if err := page.WaitStable(ctx, pacing.StabilityQuiet); err != nil {
		return err
	}
	if !el.Visible {
		return ErrNotInteractable
	}
	return nil
}
