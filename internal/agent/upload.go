package agent

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	// uploadPollInterval — период опроса индикатора загрузки.
	uploadPollInterval = 500 * time.Millisecond

	// uploadPollTimeout — предел ожидания завершения одной попытки.
	uploadPollTimeout = 60 * time.Second
)

// uploadSuccessTexts — тексты индикатора, означающие завершение.
var uploadSuccessTexts = []string{"100%", "completado", "completo", "success", "cargado", "subido"}

// UploadFile загружает файл в элемент, перебирая стратегии: нативный
// input, синтез drag-and-drop, программное присваивание. Каждая
// попытка ждёт явного сигнала завершения; фиксированный sleep не
// считается подтверждением. После исчерпания стратегий — ErrUploadFailed.
func UploadFile(ctx context.Context, page Page, el *Element, path string) error {
	var lastErr error

	for attempt, strategy := range uploadStrategies {
		if attempt > 0 {
			if err := Sleep(ctx, time.Second); err != nil {
				return err
			}
		}

		if err := page.Upload(ctx, el, path, strategy); err != nil {
			lastErr = fmt.Errorf("strategy %s: %w", strategy, err)
			continue
		}

		if err := waitUploadComplete(ctx, page); err != nil {
			lastErr = fmt.Errorf("strategy %s: %w", strategy, err)
			continue
		}

		return nil
	}

	return fmt.Errorf("%w: %v", ErrUploadFailed, lastErr)
}

// waitUploadComplete опрашивает индикатор до 100% либо текста успеха.
func waitUploadComplete(ctx context.Context, page Page) error {
	deadline := time.Now().Add(uploadPollTimeout)

	for {
		state, err := page.UploadState(ctx)
		if err != nil {
			return err
		}
		if state != nil && uploadComplete(state) {
			return nil
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("no completion signal within %s", uploadPollTimeout)
		}
		if err := Sleep(ctx, uploadPollInterval); err != nil {
			return err
		}
	}
}

func uploadComplete(state *UploadState) bool {
	if state.Percent >= 100 {
		return true
	}
	status := strings.ToLower(state.StatusText)
	for _, marker := range uploadSuccessTexts {
		if strings.Contains(status, marker) {
			return true
		}
	}
	return false
}
