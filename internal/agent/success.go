package agent

import (
	"regexp"
	"strings"

	"github.com/dgarciamx/Tramita/internal/domain"
)

// referencePatterns — паттерны извлечения folio / кода подтверждения,
// в порядке убывания специфичности. Первая захватывающая группа —
// само значение.
var referencePatterns = []*regexp.Regexp{
	// Folio fiscal (UUID CFDI).
	regexp.MustCompile(`(?i)folio\s+fiscal[:\s]*([0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12})`),
	regexp.MustCompile(`(?i)folio[:\s#]*([A-Z0-9][A-Z0-9-]{2,})`),
	regexp.MustCompile(`(?i)referencia[:\s#]*([A-Z0-9][A-Z0-9-]{2,})`),
	regexp.MustCompile(`(?i)confirmaci[oó]n[:\s#]*([A-Z0-9][A-Z0-9-]{2,})`),
}

// checkmarkGlyphs — глифы успеха, встречающиеся без текстового маркера.
var checkmarkGlyphs = []string{"✓", "✔", "✅"}

// DetectOutcome сканирует текст итоговой страницы на маркеры успеха
// и ошибки из профиля.
//
// Маркер успеха — SUCCESS с извлечённым reference. Маркер ошибки —
// FAILURE с классифицированным видом. Ни того, ни другого — AMBIGUOUS:
// угадывать успех нельзя, в статистике такой исход не засчитывается.
func DetectOutcome(pageText string, profile *domain.VendorProfile) *domain.TaskResult {
	if profile == nil {
		profile = domain.GenericProfile()
	}

	if marker := firstMatch(pageText, profile.ErrorPatterns); marker != "" {
		return &domain.TaskResult{
			Success: false,
			Outcome: domain.OutcomeFailure,
			Error: &domain.ErrorDetail{
				Kind:    domain.ClassifyError(marker),
				Message: marker,
			},
		}
	}

	if marker := firstMatch(pageText, profile.SuccessPatterns); marker != "" {
		return &domain.TaskResult{
			Success:   true,
			Outcome:   domain.OutcomeSuccess,
			Reference: ExtractReference(pageText),
			Output:    map[string]any{"marker": marker},
		}
	}

	for _, glyph := range checkmarkGlyphs {
		if strings.Contains(pageText, glyph) {
			return &domain.TaskResult{
				Success:   true,
				Outcome:   domain.OutcomeSuccess,
				Reference: ExtractReference(pageText),
				Output:    map[string]any{"marker": glyph},
			}
		}
	}

	return &domain.TaskResult{
		Success: false,
		Outcome: domain.OutcomeAmbiguous,
	}
}

// ExtractReference извлекает folio / номер подтверждения из текста.
// Пустая строка — не найден.
func ExtractReference(pageText string) string {
	for _, re := range referencePatterns {
		if m := re.FindStringSubmatch(pageText); m != nil {
			return m[1]
		}
	}
	return ""
}

// firstMatch возвращает текст первого совпавшего паттерна.
func firstMatch(pageText string, patterns []string) string {
	for _, p := range patterns {
		re, err := regexp.Compile(`(?i)` + p)
		if err != nil {
			continue
		}
		if m := re.FindString(pageText); m != "" {
			return m
		}
	}
	return ""
}
