package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/dgarciamx/Tramita/internal/domain"
)

// Resolver находит элемент формы по логическому имени поля.
//
// Порядок стратегий, остановка на первой удачной:
//  1. визуальный якорь: label, placeholder, соседний текст против
//     алиасов поля из профиля;
//  2. упорядоченный список fallback-селекторов профиля;
//  3. широкий проход по всем элементам ввода (включая shadow DOM)
//     с нечётким совпадением имени/атрибутов;
//  4. ErrFieldUnresolved — вызывающий помечает поле незаполненным
//     (SELECTOR_DRIFT как observation), но не прерывает прогон.
type Resolver struct {
	profile *domain.VendorProfile
}

// NewResolver создаёт Resolver для профиля. nil — generic.
func NewResolver(profile *domain.VendorProfile) *Resolver {
	if profile == nil {
		profile = domain.GenericProfile()
	}
	return &Resolver{profile: profile}
}

// Resolve находит элемент для логического поля.
func (r *Resolver) Resolve(ctx context.Context, page Page, field string) (*Element, error) {
	if el, err := r.byVisualAnchor(ctx, page, field); err == nil {
		return el, nil
	} else if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	if el, err := r.bySelectors(ctx, page, field); err == nil {
		return el, nil
	} else if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	if el, err := r.byShadowSweep(ctx, page, field); err == nil {
		return el, nil
	} else if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	return nil, fmt.Errorf("%w: %s", ErrFieldUnresolved, field)
}

// byVisualAnchor ищет элемент по тексту label, placeholder и
// соседнему тексту, сопоставляя их с алиасами поля.
func (r *Resolver) byVisualAnchor(ctx context.Context, page Page, field string) (*Element, error) {
	aliases := r.aliases(field)

	inputs, err := page.Inputs(ctx)
	if err != nil {
		return nil, err
	}

	for i := range inputs {
		el := &inputs[i]
		if el.InShadow {
			// Shadow-элементы оставлены третьей стратегии.
			continue
		}
		if anchorMatches(el, aliases) {
			return el, nil
		}
	}
	return nil, ErrElementNotFound
}

// bySelectors перебирает fallback-селекторы профиля по порядку.
func (r *Resolver) bySelectors(ctx context.Context, page Page, field string) (*Element, error) {
	for _, sel := range r.profile.Locators[field] {
		el, err := page.Find(ctx, sel)
		if err == nil {
			return el, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, ErrElementNotFound
}

// byShadowSweep — широкий проход по всем элементам ввода с нечётким
// совпадением атрибутов, включая элементы внутри shadow root'ов.
func (r *Resolver) byShadowSweep(ctx context.Context, page Page, field string) (*Element, error) {
	aliases := r.aliases(field)

	inputs, err := page.Inputs(ctx)
	if err != nil {
		return nil, err
	}

	var best *Element
	bestScore := 0
	for i := range inputs {
		el := &inputs[i]
		score := fuzzyScore(el, aliases)
		if score > bestScore {
			best = el
			bestScore = score
		}
	}
	if best == nil {
		return nil, ErrElementNotFound
	}
	return best, nil
}

// aliases возвращает алиасы поля; само имя поля всегда первое.
func (r *Resolver) aliases(field string) []string {
	aliases := []string{normalize(field)}
	for _, a := range r.profile.FieldAliases[field] {
		aliases = append(aliases, normalize(a))
	}
	return aliases
}

// anchorMatches проверяет точное вхождение алиаса в видимые якоря.
func anchorMatches(el *Element, aliases []string) bool {
	label := normalize(el.Label)
	placeholder := normalize(el.Placeholder)
	for _, a := range aliases {
		if a == "" {
			continue
		}
		if label != "" && strings.Contains(label, a) {
			return true
		}
		if placeholder != "" && strings.Contains(placeholder, a) {
			return true
		}
	}
	return false
}

// fuzzyScore оценивает совпадение элемента с алиасами поля.
// Имя и id весят больше, чем текстовые якоря.
func fuzzyScore(el *Element, aliases []string) int {
	score := 0
	name := normalize(el.Name)
	id := normalize(el.ID)
	label := normalize(el.Label)
	placeholder := normalize(el.Placeholder)

	for _, a := range aliases {
		if a == "" {
			continue
		}
		if name == a || id == a {
			score += 4
			continue
		}
		if strings.Contains(name, a) || strings.Contains(id, a) {
			score += 2
		}
		if strings.Contains(label, a) || strings.Contains(placeholder, a) {
			score++
		}
	}
	return score
}

// normalize приводит текст к нижнему регистру и убирает пунктуацию
// и пробелы, чтобы "R.F.C." совпадал с "rfc", а "Razón Social" —
// с "razon_social".
func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', ':', '*', '_', '-', ' ':
			return -1
		}
		return r
	}, s)
}
