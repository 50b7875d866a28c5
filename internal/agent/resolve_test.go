package agent

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/dgarciamx/Tramita/internal/domain"
)

// fakePage — скриптуемая страница для тестов.
type fakePage struct {
	elements map[string]*Element
	inputs   []Element

	filled    map[string]string
	clicked   []string
	uploads   map[string]string
	uploadErr map[UploadStrategy]error
	upload    *UploadState
	text      string
	modal     bool

	navigated []string
	navErr    error
}

func newFakePage() *fakePage {
	return &fakePage{
		elements: make(map[string]*Element),
		filled:   make(map[string]string),
		uploads:  make(map[string]string),
	}
}

func (p *fakePage) addInput(el Element) {
	p.inputs = append(p.inputs, el)
	if el.Selector != "" {
		copied := el
		p.elements[el.Selector] = &copied
	}
}

func (p *fakePage) Navigate(_ context.Context, url string) error {
	p.navigated = append(p.navigated, url)
	return p.navErr
}

func (p *fakePage) Find(_ context.Context, selector string) (*Element, error) {
	if el, ok := p.elements[selector]; ok {
		return el, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrElementNotFound, selector)
}

func (p *fakePage) Inputs(_ context.Context) ([]Element, error) {
	return p.inputs, nil
}

func (p *fakePage) Fill(_ context.Context, el *Element, value string) error {
	p.filled[el.Selector] = value
	return nil
}

func (p *fakePage) Click(_ context.Context, el *Element) error {
	p.clicked = append(p.clicked, el.Selector)
	return nil
}

func (p *fakePage) Upload(_ context.Context, el *Element, path string, strategy UploadStrategy) error {
	if err := p.uploadErr[strategy]; err != nil {
		return err
	}
	p.uploads[el.Selector] = path
	return nil
}

func (p *fakePage) UploadState(_ context.Context) (*UploadState, error) {
	if p.upload != nil {
		return p.upload, nil
	}
	return &UploadState{Percent: 100}, nil
}

func (p *fakePage) Text(_ context.Context) (string, error) {
	return p.text, nil
}

func (p *fakePage) WaitStable(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

func (p *fakePage) DismissModal(_ context.Context) (bool, error) {
	had := p.modal
	p.modal = false
	return had, nil
}

// --- Tests ---

// Первая стратегия: поле находится по тексту label без единого
// селектора из профиля.
func TestResolver_VisualAnchor(t *testing.T) {
	page := newFakePage()
	page.addInput(Element{Selector: "#field-17", Label: "R.F.C. del receptor", Visible: true})

	r := NewResolver(domain.GenericProfile())
	el, err := r.Resolve(context.Background(), page, "rfc")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if el.Selector != "#field-17" {
		t.Errorf("resolved %s", el.Selector)
	}
}

// Вторая стратегия: якорей нет, выигрывает второй fallback-селектор.
func TestResolver_SelectorFallbackOrder(t *testing.T) {
	page := newFakePage()
	page.elements["[name='rfc']"] = &Element{Selector: "[name='rfc']", Name: "rfc", Visible: true}

	r := NewResolver(domain.GenericProfile())
	el, err := r.Resolve(context.Background(), page, "rfc")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if el.Selector != "[name='rfc']" {
		t.Errorf("resolved %s, want second fallback", el.Selector)
	}
}

// Третья стратегия: поле внутри shadow root находится нечётким
// совпадением имени.
func TestResolver_ShadowSweep(t *testing.T) {
	page := newFakePage()
	page.addInput(Element{Selector: "vendor-form-input", Name: "receptor_rfc_input", InShadow: true, Visible: true})

	r := NewResolver(domain.GenericProfile())
	el, err := r.Resolve(context.Background(), page, "rfc")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !el.InShadow {
		t.Error("expected shadow element")
	}
}

// Исчерпание стратегий — ErrFieldUnresolved, не паника и не nil.
func TestResolver_Unresolved(t *testing.T) {
	page := newFakePage()
	page.addInput(Element{Selector: "#unrelated", Name: "comentarios", Visible: true})

	r := NewResolver(domain.GenericProfile())
	_, err := r.Resolve(context.Background(), page, "rfc")
	if !errors.Is(err, ErrFieldUnresolved) {
		t.Fatalf("expected ErrFieldUnresolved, got %v", err)
	}
}

func TestNormalize(t *testing.T) {
	cases := []struct{ in, want string }{
		{"R.F.C.", "rfc"},
		{"Razón Social", "razónsocial"},
		{"registro_federal", "registrofederal"},
		{"  Total: ", "total"},
	}
	for _, c := range cases {
		if got := normalize(c.in); got != c.want {
			t.Errorf("normalize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
