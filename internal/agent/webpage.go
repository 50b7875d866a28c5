package agent

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// StaticPage — реализация Page для статических порталов без
// клиентского рендеринга: HTML загружается по HTTP, разбирается
// goquery, отправка формы выполняется обычным POST.
//
// Declarative shadow DOM сериализуется в <template shadowrootmode>;
// проход по таким шаблонам закрывает третью стратегию резолвера.
type StaticPage struct {
	client  *http.Client
	headers map[string]string

	doc     *goquery.Document
	baseURL *url.URL

	// values — введённые значения по имени элемента.
	values map[string]string

	// uploaded — путь загруженного файла по селектору элемента.
	uploaded map[string]string
}

// NewStaticPage создаёт StaticPage с браузерными заголовками es-MX.
func NewStaticPage(timeout time.Duration) *StaticPage {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &StaticPage{
		client:   &http.Client{Timeout: timeout},
		headers:  BrowserHeaders(),
		values:   make(map[string]string),
		uploaded: make(map[string]string),
	}
}

// Navigate загружает и разбирает страницу.
func (p *StaticPage) Navigate(ctx context.Context, rawURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	for k, v := range p.headers {
		req.Header.Set(k, v)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("fetch page: status %d", resp.StatusCode)
	}

	doc, err := parsePage(resp.Body)
	if err != nil {
		return fmt.Errorf("parse page: %w", err)
	}

	p.doc = doc
	p.baseURL = resp.Request.URL
	p.values = make(map[string]string)
	p.uploaded = make(map[string]string)
	return nil
}

// parsePage разбирает HTML в goquery-документ. html.Parse терпим к
// битой разметке: порталы редко отдают валидный HTML.
func parsePage(r io.Reader) (*goquery.Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, err
	}
	return goquery.NewDocumentFromNode(root), nil
}

// Find ищет первый элемент по CSS-селектору.
func (p *StaticPage) Find(ctx context.Context, selector string) (*Element, error) {
	if err := p.ready(ctx); err != nil {
		return nil, err
	}

	sel := p.doc.Find(selector).First()
	if sel.Length() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrElementNotFound, selector)
	}
	return p.element(sel, selector, false), nil
}

// Inputs возвращает все элементы ввода, включая содержимое
// <template shadowrootmode> (declarative shadow DOM).
func (p *StaticPage) Inputs(ctx context.Context) ([]Element, error) {
	if err := p.ready(ctx); err != nil {
		return nil, err
	}

	var out []Element
	p.doc.Find("input, select, textarea, button").Each(func(_ int, s *goquery.Selection) {
		inShadow := s.ParentsFiltered("template[shadowrootmode]").Length() > 0
		out = append(out, *p.element(s, deriveSelector(s), inShadow))
	})
	return out, nil
}

// Fill записывает значение элемента.
func (p *StaticPage) Fill(ctx context.Context, el *Element, value string) error {
	if err := p.ready(ctx); err != nil {
		return err
	}
	key := el.Name
	if key == "" {
		key = el.Selector
	}
	p.values[key] = value
	return nil
}

// Click по кнопке отправки выполняет POST формы с накопленными
// значениями; по остальным элементам — no-op на статической странице.
func (p *StaticPage) Click(ctx context.Context, el *Element) error {
	if err := p.ready(ctx); err != nil {
		return err
	}
	if el.Type != "submit" && el.Tag != "button" {
		return nil
	}
	return p.submitForm(ctx)
}

// Upload запоминает путь файла. Различие стратегий на статической
// странице сводится к одному: native принимается только на
// input[type=file], остальные — на любом элементе.
func (p *StaticPage) Upload(ctx context.Context, el *Element, path string, strategy UploadStrategy) error {
	if err := p.ready(ctx); err != nil {
		return err
	}
	if strategy == UploadNative && el.Type != "file" {
		return fmt.Errorf("%w: native strategy needs file input", ErrUploadFailed)
	}
	p.uploaded[el.Selector] = path
	return nil
}

// UploadState читает индикатор прогресса страницы.
func (p *StaticPage) UploadState(ctx context.Context) (*UploadState, error) {
	if err := p.ready(ctx); err != nil {
		return nil, err
	}

	state := &UploadState{Percent: -1}

	bar := p.doc.Find("[role='progressbar'], .progress-bar, .upload-progress").First()
	if bar.Length() > 0 {
		if v, ok := bar.Attr("aria-valuenow"); ok {
			if n, err := strconv.Atoi(v); err == nil {
				state.Percent = n
			}
		}
		state.StatusText = strings.TrimSpace(bar.Text())
	}

	// Статическая страница без индикатора: загрузка зафиксирована,
	// считаем её завершённой.
	if bar.Length() == 0 && len(p.uploaded) > 0 {
		state.Percent = 100
	}
	return state, nil
}

// Text возвращает видимый текст страницы.
func (p *StaticPage) Text(ctx context.Context) (string, error) {
	if err := p.ready(ctx); err != nil {
		return "", err
	}
	return p.doc.Text(), nil
}

// WaitStable — на статической странице разметка не мутирует.
func (p *StaticPage) WaitStable(ctx context.Context, _ time.Duration) error {
	return p.ready(ctx)
}

// DismissModal удаляет перекрывающее модальное окно из разметки.
func (p *StaticPage) DismissModal(ctx context.Context) (bool, error) {
	if err := p.ready(ctx); err != nil {
		return false, err
	}
	modal := p.doc.Find(".modal, [role='dialog'], .overlay").First()
	if modal.Length() == 0 {
		return false, nil
	}
	modal.Remove()
	return true, nil
}

// submitForm отправляет первую форму страницы POST-запросом.
func (p *StaticPage) submitForm(ctx context.Context) error {
	form := p.doc.Find("form").First()

	action := p.baseURL.String()
	if form.Length() > 0 {
		if a, ok := form.Attr("action"); ok && a != "" {
			ref, err := url.Parse(a)
			if err != nil {
				return fmt.Errorf("parse form action: %w", err)
			}
			action = p.baseURL.ResolveReference(ref).String()
		}
	}

	data := url.Values{}
	for name, value := range p.values {
		data.Set(name, value)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, action, strings.NewReader(data.Encode()))
	if err != nil {
		return fmt.Errorf("build submit request: %w", err)
	}
	for k, v := range p.headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("submit form: %w", err)
	}
	defer resp.Body.Close()

	doc, err := parsePage(resp.Body)
	if err != nil {
		return fmt.Errorf("parse response page: %w", err)
	}
	p.doc = doc
	if resp.Request.URL != nil {
		p.baseURL = resp.Request.URL
	}
	return nil
}

// element собирает Element из selection.
func (p *StaticPage) element(s *goquery.Selection, selector string, inShadow bool) *Element {
	el := &Element{
		Selector:    selector,
		Tag:         goquery.NodeName(s),
		InShadow:    inShadow,
		Visible:     isVisible(s),
		Placeholder: s.AttrOr("placeholder", ""),
		Type:        s.AttrOr("type", ""),
		Name:        s.AttrOr("name", ""),
		ID:          s.AttrOr("id", ""),
	}
	el.Label = p.labelFor(s, el.ID)
	return el
}

// labelFor находит текст label: сначала label[for=id], затем
// родительский label, затем aria-label.
func (p *StaticPage) labelFor(s *goquery.Selection, id string) string {
	if id != "" {
		lbl := p.doc.Find(fmt.Sprintf("label[for='%s']", id)).First()
		if lbl.Length() > 0 {
			return strings.TrimSpace(lbl.Text())
		}
	}
	if parent := s.ParentsFiltered("label").First(); parent.Length() > 0 {
		return strings.TrimSpace(parent.Text())
	}
	return s.AttrOr("aria-label", "")
}

// isVisible — эвристика видимости для статической разметки.
func isVisible(s *goquery.Selection) bool {
	if s.AttrOr("type", "") == "hidden" {
		return false
	}
	style := s.AttrOr("style", "")
	if strings.Contains(style, "display:none") || strings.Contains(style, "display: none") {
		return false
	}
	if _, hidden := s.Attr("hidden"); hidden {
		return false
	}
	return true
}

// deriveSelector строит селектор элемента по id или name.
func deriveSelector(s *goquery.Selection) string {
	if id, ok := s.Attr("id"); ok && id != "" {
		return "#" + id
	}
	if name, ok := s.Attr("name"); ok && name != "" {
		return fmt.Sprintf("[name='%s']", name)
	}
	return goquery.NodeName(s)
}

// ready проверяет, что страница загружена и контекст жив.
func (p *StaticPage) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.doc == nil {
		return fmt.Errorf("no page loaded")
	}
	return nil
}
