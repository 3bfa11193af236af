// Package render turns a template and a merge context into a standalone
// HTML document. Rendering is pure: identical inputs produce identical
// bytes, and a single faulty element never aborts the document.
package render

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	htmlTemplate "html/template"
	"log/slog"
	"strings"
	"time"

	"github.com/aspcranes/quotegen/internal/merge"
	"github.com/aspcranes/quotegen/internal/metrics"
	"github.com/aspcranes/quotegen/internal/template"
)

//go:embed templates/*.gohtml
var templateFS embed.FS

var fragments = htmlTemplate.Must(htmlTemplate.New("fragments").ParseFS(templateFS, "templates/*.gohtml"))

// Document is a rendered HTML document with the metadata of the template
// that produced it.
type Document struct {
	HTML            string
	TemplateID      string
	TemplateName    string
	TemplateVersion int
	GeneratedAt     time.Time
	// Fallbacks counts elements rendered through the generic container.
	Fallbacks int
}

// Renderer renders templates. It holds no per-render state and is safe for
// concurrent use.
type Renderer struct {
	formatter *merge.Formatter
	now       func() time.Time
	logger    *slog.Logger
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithFormatter sets the formatter used for currency, numbers and dates.
func WithFormatter(f *merge.Formatter) Option {
	return func(r *Renderer) {
		if f != nil {
			r.formatter = f
		}
	}
}

// WithClock sets the clock that stamps Document.GeneratedAt.
func WithClock(now func() time.Time) Option {
	return func(r *Renderer) {
		if now != nil {
			r.now = now
		}
	}
}

// WithLogger sets the logger for element fallbacks.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Renderer) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New creates a renderer.
func New(opts ...Option) *Renderer {
	r := &Renderer{
		formatter: merge.DefaultFormatter(),
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type documentView struct {
	Title    string
	Theme    string
	CSS      htmlTemplate.CSS
	Elements []htmlTemplate.HTML
}

type elementView struct {
	ID    string
	Class string
	Style htmlTemplate.CSS
	Body  htmlTemplate.HTML
}

type genericView struct {
	ID    string
	Type  string
	Style htmlTemplate.CSS
	Lines []string
}

// Render merges data into every visible element of tmpl in stored order and
// wraps the result in a themed document shell.
func (r *Renderer) Render(tmpl *template.Template, data merge.Context) (*Document, error) {
	if tmpl == nil {
		return nil, errors.New("render: nil template")
	}

	scope := r.formatter.NewScope(data)
	parts := make([]htmlTemplate.HTML, 0, len(tmpl.Elements))
	fallbacks := 0

	for i, el := range tmpl.Elements {
		if !el.Visible {
			continue
		}
		if el.ShowIf != "" && !scope.Truthy(el.ShowIf) {
			continue
		}

		part, err := r.renderElement(tmpl, el, scope)
		if err != nil {
			fallbacks++
			label := string(el.Type)
			if !el.Type.Known() {
				label = "unknown"
			}
			metrics.IncElementFallback(label)
			r.logger.Warn("element rendered generically",
				"template_id", tmpl.ID,
				"element_id", el.ID,
				"index", i,
				"type", el.Type,
				"error", err,
			)
			part = r.renderGeneric(el, scope)
		}
		parts = append(parts, part)
	}

	var buf bytes.Buffer
	err := fragments.ExecuteTemplate(&buf, "document", documentView{
		Title:    documentTitle(tmpl, scope),
		Theme:    strings.ToLower(string(themeOf(tmpl))),
		CSS:      stylesheet(tmpl),
		Elements: parts,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render document shell: %w", err)
	}

	return &Document{
		HTML:            buf.String(),
		TemplateID:      tmpl.ID,
		TemplateName:    tmpl.Name,
		TemplateVersion: tmpl.Version,
		GeneratedAt:     r.now().UTC(),
		Fallbacks:       fallbacks,
	}, nil
}

func documentTitle(tmpl *template.Template, scope *merge.Scope) string {
	if number, ok := scope.Lookup("quotation.number"); ok && number != "" {
		return "Quotation " + number
	}
	return tmpl.Name
}

func (r *Renderer) renderElement(tmpl *template.Template, el template.Element, scope *merge.Scope) (out htmlTemplate.HTML, err error) {
	defer func() {
		if p := recover(); p != nil {
			out, err = "", fmt.Errorf("panic rendering element: %v", p)
		}
	}()

	if !el.Type.Known() {
		return "", fmt.Errorf("unknown element type %q", el.Type)
	}
	if err := el.Err(); err != nil {
		return "", err
	}

	name, view, err := buildView(tmpl, el, scope)
	if err != nil {
		return "", err
	}

	var body bytes.Buffer
	if err := fragments.ExecuteTemplate(&body, name, view); err != nil {
		return "", fmt.Errorf("failed to execute %s fragment: %w", name, err)
	}

	var buf bytes.Buffer
	err = fragments.ExecuteTemplate(&buf, "element", elementView{
		ID:    el.ID,
		Class: strings.ReplaceAll(string(el.Type), "_", "-"),
		Style: inlineStyle(el.Style),
		Body:  htmlTemplate.HTML(body.String()),
	})
	if err != nil {
		return "", fmt.Errorf("failed to wrap %s element: %w", el.Type, err)
	}
	return htmlTemplate.HTML(buf.String()), nil
}

// renderGeneric shows every string of the element's content, merged, in a
// plain container.
func (r *Renderer) renderGeneric(el template.Element, scope *merge.Scope) htmlTemplate.HTML {
	var lines []string
	for _, s := range contentStrings(el) {
		if merged := strings.TrimSpace(scope.Merge(s)); merged != "" {
			lines = append(lines, merged)
		}
	}

	var buf bytes.Buffer
	err := fragments.ExecuteTemplate(&buf, "generic", genericView{
		ID:    el.ID,
		Type:  string(el.Type),
		Style: inlineStyle(el.Style),
		Lines: lines,
	})
	if err != nil {
		r.logger.Error("failed to render generic element", "element_id", el.ID, "error", err)
		return `<div class="element element-generic"></div>`
	}
	return htmlTemplate.HTML(buf.String())
}
