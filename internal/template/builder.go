package template

import (
	"context"
	"errors"
	"fmt"
)

// Meta carries the template-level attributes given to NewBuilder.
type Meta struct {
	Name        string
	Description string
	Theme       Theme
	Category    string
	Settings    Settings
	Branding    Branding
}

// Builder assembles a template in memory. It performs no I/O.
type Builder struct {
	meta     Meta
	elements []Element
	counts   map[ElementType]int
}

// ElementOption customises an element added through the builder.
type ElementOption func(*Element)

// WithStyle sets inline CSS properties on the element.
func WithStyle(style map[string]string) ElementOption {
	return func(e *Element) {
		e.Style = make(Style, len(style))
		for k, v := range style {
			e.Style[k] = v
		}
	}
}

// WithConfig attaches a table configuration.
func WithConfig(cfg TableConfig) ElementOption {
	return func(e *Element) {
		e.Config = &cfg
	}
}

// WithShowIf renders the element only when path resolves to a truthy value.
func WithShowIf(path string) ElementOption {
	return func(e *Element) {
		e.ShowIf = path
	}
}

// WithID overrides the generated element id.
func WithID(id string) ElementOption {
	return func(e *Element) {
		e.ID = id
	}
}

// Hidden adds the element with visible=false.
func Hidden() ElementOption {
	return func(e *Element) {
		e.Visible = false
	}
}

// NewBuilder starts a template with the given attributes.
func NewBuilder(meta Meta) *Builder {
	return &Builder{meta: meta, counts: make(map[ElementType]int)}
}

// AddElement appends an element. Element ids are derived from the kind and
// its position so that the same sequence of calls builds the same template.
func (b *Builder) AddElement(typ ElementType, content Content, opts ...ElementOption) *Builder {
	b.counts[typ]++
	el := Element{
		ID:      fmt.Sprintf("%s-%d", typ, b.counts[typ]),
		Type:    typ,
		Content: content,
		Visible: true,
	}
	el.Content = el.Body()
	for _, opt := range opts {
		opt(&el)
	}
	b.elements = append(b.elements, el)
	return b
}

// Build returns a fresh template. The builder can keep being used.
func (b *Builder) Build() *Template {
	tmpl := &Template{
		Name:        b.meta.Name,
		Description: b.meta.Description,
		Theme:       b.meta.Theme,
		Category:    NormalizeScope(b.meta.Category),
		Settings:    b.meta.Settings,
		Branding:    b.meta.Branding,
		IsActive:    true,
		Elements:    make([]Element, len(b.elements)),
	}
	if tmpl.Theme == "" {
		tmpl.Theme = ThemeModern
	}
	for i, el := range b.elements {
		tmpl.Elements[i] = el.clone()
	}
	return tmpl.Clone()
}

// Loader reads templates for rendering.
type Loader struct {
	store Store
}

// NewLoader creates a loader over store.
func NewLoader(store Store) *Loader {
	return &Loader{store: store}
}

// Load returns the stored template. Missing and inactive templates both
// yield ErrTemplateNotFound; no fallback is substituted here.
func (l *Loader) Load(ctx context.Context, id string) (*Template, error) {
	if l.store == nil {
		return nil, notFound(id)
	}
	tmpl, err := l.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrTemplateNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to load template %s: %w", id, err)
	}
	if !tmpl.IsActive {
		return nil, notFound(id)
	}
	return tmpl, nil
}
