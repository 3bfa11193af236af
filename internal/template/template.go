package template

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Theme selects the base stylesheet of a rendered document.
type Theme string

const (
	ThemeModern       Theme = "MODERN"
	ThemeProfessional Theme = "PROFESSIONAL"
	ThemeClassic      Theme = "CLASSIC"
	ThemeMinimal      Theme = "MINIMAL"
)

// Valid reports whether t is a known theme.
func (t Theme) Valid() bool {
	switch t {
	case ThemeModern, ThemeProfessional, ThemeClassic, ThemeMinimal:
		return true
	}
	return false
}

// DefaultScope is the category templates fall into when none is given.
const DefaultScope = "quotation"

// Template represents a stored quotation layout
type Template struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Theme       Theme     `json:"theme"`
	Category    string    `json:"category"`
	Elements    []Element `json:"elements"`
	Settings    Settings  `json:"settings"`
	Branding    Branding  `json:"branding"`
	IsDefault   bool      `json:"isDefault"`
	IsActive    bool      `json:"isActive"`
	Version     int       `json:"version"`
	CreatedBy   string    `json:"createdBy,omitempty"`
	UpdatedBy   string    `json:"updatedBy,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Scope returns the default-uniqueness scope of the template.
func (t *Template) Scope() string {
	return NormalizeScope(t.Category)
}

// Clone returns a copy that shares no slices or maps with t. Element
// content values are treated as immutable and shared.
func (t *Template) Clone() *Template {
	if t == nil {
		return nil
	}
	cp := *t
	if t.Elements != nil {
		cp.Elements = make([]Element, len(t.Elements))
		for i, el := range t.Elements {
			cp.Elements[i] = el.clone()
		}
	}
	if t.Settings.Margins != nil {
		m := *t.Settings.Margins
		cp.Settings.Margins = &m
	}
	return &cp
}

func (e Element) clone() Element {
	cp := e
	if e.Style != nil {
		cp.Style = make(Style, len(e.Style))
		for k, v := range e.Style {
			cp.Style[k] = v
		}
	}
	if e.Config != nil {
		cfg := *e.Config
		cfg.Columns = append([]Column(nil), e.Config.Columns...)
		cfg.ColumnWidths = append([]string(nil), e.Config.ColumnWidths...)
		if e.Config.Rows != nil {
			cfg.Rows = make([][]string, len(e.Config.Rows))
			for i, row := range e.Config.Rows {
				cfg.Rows[i] = append([]string(nil), row...)
			}
		}
		if e.Config.ShowHeader != nil {
			v := *e.Config.ShowHeader
			cfg.ShowHeader = &v
		}
		cp.Config = &cfg
	}
	return cp
}

// Settings holds page-level output settings.
type Settings struct {
	PageSize    string   `json:"pageSize,omitempty"`
	Orientation string   `json:"orientation,omitempty"`
	Margins     *Margins `json:"margins,omitempty"`
	HeaderText  string   `json:"headerText,omitempty"`
	FooterText  string   `json:"footerText,omitempty"`
	Watermark   string   `json:"watermark,omitempty"`
}

// Margins are in millimetres.
type Margins struct {
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
	Left   float64 `json:"left"`
}

// Branding overrides theme colours and identity.
type Branding struct {
	PrimaryColor   string `json:"primaryColor,omitempty"`
	SecondaryColor string `json:"secondaryColor,omitempty"`
	TextColor      string `json:"textColor,omitempty"`
	FontFamily     string `json:"fontFamily,omitempty"`
	LogoURL        string `json:"logoUrl,omitempty"`
	CompanyName    string `json:"companyName,omitempty"`
}

// ListFilter contains filters for listing templates
type ListFilter struct {
	Scope           string
	Search          string
	IncludeInactive bool
	Limit           int
	Offset          int
}

// Patch is a partial update. Nil fields are left untouched.
type Patch struct {
	ExpectedVersion int        `json:"expectedVersion"`
	Name            *string    `json:"name,omitempty"`
	Description     *string    `json:"description,omitempty"`
	Theme           *Theme     `json:"theme,omitempty"`
	Category        *string    `json:"category,omitempty"`
	Elements        *[]Element `json:"elements,omitempty"`
	Settings        *Settings  `json:"settings,omitempty"`
	Branding        *Branding  `json:"branding,omitempty"`
	IsActive        *bool      `json:"isActive,omitempty"`
	UpdatedBy       string     `json:"updatedBy,omitempty"`
}

// Validate checks the patch before any store access.
func (p Patch) Validate() error {
	if p.ExpectedVersion <= 0 {
		return invalid("expected version is required")
	}
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return invalid("template name is required")
	}
	if p.Theme != nil && *p.Theme != "" && !p.Theme.Valid() {
		return invalid("unknown theme %q", *p.Theme)
	}
	return nil
}

// Apply copies the set fields onto t.
func (p Patch) Apply(t *Template) {
	if p.Name != nil {
		t.Name = *p.Name
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Theme != nil {
		t.Theme = *p.Theme
	}
	if p.Category != nil {
		t.Category = *p.Category
	}
	if p.Elements != nil {
		t.Elements = append([]Element(nil), (*p.Elements)...)
	}
	if p.Settings != nil {
		t.Settings = *p.Settings
	}
	if p.Branding != nil {
		t.Branding = *p.Branding
	}
	if p.IsActive != nil {
		t.IsActive = *p.IsActive
		if !t.IsActive {
			t.IsDefault = false
		}
	}
	if p.UpdatedBy != "" {
		t.UpdatedBy = p.UpdatedBy
	}
}

// Revision is a stored snapshot of a template at one version.
type Revision struct {
	TemplateID string    `json:"templateId"`
	Version    int       `json:"version"`
	ChangedBy  string    `json:"changedBy,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	Template   *Template `json:"template"`
}

// Store is the persistence contract shared by every template backend.
type Store interface {
	Get(ctx context.Context, id string) (*Template, error)
	GetDefault(ctx context.Context, scope string) (*Template, error)
	List(ctx context.Context, filter ListFilter) ([]*Template, error)
	Create(ctx context.Context, tmpl *Template) error
	Update(ctx context.Context, tmpl *Template, expectedVersion int) error
	Patch(ctx context.Context, id string, patch Patch) (*Template, error)
	SetDefault(ctx context.Context, id string) (*Template, error)
	SoftDelete(ctx context.Context, id string) error
	Versions(ctx context.Context, id string) ([]Revision, error)
	Revision(ctx context.Context, id string, version int) (*Revision, error)
	Close() error
}

// NormalizeScope maps an empty category onto DefaultScope.
func NormalizeScope(scope string) string {
	scope = strings.TrimSpace(scope)
	if scope == "" {
		return DefaultScope
	}
	return scope
}

// Prepare validates a template before it is written and fills in the
// fields every backend normalises the same way.
func Prepare(t *Template) error {
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		return invalid("template name is required")
	}
	if t.Theme == "" {
		t.Theme = ThemeModern
	}
	if !t.Theme.Valid() {
		return invalid("unknown theme %q", t.Theme)
	}
	t.Category = NormalizeScope(t.Category)
	for i := range t.Elements {
		el := &t.Elements[i]
		if el.Type == "" {
			return invalid("element %d has no type", i)
		}
		if el.ID == "" {
			el.ID = uuid.New().String()
		}
	}
	if !t.IsActive {
		t.IsDefault = false
	}
	return nil
}

// Matches reports whether t passes the filter.
func (f ListFilter) Matches(t *Template) bool {
	if !f.IncludeInactive && !t.IsActive {
		return false
	}
	if f.Scope != "" && t.Scope() != NormalizeScope(f.Scope) {
		return false
	}
	if f.Search != "" {
		search := strings.ToLower(f.Search)
		name := strings.ToLower(t.Name)
		desc := strings.ToLower(t.Description)
		if !strings.Contains(name, search) && !strings.Contains(desc, search) {
			return false
		}
	}
	return true
}
