package render

import (
	"fmt"
	htmlTemplate "html/template"
	"regexp"
	"strconv"
	"strings"

	"github.com/aspcranes/quotegen/internal/template"
)

type palette struct {
	Primary   string
	Secondary string
	Text      string
	Font      string
	Rules     string
}

var palettes = map[template.Theme]palette{
	template.ThemeModern: {
		Primary:   "#1e40af",
		Secondary: "#64748b",
		Text:      "#1f2937",
		Font:      "Helvetica, Arial, sans-serif",
		Rules: `.doc-header { border-bottom: 3px solid var(--primary); }
.items thead th { background: var(--primary); color: #ffffff; }
.items tbody tr:nth-child(even) { background: #f1f5f9; }`,
	},
	template.ThemeProfessional: {
		Primary:   "#0f172a",
		Secondary: "#475569",
		Text:      "#111827",
		Font:      "Helvetica, Arial, sans-serif",
		Rules: `.doc-header { background: var(--primary); color: #ffffff; padding: 12px 16px; }
.doc-header h1 { color: #ffffff; }
.items thead th { background: #e2e8f0; border-bottom: 2px solid var(--primary); }`,
	},
	template.ThemeClassic: {
		Primary:   "#7c2d12",
		Secondary: "#92400e",
		Text:      "#1c1917",
		Font:      "Times New Roman, Times, serif",
		Rules: `.doc-header { border-bottom: 4px double var(--primary); text-align: center; }
.items, .data { border: 1px solid var(--secondary); }
.items th, .items td, .data th, .data td { border: 1px solid var(--secondary); }`,
	},
	template.ThemeMinimal: {
		Primary:   "#111827",
		Secondary: "#6b7280",
		Text:      "#111827",
		Font:      "Helvetica, Arial, sans-serif",
		Rules: `.doc-header h1 { font-weight: 400; letter-spacing: 0.05em; }
.items thead th { border-bottom: 1px solid var(--secondary); }`,
	},
}

const baseCSS = `* { box-sizing: border-box; }
body { margin: 0; color: var(--text); font-family: var(--font); font-size: 12px; line-height: 1.45; }
.document { max-width: 210mm; margin: 0 auto; padding: 16px; }
.element { margin-bottom: 14px; }
.doc-header { display: flex; align-items: center; gap: 16px; padding-bottom: 8px; }
.doc-header .titles { flex: 1; }
.doc-header h1 { margin: 0; font-size: 24px; color: var(--primary); }
.doc-header .subtitle { margin: 4px 0 0; color: var(--secondary); }
.doc-header .logo { max-height: 64px; }
.doc-header .qr { width: 72px; height: 72px; }
h2 { font-size: 14px; margin: 0 0 6px; color: var(--primary); }
dl { display: grid; grid-template-columns: max-content 1fr; gap: 2px 12px; margin: 0; }
dt { font-weight: 600; color: var(--secondary); }
dd { margin: 0; }
table { width: 100%; border-collapse: collapse; }
th, td { padding: 6px 8px; vertical-align: top; }
th { text-align: left; }
.align-right { text-align: right; }
.align-center { text-align: center; }
.totals { width: auto; margin-left: auto; min-width: 40%; }
.totals th { font-weight: 400; }
.totals tr.emphasis th, .totals tr.emphasis td { font-weight: 700; border-top: 2px solid var(--primary); }
.terms ol { margin: 0; padding-left: 18px; }
.signature { margin-top: 32px; text-align: right; }
.signature-line { display: inline-block; width: 200px; border-bottom: 1px solid var(--text); height: 40px; }
.signature p { margin: 2px 0; }
.element-generic { border: 1px dashed var(--secondary); padding: 8px; }
`

const printCSS = `@media print {
body { -webkit-print-color-adjust: exact; print-color-adjust: exact; }
.document { max-width: none; padding: 0; }
.element { page-break-inside: avoid; break-inside: avoid; }
.items thead { display: table-header-group; }
.items tr { page-break-inside: avoid; }
}
`

var (
	colorPattern = regexp.MustCompile(`^(#[0-9a-fA-F]{3,8}|[a-zA-Z]{3,20}|rgba?\([0-9.,%\s]+\))$`)
	fontPattern  = regexp.MustCompile(`^[A-Za-z0-9 ,\-]{1,100}$`)
)

var pageSizes = map[string]string{
	"A3":     "A3",
	"A4":     "A4",
	"A5":     "A5",
	"LETTER": "letter",
	"LEGAL":  "legal",
}

const defaultMarginMM = 10.0

func themeOf(tmpl *template.Template) template.Theme {
	if tmpl.Theme.Valid() {
		return tmpl.Theme
	}
	return template.ThemeModern
}

// stylesheet builds the document CSS from the theme, branding overrides and
// page settings.
func stylesheet(tmpl *template.Template) htmlTemplate.CSS {
	p := palettes[themeOf(tmpl)]
	b := tmpl.Branding
	if colorPattern.MatchString(b.PrimaryColor) {
		p.Primary = b.PrimaryColor
	}
	if colorPattern.MatchString(b.SecondaryColor) {
		p.Secondary = b.SecondaryColor
	}
	if colorPattern.MatchString(b.TextColor) {
		p.Text = b.TextColor
	}
	if fontPattern.MatchString(b.FontFamily) {
		p.Font = b.FontFamily
	}

	var css strings.Builder
	fmt.Fprintf(&css, ":root { --primary: %s; --secondary: %s; --text: %s; --font: %s; }\n",
		p.Primary, p.Secondary, p.Text, p.Font)
	css.WriteString(pageRule(tmpl.Settings))
	css.WriteString(baseCSS)
	css.WriteString(p.Rules)
	css.WriteString("\n")
	css.WriteString(printCSS)
	return htmlTemplate.CSS(css.String())
}

func pageRule(s template.Settings) string {
	size, ok := pageSizes[strings.ToUpper(strings.TrimSpace(s.PageSize))]
	if !ok {
		size = "A4"
	}
	orientation := "portrait"
	if strings.EqualFold(strings.TrimSpace(s.Orientation), "landscape") {
		orientation = "landscape"
	}

	m := template.Margins{Top: defaultMarginMM, Right: defaultMarginMM, Bottom: defaultMarginMM, Left: defaultMarginMM}
	if s.Margins != nil {
		m = *s.Margins
	}
	return fmt.Sprintf("@page { size: %s %s; margin: %s %s %s %s; }\n",
		size, orientation, mm(m.Top), mm(m.Right), mm(m.Bottom), mm(m.Left))
}

func mm(v float64) string {
	if v < 0 {
		v = 0
	}
	return strconv.FormatFloat(v, 'f', -1, 64) + "mm"
}
