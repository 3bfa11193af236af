package render

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	htmlTemplate "html/template"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/aspcranes/quotegen/internal/merge"
	"github.com/aspcranes/quotegen/internal/template"
)

// Raw HTML in markdown is dropped; goldmark is safe unless WithUnsafe is set.
var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
)

const qrSize = 256

type headerView struct {
	Title    string
	Subtitle string
	Logo     htmlTemplate.URL
	QR       htmlTemplate.URL
}

type fieldView struct {
	Label string
	Value string
}

type infoView struct {
	Title  string
	Fields []fieldView
}

type tableView struct {
	Title string
	Class string
	Cols  []htmlTemplate.CSS
	Table merge.Table
}

type totalsRowView struct {
	Label    string
	Value    string
	Emphasis bool
}

type totalsView struct {
	Title string
	Rows  []totalsRowView
}

type termsView struct {
	Title      string
	Markdown   htmlTemplate.HTML
	Paragraphs [][]string
	Items      []string
}

type textView struct {
	Markdown   htmlTemplate.HTML
	Paragraphs [][]string
}

type signatureView struct {
	Label       string
	Name        string
	Designation string
	Company     string
}

// infoBuckets maps info kinds to the context bucket bare field keys read.
var infoBuckets = map[template.ElementType]string{
	template.ElementCompanyInfo:   "company",
	template.ElementClientInfo:    "client",
	template.ElementQuotationInfo: "quotation",
}

var defaultInfoFields = map[template.ElementType][]template.Field{
	template.ElementCompanyInfo: {
		{Key: "name"}, {Key: "address"}, {Key: "phone"}, {Key: "email"},
	},
	template.ElementClientInfo: {
		{Key: "name"}, {Key: "company"}, {Key: "address"}, {Key: "phone"}, {Key: "email"},
	},
	template.ElementQuotationInfo: {
		{Key: "number", Label: "Quotation No."},
		{Key: "date"},
		{Key: "validUntil"},
		{Key: "machineType"},
		{Key: "duration"},
	},
}

var defaultTotalsRows = []template.TotalsRow{
	{Label: "Subtotal", Value: "{{totals.subtotal}}"},
	{Label: "Tax", Value: "{{totals.tax}}"},
	{Label: "Total", Value: "{{totals.total}}", Emphasis: true},
}

// buildView merges the element content into the view its fragment expects.
func buildView(tmpl *template.Template, el template.Element, scope *merge.Scope) (string, any, error) {
	switch c := el.Body().(type) {
	case *template.HeaderContent:
		v, err := headerFor(tmpl, c, scope)
		return "header", v, err
	case *template.InfoContent:
		return "info", infoFor(el.Type, c, scope), nil
	case *template.ItemsTableContent:
		return "table", tableFor(c.Title, el.Config, true, scope), nil
	case *template.TableContent:
		return "table", tableFor(c.Title, el.Config, false, scope), nil
	case *template.TotalsContent:
		return "totals", totalsFor(c, scope), nil
	case *template.TermsContent:
		v, err := termsFor(c, scope)
		return "terms", v, err
	case *template.TextContent:
		v, err := textFor(c, scope)
		return "text", v, err
	case *template.SignatureContent:
		return "signature", signatureFor(tmpl, c, scope), nil
	case *template.RawContent:
		return "", nil, fmt.Errorf("%s content is not structured", el.Type)
	}
	return "", nil, fmt.Errorf("unsupported content %T for %s element", el.Content, el.Type)
}

func headerFor(tmpl *template.Template, c *template.HeaderContent, scope *merge.Scope) (headerView, error) {
	v := headerView{
		Title:    scope.Merge(c.Title),
		Subtitle: scope.Merge(c.Subtitle),
	}
	logo := scope.Merge(c.LogoURL)
	if logo == "" {
		logo = tmpl.Branding.LogoURL
	}
	v.Logo = imageURL(logo)

	if payload := strings.TrimSpace(scope.Merge(c.QRCode)); payload != "" {
		qr, err := qrDataURI(payload)
		if err != nil {
			return v, err
		}
		v.QR = qr
	}
	return v, nil
}

func infoFor(typ template.ElementType, c *template.InfoContent, scope *merge.Scope) infoView {
	fields := c.Fields
	if len(fields) == 0 {
		fields = defaultInfoFields[typ]
	}

	v := infoView{Title: scope.Merge(c.Title)}
	for _, f := range fields {
		value := f.Value
		if value == "" && f.Key != "" {
			path := f.Key
			if !strings.Contains(path, ".") {
				path = infoBuckets[typ] + "." + path
			}
			value = "{{" + path + "}}"
		}
		merged := strings.TrimSpace(scope.Merge(value))
		if merged == "" {
			continue
		}
		label := f.Label
		if label == "" {
			label = merge.Humanize(lastSegment(f.Key))
		}
		v.Fields = append(v.Fields, fieldView{Label: scope.Merge(label), Value: merged})
	}
	return v
}

func tableFor(title string, cfg *template.TableConfig, items bool, scope *merge.Scope) tableView {
	spec := merge.TableSpec{
		Items:      items,
		ShowHeader: cfg.HeaderVisible(),
	}
	if cfg != nil {
		for _, col := range cfg.Columns {
			spec.Columns = append(spec.Columns, merge.Column{
				Key:   col.Key,
				Label: col.Label,
				Value: col.Value,
				Align: col.Align,
			})
		}
		spec.Widths = cfg.ColumnWidths
		if !items {
			spec.Rows = cfg.Rows
		}
	}

	table := scope.BuildTable(spec)
	cols := make([]htmlTemplate.CSS, len(table.Widths))
	for i, w := range table.Widths {
		cols[i] = widthStyle(w)
	}

	class := "data"
	if items {
		class = "items"
	}
	return tableView{
		Title: scope.Merge(title),
		Class: class,
		Cols:  cols,
		Table: table,
	}
}

func totalsFor(c *template.TotalsContent, scope *merge.Scope) totalsView {
	rows := c.Rows
	if len(rows) == 0 {
		rows = defaultTotalsRows
	}
	v := totalsView{Title: scope.Merge(c.Title)}
	for _, row := range rows {
		value := strings.TrimSpace(scope.Merge(row.Value))
		if value == "" {
			continue
		}
		v.Rows = append(v.Rows, totalsRowView{
			Label:    scope.Merge(row.Label),
			Value:    value,
			Emphasis: row.Emphasis,
		})
	}
	return v
}

func termsFor(c *template.TermsContent, scope *merge.Scope) (termsView, error) {
	v := termsView{Title: scope.Merge(c.Title)}
	if text := scope.Merge(c.Text); strings.TrimSpace(text) != "" {
		if isMarkdown(c.Format) {
			html, err := markdownHTML(text)
			if err != nil {
				return v, err
			}
			v.Markdown = html
		} else {
			v.Paragraphs = paragraphs(text)
		}
	}
	for _, item := range c.Items {
		if merged := strings.TrimSpace(scope.Merge(item)); merged != "" {
			v.Items = append(v.Items, merged)
		}
	}
	return v, nil
}

func textFor(c *template.TextContent, scope *merge.Scope) (textView, error) {
	text := scope.Merge(c.Text)
	if isMarkdown(c.Format) {
		html, err := markdownHTML(text)
		if err != nil {
			return textView{}, err
		}
		return textView{Markdown: html}, nil
	}
	return textView{Paragraphs: paragraphs(text)}, nil
}

func signatureFor(tmpl *template.Template, c *template.SignatureContent, scope *merge.Scope) signatureView {
	v := signatureView{
		Label:       scope.Merge(c.Label),
		Name:        scope.Merge(c.Name),
		Designation: scope.Merge(c.Designation),
		Company:     scope.Merge(c.Company),
	}
	if v.Label == "" {
		v.Label = "Authorised Signatory"
	}
	if c.Company == "" {
		name := scope.Value("company.name")
		if name == "" {
			name = tmpl.Branding.CompanyName
		}
		if name != "" {
			v.Company = "For " + name
		}
	}
	return v
}

// contentStrings lists the strings of an element's content for the generic
// container.
func contentStrings(el template.Element) []string {
	if raw, ok := el.Body().(*template.RawContent); ok {
		return raw.Strings()
	}
	data, err := json.Marshal(el.Body())
	if err != nil {
		return nil
	}
	return template.RawContent{Data: data}.Strings()
}

func isMarkdown(format string) bool {
	return strings.EqualFold(strings.TrimSpace(format), template.FormatMarkdown)
}

func markdownHTML(source string) (htmlTemplate.HTML, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(source), &buf); err != nil {
		return "", fmt.Errorf("failed to convert markdown: %w", err)
	}
	return htmlTemplate.HTML(buf.String()), nil
}

// paragraphs splits text on blank lines; single newlines become line breaks.
func paragraphs(text string) [][]string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var out [][]string
	var current []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			if len(current) > 0 {
				out = append(out, current)
				current = nil
			}
			continue
		}
		current = append(current, line)
	}
	if len(current) > 0 {
		out = append(out, current)
	}
	return out
}

func qrDataURI(payload string) (htmlTemplate.URL, error) {
	png, err := qrcode.Encode(payload, qrcode.Medium, qrSize)
	if err != nil {
		return "", fmt.Errorf("failed to encode qr code: %w", err)
	}
	return htmlTemplate.URL("data:image/png;base64," + base64.StdEncoding.EncodeToString(png)), nil
}

// imageURL accepts data:image URIs and http(s) URLs. Anything else is
// dropped.
func imageURL(raw string) htmlTemplate.URL {
	s := strings.TrimSpace(raw)
	lower := strings.ToLower(s)
	switch {
	case strings.HasPrefix(lower, "data:image/"),
		strings.HasPrefix(lower, "https://"),
		strings.HasPrefix(lower, "http://"):
		return htmlTemplate.URL(s)
	}
	return ""
}

func lastSegment(path string) string {
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		return path[i+1:]
	}
	return path
}
