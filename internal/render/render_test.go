package render

import (
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/aspcranes/quotegen/internal/merge"
	"github.com/aspcranes/quotegen/internal/template"
)

func newTestRenderer() *Renderer {
	return New(
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithClock(func() time.Time { return time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC) }),
	)
}

func scenarioContext() merge.Context {
	return merge.Context{
		"quotation": map[string]any{"number": "Q-1"},
		"items": []any{
			map[string]any{"description": "Crane", "quantity": 2, "rate": 5000, "amount": 10000},
		},
		"totals": map[string]any{"subtotal": "₹10,000", "total": "₹11,800"},
	}
}

func scenarioTemplate() *template.Template {
	tmpl := template.NewBuilder(template.Meta{Name: "Scenario"}).
		AddElement(template.ElementHeader, &template.HeaderContent{Title: "ASP CRANES", Subtitle: "{{quotation.number}}"}).
		AddElement(template.ElementItemsTable, &template.ItemsTableContent{}).
		AddElement(template.ElementTotals, &template.TotalsContent{}).
		Build()
	tmpl.ID = "tpl-1"
	tmpl.Version = 3
	return tmpl
}

func section(t *testing.T, html, start, end string) string {
	t.Helper()
	i := strings.Index(html, start)
	if i < 0 {
		t.Fatalf("%q not found in output", start)
	}
	rest := html[i:]
	j := strings.Index(rest, end)
	if j < 0 {
		t.Fatalf("%q not found after %q", end, start)
	}
	return rest[:j+len(end)]
}

func TestRender_Scenario(t *testing.T) {
	doc, err := newTestRenderer().Render(scenarioTemplate(), scenarioContext())
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	for _, want := range []string{"ASP CRANES", "Q-1", "Crane", "10,000", "11,800", "<!DOCTYPE html>", `<meta charset="utf-8">`} {
		if !strings.Contains(doc.HTML, want) {
			t.Errorf("HTML does not contain %q", want)
		}
	}

	items := section(t, doc.HTML, `<table class="items">`, "</table>")
	body := section(t, items, "<tbody>", "</tbody>")
	if n := strings.Count(body, "<tr>"); n != 1 {
		t.Errorf("items table has %d data rows, want 1", n)
	}

	if doc.TemplateID != "tpl-1" || doc.TemplateName != "Scenario" || doc.TemplateVersion != 3 {
		t.Errorf("metadata = %q %q %d", doc.TemplateID, doc.TemplateName, doc.TemplateVersion)
	}
	if !doc.GeneratedAt.Equal(time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC)) {
		t.Errorf("GeneratedAt = %v", doc.GeneratedAt)
	}
	if doc.Fallbacks != 0 {
		t.Errorf("Fallbacks = %d, want 0", doc.Fallbacks)
	}
}

func TestRender_Deterministic(t *testing.T) {
	calls := 0
	r := New(
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithClock(func() time.Time {
			calls++
			return time.Date(2024, 1, 1, 0, 0, calls, 0, time.UTC)
		}),
	)
	tmpl := template.FallbackTemplate()
	tmpl.Elements = append(tmpl.Elements, template.Element{
		ID:      "qr",
		Type:    template.ElementHeader,
		Content: &template.HeaderContent{Title: "Scan", QRCode: "quote:{{quotation.number}}"},
		Visible: true,
	})

	first, err := r.Render(tmpl, scenarioContext())
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	second, err := r.Render(tmpl, scenarioContext())
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if first.HTML != second.HTML {
		t.Error("identical inputs produced different HTML")
	}
	if first.GeneratedAt.Equal(second.GeneratedAt) {
		t.Error("GeneratedAt should come from the clock")
	}
	if strings.Contains(first.HTML, "2024-01-01") {
		t.Error("generation time leaked into HTML")
	}
}

func TestRender_UnknownElementIsIsolated(t *testing.T) {
	var tmpl template.Template
	raw := `{
		"name": "Forward compatible",
		"elements": [
			{"id": "h", "type": "header", "content": {"title": "Before"}},
			{"id": "x", "type": "gallery", "content": {"caption": "Hello {{client.name}}", "images": ["a.png"]}},
			{"id": "t", "type": "text", "content": "After"}
		]
	}`
	if err := json.Unmarshal([]byte(raw), &tmpl); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	doc, err := newTestRenderer().Render(&tmpl, merge.Context{"client": map[string]any{"name": "Asha"}})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	generic := section(t, doc.HTML, `<div class="element element-generic"`, "</div>")
	if !strings.Contains(generic, `data-element-type="gallery"`) {
		t.Errorf("generic container = %s", generic)
	}
	if !strings.Contains(generic, "Hello Asha") || !strings.Contains(generic, "a.png") {
		t.Errorf("generic container lost content: %s", generic)
	}
	before := strings.Index(doc.HTML, "Before")
	after := strings.Index(doc.HTML, "After")
	if before < 0 || after < 0 || before > after {
		t.Errorf("surrounding elements missing or out of order")
	}
	if doc.Fallbacks != 1 {
		t.Errorf("Fallbacks = %d, want 1", doc.Fallbacks)
	}
}

func TestRender_MalformedElementIsIsolated(t *testing.T) {
	var tmpl template.Template
	raw := `{
		"name": "Broken totals",
		"elements": [
			{"type": "totals", "content": {"rows": "Total {{totals.total}}"}},
			{"type": "client_info", "content": "just a string"},
			{"type": "signature", "content": {"name": "R. Kumar"}}
		]
	}`
	if err := json.Unmarshal([]byte(raw), &tmpl); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	doc, err := newTestRenderer().Render(&tmpl, merge.Context{"totals": map[string]any{"total": 500}})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if doc.Fallbacks != 2 {
		t.Errorf("Fallbacks = %d, want 2", doc.Fallbacks)
	}
	if !strings.Contains(doc.HTML, "<p>Total ₹500</p>") {
		t.Error("malformed totals content was not merged into the generic container")
	}
	if !strings.Contains(doc.HTML, "<p>just a string</p>") {
		t.Error("string content of info element missing")
	}
	if !strings.Contains(doc.HTML, "R. Kumar") {
		t.Error("signature after malformed elements missing")
	}
}

func TestRender_MalformedConfigIsIsolated(t *testing.T) {
	tests := []struct {
		name  string
		table string
	}{
		{"columns object", `{"type": "table", "content": {"title": "Rates"}, "config": {"columns": {"a": 1}}}`},
		{"css string style", `{"type": "table", "content": {"title": "Rates"}, "style": "color:red"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var tmpl template.Template
			raw := `{"name": "Bad config", "elements": [
				{"type": "header", "content": {"title": "ASP CRANES"}},
				` + tt.table + `
			]}`
			if err := json.Unmarshal([]byte(raw), &tmpl); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}

			doc, err := newTestRenderer().Render(&tmpl, merge.Context{})
			if err != nil {
				t.Fatalf("Render() error = %v", err)
			}
			if doc.Fallbacks != 1 {
				t.Errorf("Fallbacks = %d, want 1", doc.Fallbacks)
			}
			if !strings.Contains(doc.HTML, "ASP CRANES") {
				t.Error("header next to malformed table missing")
			}
			if !strings.Contains(doc.HTML, "Rates") {
				t.Error("malformed table content not rendered generically")
			}
		})
	}
}

func TestRender_VisibilityAndShowIf(t *testing.T) {
	tmpl := template.NewBuilder(template.Meta{Name: "Flags"}).
		AddElement(template.ElementText, &template.TextContent{Text: "always"}).
		AddElement(template.ElementText, &template.TextContent{Text: "hidden"}, template.Hidden()).
		AddElement(template.ElementText, &template.TextContent{Text: "conditional-on"}, template.WithShowIf("quotation.showTerms")).
		AddElement(template.ElementText, &template.TextContent{Text: "conditional-off"}, template.WithShowIf("quotation.missing")).
		Build()

	doc, err := newTestRenderer().Render(tmpl, merge.Context{
		"quotation": map[string]any{"showTerms": true},
	})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	tests := map[string]bool{
		"always":          true,
		"hidden":          false,
		"conditional-on":  true,
		"conditional-off": false,
	}
	for text, want := range tests {
		if got := strings.Contains(doc.HTML, "<p>"+text+"</p>"); got != want {
			t.Errorf("contains %q = %v, want %v", text, got, want)
		}
	}
}

func TestRender_EscapesContextValues(t *testing.T) {
	tmpl := template.NewBuilder(template.Meta{Name: "Escape"}).
		AddElement(template.ElementClientInfo, &template.InfoContent{Fields: []template.Field{{Key: "name"}}}).
		Build()

	doc, err := newTestRenderer().Render(tmpl, merge.Context{
		"client": map[string]any{"name": `<script>alert("x")</script>`},
	})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if strings.Contains(doc.HTML, "<script>") {
		t.Error("context value was not escaped")
	}
	if !strings.Contains(doc.HTML, "&lt;script&gt;") {
		t.Error("escaped value missing")
	}
}

func TestRender_InfoFields(t *testing.T) {
	tmpl := template.NewBuilder(template.Meta{Name: "Info"}).
		AddElement(template.ElementQuotationInfo, &template.InfoContent{
			Title: "Details",
			Fields: []template.Field{
				{Key: "number", Label: "No."},
				{Key: "validUntil"},
				{Key: "client.phone"},
				{Label: "Site", Value: "{{quotation.location}}"},
			},
		}).
		AddElement(template.ElementCompanyInfo, &template.InfoContent{}).
		Build()

	doc, err := newTestRenderer().Render(tmpl, merge.Context{
		"company":   map[string]any{"name": "ASP CRANES", "phone": "98200 00000"},
		"client":    map[string]any{"phone": "99999 11111"},
		"quotation": map[string]any{"number": "Q-7", "validUntil": "2024-02-14"},
	})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	for _, want := range []string{
		"<h2>Details</h2>",
		"<dt>No.</dt><dd>Q-7</dd>",
		"<dt>Valid Until</dt><dd>14 February 2024</dd>",
		"<dt>Phone</dt><dd>99999 11111</dd>",
		"<dt>Name</dt><dd>ASP CRANES</dd>",
		"<dt>Phone</dt><dd>98200 00000</dd>",
	} {
		if !strings.Contains(doc.HTML, want) {
			t.Errorf("HTML does not contain %q", want)
		}
	}
	if strings.Contains(doc.HTML, "<dt>Site</dt>") {
		t.Error("empty field should be omitted")
	}
}

func TestRender_TableConfig(t *testing.T) {
	showHeader := false
	tmpl := template.NewBuilder(template.Meta{Name: "Table"}).
		AddElement(template.ElementTable, &template.TableContent{Title: "Machine"}, template.WithConfig(template.TableConfig{
			Columns:      []template.Column{{Label: "Spec"}, {Label: "Value", Align: "right"}},
			Rows:         [][]string{{"Model", "{{quotation.machineType}}"}},
			ShowHeader:   &showHeader,
			ColumnWidths: []string{"30%", "bogus;"},
		})).
		Build()

	doc, err := newTestRenderer().Render(tmpl, merge.Context{
		"quotation": map[string]any{"machineType": "Mobile Crane 50T"},
	})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	table := section(t, doc.HTML, `<table class="data">`, "</table>")
	if !strings.Contains(table, `<colgroup><col style="width: 30%"><col></colgroup>`) {
		t.Errorf("colgroup = %s", table)
	}
	if strings.Contains(table, "<thead>") {
		t.Error("header row rendered with showHeader=false")
	}
	if !strings.Contains(table, `<td class="align-right">Mobile Crane 50T</td>`) {
		t.Errorf("table = %s", table)
	}
}

func TestRender_Markdown(t *testing.T) {
	tmpl := template.NewBuilder(template.Meta{Name: "Markdown"}).
		AddElement(template.ElementText, &template.TextContent{
			Text:   "Hello **{{client.name}}**\n\n<b>raw</b>",
			Format: template.FormatMarkdown,
		}).
		AddElement(template.ElementTerms, &template.TermsContent{
			Title: "Terms",
			Text:  "Line one\nLine two",
			Items: []string{"Valid till {{quotation.validUntil}}", ""},
		}).
		Build()

	doc, err := newTestRenderer().Render(tmpl, merge.Context{
		"client":    map[string]any{"name": "Asha"},
		"quotation": map[string]any{"validUntil": "2024-02-14"},
	})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	if !strings.Contains(doc.HTML, "<strong>Asha</strong>") {
		t.Error("markdown emphasis missing")
	}
	if strings.Contains(doc.HTML, "<b>raw</b>") {
		t.Error("raw HTML in markdown must not pass through")
	}
	if !strings.Contains(doc.HTML, "<p>Line one<br>Line two</p>") {
		t.Error("plain terms text not split into lines")
	}
	if !strings.Contains(doc.HTML, "<ol><li>Valid till 14 February 2024</li></ol>") {
		t.Error("terms items missing")
	}
}

func TestRender_HeaderImages(t *testing.T) {
	tmpl := template.NewBuilder(template.Meta{Name: "Header"}).
		AddElement(template.ElementHeader, &template.HeaderContent{
			Title:   "Quote",
			LogoURL: "javascript:alert(1)",
			QRCode:  "{{quotation.number}}",
		}).
		Build()

	doc, err := newTestRenderer().Render(tmpl, merge.Context{"quotation": map[string]any{"number": "Q-9"}})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if strings.Contains(doc.HTML, "javascript:") || strings.Contains(doc.HTML, `class="logo"`) {
		t.Error("unsafe logo URL rendered")
	}
	if !strings.Contains(doc.HTML, `<img class="qr" src="data:image/png;base64,`) {
		t.Error("QR image missing")
	}
}

func TestRender_ThemeAndBranding(t *testing.T) {
	tmpl := template.NewBuilder(template.Meta{
		Name:  "Branded",
		Theme: template.ThemeClassic,
		Settings: template.Settings{
			PageSize:    "letter",
			Orientation: "landscape",
			Margins:     &template.Margins{Top: 15, Right: 12.5, Bottom: 15, Left: 12.5},
		},
		Branding: template.Branding{PrimaryColor: "#ff0000", FontFamily: "Inter; }</style>"},
	}).Build()

	doc, err := newTestRenderer().Render(tmpl, nil)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	for _, want := range []string{
		`<body class="theme-classic">`,
		"--primary: #ff0000",
		"--font: Times New Roman, Times, serif",
		"@page { size: letter landscape; margin: 15mm 12.5mm 15mm 12.5mm; }",
		"@media print",
	} {
		if !strings.Contains(doc.HTML, want) {
			t.Errorf("HTML does not contain %q", want)
		}
	}
	if strings.Contains(doc.HTML, "Inter;") {
		t.Error("unsafe font family was not dropped")
	}
}

func TestInlineStyle(t *testing.T) {
	tests := []struct {
		name  string
		style template.Style
		want  string
	}{
		{"empty", nil, ""},
		{"sorted and kebab cased", template.Style{"fontSize": "14px", "color": "#333", "text_align": "center"}, "color: #333; font-size: 14px; text-align: center"},
		{"unsafe values dropped", template.Style{"background": "url(http://x)", "color": "red; display: none", "margin": "4px"}, "margin: 4px"},
		{"bad property dropped", template.Style{"<b>": "1", "padding": "2px"}, "padding: 2px"},
		{"duplicate property keeps first key", template.Style{"font-size": "10px", "fontSize": "12px"}, "font-size: 10px"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := string(inlineStyle(tt.style)); got != tt.want {
				t.Errorf("inlineStyle() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRender_NilTemplate(t *testing.T) {
	if _, err := newTestRenderer().Render(nil, nil); err == nil {
		t.Error("Render(nil) should fail")
	}
}
