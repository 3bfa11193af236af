package pdf

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"strings"
	"testing"

	"github.com/aspcranes/quotegen/internal/merge"
	"github.com/aspcranes/quotegen/internal/render"
	"github.com/aspcranes/quotegen/internal/template"
)

const sampleHTML = `<!DOCTYPE html>
<html><head><title>Quotation Q-1</title><style>:root { --primary: #0f172a; }</style></head>
<body class="theme-modern"><main class="document">
<div class="element element-header"><header class="doc-header"><div class="titles"><h1>ASP CRANES</h1><p class="subtitle">Q-1</p></div></header></div>
<div class="element element-client-info"><section class="info"><h2>To</h2><dl><dt>Name</dt><dd>Rahul Sharma</dd></dl></section></div>
<div class="element element-items-table"><section class="table-block"><table class="items"><colgroup><col style="width: 10%"><col></colgroup>
<thead><tr><th class="align-center">No</th><th class="align-left">Description</th></tr></thead>
<tbody><tr><td class="align-center">1</td><td class="align-left">Crane rental</td></tr></tbody></table></section></div>
<div class="element element-totals"><section class="totals-block"><table class="totals"><tbody><tr class="emphasis"><th>Total</th><td class="align-right">₹10,000</td></tr></tbody></table></section></div>
<div class="element element-terms"><section class="terms"><ol><li>Payment within <strong>30 days</strong></li></ol></section></div>
</main></body></html>`

func newSession(t *testing.T) Session {
	t.Helper()
	conv := NewFPDFConverter(slog.New(slog.NewTextHandler(io.Discard, nil)))
	s, err := conv.Open(context.Background())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestParseOptions(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]any
		want func(Options) bool
	}{
		{"defaults", nil, func(o Options) bool {
			return o.Format == FormatA4 && o.Orientation == OrientationPortrait && o.Margins.Top == 10 && o.Quality == 100
		}},
		{"format case insensitive", map[string]any{"format": "letter"}, func(o Options) bool {
			return o.Format == FormatLetter
		}},
		{"unknown format ignored", map[string]any{"format": "B7"}, func(o Options) bool {
			return o.Format == FormatA4
		}},
		{"landscape flag", map[string]any{"landscape": true}, func(o Options) bool {
			return o.Landscape()
		}},
		{"orientation", map[string]any{"orientation": "Landscape"}, func(o Options) bool {
			return o.Orientation == OrientationLandscape
		}},
		{"margin strings", map[string]any{"margins": map[string]any{"top": "1cm", "left": "0.5in", "right": 5.0, "bottom": "bad"}}, func(o Options) bool {
			return o.Margins.Top == 10 && math.Abs(o.Margins.Left-12.7) < 1e-9 && o.Margins.Right == 5 && o.Margins.Bottom == 10
		}},
		{"uniform margin", map[string]any{"margin": "20mm"}, func(o Options) bool {
			return o.Margins == Margins{Top: 20, Right: 20, Bottom: 20, Left: 20}
		}},
		{"quality range", map[string]any{"quality": 250.0}, func(o Options) bool {
			return o.Quality == 100
		}},
		{"quality", map[string]any{"quality": 80.0}, func(o Options) bool {
			return o.Quality == 80
		}},
		{"flags and text", map[string]any{"displayHeaderFooter": true, "printBackground": false, "footerText": "p {page}", "watermark": " DRAFT "}, func(o Options) bool {
			return o.DisplayHeaderFooter && !o.PrintBackground && o.FooterText == "p {page}" && o.Watermark == "DRAFT"
		}},
		{"unknown keys and bad types ignored", map[string]any{"scale": 2, "displayHeaderFooter": "yes"}, func(o Options) bool {
			return o == DefaultOptions()
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseOptions(tt.raw); !tt.want(got) {
				t.Errorf("ParseOptions(%v) = %+v", tt.raw, got)
			}
		})
	}
}

func TestParseLength(t *testing.T) {
	tests := map[string]float64{
		"10":    10,
		"10mm":  10,
		"1.5cm": 15,
		"1in":   25.4,
		"96px":  25.4,
		"72pt":  25.4,
	}
	for in, want := range tests {
		got, err := ParseLength(in)
		if err != nil {
			t.Errorf("ParseLength(%q) error = %v", in, err)
			continue
		}
		if math.Abs(got-want) > 1e-9 {
			t.Errorf("ParseLength(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := ParseLength("wide"); err == nil {
		t.Error("ParseLength(wide) should fail")
	}
}

func TestConvert(t *testing.T) {
	out, err := newSession(t).Convert(context.Background(), sampleHTML, DefaultOptions())
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	if !bytes.HasPrefix(out, []byte("%PDF-")) {
		t.Fatal("output is not a PDF")
	}
	for _, want := range []string{"ASP CRANES", "Rahul Sharma", "Crane rental", "Rs.10,000", "30 days"} {
		if !bytes.Contains(out, []byte(want)) {
			t.Errorf("PDF content does not contain %q", want)
		}
	}
}

func TestConvert_Compression(t *testing.T) {
	opts := DefaultOptions()
	opts.Quality = 80
	out, err := newSession(t).Convert(context.Background(), sampleHTML, opts)
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	if bytes.Contains(out, []byte("Crane rental")) {
		t.Error("content streams should be compressed below quality 100")
	}
}

func TestConvert_WatermarkAndFooter(t *testing.T) {
	opts := DefaultOptions()
	opts.Watermark = "DRAFT"
	opts.DisplayHeaderFooter = true
	opts.HeaderText = "Quotation Q-1"

	out, err := newSession(t).Convert(context.Background(), sampleHTML, opts)
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	for _, want := range []string{"(DRAFT) Tj", "Page 1 of 1", "(Quotation Q-1) Tj"} {
		if !bytes.Contains(out, []byte(want)) {
			t.Errorf("PDF content does not contain %q", want)
		}
	}
}

func TestConvert_Errors(t *testing.T) {
	s := newSession(t)

	if _, err := s.Convert(context.Background(), "   ", DefaultOptions()); !errors.Is(err, ErrEmptyDocument) {
		t.Errorf("empty html error = %v, want ErrEmptyDocument", err)
	}
	if _, err := s.Convert(context.Background(), "<html></html>", DefaultOptions()); !errors.Is(err, ErrEmptyDocument) {
		t.Errorf("empty body error = %v, want ErrEmptyDocument", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Convert(ctx, sampleHTML, DefaultOptions()); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled error = %v, want context.Canceled", err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := s.Convert(context.Background(), sampleHTML, DefaultOptions()); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("closed session error = %v, want ErrSessionClosed", err)
	}
}

func TestConvert_RenderedDocument(t *testing.T) {
	tmpl := template.FallbackTemplate()
	tmpl.Elements[0].Content = &template.HeaderContent{Title: "QUOTATION", QRCode: "{{quotation.number}}"}

	items := make([]any, 0, 80)
	for i := 0; i < 80; i++ {
		items = append(items, map[string]any{"description": "Crane hire day", "quantity": 1, "rate": 4500, "amount": 4500})
	}
	doc, err := render.New().Render(tmpl, merge.Context{
		"company":   map[string]any{"name": "ASP CRANES"},
		"client":    map[string]any{"name": "Rahul Sharma"},
		"quotation": map[string]any{"number": "Q-42", "date": "2024-01-15"},
		"items":     items,
		"totals":    map[string]any{"subtotal": 360000, "tax": 64800, "total": 424800},
	})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	opts := DefaultOptions()
	opts.DisplayHeaderFooter = true
	out, err := newSession(t).Convert(context.Background(), doc.HTML, opts)
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	if !bytes.Contains(out, []byte("Page 2 of ")) {
		t.Error("long items table should span several pages")
	}
	if !bytes.Contains(out, []byte("/Subtype /Image")) {
		t.Error("QR image missing from PDF")
	}
}

func TestColumnWidths(t *testing.T) {
	tests := []struct {
		name  string
		specs []string
		count int
		want  []float64
	}{
		{"all auto", nil, 4, []float64{25, 25, 25, 25}},
		{"percent and auto", []string{"10%", "", "30%"}, 4, []float64{10, 30, 30, 30}},
		{"absolute", []string{"20mm", "2cm"}, 2, []float64{50, 50}},
		{"oversized fixed leaves room for auto", []string{"90%", ""}, 2, []float64{80, 20}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := columnWidths(tt.specs, tt.count, 100)
			for i := range tt.want {
				if math.Abs(got[i]-tt.want[i]) > 1e-9 {
					t.Fatalf("columnWidths() = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestParseHex(t *testing.T) {
	c, ok := parseHex("#1e40af")
	if !ok || c != (rgb{30, 64, 175}) {
		t.Errorf("parseHex(#1e40af) = %v, %v", c, ok)
	}
	c, ok = parseHex("#fff")
	if !ok || c != (rgb{255, 255, 255}) {
		t.Errorf("parseHex(#fff) = %v, %v", c, ok)
	}
	if _, ok := parseHex("#12"); ok {
		t.Error("parseHex(#12) should fail")
	}
}

func TestTextOf(t *testing.T) {
	doc, err := parseDocument("<p>  Hello\n   <b>world</b><br> next   line </p>")
	if err != nil {
		t.Fatalf("parseDocument() error = %v", err)
	}
	if got := textOf(doc.body); got != "Hello world\nnext line" {
		t.Errorf("textOf() = %q", strings.ReplaceAll(got, "\n", `\n`))
	}
}
