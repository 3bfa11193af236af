package merge

import (
	"strings"
	"testing"
	"time"
)

func sampleContext() Context {
	return Context{
		"company": map[string]any{
			"name":    "ASP CRANES",
			"address": "Plot 12, MIDC, Pune",
		},
		"client": map[string]any{
			"name":    "Rahul Sharma",
			"company": "ABC Infra",
		},
		"quotation": map[string]any{
			"number":      "Q-2024-001",
			"date":        "2024-01-15",
			"validUntil":  time.Date(2024, 2, 14, 0, 0, 0, 0, time.UTC),
			"machineType": "Mobile Crane 50T",
			"duration":    30,
			"showTerms":   true,
		},
		"items": []any{
			map[string]any{"description": "Crane rental", "quantity": 30.0, "unit": "days", "rate": 4500.0, "amount": 135000.0},
			map[string]any{"description": "Mobilisation", "quantity": 1, "unit": "trip", "rate": 15000, "amount": 15000},
		},
		"totals": map[string]any{
			"subtotal": 10000.0,
			"tax":      1800,
			"total":    "₹11,800",
		},
	}
}

func TestScope_Merge(t *testing.T) {
	s := NewScope(sampleContext())

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain text", "no placeholders", "no placeholders"},
		{"dotted path", "Dear {{client.name}}", "Dear Rahul Sharma"},
		{"spaces inside braces", "{{ company.name }}", "ASP CRANES"},
		{"customer alias", "{{customer.name}} / {{customer.company}}", "Rahul Sharma / ABC Infra"},
		{"legacy flat name", "{{customer_name}} {{quotation_number}}", "Rahul Sharma Q-2024-001"},
		{"currency number", "{{totals.subtotal}}", "₹10,000"},
		{"currency int", "{{totals.tax}}", "₹1,800"},
		{"preformatted string", "{{totals.total}}", "₹11,800"},
		{"date string", "{{quotation.date}}", "15 January 2024"},
		{"date time value", "{{quotation.validUntil}}", "14 February 2024"},
		{"integer text", "{{quotation.duration}} days", "30 days"},
		{"missing with default", "{{quotation.notes}}|{{client.phone}}", "|"},
		{"slice index", "{{items.1.description}}", "Mobilisation"},
		{"unknown bucket", "[{{nothing.here}}]", "[]"},
		{"not a placeholder", "{{ bad path! }} {single}", "{{ bad path! }} {single}"},
		{"case sensitive", "{{Client.name}}", ""},
		{"non scalar", "{{company}}", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Merge(tt.in); got != tt.want {
				t.Errorf("Merge(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestScope_Defaults(t *testing.T) {
	s := NewScope(Context{})
	tests := map[string]string{
		"{{quotation.number}}": "N/A",
		"{{client.name}}":      "N/A",
		"{{customer_name}}":    "N/A",
		"{{totals.total}}":     "N/A",
		"{{company.name}}":     "",
	}
	for in, want := range tests {
		if got := s.Merge(in); got != want {
			t.Errorf("Merge(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestScope_MergeIsSinglePass(t *testing.T) {
	s := NewScope(Context{
		"client":  map[string]any{"name": "{{company.secret}}"},
		"company": map[string]any{"secret": "leaked"},
	})
	if got := s.Merge("{{client.name}}"); got != "{{company.secret}}" {
		t.Errorf("Merge() = %q, substituted values must not be re-scanned", got)
	}
}

func TestScope_NoPlaceholderSurvives(t *testing.T) {
	s := NewScope(sampleContext())
	var inputs []string
	for _, e := range Vocabulary {
		inputs = append(inputs, "{{"+e.Name+"}}")
	}
	inputs = append(inputs, "{{ totally.unknown }}", "{{x}}")
	for _, in := range inputs {
		if got := s.Merge(in); placeholderPattern.MatchString(got) {
			t.Errorf("Merge(%q) left a placeholder: %q", in, got)
		}
	}
}

func TestScope_Truthy(t *testing.T) {
	s := NewScope(Context{
		"flags": map[string]any{
			"yes":   true,
			"no":    false,
			"zero":  0,
			"empty": "",
			"text":  "shown",
			"off":   "false",
		},
	})
	tests := map[string]bool{
		"flags.yes":     true,
		"flags.text":    true,
		"flags.no":      false,
		"flags.zero":    false,
		"flags.empty":   false,
		"flags.off":     false,
		"flags.missing": false,
	}
	for path, want := range tests {
		if got := s.Truthy(path); got != want {
			t.Errorf("Truthy(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestScope_Items(t *testing.T) {
	s := NewScope(sampleContext())
	items := s.Items()
	if len(items) != 2 {
		t.Fatalf("Items() = %d, want 2", len(items))
	}

	row := s.WithItem(1, items[1])
	tests := map[string]string{
		"{{item_no}}":       "2",
		"{{item_name}}":     "Mobilisation",
		"{{item_quantity}}": "1",
		"{{item_rate}}":     "₹15,000",
		"{{item.amount}}":   "₹15,000",
		"{{item.unit}}":     "trip",
		"{{company.name}}":  "ASP CRANES",
	}
	for in, want := range tests {
		if got := row.Merge(in); got != want {
			t.Errorf("row.Merge(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestBuildTable_Items(t *testing.T) {
	s := NewScope(sampleContext())
	table := s.BuildTable(TableSpec{Items: true, ShowHeader: true, Widths: []string{"8%", "", "10%"}})

	if strings.Join(table.Headers, ",") != "No,Description,Qty,Unit,Rate,Amount" {
		t.Errorf("headers = %v", table.Headers)
	}
	if len(table.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(table.Rows))
	}
	want := []string{"1", "Crane rental", "30", "days", "₹4,500", "₹1,35,000"}
	for i, cell := range table.Rows[0] {
		if i == 5 {
			// en-IN grouping of lakhs depends on CLDR data; only the symbol is fixed.
			if !strings.HasPrefix(cell, "₹") {
				t.Errorf("amount cell = %q", cell)
			}
			continue
		}
		if cell != want[i] {
			t.Errorf("row 0 cell %d = %q, want %q", i, cell, want[i])
		}
	}
	if strings.Join(table.Widths, ",") != "8%,auto,10%,auto,auto,auto" {
		t.Errorf("widths = %v", table.Widths)
	}
	if table.Aligns[4] != "right" || table.Aligns[1] != "left" {
		t.Errorf("aligns = %v", table.Aligns)
	}
}

func TestBuildTable_Static(t *testing.T) {
	s := NewScope(sampleContext())
	table := s.BuildTable(TableSpec{
		Columns: []Column{{Label: "Field"}, {Key: "value"}},
		Rows: [][]string{
			{"Client", "{{client.name}}"},
			{"Machine", "{{quotation.machineType}}", "extra"},
		},
	})

	if len(table.Headers) != 3 || table.Headers[1] != "Value" || table.Headers[2] != "" {
		t.Errorf("headers = %q", table.Headers)
	}
	if table.Rows[0][1] != "Rahul Sharma" || table.Rows[0][2] != "" {
		t.Errorf("row 0 = %q", table.Rows[0])
	}
	if table.Rows[1][1] != "Mobile Crane 50T" || table.Rows[1][2] != "extra" {
		t.Errorf("row 1 = %q", table.Rows[1])
	}
	if table.ShowHeader {
		t.Error("ShowHeader = true, want false")
	}
}

func TestBuildTable_NoItems(t *testing.T) {
	table := NewScope(Context{}).BuildTable(TableSpec{Items: true, ShowHeader: true})
	if len(table.Rows) != 0 || len(table.Headers) != len(DefaultItemColumns) {
		t.Errorf("table = %+v", table)
	}
}

func TestFormatters(t *testing.T) {
	tests := []struct {
		got  string
		want string
	}{
		{FormatCurrency(10000), "₹10,000"},
		{FormatCurrency(999.6), "₹1,000"},
		{FormatCurrency(0), "₹0"},
		{FormatCurrency(-2500), "-₹2,500"},
		{FormatCurrency(-0.4), "₹0"},
		{FormatCurrency(-0.6), "-₹1"},
		{FormatNumber(1234.5), "1,234.5"},
		{FormatDate(time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)), "15 January 2024"},
		{FormatDate(time.Time{}), ""},
	}
	for i, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("case %d = %q, want %q", i, tt.got, tt.want)
		}
	}

	usd := NewFormatter("en-US", "$")
	if got := usd.Currency(1500); got != "$1,500" {
		t.Errorf("en-US Currency() = %q", got)
	}
}

func TestHumanize(t *testing.T) {
	tests := map[string]string{
		"validUntil":   "Valid Until",
		"machine_type": "Machine type",
		"gstin":        "Gstin",
		"":             "",
	}
	for in, want := range tests {
		if got := Humanize(in); got != want {
			t.Errorf("Humanize(%q) = %q, want %q", in, got, want)
		}
	}
}
