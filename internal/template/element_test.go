package template

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestElement_UnmarshalContentShapes(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		check     func(t *testing.T, el Element)
		malformed bool
	}{
		{
			name:  "object content",
			input: `{"id":"h1","type":"header","content":{"title":"QUOTATION","subtitle":"{{company.name}}"}}`,
			check: func(t *testing.T, el Element) {
				h, ok := el.Content.(*HeaderContent)
				if !ok || h.Title != "QUOTATION" || h.Subtitle != "{{company.name}}" {
					t.Errorf("content = %#v", el.Content)
				}
			},
		},
		{
			name:  "json string holding an object",
			input: `{"type":"terms","content":"{\"title\":\"Terms\",\"items\":[\"a\",\"b\"]}"}`,
			check: func(t *testing.T, el Element) {
				c, ok := el.Content.(*TermsContent)
				if !ok || c.Title != "Terms" || len(c.Items) != 2 {
					t.Errorf("content = %#v", el.Content)
				}
			},
		},
		{
			name:  "plain string becomes text",
			input: `{"type":"text","content":"Dear {{client.name}}"}`,
			check: func(t *testing.T, el Element) {
				c, ok := el.Content.(*TextContent)
				if !ok || c.Text != "Dear {{client.name}}" {
					t.Errorf("content = %#v", el.Content)
				}
			},
		},
		{
			name:  "plain string on info kind stays raw",
			input: `{"type":"client_info","content":"{{client.name}}"}`,
			check: func(t *testing.T, el Element) {
				c, ok := el.Content.(*RawContent)
				if !ok || c.Err != nil {
					t.Fatalf("content = %#v", el.Content)
				}
				if got := c.Strings(); len(got) != 1 || got[0] != "{{client.name}}" {
					t.Errorf("Strings() = %v", got)
				}
			},
		},
		{
			name:  "info fields given as keys",
			input: `{"type":"company_info","content":{"fields":["name",{"label":"GST","value":"{{company.gstin}}"}]}}`,
			check: func(t *testing.T, el Element) {
				c, ok := el.Content.(*InfoContent)
				if !ok || len(c.Fields) != 2 {
					t.Fatalf("content = %#v", el.Content)
				}
				if c.Type != ElementCompanyInfo {
					t.Errorf("Type = %q", c.Type)
				}
				if c.Fields[0].Key != "name" || c.Fields[1].Label != "GST" {
					t.Errorf("fields = %+v", c.Fields)
				}
			},
		},
		{
			name:      "wrong shape is malformed",
			input:     `{"type":"totals","content":{"rows":"not a list"}}`,
			malformed: true,
		},
		{
			name:      "config columns of the wrong shape",
			input:     `{"type":"table","content":{"title":"Rates"},"config":{"columns":{"a":1}}}`,
			malformed: true,
		},
		{
			name:      "config rows of the wrong shape",
			input:     `{"type":"table","config":{"rows":[1,2]}}`,
			malformed: true,
		},
		{
			name:      "config showHeader not a bool",
			input:     `{"type":"items_table","config":{"showHeader":"yes"}}`,
			malformed: true,
		},
		{
			name:      "style given as a CSS string",
			input:     `{"type":"header","content":{"title":"ASP"},"style":"color:red"}`,
			malformed: true,
		},
		{
			name:  "unknown kind is raw without error",
			input: `{"type":"barcode","content":{"value":"123"}}`,
			check: func(t *testing.T, el Element) {
				c, ok := el.Content.(*RawContent)
				if !ok || c.Err != nil || c.Type != "barcode" {
					t.Errorf("content = %#v", el.Content)
				}
			},
		},
		{
			name:  "missing content is empty",
			input: `{"type":"signature"}`,
			check: func(t *testing.T, el Element) {
				if _, ok := el.Content.(*SignatureContent); !ok {
					t.Errorf("content = %#v", el.Content)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var el Element
			if err := json.Unmarshal([]byte(tt.input), &el); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if !el.Visible {
				t.Error("element without visible flag must be visible")
			}
			if tt.malformed {
				if !errors.Is(el.Err(), ErrMalformedElement) {
					t.Errorf("Err() = %v, want ErrMalformedElement", el.Err())
				}
				return
			}
			if el.Err() != nil {
				t.Errorf("Err() = %v", el.Err())
			}
			tt.check(t, el)
		})
	}
}

func TestElement_RoundTrip(t *testing.T) {
	inputs := []string{
		`{"id":"t1","type":"totals","content":{"rows":"not a list"},"visible":false}`,
		`{"id":"b1","type":"barcode","content":{"value":"123"},"visible":true}`,
		`{"id":"x1","type":"items_table","content":{"title":"Items"},"visible":true,"config":{"columns":[{"key":"no","label":"#"}],"columnWidths":["10%"]}}`,
	}
	for _, input := range inputs {
		var first Element
		if err := json.Unmarshal([]byte(input), &first); err != nil {
			t.Fatalf("Unmarshal() error = %v", err)
		}
		data, err := json.Marshal(first)
		if err != nil {
			t.Fatalf("Marshal() error = %v", err)
		}
		var second Element
		if err := json.Unmarshal(data, &second); err != nil {
			t.Fatalf("Unmarshal() second error = %v", err)
		}
		again, _ := json.Marshal(second)
		if string(again) != string(data) {
			t.Errorf("round trip changed element:\n%s\n%s", data, again)
		}
		if first.Visible != second.Visible {
			t.Errorf("visible changed for %s", input)
		}
	}
}

func TestTableConfig_GridSize(t *testing.T) {
	var cfg TableConfig
	input := `{"columns":3,"rows":2,"showHeader":false,"columnWidths":[30,"auto"]}`
	if err := json.Unmarshal([]byte(input), &cfg); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if len(cfg.Columns) != 3 || cfg.Columns[2].Key != "col3" {
		t.Errorf("columns = %+v", cfg.Columns)
	}
	if len(cfg.Rows) != 2 || len(cfg.Rows[0]) != 3 {
		t.Errorf("rows = %v", cfg.Rows)
	}
	if cfg.HeaderVisible() {
		t.Error("HeaderVisible() = true, want false")
	}
	if strings.Join(cfg.ColumnWidths, ",") != "30%,auto" {
		t.Errorf("widths = %v", cfg.ColumnWidths)
	}

	var mixed TableConfig
	if err := json.Unmarshal([]byte(`{"columns":["Item","Rate"],"rows":[["Crane",1500]]}`), &mixed); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if mixed.Columns[1].Label != "Rate" || mixed.Rows[0][1] != "1500" {
		t.Errorf("mixed = %+v", mixed)
	}
	if !mixed.HeaderVisible() {
		t.Error("HeaderVisible() default = false, want true")
	}
}

func TestStyle_NonStringValues(t *testing.T) {
	var s Style
	if err := json.Unmarshal([]byte(`{"fontSize":14,"color":"#333","bold":true}`), &s); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if s["fontSize"] != "14" || s["color"] != "#333" || s["bold"] != "true" {
		t.Errorf("style = %v", s)
	}
}

func TestDecode_MalformedConfigKeepsTemplate(t *testing.T) {
	data := []byte(`{"name":"Mixed","elements":[
		{"type":"header","content":{"title":"ASP"}},
		{"type":"table","content":{"title":"Rates"},"config":{"columns":{"a":1}}}
	]}`)

	tmpl, err := Decode(data, "json")
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(tmpl.Elements) != 2 {
		t.Fatalf("elements = %d, want 2", len(tmpl.Elements))
	}
	if h, ok := tmpl.Elements[0].Content.(*HeaderContent); !ok || h.Title != "ASP" {
		t.Errorf("header content = %#v", tmpl.Elements[0].Content)
	}
	bad := tmpl.Elements[1]
	if !errors.Is(bad.Err(), ErrMalformedElement) {
		t.Errorf("Err() = %v, want ErrMalformedElement", bad.Err())
	}
	if bad.Config != nil {
		t.Errorf("Config = %+v, want nil", bad.Config)
	}
	raw, ok := bad.Content.(*RawContent)
	if !ok || !strings.Contains(strings.Join(raw.Strings(), " "), "Rates") {
		t.Errorf("content = %#v", bad.Content)
	}
}
