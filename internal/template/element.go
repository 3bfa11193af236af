package template

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ElementType is the closed set of element kinds.
type ElementType string

const (
	ElementHeader        ElementType = "header"
	ElementCompanyInfo   ElementType = "company_info"
	ElementClientInfo    ElementType = "client_info"
	ElementQuotationInfo ElementType = "quotation_info"
	ElementItemsTable    ElementType = "items_table"
	ElementTotals        ElementType = "totals"
	ElementTerms         ElementType = "terms"
	ElementSignature     ElementType = "signature"
	ElementText          ElementType = "text"
	ElementTable         ElementType = "table"
)

// ElementTypes lists every known kind in display order.
var ElementTypes = []ElementType{
	ElementHeader,
	ElementCompanyInfo,
	ElementClientInfo,
	ElementQuotationInfo,
	ElementItemsTable,
	ElementTotals,
	ElementTerms,
	ElementSignature,
	ElementText,
	ElementTable,
}

// Known reports whether t is one of the closed set of kinds.
func (t ElementType) Known() bool {
	for _, k := range ElementTypes {
		if k == t {
			return true
		}
	}
	return false
}

// Tabular reports whether elements of this kind carry a TableConfig.
func (t ElementType) Tabular() bool {
	return t == ElementTable || t == ElementItemsTable
}

// Element is one block of a template.
type Element struct {
	ID      string       `json:"id"`
	Type    ElementType  `json:"type"`
	Content Content      `json:"content"`
	Style   Style        `json:"style,omitempty"`
	Visible bool         `json:"visible"`
	ShowIf  string       `json:"showIf,omitempty"`
	Config  *TableConfig `json:"config,omitempty"`
}

// Body returns the element content as a pointer to its concrete struct,
// substituting the empty content of the kind when nothing is set.
func (e Element) Body() Content {
	switch c := e.Content.(type) {
	case nil:
		if empty := emptyContent(e.Type); empty != nil {
			return empty
		}
		return &RawContent{Type: e.Type}
	case HeaderContent:
		return &c
	case InfoContent:
		c.Type = e.Type
		return &c
	case *InfoContent:
		if c.Type != e.Type {
			cp := *c
			cp.Type = e.Type
			return &cp
		}
		return c
	case ItemsTableContent:
		return &c
	case TotalsContent:
		return &c
	case TermsContent:
		return &c
	case SignatureContent:
		return &c
	case TextContent:
		return &c
	case TableContent:
		return &c
	case RawContent:
		return &c
	}
	return e.Content
}

// Err returns the decode error recorded for malformed content, if any.
func (e Element) Err() error {
	if raw, ok := e.Body().(*RawContent); ok {
		return raw.Err
	}
	return nil
}

type elementJSON struct {
	ID      string          `json:"id,omitempty"`
	Type    ElementType     `json:"type"`
	Content json.RawMessage `json:"content,omitempty"`
	Style   Style           `json:"style,omitempty"`
	Visible *bool           `json:"visible,omitempty"`
	ShowIf  string          `json:"showIf,omitempty"`
	Config  *TableConfig    `json:"config,omitempty"`
}

func (e Element) MarshalJSON() ([]byte, error) {
	content, err := encodeContent(e.Body())
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s content: %w", e.Type, err)
	}
	visible := e.Visible
	return json.Marshal(elementJSON{
		ID:      e.ID,
		Type:    e.Type,
		Content: content,
		Style:   e.Style,
		Visible: &visible,
		ShowIf:  e.ShowIf,
		Config:  e.Config,
	})
}

type elementDecodeJSON struct {
	ID      string          `json:"id"`
	Type    ElementType     `json:"type"`
	Content json.RawMessage `json:"content"`
	Style   json.RawMessage `json:"style"`
	Visible *bool           `json:"visible"`
	ShowIf  string          `json:"showIf"`
	Config  json.RawMessage `json:"config"`
}

// UnmarshalJSON never rejects an element because of its content, style or
// config. Content that does not fit is kept as RawContent; a style or config
// of the wrong shape turns the whole element into malformed RawContent so it
// renders generically.
func (e *Element) UnmarshalJSON(data []byte) error {
	var raw elementDecodeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*e = Element{
		ID:      raw.ID,
		Type:    raw.Type,
		Visible: raw.Visible == nil || *raw.Visible,
		ShowIf:  raw.ShowIf,
	}

	if err := decodeOptional(raw.Style, &e.Style); err != nil {
		e.Content = malformed(raw.Type, raw.Content, fmt.Errorf("style: %w", err))
		return nil
	}
	if !isNull(raw.Config) && len(bytes.TrimSpace(raw.Config)) > 0 {
		cfg := &TableConfig{}
		if err := json.Unmarshal(raw.Config, cfg); err != nil {
			e.Style = nil
			e.Content = malformed(raw.Type, raw.Content, fmt.Errorf("config: %w", err))
			return nil
		}
		e.Config = cfg
	}

	e.Content = decodeContent(raw.Type, raw.Content)
	return nil
}

func decodeOptional(raw json.RawMessage, v any) error {
	if len(bytes.TrimSpace(raw)) == 0 || isNull(raw) {
		return nil
	}
	return json.Unmarshal(raw, v)
}

// Style maps CSS properties to values. Stored documents may carry numbers
// or booleans as values; they are kept in their textual form.
type Style map[string]string

func (s *Style) UnmarshalJSON(data []byte) error {
	var generic map[string]any
	if err := json.Unmarshal(data, &generic); err != nil {
		return err
	}
	if generic == nil {
		*s = nil
		return nil
	}
	out := make(Style, len(generic))
	for k, v := range generic {
		switch val := v.(type) {
		case string:
			out[k] = val
		case float64:
			out[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			out[k] = strconv.FormatBool(val)
		}
	}
	*s = out
	return nil
}

// Column describes one table column. Value may hold placeholders; for
// items tables an empty Value reads item.<Key>.
type Column struct {
	Key   string `json:"key,omitempty"`
	Label string `json:"label,omitempty"`
	Value string `json:"value,omitempty"`
	Align string `json:"align,omitempty"`
}

func (c *Column) UnmarshalJSON(data []byte) error {
	var label string
	if err := json.Unmarshal(data, &label); err == nil {
		*c = Column{Label: label}
		return nil
	}
	type plain Column
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*c = Column(p)
	return nil
}

// TableConfig configures table and items_table elements.
type TableConfig struct {
	Columns      []Column   `json:"columns,omitempty"`
	Rows         [][]string `json:"rows,omitempty"`
	ShowHeader   *bool      `json:"showHeader,omitempty"`
	ColumnWidths []string   `json:"columnWidths,omitempty"`
}

// HeaderVisible reports whether the header row is rendered. Defaults to true.
func (c *TableConfig) HeaderVisible() bool {
	return c == nil || c.ShowHeader == nil || *c.ShowHeader
}

type tableConfigJSON struct {
	Columns      json.RawMessage `json:"columns"`
	Rows         json.RawMessage `json:"rows"`
	ShowHeader   *bool           `json:"showHeader"`
	ColumnWidths []any           `json:"columnWidths"`
}

// UnmarshalJSON accepts the grid-size form builders send, where columns and
// rows are counts rather than lists.
func (c *TableConfig) UnmarshalJSON(data []byte) error {
	var raw tableConfigJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	cfg := TableConfig{ShowHeader: raw.ShowHeader}

	if n, ok := gridSize(raw.Columns); ok {
		for i := 1; i <= n; i++ {
			cfg.Columns = append(cfg.Columns, Column{
				Key:   "col" + strconv.Itoa(i),
				Label: "Column " + strconv.Itoa(i),
			})
		}
	} else if len(raw.Columns) > 0 && !isNull(raw.Columns) {
		if err := json.Unmarshal(raw.Columns, &cfg.Columns); err != nil {
			return fmt.Errorf("columns: %w", err)
		}
	}

	if n, ok := gridSize(raw.Rows); ok {
		width := len(cfg.Columns)
		for i := 0; i < n; i++ {
			cfg.Rows = append(cfg.Rows, make([]string, width))
		}
	} else if len(raw.Rows) > 0 && !isNull(raw.Rows) {
		var rows [][]any
		if err := json.Unmarshal(raw.Rows, &rows); err != nil {
			return fmt.Errorf("rows: %w", err)
		}
		for _, row := range rows {
			cells := make([]string, len(row))
			for i, cell := range row {
				cells[i] = cellText(cell)
			}
			cfg.Rows = append(cfg.Rows, cells)
		}
	}

	for _, w := range raw.ColumnWidths {
		cfg.ColumnWidths = append(cfg.ColumnWidths, widthText(w))
	}

	*c = cfg
	return nil
}

func gridSize(raw json.RawMessage) (int, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || (raw[0] != '-' && (raw[0] < '0' || raw[0] > '9')) {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil || f < 0 {
		return 0, false
	}
	return int(f), true
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func cellText(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	}
	b, _ := json.Marshal(v)
	return string(b)
}

// widthText turns a bare number into a percentage; strings pass through.
func widthText(v any) string {
	switch val := v.(type) {
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64) + "%"
	case string:
		return strings.TrimSpace(val)
	}
	return ""
}
