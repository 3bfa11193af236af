package template

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Content is the kind-specific payload of an element.
type Content interface {
	Kind() ElementType
}

// Content formats for text and terms.
const (
	FormatPlain    = "plain"
	FormatMarkdown = "markdown"
)

type HeaderContent struct {
	Title    string `json:"title,omitempty"`
	Subtitle string `json:"subtitle,omitempty"`
	LogoURL  string `json:"logoUrl,omitempty"`
	// QRCode is merged and encoded as a QR image next to the title.
	QRCode string `json:"qrCode,omitempty"`
}

func (HeaderContent) Kind() ElementType { return ElementHeader }

// Field is one label/value line of an info block. A field given as a bare
// string in stored JSON becomes a Key, which the renderer expands into a
// placeholder on the element's bucket.
type Field struct {
	Key   string `json:"key,omitempty"`
	Label string `json:"label,omitempty"`
	Value string `json:"value,omitempty"`
}

func (f *Field) UnmarshalJSON(data []byte) error {
	var key string
	if err := json.Unmarshal(data, &key); err == nil {
		*f = Field{Key: key}
		return nil
	}
	type plain Field
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*f = Field(p)
	return nil
}

// InfoContent backs company_info, client_info and quotation_info.
type InfoContent struct {
	Type   ElementType `json:"-"`
	Title  string      `json:"title,omitempty"`
	Fields []Field     `json:"fields,omitempty"`
}

func (c InfoContent) Kind() ElementType { return c.Type }

type ItemsTableContent struct {
	Title string `json:"title,omitempty"`
}

func (ItemsTableContent) Kind() ElementType { return ElementItemsTable }

type TotalsRow struct {
	Label    string `json:"label"`
	Value    string `json:"value"`
	Emphasis bool   `json:"emphasis,omitempty"`
}

type TotalsContent struct {
	Title string      `json:"title,omitempty"`
	Rows  []TotalsRow `json:"rows,omitempty"`
}

func (TotalsContent) Kind() ElementType { return ElementTotals }

type TermsContent struct {
	Title  string   `json:"title,omitempty"`
	Text   string   `json:"text,omitempty"`
	Items  []string `json:"items,omitempty"`
	Format string   `json:"format,omitempty"`
}

func (TermsContent) Kind() ElementType { return ElementTerms }

type SignatureContent struct {
	Label       string `json:"label,omitempty"`
	Name        string `json:"name,omitempty"`
	Designation string `json:"designation,omitempty"`
	Company     string `json:"company,omitempty"`
}

func (SignatureContent) Kind() ElementType { return ElementSignature }

type TextContent struct {
	Text   string `json:"text,omitempty"`
	Format string `json:"format,omitempty"`
}

func (TextContent) Kind() ElementType { return ElementText }

type TableContent struct {
	Title string `json:"title,omitempty"`
}

func (TableContent) Kind() ElementType { return ElementTable }

// RawContent keeps content verbatim when it belongs to an unknown kind or
// does not fit the shape of its kind. Err is set only in the latter case.
type RawContent struct {
	Type ElementType
	Data json.RawMessage
	Err  error
}

func (c RawContent) Kind() ElementType { return c.Type }

// Strings returns every string leaf of the raw content in a stable order:
// object keys sorted, arrays in sequence.
func (c RawContent) Strings() []string {
	if len(c.Data) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(c.Data, &v); err != nil {
		return []string{string(c.Data)}
	}
	var out []string
	collectStrings(v, &out)
	return out
}

func collectStrings(v any, out *[]string) {
	switch val := v.(type) {
	case string:
		if val != "" {
			*out = append(*out, val)
		}
	case float64, bool:
		*out = append(*out, fmt.Sprint(val))
	case []any:
		for _, item := range val {
			collectStrings(item, out)
		}
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			collectStrings(val[k], out)
		}
	}
}

// emptyContent returns the zero content for a kind.
func emptyContent(typ ElementType) Content {
	switch typ {
	case ElementHeader:
		return &HeaderContent{}
	case ElementCompanyInfo, ElementClientInfo, ElementQuotationInfo:
		return &InfoContent{Type: typ}
	case ElementItemsTable:
		return &ItemsTableContent{}
	case ElementTotals:
		return &TotalsContent{}
	case ElementTerms:
		return &TermsContent{}
	case ElementSignature:
		return &SignatureContent{}
	case ElementText:
		return &TextContent{}
	case ElementTable:
		return &TableContent{}
	}
	return nil
}

// decodeContent never fails: content it cannot place is kept as RawContent.
func decodeContent(typ ElementType, raw json.RawMessage) Content {
	raw = bytes.TrimSpace(raw)
	if !typ.Known() {
		return &RawContent{Type: typ, Data: cloneRaw(raw)}
	}
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return emptyContent(typ)
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return malformed(typ, raw, err)
		}
		trimmed := bytes.TrimSpace([]byte(s))
		if len(trimmed) > 0 && trimmed[0] == '{' && json.Valid(trimmed) {
			raw = trimmed
		} else {
			return contentFromString(typ, s, raw)
		}
	}

	content := emptyContent(typ)
	if err := json.Unmarshal(raw, content); err != nil {
		return malformed(typ, raw, err)
	}
	if info, ok := content.(*InfoContent); ok {
		info.Type = typ
	}
	return content
}

func contentFromString(typ ElementType, s string, raw json.RawMessage) Content {
	switch typ {
	case ElementHeader:
		return &HeaderContent{Title: s}
	case ElementText:
		return &TextContent{Text: s}
	case ElementTerms:
		return &TermsContent{Text: s}
	}
	// No primary text field; the renderer shows the merged string generically.
	return &RawContent{Type: typ, Data: cloneRaw(raw)}
}

func malformed(typ ElementType, raw json.RawMessage, err error) Content {
	return &RawContent{
		Type: typ,
		Data: cloneRaw(raw),
		Err:  &MalformedElementError{Type: typ, Err: err},
	}
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	return append(json.RawMessage(nil), raw...)
}

func encodeContent(c Content) (json.RawMessage, error) {
	switch v := c.(type) {
	case nil:
		return nil, nil
	case *RawContent:
		if len(v.Data) == 0 {
			return nil, nil
		}
		return v.Data, nil
	case RawContent:
		if len(v.Data) == 0 {
			return nil, nil
		}
		return v.Data, nil
	}
	return json.Marshal(c)
}
