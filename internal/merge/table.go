package merge

import (
	"strings"
	"unicode"
)

// Column is one table column. Value is merged per row; for item tables an
// empty Value reads item.<Key>.
type Column struct {
	Key   string
	Label string
	Value string
	Align string
}

// TableSpec describes a table before merging.
type TableSpec struct {
	Columns    []Column
	Rows       [][]string
	Widths     []string
	ShowHeader bool
	// Items iterates the context's items instead of Rows.
	Items bool
}

// Table is a fully merged table ready for markup.
type Table struct {
	Headers    []string
	Rows       [][]string
	Widths     []string
	Aligns     []string
	ShowHeader bool
}

// DefaultItemColumns are used by items tables without configured columns.
var DefaultItemColumns = []Column{
	{Key: "no", Label: "No", Align: "center"},
	{Key: "description", Label: "Description"},
	{Key: "quantity", Label: "Qty", Align: "right"},
	{Key: "unit", Label: "Unit"},
	{Key: "rate", Label: "Rate", Align: "right"},
	{Key: "amount", Label: "Amount", Align: "right"},
}

// AutoWidth marks a column without an explicit width.
const AutoWidth = "auto"

// BuildTable merges spec against the scope.
func (s *Scope) BuildTable(spec TableSpec) Table {
	columns := spec.Columns
	if spec.Items && len(columns) == 0 {
		columns = DefaultItemColumns
	}

	var rows [][]string
	if spec.Items {
		for i, item := range s.Items() {
			child := s.WithItem(i, item)
			row := make([]string, len(columns))
			for c, col := range columns {
				row[c] = child.itemCell(col)
			}
			rows = append(rows, row)
		}
	} else {
		for _, src := range spec.Rows {
			row := make([]string, len(src))
			for c, cell := range src {
				row[c] = s.Merge(cell)
			}
			rows = append(rows, row)
		}
	}

	width := len(columns)
	for _, row := range rows {
		if len(row) > width {
			width = len(row)
		}
	}
	for i, row := range rows {
		if len(row) < width {
			rows[i] = append(row, make([]string, width-len(row))...)
		}
	}

	table := Table{
		Headers:    make([]string, width),
		Rows:       rows,
		Widths:     make([]string, width),
		Aligns:     make([]string, width),
		ShowHeader: spec.ShowHeader,
	}
	for i := 0; i < width; i++ {
		if i < len(columns) {
			col := columns[i]
			label := col.Label
			if label == "" {
				label = Humanize(col.Key)
			}
			table.Headers[i] = s.Merge(label)
			table.Aligns[i] = normalizeAlign(col.Align)
		} else {
			table.Aligns[i] = "left"
		}
		table.Widths[i] = AutoWidth
		if i < len(spec.Widths) && strings.TrimSpace(spec.Widths[i]) != "" {
			table.Widths[i] = strings.TrimSpace(spec.Widths[i])
		}
	}
	return table
}

func (s *Scope) itemCell(col Column) string {
	if col.Value != "" {
		return s.Merge(col.Value)
	}
	if col.Key == "" {
		return ""
	}
	return s.Value("item." + col.Key)
}

func normalizeAlign(align string) string {
	switch strings.ToLower(strings.TrimSpace(align)) {
	case "right":
		return "right"
	case "center", "centre":
		return "center"
	}
	return "left"
}

// Humanize turns a key such as validUntil or machine_type into a label.
func Humanize(key string) string {
	if key == "" {
		return ""
	}
	var b strings.Builder
	prevLower := false
	for i, r := range key {
		switch {
		case r == '_' || r == '-' || r == '.':
			b.WriteRune(' ')
			prevLower = false
			continue
		case unicode.IsUpper(r) && prevLower:
			b.WriteRune(' ')
		}
		if i == 0 {
			r = unicode.ToUpper(r)
		}
		b.WriteRune(r)
		prevLower = unicode.IsLower(r) || unicode.IsDigit(r)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
