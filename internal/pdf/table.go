package pdf

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

type tableCell struct {
	text  string
	align string
}

type tableRow struct {
	cells    []tableCell
	header   bool
	emphasis bool
}

type tableData struct {
	widths []string
	rows   []tableRow
	totals bool
	zebra  bool
}

func parseTable(n *html.Node) tableData {
	t := tableData{
		totals: hasClass(n, "totals"),
		zebra:  hasClass(n, "items"),
	}
	var visit func(*html.Node, bool)
	visit = func(n *html.Node, inHead bool) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			switch c.DataAtom {
			case atom.Colgroup:
				for col := c.FirstChild; col != nil; col = col.NextSibling {
					if col.DataAtom != atom.Col {
						continue
					}
					width := ""
					if m := widthPattern.FindStringSubmatch(attr(col, "style")); m != nil {
						width = m[1]
					}
					t.widths = append(t.widths, width)
				}
			case atom.Thead:
				visit(c, true)
			case atom.Tbody, atom.Tfoot:
				visit(c, false)
			case atom.Tr:
				row := tableRow{header: inHead, emphasis: hasClass(c, "emphasis")}
				for cell := c.FirstChild; cell != nil; cell = cell.NextSibling {
					if cell.DataAtom != atom.Td && cell.DataAtom != atom.Th {
						continue
					}
					row.cells = append(row.cells, tableCell{text: textOf(cell), align: cellAlign(cell)})
				}
				t.rows = append(t.rows, row)
			}
		}
	}
	visit(n, false)
	return t
}

func cellAlign(n *html.Node) string {
	switch {
	case hasClass(n, "align-right"):
		return "R"
	case hasClass(n, "align-center"):
		return "C"
	}
	return "L"
}

// columnWidths resolves col widths against the available width. Percent
// and absolute widths are honoured; auto columns share what is left.
func columnWidths(specs []string, count int, total float64) []float64 {
	widths := make([]float64, count)
	fixed, autos := 0.0, 0
	for i := range widths {
		spec := ""
		if i < len(specs) {
			spec = specs[i]
		}
		switch {
		case strings.HasSuffix(spec, "%"):
			if p, err := strconv.ParseFloat(strings.TrimSuffix(spec, "%"), 64); err == nil && p > 0 {
				widths[i] = total * p / 100
			}
		case spec != "":
			if mm, err := ParseLength(spec); err == nil && mm > 0 {
				widths[i] = mm
			}
		}
		if widths[i] == 0 {
			autos++
		}
		fixed += widths[i]
	}

	switch {
	case autos > 0:
		if limit := total * 0.8; fixed > limit {
			scale(widths, limit/fixed)
			fixed = limit
		}
		share := (total - fixed) / float64(autos)
		for i := range widths {
			if widths[i] == 0 {
				widths[i] = share
			}
		}
	case fixed > 0:
		scale(widths, total/fixed)
	}
	return widths
}

func scale(widths []float64, f float64) {
	for i := range widths {
		widths[i] *= f
	}
}

func (l *layout) table(n *html.Node) {
	t := parseTable(n)
	count := len(t.widths)
	for _, r := range t.rows {
		count = max(count, len(r.cells))
	}
	if count == 0 {
		return
	}

	total, x := l.width, l.left
	if t.totals {
		total = l.width * 0.5
		x = l.left + l.width - total
	}
	widths := columnWidths(t.widths, count, total)

	var headers []tableRow
	for _, r := range t.rows {
		if r.header {
			headers = append(headers, r)
		}
	}

	body := 0
	for _, r := range t.rows {
		h := l.rowHeight(r, widths)
		if l.ensure(h) && !r.header {
			for _, hr := range headers {
				l.drawRow(hr, t, widths, x, l.rowHeight(hr, widths), false)
			}
		}
		zebra := false
		if !r.header {
			body++
			zebra = t.zebra && body%2 == 0
		}
		l.drawRow(r, t, widths, x, h, zebra)
	}
	l.reset()
	l.pdf.Ln(paragraphGap)
}

func (l *layout) rowHeight(r tableRow, widths []float64) float64 {
	style := ""
	if r.header || r.emphasis {
		style = "B"
	}
	l.setFont(style, bodySize)
	lines := 1
	for i, c := range r.cells {
		if i >= len(widths) {
			break
		}
		lines = max(lines, len(l.pdf.SplitLines([]byte(l.text(c.text)), widths[i]-2*cellPadding)))
	}
	return float64(lines)*lineHeight + 2*cellPadding
}

func (l *layout) drawRow(r tableRow, t tableData, widths []float64, x, h float64, zebra bool) {
	y := l.pdf.GetY()
	style := ""
	if r.header || r.emphasis {
		style = "B"
	}

	cx := x
	for i, w := range widths {
		cell := tableCell{align: "L"}
		if i < len(r.cells) {
			cell = r.cells[i]
		}

		switch {
		case r.header && l.opts.PrintBackground:
			l.pdf.SetFillColor(l.doc.primary.r, l.doc.primary.g, l.doc.primary.b)
			l.pdf.Rect(cx, y, w, h, "F")
			l.pdf.SetTextColor(255, 255, 255)
		case zebra && l.opts.PrintBackground:
			l.pdf.SetFillColor(zebraFill.r, zebraFill.g, zebraFill.b)
			l.pdf.Rect(cx, y, w, h, "F")
			l.pdf.SetTextColor(0, 0, 0)
		default:
			l.pdf.SetTextColor(0, 0, 0)
		}
		if !t.totals {
			l.pdf.SetDrawColor(borderColor.r, borderColor.g, borderColor.b)
			l.pdf.Rect(cx, y, w, h, "D")
		}

		l.setFont(style, bodySize)
		l.pdf.SetXY(cx+cellPadding, y+cellPadding)
		l.pdf.MultiCell(w-2*cellPadding, lineHeight, l.text(cell.text), "", cell.align, false)
		cx += w
	}

	if t.totals && r.emphasis {
		l.pdf.SetDrawColor(l.doc.primary.r, l.doc.primary.g, l.doc.primary.b)
		l.pdf.SetLineWidth(0.5)
		l.pdf.Line(x, y, x+sum(widths), y)
		l.pdf.SetLineWidth(0.2)
	}
	l.pdf.SetDrawColor(0, 0, 0)
	l.pdf.SetXY(l.left, y+h)
}

func sum(values []float64) float64 {
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total
}
