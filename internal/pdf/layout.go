package pdf

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/jung-kurt/gofpdf"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	bodySize      = 10.0
	lineHeight    = 5.0
	cellPadding   = 1.5
	paragraphGap  = 1.5
	elementGap    = 3.0
	logoHeight    = 16.0
	qrSize        = 22.0
	watermarkSize = 60.0
	ptToMM        = 25.4 / 72
)

type rgb struct{ r, g, b int }

var (
	defaultPrimary = rgb{30, 64, 175}
	mutedText      = rgb{100, 116, 139}
	borderColor    = rgb{203, 213, 225}
	zebraFill      = rgb{241, 245, 249}
)

var (
	primaryPattern = regexp.MustCompile(`--primary:\s*(#[0-9a-fA-F]{3,6})\b`)
	spacePattern   = regexp.MustCompile(`\s+`)
	widthPattern   = regexp.MustCompile(`width:\s*([0-9.]+(?:%|px|mm|cm|in|pt)?)`)
)

// document is the part of the rendered HTML the layout needs.
type document struct {
	body    *html.Node
	title   string
	font    string
	primary rgb
}

func parseDocument(src string) (*document, error) {
	root, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}

	doc := &document{font: "Helvetica", primary: defaultPrimary}
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Title:
				doc.title = textOf(n)
			case atom.Style:
				if m := primaryPattern.FindStringSubmatch(rawText(n)); m != nil {
					if c, ok := parseHex(m[1]); ok {
						doc.primary = c
					}
				}
			case atom.Body:
				doc.body = n
				if hasClass(n, "theme-classic") {
					doc.font = "Times"
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(root)

	if doc.body == nil || doc.body.FirstChild == nil {
		return nil, ErrEmptyDocument
	}
	return doc, nil
}

// layout draws one document onto a gofpdf page stream.
type layout struct {
	ctx  context.Context
	pdf  *gofpdf.Fpdf
	doc  *document
	opts Options
	sess *fpdfSession
	tr   func(string) string

	registered map[string]bool

	pageW, pageH             float64
	left, top, right, bottom float64
	width                    float64
}

func newLayout(ctx context.Context, pdf *gofpdf.Fpdf, doc *document, opts Options, sess *fpdfSession) *layout {
	l := &layout{
		ctx:        ctx,
		pdf:        pdf,
		doc:        doc,
		opts:       opts,
		sess:       sess,
		tr:         pdf.UnicodeTranslatorFromDescriptor(""),
		registered: make(map[string]bool),
	}
	l.pageW, l.pageH = pdf.GetPageSize()
	l.left, l.top, l.right, _ = pdf.GetMargins()
	l.bottom = opts.Margins.Bottom
	l.width = l.pageW - l.left - l.right
	return l
}

func (l *layout) run() error {
	if l.doc.title != "" {
		l.pdf.SetTitle(l.doc.title, true)
	}
	l.pdf.SetHeaderFunc(l.pageHeader)
	if l.opts.DisplayHeaderFooter {
		l.pdf.SetFooterFunc(l.pageFooter)
	}

	l.pdf.AddPage()
	l.setFont("", bodySize)
	return l.blocks(l.doc.body)
}

func (l *layout) blocks(n *html.Node) error {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if err := l.block(c); err != nil {
			return err
		}
	}
	return nil
}

func (l *layout) block(n *html.Node) error {
	if n.Type == html.TextNode {
		if t := strings.TrimSpace(spacePattern.ReplaceAllString(n.Data, " ")); t != "" {
			l.textBlock(t, "L")
		}
		return nil
	}
	if n.Type != html.ElementNode {
		return nil
	}
	if err := l.ctx.Err(); err != nil {
		return err
	}

	switch n.DataAtom {
	case atom.Head, atom.Style, atom.Script, atom.Title, atom.Colgroup:
	case atom.Header:
		l.header(n)
	case atom.H1:
		l.heading(n, 18)
	case atom.H2:
		l.heading(n, 12)
	case atom.H3, atom.H4, atom.H5, atom.H6:
		l.heading(n, 10.5)
	case atom.P, atom.Pre, atom.Blockquote:
		l.paragraph(n)
	case atom.Dl:
		l.definitionList(n)
	case atom.Table:
		l.table(n)
	case atom.Ul:
		l.list(n, false)
	case atom.Ol:
		l.list(n, true)
	case atom.Img:
		l.blockImage(n)
	case atom.Hr:
		l.rule()
	case atom.Br:
		l.pdf.Ln(lineHeight)
	case atom.Div:
		if hasClass(n, "signature") {
			l.signature(n)
			break
		}
		if err := l.blocks(n); err != nil {
			return err
		}
		if hasClass(n, "element") {
			l.pdf.Ln(elementGap)
		}
	default:
		return l.blocks(n)
	}
	return nil
}

func (l *layout) header(n *html.Node) {
	var logo, qr *imageData
	var title, subtitle string
	walk(n, func(c *html.Node) {
		switch {
		case c.DataAtom == atom.Img && hasClass(c, "logo"):
			logo = l.sess.image(attr(c, "src"))
		case c.DataAtom == atom.Img && hasClass(c, "qr"):
			qr = l.sess.image(attr(c, "src"))
		case c.DataAtom == atom.H1:
			title = textOf(c)
		case c.DataAtom == atom.P && hasClass(c, "subtitle"):
			subtitle = textOf(c)
		}
	})

	l.ensure(qrSize)
	y := l.pdf.GetY()
	bottom := y
	textX, textW := l.left, l.width

	if logo != nil {
		w := logoHeight * float64(logo.width) / float64(logo.height)
		h := logoHeight
		if w > l.width/3 {
			w = l.width / 3
			h = w * float64(logo.height) / float64(logo.width)
		}
		if l.place(logo, l.left, y, w, h) {
			textX += w + 4
			textW -= w + 4
			bottom = math.Max(bottom, y+h)
		}
	}
	if qr != nil && l.place(qr, l.left+l.width-qrSize, y, qrSize, qrSize) {
		textW -= qrSize + 4
		bottom = math.Max(bottom, y+qrSize)
	}

	l.pdf.SetXY(textX, y)
	l.setColor(l.doc.primary)
	l.setFont("B", 18)
	l.pdf.MultiCell(textW, 8, l.text(title), "", "L", false)
	if subtitle != "" {
		l.pdf.SetX(textX)
		l.setColor(mutedText)
		l.setFont("", 11)
		l.pdf.MultiCell(textW, 5.5, l.text(subtitle), "", "L", false)
	}
	bottom = math.Max(bottom, l.pdf.GetY())

	l.pdf.SetY(bottom + 2)
	l.pdf.SetDrawColor(l.doc.primary.r, l.doc.primary.g, l.doc.primary.b)
	l.pdf.SetLineWidth(0.6)
	l.pdf.Line(l.left, l.pdf.GetY(), l.left+l.width, l.pdf.GetY())
	l.pdf.SetLineWidth(0.2)
	l.reset()
	l.pdf.Ln(3)
}

func (l *layout) heading(n *html.Node, size float64) {
	text := textOf(n)
	if text == "" {
		return
	}
	h := size * ptToMM * 1.4
	l.ensure(h + lineHeight)
	l.setColor(l.doc.primary)
	l.setFont("B", size)
	l.pdf.SetX(l.left)
	l.pdf.MultiCell(l.width, h, l.text(text), "", "L", false)
	l.reset()
	l.pdf.Ln(1)
}

// paragraph writes inline runs so that bold and italic spans keep their
// style within the flowing text.
func (l *layout) paragraph(n *html.Node) {
	l.ensure(lineHeight)
	l.pdf.SetX(l.left)
	l.inline(n, "")
	l.setFont("", bodySize)
	l.pdf.Ln(lineHeight + paragraphGap)
}

func (l *layout) inline(n *html.Node, style string) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			t := spacePattern.ReplaceAllString(c.Data, " ")
			if l.pdf.GetX() <= l.left+0.01 {
				t = strings.TrimLeft(t, " ")
			}
			if t == "" {
				continue
			}
			l.setFont(style, bodySize)
			l.pdf.Write(lineHeight, l.text(t))
		case html.ElementNode:
			switch c.DataAtom {
			case atom.Br:
				l.pdf.Ln(lineHeight)
			case atom.Strong, atom.B:
				l.inline(c, addStyle(style, "B"))
			case atom.Em, atom.I:
				l.inline(c, addStyle(style, "I"))
			default:
				l.inline(c, style)
			}
		}
	}
}

func (l *layout) textBlock(text, align string) {
	l.ensure(lineHeight)
	l.setFont("", bodySize)
	l.pdf.SetX(l.left)
	l.pdf.MultiCell(l.width, lineHeight, l.text(text), "", align, false)
	l.pdf.Ln(paragraphGap)
}

func (l *layout) definitionList(n *html.Node) {
	type pair struct{ term, desc string }
	var pairs []pair
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.DataAtom {
		case atom.Dt:
			pairs = append(pairs, pair{term: textOf(c)})
		case atom.Dd:
			if len(pairs) == 0 || pairs[len(pairs)-1].desc != "" {
				pairs = append(pairs, pair{})
			}
			pairs[len(pairs)-1].desc = textOf(c)
		}
	}

	labelW := l.width * 0.32
	valueW := l.width - labelW
	for _, p := range pairs {
		l.setFont("B", bodySize)
		termLines := len(l.pdf.SplitLines([]byte(l.text(p.term)), labelW))
		l.setFont("", bodySize)
		descLines := len(l.pdf.SplitLines([]byte(l.text(p.desc)), valueW))
		h := float64(max(termLines, descLines, 1)) * lineHeight

		l.ensure(h)
		y := l.pdf.GetY()
		l.pdf.SetXY(l.left, y)
		l.setColor(mutedText)
		l.setFont("B", bodySize)
		l.pdf.MultiCell(labelW, lineHeight, l.text(p.term), "", "L", false)
		l.pdf.SetXY(l.left+labelW, y)
		l.reset()
		l.pdf.MultiCell(valueW, lineHeight, l.text(p.desc), "", "L", false)
		l.pdf.SetXY(l.left, y+h)
	}
	l.pdf.Ln(paragraphGap)
}

func (l *layout) list(n *html.Node, ordered bool) {
	const indent = 5.0
	i := 0
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.DataAtom != atom.Li {
			continue
		}
		i++
		prefix := "• "
		if ordered {
			prefix = strconv.Itoa(i) + ". "
		}
		l.ensure(lineHeight)
		l.setFont("", bodySize)
		l.pdf.SetX(l.left + indent)
		l.pdf.MultiCell(l.width-indent, lineHeight, l.text(prefix+textOf(c)), "", "L", false)
		l.pdf.Ln(0.5)
	}
	l.pdf.Ln(paragraphGap)
}

func (l *layout) signature(n *html.Node) {
	l.pdf.Ln(6)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		if hasClass(c, "signature-line") {
			l.ensure(14)
			y := l.pdf.GetY() + 12
			l.pdf.SetDrawColor(0, 0, 0)
			l.pdf.Line(l.left+l.width-60, y, l.left+l.width, y)
			l.pdf.SetY(y + 1)
			continue
		}
		text := textOf(c)
		if text == "" {
			continue
		}
		style := ""
		if hasClass(c, "signature-label") {
			style = "B"
		}
		l.ensure(lineHeight)
		l.setFont(style, bodySize)
		l.pdf.SetX(l.left)
		l.pdf.CellFormat(l.width, lineHeight, l.text(text), "", 1, "R", false, 0, "")
	}
	l.setFont("", bodySize)
}

func (l *layout) blockImage(n *html.Node) {
	img := l.sess.image(attr(n, "src"))
	if img == nil {
		return
	}
	w := math.Min(float64(img.width)*25.4/96, l.width)
	h := w * float64(img.height) / float64(img.width)
	l.ensure(h)
	y := l.pdf.GetY()
	if l.place(img, l.left, y, w, h) {
		l.pdf.SetY(y + h + 2)
	}
}

func (l *layout) rule() {
	l.pdf.Ln(2)
	y := l.pdf.GetY()
	l.pdf.SetDrawColor(borderColor.r, borderColor.g, borderColor.b)
	l.pdf.Line(l.left, y, l.left+l.width, y)
	l.pdf.SetDrawColor(0, 0, 0)
	l.pdf.Ln(2)
}

// place draws a session image. Images gofpdf rejects are skipped without
// poisoning the document.
func (l *layout) place(img *imageData, x, y, w, h float64) bool {
	opt := gofpdf.ImageOptions{ImageType: img.kind}
	if !l.registered[img.name] {
		l.pdf.RegisterImageOptionsReader(img.name, opt, bytes.NewReader(img.data))
		if l.pdf.Err() {
			l.pdf.ClearError()
			l.sess.logger.Debug("image rejected by pdf writer", "image", img.name)
			return false
		}
		l.registered[img.name] = true
	}
	l.pdf.ImageOptions(img.name, x, y, w, h, false, opt, 0, "")
	return true
}

func (l *layout) pageHeader() {
	if l.opts.Watermark != "" {
		l.watermark()
	}
	if l.opts.DisplayHeaderFooter && l.opts.HeaderText != "" {
		y := l.pdf.GetY()
		l.setFont("", 8)
		l.pdf.SetTextColor(128, 128, 128)
		l.pdf.SetXY(l.left, math.Max(3, l.top-7))
		l.pdf.CellFormat(l.width, 5, l.text(l.pageText(l.opts.HeaderText)), "", 0, "L", false, 0, "")
		l.pdf.SetXY(l.left, y)
		l.reset()
	}
}

func (l *layout) pageFooter() {
	text := l.opts.FooterText
	if text == "" {
		text = DefaultFooter
	}
	l.setFont("", 8)
	l.pdf.SetTextColor(128, 128, 128)
	l.pdf.SetXY(l.left, l.pageH-math.Max(l.bottom, 8)+2)
	l.pdf.CellFormat(l.width, 5, l.text(l.pageText(text)), "", 0, "C", false, 0, "")
	l.reset()
}

func (l *layout) pageText(text string) string {
	text = strings.ReplaceAll(text, "{page}", strconv.Itoa(l.pdf.PageNo()))
	return strings.ReplaceAll(text, "{pages}", "{nb}")
}

// watermark draws the text diagonally across the page centre, under the
// content that follows on the page.
func (l *layout) watermark() {
	text := l.text(l.opts.Watermark)
	size := watermarkSize
	l.setFont("B", size)
	w := l.pdf.GetStringWidth(text)
	if limit := l.pageW * 0.9; w > limit {
		size = size * limit / w
		l.setFont("B", size)
		w = l.pdf.GetStringWidth(text)
	}

	cx, cy := l.pageW/2, l.pageH/2
	l.pdf.SetTextColor(160, 160, 160)
	l.pdf.SetAlpha(0.15, "Normal")
	l.pdf.TransformBegin()
	l.pdf.TransformRotate(45, cx, cy)
	l.pdf.Text(cx-w/2, cy+size*ptToMM/3, text)
	l.pdf.TransformEnd()
	l.pdf.SetAlpha(1, "Normal")
	l.reset()
}

// ensure starts a new page when h does not fit above the bottom margin.
func (l *layout) ensure(h float64) bool {
	if l.pdf.GetY()+h > l.pageH-l.bottom {
		l.pdf.AddPage()
		return true
	}
	return false
}

func (l *layout) setFont(style string, size float64) {
	l.pdf.SetFont(l.doc.font, style, size)
}

func (l *layout) setColor(c rgb) {
	l.pdf.SetTextColor(c.r, c.g, c.b)
}

func (l *layout) reset() {
	l.pdf.SetTextColor(0, 0, 0)
	l.setFont("", bodySize)
}

// text prepares a string for the cp1252 core fonts.
func (l *layout) text(s string) string {
	return l.tr(strings.ReplaceAll(s, "₹", "Rs."))
}

func addStyle(style, s string) string {
	if strings.Contains(style, s) {
		return style
	}
	return style + s
}

func walk(n *html.Node, fn func(*html.Node)) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			fn(c)
		}
		walk(c, fn)
	}
}

// textOf returns the visible text of n with whitespace collapsed and <br>
// kept as a newline.
func textOf(n *html.Node) string {
	var b strings.Builder
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		switch {
		case n.Type == html.TextNode:
			b.WriteString(spacePattern.ReplaceAllString(n.Data, " "))
		case n.Type == html.ElementNode && n.DataAtom == atom.Br:
			b.WriteString("\n")
		case n.Type == html.ElementNode && (n.DataAtom == atom.Style || n.DataAtom == atom.Script):
		default:
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				visit(c)
			}
		}
	}
	visit(n)

	lines := strings.Split(b.String(), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func rawText(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func parseHex(s string) (rgb, bool) {
	s = strings.TrimPrefix(s, "#")
	if len(s) == 3 {
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	}
	if len(s) != 6 {
		return rgb{}, false
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return rgb{}, false
	}
	return rgb{int(v >> 16 & 0xff), int(v >> 8 & 0xff), int(v & 0xff)}, true
}
