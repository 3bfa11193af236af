package pdf

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"hash/fnv"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"strings"
	"sync"

	"github.com/jung-kurt/gofpdf"
)

var (
	// ErrEmptyDocument is returned when there is no HTML to convert.
	ErrEmptyDocument = errors.New("empty document")
	// ErrSessionClosed is returned by Convert after Close.
	ErrSessionClosed = errors.New("converter session closed")
)

// Converter opens conversion sessions. A session holds whatever the
// underlying engine needs between documents and must be closed once.
type Converter interface {
	Open(ctx context.Context) (Session, error)
}

// Session converts HTML documents. Convert may be called concurrently.
type Session interface {
	Convert(ctx context.Context, html string, opts Options) ([]byte, error)
	Close() error
}

// FPDFConverter lays out rendered HTML with gofpdf. Sessions share decoded
// images between the documents they convert.
type FPDFConverter struct {
	logger *slog.Logger
}

// NewFPDFConverter creates a converter.
func NewFPDFConverter(logger *slog.Logger) *FPDFConverter {
	if logger == nil {
		logger = slog.Default()
	}
	return &FPDFConverter{logger: logger}
}

// Open starts a session.
func (c *FPDFConverter) Open(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &fpdfSession{
		logger: c.logger,
		images: make(map[string]*imageData),
	}, nil
}

type imageData struct {
	name   string
	kind   string
	data   []byte
	width  int
	height int
}

type fpdfSession struct {
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
	images map[string]*imageData
}

func (s *fpdfSession) Convert(ctx context.Context, html string, opts Options) ([]byte, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(html) == "" {
		return nil, ErrEmptyDocument
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	doc, err := parseDocument(html)
	if err != nil {
		return nil, err
	}

	pdf := newPDF(opts)
	l := newLayout(ctx, pdf, doc, opts, s)
	if err := l.run(); err != nil {
		return nil, err
	}
	if pdf.Err() {
		return nil, fmt.Errorf("pdf layout failed: %w", pdf.Error())
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to write pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *fpdfSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.images = nil
	return nil
}

func (s *fpdfSession) check() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	return nil
}

// image decodes a data URI once per session. Anything that is not a
// decodable png, jpeg or gif data URI yields nil.
func (s *fpdfSession) image(src string) *imageData {
	if !strings.HasPrefix(src, "data:image/") {
		return nil
	}

	s.mu.Lock()
	img, ok := s.images[src]
	s.mu.Unlock()
	if ok {
		return img
	}

	img = decodeDataURI(src)
	if img == nil {
		s.logger.Debug("skipping undecodable image", "size", len(src))
	}

	s.mu.Lock()
	if s.images != nil {
		s.images[src] = img
	}
	s.mu.Unlock()
	return img
}

func decodeDataURI(src string) *imageData {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(src, "data:"), ",")
	if !ok || !strings.HasSuffix(meta, ";base64") {
		return nil
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil || cfg.Width == 0 || cfg.Height == 0 {
		return nil
	}
	kind := strings.ToUpper(format)
	if kind == "JPEG" {
		kind = "JPG"
	}

	h := fnv.New64a()
	h.Write(data)
	return &imageData{
		name:   fmt.Sprintf("img-%x", h.Sum64()),
		kind:   kind,
		data:   data,
		width:  cfg.Width,
		height: cfg.Height,
	}
}

func newPDF(opts Options) *gofpdf.Fpdf {
	orientation := "P"
	if opts.Landscape() {
		orientation = "L"
	}
	format := opts.Format
	if format == "" {
		format = FormatA4
	}

	pdf := gofpdf.New(orientation, "mm", format, "")
	pdf.SetMargins(opts.Margins.Left, opts.Margins.Top, opts.Margins.Right)
	pdf.SetAutoPageBreak(true, opts.Margins.Bottom)
	pdf.SetCompression(opts.Quality < 100)
	pdf.SetCreator("quotegen", true)
	pdf.AliasNbPages("")
	return pdf
}
