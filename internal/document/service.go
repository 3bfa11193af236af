package document

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aspcranes/quotegen/internal/merge"
	"github.com/aspcranes/quotegen/internal/metrics"
	"github.com/aspcranes/quotegen/internal/pdf"
	"github.com/aspcranes/quotegen/internal/quote"
	"github.com/aspcranes/quotegen/internal/render"
	"github.com/aspcranes/quotegen/internal/template"
)

// ErrInvalidRequest is returned for requests that name no data.
var ErrInvalidRequest = errors.New("invalid document request")

// Request asks for one document. Data, when set, is rendered instead of
// loading QuotationID from the source.
type Request struct {
	QuotationID string         `json:"quotationId,omitempty"`
	Data        merge.Context  `json:"data,omitempty"`
	TemplateID  string         `json:"templateId,omitempty"`
	Scope       string         `json:"scope,omitempty"`
	Mode        string         `json:"mode,omitempty"`
	Options     map[string]any `json:"options,omitempty"`
}

// BatchRequest asks for a PDF per quotation id and per inline item.
// TemplateID and Options apply to items that do not set their own.
type BatchRequest struct {
	QuotationIDs []string       `json:"quotationIds,omitempty"`
	Items        []Request      `json:"items,omitempty"`
	TemplateID   string         `json:"templateId,omitempty"`
	Options      map[string]any `json:"options,omitempty"`
}

func (b BatchRequest) requests() []Request {
	reqs := make([]Request, 0, len(b.Items)+len(b.QuotationIDs))
	for _, item := range b.Items {
		if item.TemplateID == "" {
			item.TemplateID = b.TemplateID
		}
		if item.Options == nil {
			item.Options = b.Options
		}
		reqs = append(reqs, item)
	}
	for _, id := range b.QuotationIDs {
		reqs = append(reqs, Request{QuotationID: id, TemplateID: b.TemplateID, Options: b.Options})
	}
	return reqs
}

// Result is a produced document.
type Result struct {
	Content         []byte
	ContentType     string
	Filename        string
	TemplateID      string
	TemplateVersion int
	Source          template.Source
}

// ServiceOptions are the defaults a Service starts from.
type ServiceOptions struct {
	Scope string
	PDF   pdf.Options
}

// Service resolves a template, loads the quotation, renders it and hands
// the HTML to the producer.
type Service struct {
	resolver *template.Resolver
	renderer *render.Renderer
	source   quote.Source
	producer *Producer
	opts     ServiceOptions
	logger   *slog.Logger
}

// NewService creates a document service. A zero PDF option set falls back
// to pdf.DefaultOptions.
func NewService(resolver *template.Resolver, renderer *render.Renderer, source quote.Source, producer *Producer, opts ServiceOptions, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.PDF == (pdf.Options{}) {
		opts.PDF = pdf.DefaultOptions()
	}
	return &Service{
		resolver: resolver,
		renderer: renderer,
		source:   source,
		producer: producer,
		opts:     opts,
		logger:   logger.With("component", "document_service"),
	}
}

type rendered struct {
	doc  *render.Document
	tmpl *template.Template
	src  template.Source
	data merge.Context
}

func (s *Service) render(ctx context.Context, req Request) (*rendered, error) {
	data := req.Data
	if data == nil {
		if req.QuotationID == "" {
			return nil, fmt.Errorf("%w: quotation id or data is required", ErrInvalidRequest)
		}
		var err error
		data, err = s.source.Context(ctx, req.QuotationID)
		if err != nil {
			return nil, err
		}
	}

	scope := req.Scope
	if scope == "" {
		scope = s.opts.Scope
	}
	res, err := s.resolver.Resolve(ctx, req.TemplateID, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve template: %w", err)
	}

	start := time.Now()
	doc, err := s.renderer.Render(res.Template, data)
	if err != nil {
		return nil, fmt.Errorf("failed to render: %w", err)
	}
	metrics.ObserveRender(string(res.Source), time.Since(start))

	return &rendered{doc: doc, tmpl: res.Template, src: res.Source, data: data}, nil
}

// Preview renders the document as HTML.
func (s *Service) Preview(ctx context.Context, req Request) (*Result, error) {
	r, err := s.render(ctx, req)
	if err != nil {
		return nil, err
	}
	out, err := s.producer.HTML(r.doc.HTML)
	if err != nil {
		return nil, err
	}
	return s.result(r, req, out, ModeHTML), nil
}

// Generate produces the document in the requested mode, PDF by default.
func (s *Service) Generate(ctx context.Context, req Request) (*Result, error) {
	mode, err := ParseMode(req.Mode)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	switch mode {
	case ModeHTML:
		return s.Preview(ctx, req)
	case ModeBatch:
		return nil, fmt.Errorf("%w: use the batch endpoint for mode %s", ErrInvalidRequest, mode)
	}

	r, err := s.render(ctx, req)
	if err != nil {
		return nil, err
	}
	opts := s.pdfOptions(r.tmpl, req.Options)
	if mode == ModePDFHeaderFooter && opts.HeaderText == "" {
		opts.HeaderText = documentTitle(r.data)
	}

	out, err := s.producer.Produce(ctx, mode, r.doc.HTML, opts)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("document generated",
		"quotation_id", req.QuotationID,
		"template_id", r.tmpl.ID,
		"mode", mode,
		"size", len(out))
	return s.result(r, req, out, mode), nil
}

// GenerateBatch produces one PDF per request. A request whose data or
// template cannot be loaded fails only its own item.
func (s *Service) GenerateBatch(ctx context.Context, req BatchRequest) (*BatchResult, error) {
	reqs := req.requests()
	if limit := s.producer.Config().MaxBatchSize; len(reqs) > limit {
		return nil, fmt.Errorf("%w: %d items, limit %d", ErrBatchTooLarge, len(reqs), limit)
	}

	items := make([]BatchItem, len(reqs))
	for i, item := range reqs {
		r, err := s.render(ctx, item)
		if err != nil {
			s.logger.Warn("batch item not rendered", "index", i, "quotation_id", item.QuotationID, "error", err)
			items[i] = BatchItem{Filename: Filename(item.Data, item.QuotationID), Err: err}
			continue
		}
		opts := s.pdfOptions(r.tmpl, item.Options)
		items[i] = BatchItem{
			HTML:     r.doc.HTML,
			Filename: Filename(r.data, item.QuotationID),
			Options:  &opts,
		}
	}
	return s.producer.Batch(ctx, items, s.opts.PDF)
}

func (s *Service) result(r *rendered, req Request, out []byte, mode Mode) *Result {
	res := &Result{
		Content:         out,
		ContentType:     "application/pdf",
		Filename:        Filename(r.data, req.QuotationID),
		TemplateID:      r.tmpl.ID,
		TemplateVersion: r.tmpl.Version,
		Source:          r.src,
	}
	if mode == ModeHTML {
		res.ContentType = "text/html; charset=utf-8"
		res.Filename = strings.TrimSuffix(res.Filename, ".pdf") + ".html"
	}
	return res
}

// pdfOptions layers the template's page settings and then the request
// options over the service defaults.
func (s *Service) pdfOptions(tmpl *template.Template, raw map[string]any) pdf.Options {
	return s.opts.PDF.Apply(settingsOptions(tmpl.Settings)).Apply(raw)
}

func settingsOptions(st template.Settings) map[string]any {
	raw := map[string]any{}
	if st.PageSize != "" {
		raw["pageSize"] = st.PageSize
	}
	if st.Orientation != "" {
		raw["orientation"] = st.Orientation
	}
	if m := st.Margins; m != nil {
		raw["margins"] = map[string]any{
			"top":    m.Top,
			"right":  m.Right,
			"bottom": m.Bottom,
			"left":   m.Left,
		}
	}
	if st.HeaderText != "" {
		raw["headerText"] = st.HeaderText
	}
	if st.FooterText != "" {
		raw["footerText"] = st.FooterText
	}
	if st.Watermark != "" {
		raw["watermark"] = st.Watermark
	}
	return raw
}

func documentTitle(data merge.Context) string {
	if n, ok := merge.NewScope(data).Lookup("quotation.number"); ok && n != "" {
		return "Quotation " + n
	}
	return "Quotation"
}

// Filename suggests quotation-<number>.pdf, falling back to the quotation
// id. Characters outside [A-Za-z0-9._-] become dashes.
func Filename(data merge.Context, quotationID string) string {
	name := quotationID
	if data != nil {
		if n, ok := merge.NewScope(data).Lookup("quotation.number"); ok && n != "" {
			name = n
		}
	}
	if name == "" {
		name = "document"
	}
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			return r
		}
		return '-'
	}, name)
	return "quotation-" + safe + ".pdf"
}
