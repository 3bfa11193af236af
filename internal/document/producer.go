// Package document turns rendered HTML into delivery artifacts and
// orchestrates template resolution, rendering and production for callers.
package document

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aspcranes/quotegen/internal/metrics"
	"github.com/aspcranes/quotegen/internal/pdf"
)

// Mode selects the artifact a producer emits.
type Mode string

const (
	ModeHTML            Mode = "html"
	ModePDF             Mode = "pdf"
	ModePDFWatermark    Mode = "pdf+watermark"
	ModePDFHeaderFooter Mode = "pdf+headerFooter"
	ModeBatch           Mode = "batch"
)

// DefaultWatermark is stamped in watermark mode when no text is configured.
const DefaultWatermark = "DRAFT"

// ParseMode accepts the mode names case-insensitively. An empty string is
// ModePDF.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "pdf":
		return ModePDF, nil
	case "html":
		return ModeHTML, nil
	case "pdf+watermark", "watermark":
		return ModePDFWatermark, nil
	case "pdf+headerfooter", "headerfooter", "header_footer":
		return ModePDFHeaderFooter, nil
	case "batch":
		return ModeBatch, nil
	}
	return "", fmt.Errorf("unknown document mode %q", s)
}

var (
	// ErrDocumentProduction matches every *ProductionError.
	ErrDocumentProduction = errors.New("document production failed")
	// ErrBatchTooLarge is returned when a batch exceeds MaxBatchSize.
	ErrBatchTooLarge = errors.New("batch too large")
)

// ProductionError reports a failed conversion. Index is the batch position,
// or -1 for single documents.
type ProductionError struct {
	Mode  Mode
	Index int
	Err   error
}

func (e *ProductionError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("%s: %s item %d: %v", ErrDocumentProduction, e.Mode, e.Index, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", ErrDocumentProduction, e.Mode, e.Err)
}

func (e *ProductionError) Unwrap() error {
	return e.Err
}

func (e *ProductionError) Is(target error) bool {
	return target == ErrDocumentProduction
}

// Config bounds producer resource use.
type Config struct {
	ItemTimeout  time.Duration
	Concurrency  int
	MaxBatchSize int
}

const (
	DefaultItemTimeout  = 30 * time.Second
	DefaultConcurrency  = 4
	DefaultMaxBatchSize = 100
)

func (c Config) withDefaults() Config {
	if c.ItemTimeout <= 0 {
		c.ItemTimeout = DefaultItemTimeout
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = DefaultMaxBatchSize
	}
	return c
}

// Producer converts rendered HTML. Every call acquires at most one
// converter session and releases it before returning.
type Producer struct {
	converter pdf.Converter
	cfg       Config
	logger    *slog.Logger
}

// NewProducer creates a producer.
func NewProducer(converter pdf.Converter, cfg Config, logger *slog.Logger) *Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Producer{
		converter: converter,
		cfg:       cfg.withDefaults(),
		logger:    logger.With("component", "document_producer"),
	}
}

// Config returns the effective configuration.
func (p *Producer) Config() Config {
	return p.cfg
}

// HTML returns the document as-is for inline preview.
func (p *Producer) HTML(html string) ([]byte, error) {
	start := time.Now()
	if strings.TrimSpace(html) == "" {
		metrics.ObserveDocument(string(ModeHTML), "failed", time.Since(start))
		return nil, &ProductionError{Mode: ModeHTML, Index: -1, Err: pdf.ErrEmptyDocument}
	}
	metrics.ObserveDocument(string(ModeHTML), "success", time.Since(start))
	return []byte(html), nil
}

// PDF converts one document in plain PDF mode.
func (p *Producer) PDF(ctx context.Context, html string, opts pdf.Options) ([]byte, error) {
	return p.Produce(ctx, ModePDF, html, opts)
}

// Produce converts one document in the given single-document mode.
func (p *Producer) Produce(ctx context.Context, mode Mode, html string, opts pdf.Options) ([]byte, error) {
	switch mode {
	case ModeHTML:
		return p.HTML(html)
	case ModeBatch:
		return nil, fmt.Errorf("mode %s needs Batch", mode)
	case ModePDF, ModePDFWatermark, ModePDFHeaderFooter:
	default:
		return nil, fmt.Errorf("unknown document mode %q", mode)
	}

	start := time.Now()
	out, err := p.produce(ctx, mode, html, applyMode(mode, opts))
	status := "success"
	if err != nil {
		status = "failed"
		p.logger.Warn("document production failed", "mode", mode, "error", err)
	}
	metrics.ObserveDocument(string(mode), status, time.Since(start))
	return out, err
}

func (p *Producer) produce(ctx context.Context, mode Mode, html string, opts pdf.Options) (out []byte, err error) {
	if strings.TrimSpace(html) == "" {
		return nil, &ProductionError{Mode: mode, Index: -1, Err: pdf.ErrEmptyDocument}
	}

	session, cleanup, err := p.open(ctx)
	if err != nil {
		return nil, &ProductionError{Mode: mode, Index: -1, Err: err}
	}
	defer cleanup()

	out, err = p.convert(ctx, session, html, opts)
	if err != nil {
		return nil, &ProductionError{Mode: mode, Index: -1, Err: err}
	}
	return out, nil
}

// open acquires a session. cleanup closes it exactly once.
func (p *Producer) open(ctx context.Context) (pdf.Session, func(), error) {
	session, err := p.converter.Open(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open converter session: %w", err)
	}
	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			if err := session.Close(); err != nil {
				p.logger.Warn("failed to close converter session", "error", err)
			}
		})
	}
	return session, cleanup, nil
}

// convert runs one conversion under the item timeout. A conversion that
// ignores its context is abandoned when the deadline passes.
func (p *Producer) convert(ctx context.Context, session pdf.Session, html string, opts pdf.Options) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.ItemTimeout)
	defer cancel()

	type result struct {
		out []byte
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("converter panic: %v", r)}
			}
		}()
		out, err := session.Convert(ctx, html, opts)
		done <- result{out: out, err: err}
	}()

	select {
	case r := <-done:
		return r.out, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func applyMode(mode Mode, opts pdf.Options) pdf.Options {
	switch mode {
	case ModePDFWatermark:
		if opts.Watermark == "" {
			opts.Watermark = DefaultWatermark
		}
	case ModePDFHeaderFooter:
		opts.DisplayHeaderFooter = true
	}
	return opts
}

// BatchItem is one document of a batch. Err marks an item that already
// failed upstream; it is reported without conversion.
type BatchItem struct {
	HTML     string
	Filename string
	Options  *pdf.Options
	Err      error
}

// BatchItemResult is the outcome of one batch item.
type BatchItemResult struct {
	Index    int    `json:"index"`
	Success  bool   `json:"success"`
	Filename string `json:"filename,omitempty"`
	PDF      []byte `json:"pdf,omitempty"`
	Error    string `json:"error,omitempty"`
}

// BatchResult summarises a batch. Results are in input order.
type BatchResult struct {
	Total      int               `json:"total"`
	Successful int               `json:"successful"`
	Failed     int               `json:"failed"`
	Results    []BatchItemResult `json:"results"`
}

// Batch converts every item with one shared session. Item failures are
// recorded in the result; only an oversized batch, a session that cannot
// be opened or a cancelled ctx fail the call.
func (p *Producer) Batch(ctx context.Context, items []BatchItem, opts pdf.Options) (*BatchResult, error) {
	if len(items) > p.cfg.MaxBatchSize {
		return nil, fmt.Errorf("%w: %d items, limit %d", ErrBatchTooLarge, len(items), p.cfg.MaxBatchSize)
	}

	start := time.Now()
	result := &BatchResult{
		Total:   len(items),
		Results: make([]BatchItemResult, len(items)),
	}
	if len(items) == 0 {
		return result, nil
	}

	session, cleanup, err := p.open(ctx)
	if err != nil {
		metrics.ObserveDocument(string(ModeBatch), "failed", time.Since(start))
		return nil, &ProductionError{Mode: ModeBatch, Index: -1, Err: err}
	}
	defer cleanup()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			result.Results[i] = p.batchItem(gctx, session, i, item, opts)
			return nil
		})
	}
	_ = g.Wait()
	cleanup()

	for _, r := range result.Results {
		if r.Success {
			result.Successful++
			metrics.IncBatchItems("success")
		} else {
			result.Failed++
			metrics.IncBatchItems("failed")
		}
	}

	status := "success"
	switch {
	case result.Successful == 0:
		status = "failed"
	case result.Failed > 0:
		status = "partial"
	}
	metrics.ObserveDocument(string(ModeBatch), status, time.Since(start))
	p.logger.Info("batch produced",
		"total", result.Total,
		"successful", result.Successful,
		"failed", result.Failed,
		"duration", time.Since(start))

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

func (p *Producer) batchItem(ctx context.Context, session pdf.Session, index int, item BatchItem, opts pdf.Options) BatchItemResult {
	r := BatchItemResult{Index: index, Filename: item.Filename}
	if r.Filename == "" {
		r.Filename = fmt.Sprintf("document-%d.pdf", index+1)
	}

	err := item.Err
	if err == nil && strings.TrimSpace(item.HTML) == "" {
		err = pdf.ErrEmptyDocument
	}
	if err == nil {
		if item.Options != nil {
			opts = *item.Options
		}
		r.PDF, err = p.convert(ctx, session, item.HTML, opts)
	}
	if err != nil {
		perr := &ProductionError{Mode: ModeBatch, Index: index, Err: err}
		p.logger.Warn("batch item failed", "index", index, "error", err)
		r.PDF = nil
		r.Error = perr.Error()
		return r
	}
	r.Success = true
	return r
}
