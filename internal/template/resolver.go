package template

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aspcranes/quotegen/internal/metrics"
)

// Source records where a resolved template came from.
type Source string

const (
	SourceExplicit    Source = "explicit"
	SourceDefault     Source = "default"
	SourceFirstActive Source = "first_active"
	SourceFallback    Source = "fallback"
)

// Resolution is a resolved template and its origin.
type Resolution struct {
	Template *Template
	Source   Source
}

// Resolver picks the template a document is rendered with.
type Resolver struct {
	store  Store
	loader *Loader
	logger *slog.Logger
}

// NewResolver creates a resolver. store may be nil, in which case every
// resolution ends at the built-in fallback.
func NewResolver(store Store, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		store:  store,
		loader: NewLoader(store),
		logger: logger.With("component", "template_resolver"),
	}
}

// Default never fails. It tries the scope's stored default, then the most
// recently updated active template of the scope, then FallbackTemplate.
func (r *Resolver) Default(ctx context.Context, scope string) Resolution {
	scope = NormalizeScope(scope)
	res := r.resolveDefault(ctx, scope)
	metrics.IncTemplateResolution(string(res.Source))
	return res
}

func (r *Resolver) resolveDefault(ctx context.Context, scope string) Resolution {
	if r.store == nil {
		return Resolution{Template: FallbackTemplate(), Source: SourceFallback}
	}

	tmpl, err := r.store.GetDefault(ctx, scope)
	switch {
	case err == nil:
		return Resolution{Template: tmpl, Source: SourceDefault}
	case !errors.Is(err, ErrTemplateNotFound):
		metrics.IncTemplateStoreError("get_default")
		r.logger.Warn("default template lookup failed", "scope", scope, "error", err)
		return Resolution{Template: FallbackTemplate(), Source: SourceFallback}
	}

	active, err := r.store.List(ctx, ListFilter{Scope: scope, Limit: 1})
	if err != nil {
		metrics.IncTemplateStoreError("list")
		r.logger.Warn("active template lookup failed", "scope", scope, "error", err)
	} else if len(active) > 0 {
		return Resolution{Template: active[0], Source: SourceFirstActive}
	}

	r.logger.Debug("no stored template, using fallback", "scope", scope)
	return Resolution{Template: FallbackTemplate(), Source: SourceFallback}
}

// Resolve loads id when given and falls back to Default when it is empty,
// missing or inactive. Other store errors are returned.
func (r *Resolver) Resolve(ctx context.Context, id, scope string) (Resolution, error) {
	if id == "" {
		return r.Default(ctx, scope), nil
	}

	tmpl, err := r.loader.Load(ctx, id)
	if err == nil {
		metrics.IncTemplateResolution(string(SourceExplicit))
		return Resolution{Template: tmpl, Source: SourceExplicit}, nil
	}
	if !errors.Is(err, ErrTemplateNotFound) {
		metrics.IncTemplateStoreError("get")
		return Resolution{}, err
	}

	r.logger.Info("requested template unavailable, resolving default", "template_id", id)
	return r.Default(ctx, scope), nil
}
