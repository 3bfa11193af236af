package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/aspcranes/quotegen/internal/document"
	"github.com/aspcranes/quotegen/internal/merge"
	"github.com/aspcranes/quotegen/internal/template"
)

// TemplateListResponse is the response for listing templates
type TemplateListResponse struct {
	Templates []*template.Template `json:"templates"`
	Total     int                  `json:"total"`
}

// DefaultTemplateResponse reports the template a scope resolves to
type DefaultTemplateResponse struct {
	Template *template.Template `json:"template"`
	Source   template.Source    `json:"source"`
}

// TemplateUpdateRequest is a full replacement. ExpectedVersion falls back
// to Version, so a template read from the API can be sent back as is.
type TemplateUpdateRequest struct {
	template.Template
	ExpectedVersion int `json:"expectedVersion,omitempty"`
}

// PreviewRequest is the body of a template preview
type PreviewRequest struct {
	QuotationID string        `json:"quotationId,omitempty"`
	Data        merge.Context `json:"data,omitempty"`
}

// VersionListResponse is the response for listing template revisions
type VersionListResponse struct {
	Versions []template.Revision `json:"versions"`
	Total    int                 `json:"total"`
}

// handleListTemplates handles GET /api/v1/templates
func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := template.ListFilter{
		Scope:  q.Get("scope"),
		Search: q.Get("search"),
	}
	filter.IncludeInactive, _ = strconv.ParseBool(q.Get("include_inactive"))

	if limitStr := q.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 {
			filter.Limit = limit
		}
	}

	if offsetStr := q.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil && offset > 0 {
			filter.Offset = offset
		}
	}

	templates, err := s.templates.List(r.Context(), filter)
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	if templates == nil {
		templates = []*template.Template{}
	}

	sendJSON(w, http.StatusOK, TemplateListResponse{Templates: templates, Total: len(templates)})
}

// handleCreateTemplate handles POST /api/v1/templates
func (s *Server) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var tmpl template.Template
	if err := decodeJSON(r, &tmpl); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := s.templates.Create(r.Context(), &tmpl); err != nil {
		s.sendServiceError(w, r, err)
		return
	}

	s.logger.Info("template created", "template_id", tmpl.ID, "name", tmpl.Name, "scope", tmpl.Scope())
	sendJSON(w, http.StatusCreated, &tmpl)
}

// handleDefaultTemplate handles GET /api/v1/templates/default
func (s *Server) handleDefaultTemplate(w http.ResponseWriter, r *http.Request) {
	res := s.resolver.Default(r.Context(), r.URL.Query().Get("scope"))
	sendJSON(w, http.StatusOK, DefaultTemplateResponse{Template: res.Template, Source: res.Source})
}

// handleGetTemplate handles GET /api/v1/templates/{id}
func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	tmpl, err := s.templates.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	sendJSON(w, http.StatusOK, tmpl)
}

// handleUpdateTemplate handles PUT /api/v1/templates/{id}
func (s *Server) handleUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	var req TemplateUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	expected := req.ExpectedVersion
	if expected == 0 {
		expected = req.Version
	}
	if expected <= 0 {
		sendError(w, http.StatusBadRequest, "expectedVersion is required")
		return
	}

	tmpl := req.Template
	tmpl.ID = chi.URLParam(r, "id")
	if err := s.templates.Update(r.Context(), &tmpl, expected); err != nil {
		s.sendServiceError(w, r, err)
		return
	}

	sendJSON(w, http.StatusOK, &tmpl)
}

// handlePatchTemplate handles PATCH /api/v1/templates/{id}
func (s *Server) handlePatchTemplate(w http.ResponseWriter, r *http.Request) {
	var patch template.Patch
	if err := decodeJSON(r, &patch); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	tmpl, err := s.templates.Patch(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	sendJSON(w, http.StatusOK, tmpl)
}

// handleDeleteTemplate handles DELETE /api/v1/templates/{id}
func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.templates.SoftDelete(r.Context(), id); err != nil {
		s.sendServiceError(w, r, err)
		return
	}

	s.logger.Info("template deactivated", "template_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// handleSetDefault handles POST /api/v1/templates/{id}/default
func (s *Server) handleSetDefault(w http.ResponseWriter, r *http.Request) {
	tmpl, err := s.templates.SetDefault(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}

	s.logger.Info("default template set", "template_id", tmpl.ID, "scope", tmpl.Scope())
	sendJSON(w, http.StatusOK, tmpl)
}

// handleVersions handles GET /api/v1/templates/{id}/versions
func (s *Server) handleVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := s.templates.Versions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	if versions == nil {
		versions = []template.Revision{}
	}
	sendJSON(w, http.StatusOK, VersionListResponse{Versions: versions, Total: len(versions)})
}

// handleRevision handles GET /api/v1/templates/{id}/versions/{version}
func (s *Server) handleRevision(w http.ResponseWriter, r *http.Request) {
	version, err := strconv.Atoi(chi.URLParam(r, "version"))
	if err != nil || version <= 0 {
		sendError(w, http.StatusBadRequest, "version must be a positive integer")
		return
	}

	rev, err := s.templates.Revision(r.Context(), chi.URLParam(r, "id"), version)
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	sendJSON(w, http.StatusOK, rev)
}

// handlePreviewTemplate handles POST /api/v1/templates/{id}/preview
func (s *Server) handlePreviewTemplate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req PreviewRequest
	if err := decodeJSON(r, &req); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Data == nil && req.QuotationID == "" {
		req.Data = merge.Context{}
	}

	// Previewing a named template must not silently fall back to the default.
	tmpl, err := s.templates.Get(r.Context(), id)
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	if !tmpl.IsActive {
		s.sendServiceError(w, r, fmt.Errorf("%w: %s is deleted", template.ErrTemplateNotFound, id))
		return
	}

	res, err := s.documents.Preview(r.Context(), document.Request{
		QuotationID: req.QuotationID,
		Data:        req.Data,
		TemplateID:  id,
	})
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	sendDocument(w, res, false)
}
