package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/aspcranes/quotegen/internal/document"
	"github.com/aspcranes/quotegen/internal/quote"
)

// GenerateRequest is the body of POST /quotations/{id}/pdf
type GenerateRequest struct {
	TemplateID string         `json:"templateId,omitempty"`
	Mode       string         `json:"mode,omitempty"`
	Options    map[string]any `json:"options,omitempty"`
}

// handleGetQuotation handles GET /api/v1/quotations/{id}
func (s *Server) handleGetQuotation(w http.ResponseWriter, r *http.Request) {
	q, err := s.quotations.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	sendJSON(w, http.StatusOK, q)
}

// handlePutQuotation handles PUT /api/v1/quotations/{id}
func (s *Server) handlePutQuotation(w http.ResponseWriter, r *http.Request) {
	var q quote.Quotation
	if err := decodeJSON(r, &q); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	q.ID = chi.URLParam(r, "id")

	if err := q.Validate(); err != nil {
		sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.quotations.Put(r.Context(), &q); err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	sendJSON(w, http.StatusOK, &q)
}

// handlePreviewQuotation handles GET /api/v1/quotations/{id}/preview
func (s *Server) handlePreviewQuotation(w http.ResponseWriter, r *http.Request) {
	res, err := s.documents.Preview(r.Context(), document.Request{
		QuotationID: chi.URLParam(r, "id"),
		TemplateID:  r.URL.Query().Get("templateId"),
		Scope:       r.URL.Query().Get("scope"),
	})
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	sendDocument(w, res, false)
}

// handleQuotationPDF handles POST /api/v1/quotations/{id}/pdf
func (s *Server) handleQuotationPDF(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if err := decodeJSON(r, &req); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !s.allowDocuments(w, r, 1) {
		return
	}

	res, err := s.documents.Generate(r.Context(), document.Request{
		QuotationID: chi.URLParam(r, "id"),
		TemplateID:  req.TemplateID,
		Mode:        req.Mode,
		Options:     req.Options,
	})
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	sendDocument(w, res, true)
}

// handleBatchPDF handles POST /api/v1/quotations/batch-pdf
func (s *Server) handleBatchPDF(w http.ResponseWriter, r *http.Request) {
	var req document.BatchRequest
	if err := decodeJSON(r, &req); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.QuotationIDs) == 0 && len(req.Items) == 0 {
		sendError(w, http.StatusBadRequest, "quotationIds or items is required")
		return
	}
	if !s.allowDocuments(w, r, len(req.QuotationIDs)+len(req.Items)) {
		return
	}

	result, err := s.documents.GenerateBatch(r.Context(), req)
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}

	s.logger.Info("batch generated",
		"total", result.Total,
		"successful", result.Successful,
		"failed", result.Failed,
	)
	sendJSON(w, http.StatusOK, result)
}

// sendDocument writes a produced document. Attachments carry a
// Content-Disposition with the suggested filename.
func sendDocument(w http.ResponseWriter, res *document.Result, attachment bool) {
	w.Header().Set("Content-Type", res.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Content)))
	w.Header().Set("X-Template-Id", res.TemplateID)
	w.Header().Set("X-Template-Version", strconv.Itoa(res.TemplateVersion))
	w.Header().Set("X-Template-Source", string(res.Source))
	if attachment {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", res.Filename))
	}
	w.WriteHeader(http.StatusOK)
	w.Write(res.Content)
}
