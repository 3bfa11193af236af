package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/aspcranes/quotegen/internal/document"
	"github.com/aspcranes/quotegen/internal/metrics"
	"github.com/aspcranes/quotegen/internal/quote"
	"github.com/aspcranes/quotegen/internal/template"
)

// ConflictResponse is returned with 409 when an optimistic lock fails
type ConflictResponse struct {
	Error           string `json:"error"`
	ExpectedVersion int    `json:"expectedVersion"`
	CurrentVersion  int    `json:"currentVersion"`
}

// sendServiceError maps domain errors onto HTTP statuses.
func (s *Server) sendServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var conflict *template.VersionConflictError
	switch {
	case errors.As(err, &conflict):
		metrics.IncAPIErrors("conflict")
		sendJSON(w, http.StatusConflict, ConflictResponse{
			Error:           err.Error(),
			ExpectedVersion: conflict.Expected,
			CurrentVersion:  conflict.Current,
		})
	case errors.Is(err, template.ErrTemplateNotFound), errors.Is(err, quote.ErrQuotationNotFound):
		metrics.IncAPIErrors("not_found")
		sendError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, template.ErrInvalidTemplate),
		errors.Is(err, document.ErrInvalidRequest),
		errors.Is(err, document.ErrBatchTooLarge):
		metrics.IncAPIErrors("bad_request")
		sendError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, document.ErrDocumentProduction):
		metrics.IncAPIErrors("production")
		s.logger.Error("document production failed", "path", r.URL.Path, "error", err)
		sendError(w, http.StatusBadGateway, err.Error())
	default:
		metrics.IncAPIErrors("internal")
		s.logger.Error("request failed", "path", r.URL.Path, "error", err)
		sendError(w, http.StatusInternalServerError, "internal error")
	}
}

// decodeJSON decodes the request body into v. An empty body leaves v untouched.
func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func sendError(w http.ResponseWriter, status int, message string) {
	sendJSON(w, status, map[string]string{"error": message})
}
