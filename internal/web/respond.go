package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"growpilot/internal/barcode"
	"growpilot/internal/chart"
	"growpilot/internal/core"
	"growpilot/internal/session"
	"growpilot/pkg/domain"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrValidation), errors.Is(err, barcode.ErrImage):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnknownCategory),
		errors.Is(err, session.ErrNotFound),
		errors.Is(err, chart.ErrNoData):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "error", err)
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}
