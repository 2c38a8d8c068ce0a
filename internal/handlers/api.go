package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/MegaGrindStone/legal-web-ui/internal/models"
)

const defaultDiagnosticsLimit = 50

// HandleSession writes the current session as JSON.
func (m Main) HandleSession(w http.ResponseWriter, _ *http.Request) {
	m.writeJSON(w, http.StatusOK, m.manager.Snapshot())
}

// HandleDiagnostics writes the most recent completion records as JSON, newest first. The optional
// "limit" query parameter bounds the number of records.
func (m Main) HandleDiagnostics(w http.ResponseWriter, r *http.Request) {
	limit := defaultDiagnosticsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			m.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		limit = n
	}

	records := []models.CompletionRecord{}
	if m.diagnostics != nil {
		rs, err := m.diagnostics.Records(r.Context(), limit)
		if err != nil {
			m.logger.Error("Failed to read completion records", slog.String(errLoggerKey, err.Error()))
			m.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			return
		}
		if rs != nil {
			records = rs
		}
	}

	m.writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

// HandleHealth reports that the server is up.
func (m Main) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (m Main) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		m.logger.Error("Failed to encode JSON response", slog.String(errLoggerKey, err.Error()))
	}
}
