package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/kalambet/learnbot/internal/annotate"
	"github.com/kalambet/learnbot/internal/ingest"
	"github.com/kalambet/learnbot/internal/session"
	"github.com/kalambet/learnbot/internal/storage"
)

var errBadRequest = errors.New("invalid request")

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

// writeError maps domain errors to HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrEmptyReply), errors.Is(err, session.ErrInvalidName), errors.Is(err, errBadRequest):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	case errors.Is(err, annotate.ErrCorpusFormat):
		httpError(w, http.StatusUnprocessableEntity, "corpus_format_error", "%v", err)
	case errors.Is(err, storage.ErrNotFound):
		httpError(w, http.StatusNotFound, "not_found", "%v", err)
	case errors.Is(err, ingest.ErrFetch):
		httpError(w, http.StatusBadGateway, "api_error", "%v", err)
	default:
		slog.Error("request failed", "error", err)
		httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
