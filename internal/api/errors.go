package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"gwi.com/campus-knowledge/internal/core"
	"gwi.com/campus-knowledge/internal/ingest"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeErrorMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeError maps service errors to HTTP statuses. Unknown errors are logged
// and reported as 500 without detail.
func writeError(w http.ResponseWriter, r *http.Request, err error, action string) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("Request failed", "action", action, "path", r.URL.Path, "error", err)
		writeErrorMessage(w, status, "Failed to "+action)
		return
	}
	slog.Info("Request rejected", "action", action, "status", status, "error", err)
	writeErrorMessage(w, status, err.Error())
}

func statusFor(err error) int {
	var parseErr *ingest.ParseError
	switch {
	case errors.Is(err, core.ErrNotFound), errors.Is(err, ingest.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, core.ErrInvalidState), errors.Is(err, core.ErrAlreadyAnswered):
		return http.StatusConflict
	case errors.Is(err, core.ErrInvalidInput), errors.Is(err, ingest.ErrInvalidURL):
		return http.StatusBadRequest
	case errors.Is(err, ingest.ErrFetchFailed):
		return http.StatusBadGateway
	case errors.As(err, &parseErr), errors.Is(err, core.ErrEmptyContent):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
