package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// errorResponse is the JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes data with the given status. An encoding failure after
// WriteHeader cannot reach the client anymore, so it is only logged.
func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("encoding json response failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, logger *slog.Logger, status int, msg string) {
	writeJSON(w, logger, status, errorResponse{Error: msg})
}
