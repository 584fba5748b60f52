package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/crsongirkar/YT-Platform/internal/logging"
)

// maxJSONBody bounds every JSON request body.
const maxJSONBody = 64 << 10

type errorResponse struct {
	Error string `json:"error"`
}

// decodeJSON reads a single JSON document from the request body into dst.
func decodeJSON(r *http.Request, dst any) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxJSONBody)).Decode(dst)
}

func respondError(ctx context.Context, w http.ResponseWriter, status int, message string) {
	respondJSON(ctx, w, status, errorResponse{Error: message})
}

func respondJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	logger := logging.FromContext(ctx)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("encode response body", "status", status, "error", err)
		return
	}

	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("request failed", "status", status, "response", payload)
	case status >= http.StatusBadRequest:
		logger.Warn("request returned client error", "status", status, "response", payload)
	}
}
