package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"pagepilot/pkg/apperr"
)

type errorResponse struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(payload)
}

// respondError maps err to its HTTP status. Internal failures are logged
// here since the handler returns right after.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}

	respondJSON(w, status, errorResponse{Error: true, Message: err.Error()})
}

// decodeJSON reads a size-limited JSON body into dst. Decode failures are
// invalid_argument errors.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	const op = "decodeJSON"

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return apperr.InvalidReqError(op, "body", fmt.Errorf("request body exceeds %d bytes", maxErr.Limit))
		}

		return apperr.InvalidReqError(op, "body", fmt.Errorf("invalid JSON body: %w", err))
	}

	return nil
}
