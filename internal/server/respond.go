package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/doohee323/chat-gateway/internal/domain"
)

type errorBody struct {
	Type    domain.ErrorType `json:"type"`
	Message string           `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders an error in the canonical taxonomy. Anything outside
// the taxonomy becomes an opaque 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	AddError(r.Context(), err)

	var apiErr *domain.APIError
	if !errors.As(err, &apiErr) {
		apiErr = &domain.APIError{Type: "internal_error", Message: "internal server error"}
	}
	writeJSON(w, apiErr.HTTPStatusCode(), errorResponse{
		Error: errorBody{Type: apiErr.Type, Message: apiErr.Message},
	})
}
