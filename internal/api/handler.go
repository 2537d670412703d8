// Package api provides HTTP handlers for the HeliXR API.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/alphaq-labs/helixr/internal/devstate"
)

// Handler provides the direct device-control and state endpoints.
type Handler struct {
	updater *devstate.Updater
	store   devstate.Store
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(updater *devstate.Updater, store devstate.Store) *Handler {
	return &Handler{updater: updater, store: store}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}
