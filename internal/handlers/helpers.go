package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	logpkg "github.com/benvon/authgate/internal/logger"
)

// maxErrorMessageLength bounds messages echoed to clients.
const maxErrorMessageLength = 200

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := map[string]any{
		"success":   true,
		"data":      data,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// respondJSONError sends an error JSON response. message reaches the client,
// so callers pass fixed text and log causes separately.
func respondJSONError(w http.ResponseWriter, status int, errorType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := map[string]any{
		"success":   false,
		"error":     errorType,
		"message":   logpkg.SanitizeString(message, maxErrorMessageLength),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

func respondUnauthorized(w http.ResponseWriter, message string) {
	respondJSONError(w, http.StatusUnauthorized, "Unauthorized", message)
}

func respondInternalError(w http.ResponseWriter) {
	respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "An unexpected error occurred")
}
