// Package httpx holds the JSON response helpers shared by controllers and handlers.
package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	appErrors "github.com/unclebandit/retention-backend/internal/errors"
)

func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

// WriteError maps err to its status code. Internal errors are logged and
// replaced by a generic message.
func WriteError(w http.ResponseWriter, err error) {
	status := appErrors.HTTPStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("request failed")
		msg = "internal server error"
	}
	WriteJSON(w, status, map[string]string{"error": msg})
}
