package admin

import (
	"net/http"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

// Response is the envelope of every admin response.
type Response[T any] struct {
	Data    T       `json:"data,omitempty"`
	Errors  []Error `json:"errors,omitempty"`
	Message string  `json:"message,omitempty"`
}

// Error is a single field-level error.
type Error struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// writeJSON writes response with statusCode. Encoding failures can only be
// logged since the header is already sent.
func writeJSON[T any](w http.ResponseWriter, statusCode int, response Response[T]) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Error().
			Err(err).
			Int("status_code", statusCode).
			Msg("failed to encode JSON response")
	}
}

func writeError(w http.ResponseWriter, statusCode int, message string, errs ...Error) {
	writeJSON(w, statusCode, Response[any]{
		Errors:  errs,
		Message: message,
	})
}

func writeSuccess[T any](w http.ResponseWriter, statusCode int, data T, message string) {
	writeJSON(w, statusCode, Response[T]{
		Data:    data,
		Message: message,
	})
}
