package controllers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/dreadatour/deque/internal/tube"
)

// writeJSON writes a JSON response with the given data.
func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// writeNoContent writes a 204 No Content response.
func writeNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// writeServiceError maps engine error sentinels to HTTP status codes:
// bad arguments 400, unknown task/tube 404, state conflicts 409.
func writeServiceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, tube.ErrBadArguments):
		status = http.StatusBadRequest
	case errors.Is(err, tube.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, tube.ErrWrongState),
		errors.Is(err, tube.ErrStaleOwner),
		errors.Is(err, tube.ErrTubeBusy):
		status = http.StatusConflict
	}
	writeError(w, status, err.Error())
}

// parseLimit parses a limit query value, returning 0 for empty or invalid
// input.
func parseLimit(limitStr string) int {
	if limitStr == "" {
		return 0
	}
	if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 {
		return limit
	}
	return 0
}
