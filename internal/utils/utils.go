// Package utils holds small HTTP helpers shared by the API handlers.
package utils

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write JSON", "error", err)
	}
}

func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, map[string]any{
		"error":   http.StatusText(status),
		"message": msg,
	})
}

// QueryLimit reads the "limit" query parameter. An absent value yields
// def; values outside 1..upper are rejected.
func QueryLimit(r *http.Request, def, upper int) (int, error) {
	s := r.URL.Query().Get("limit")
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid 'limit' (expected integer)")
	}
	if n <= 0 {
		return 0, fmt.Errorf("'limit' must be > 0")
	}
	if n > upper {
		return 0, fmt.Errorf("'limit' must be <= %d", upper)
	}
	return n, nil
}

// QueryTime reads an RFC 3339 timestamp from the named query parameter.
// An absent value yields the zero time.
func QueryTime(r *http.Request, name string) (time.Time, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid '%s' (expected RFC3339)", name)
	}
	return t.UTC(), nil
}
