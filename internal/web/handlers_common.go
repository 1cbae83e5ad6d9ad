package web

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// defaultRunsLimit is how many run records /api/runs returns by default.
const defaultRunsLimit = 20

// parseIntParam parses a positive integer query parameter with a default
// value. Missing, malformed or non-positive values yield the default.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}

// columnParam reads the optional 1-based ?column= parameter. A missing
// value yields 0, which the service replaces with the configured marker
// column. Range checks are left to the stage.
func columnParam(r *http.Request) (int, error) {
	val := r.URL.Query().Get("column")
	if val == "" {
		return 0, nil
	}
	col, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("column must be an integer, got %q", val)
	}
	return col, nil
}

// boolParam reads an optional boolean query parameter.
func boolParam(r *http.Request, name string) (bool, error) {
	val := r.URL.Query().Get(name)
	if val == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean, got %q", name, val)
	}
	return b, nil
}

// tableParam returns the {table} URL parameter.
func tableParam(r *http.Request) string {
	return chi.URLParam(r, "table")
}
