package api

import (
	"fmt"
	"net/http"
	"strconv"
)

// parseIntParam reads a positive integer query parameter, falling back to def
// when it is absent. Values above max are rejected.
func parseIntParam(r *http.Request, name string, def, max int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	if v <= 0 {
		return 0, fmt.Errorf("%s must be positive", name)
	}
	if v > max {
		return 0, fmt.Errorf("%s must be at most %d", name, max)
	}
	return v, nil
}

// validateNamespace checks if a namespace name is valid
func validateNamespace(namespace string) error {
	if namespace == "" {
		return fmt.Errorf("namespace cannot be empty")
	}
	if len(namespace) > 63 {
		return fmt.Errorf("namespace name too long (max 63 characters)")
	}
	return nil
}
