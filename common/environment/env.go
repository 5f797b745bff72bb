// Package environment reads typed settings from the process environment.
// Unset, empty or malformed values fall back to the caller's default; value
// validation belongs to the config layer.
package environment

import (
	"os"
	"strconv"
	"time"
)

// lookup returns parse(value) for a non-empty variable, or def.
func lookup[T any](name string, def T, parse func(string) (T, error)) T {
	raw := os.Getenv(name)
	if raw == "" {
		return def
	}
	v, err := parse(raw)
	if err != nil {
		return def
	}
	return v
}

// StringOr returns the variable's value, or def when it is unset or empty.
func StringOr(name, def string) string {
	return lookup(name, def, func(s string) (string, error) { return s, nil })
}

// FirstOf returns the first non-empty variable among names, or "".
// Credential fallbacks such as EMBEDDING_API_KEY then LLM_API_KEY use it.
func FirstOf(names ...string) string {
	for _, n := range names {
		if v := os.Getenv(n); v != "" {
			return v
		}
	}
	return ""
}

// IntOr parses a decimal integer.
func IntOr(name string, def int) int {
	return lookup(name, def, strconv.Atoi)
}

// Float64Or parses a float.
func Float64Or(name string, def float64) float64 {
	return lookup(name, def, func(s string) (float64, error) { return strconv.ParseFloat(s, 64) })
}

// DurationOr parses a Go duration such as "45s" or "168h".
func DurationOr(name string, def time.Duration) time.Duration {
	return lookup(name, def, time.ParseDuration)
}
