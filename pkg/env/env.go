package env

import (
	"os"
	"strings"
)

// First returns the first non-blank value among keys.
func First(keys ...string) (string, bool) {
	for _, key := range keys {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v, true
		}
	}
	return "", false
}

// Get returns key's value, or fallback when it is unset or blank.
func Get(key, fallback string) string {
	if v, ok := First(key); ok {
		return v
	}
	return fallback
}
