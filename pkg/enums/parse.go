package enums

import (
	"fmt"
	"strings"
)

// parse matches value against values ignoring case and surrounding space;
// providers and clients disagree on casing.
func parse[T ~string](values []T, value, kind string) (T, error) {
	trimmed := strings.TrimSpace(value)
	for _, candidate := range values {
		if strings.EqualFold(string(candidate), trimmed) {
			return candidate, nil
		}
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q", kind, value)
}
