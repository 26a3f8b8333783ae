package phone

import (
	"fmt"
	"strings"
)

// Normalize converts a Ghanaian MSISDN to the canonical 10-digit local form
// (0XXXXXXXXX). Accepted inputs: 0XXXXXXXXX, 233XXXXXXXXX, +233XXXXXXXXX and
// the bare 9-digit subscriber number. Everything else is rejected.
func Normalize(raw string) (string, error) {
	cleaned := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		if r == '+' {
			return r
		}
		return -1
	}, strings.TrimSpace(raw))

	cleaned = strings.TrimPrefix(cleaned, "+")

	switch {
	case len(cleaned) == 12 && strings.HasPrefix(cleaned, "233"):
		cleaned = "0" + cleaned[3:]
	case len(cleaned) == 9 && !strings.HasPrefix(cleaned, "0"):
		cleaned = "0" + cleaned
	}

	if len(cleaned) != 10 || !strings.HasPrefix(cleaned, "0") {
		return "", fmt.Errorf("invalid phone number %q", raw)
	}
	return cleaned, nil
}

// Valid reports whether raw normalizes to a canonical local number.
func Valid(raw string) bool {
	_, err := Normalize(raw)
	return err == nil
}
