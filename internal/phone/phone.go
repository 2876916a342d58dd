package phone

import (
	"errors"
	"strings"
)

// ErrInvalid indicates the value cannot be normalised to an Australian E.164 number.
var ErrInvalid = errors.New("phone: invalid australian number")

// Valid national prefixes: 2/3/7/8 are landline regions, 4 is mobile.
func validNationalPrefix(b byte) bool {
	switch b {
	case '2', '3', '4', '7', '8':
		return true
	}
	return false
}

// Normalize converts an Australian phone number to canonical E.164 (+61XXXXXXXXX).
// Accepted inputs: 0XXXXXXXXX, +61XXXXXXXXX, 61XXXXXXXXX, with spaces, parens
// and hyphens ignored. Numbers with an unknown area prefix are rejected.
// Normalize is idempotent: Normalize(Normalize(x)) == Normalize(x).
func Normalize(raw string) (string, error) {
	cleaned := sanitize(raw)
	if cleaned == "" {
		return "", ErrInvalid
	}

	var national string
	switch {
	case strings.HasPrefix(cleaned, "+61"):
		national = cleaned[3:]
	case strings.HasPrefix(cleaned, "61") && len(cleaned) == 11:
		national = cleaned[2:]
	case strings.HasPrefix(cleaned, "0"):
		national = cleaned[1:]
	default:
		return "", ErrInvalid
	}

	if len(national) != 9 || !allDigits(national) || !validNationalPrefix(national[0]) {
		return "", ErrInvalid
	}
	return "+61" + national, nil
}

// IsValid reports whether the value normalises cleanly.
func IsValid(raw string) bool {
	_, err := Normalize(raw)
	return err == nil
}

// Same reports whether two raw numbers refer to the same canonical number.
func Same(a, b string) bool {
	na, errA := Normalize(a)
	nb, errB := Normalize(b)
	return errA == nil && errB == nil && na == nb
}

// Mask hides the middle digits of a number for log output.
func Mask(value string) string {
	if len(value) <= 4 {
		return "****"
	}
	return value[:3] + strings.Repeat("*", len(value)-6) + value[len(value)-3:]
}

func sanitize(raw string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(raw) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && b.Len() == 0:
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
			// separator, skip
		default:
			return ""
		}
	}
	return b.String()
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
