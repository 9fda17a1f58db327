package domain

import (
	"strings"
	"unicode"
)

const (
	minPhoneDigits = 10
	maxPhoneDigits = 15 // E.164
)

// NormalizePhone strips formatting (spaces, dashes, dots, parentheses, leading '+')
// and returns "+<digits>". Any other character, or a digit count outside [10,15],
// is an INVALID_INPUT error.
func NormalizePhone(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", NewError(KindInvalidInput, "phone number is required")
	}

	var b strings.Builder
	b.Grow(len(raw) + 1)
	b.WriteByte('+')
	digits := 0
	for i, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
			digits++
		case r == '+' && i == 0:
		case r == ' ' || r == '-' || r == '.' || r == '(' || r == ')' || unicode.IsSpace(r):
		default:
			return "", NewError(KindInvalidInput, "phone number contains invalid character %q", r)
		}
	}
	if digits < minPhoneDigits {
		return "", NewError(KindInvalidInput, "phone number must have at least %d digits", minPhoneDigits)
	}
	if digits > maxPhoneDigits {
		return "", NewError(KindInvalidInput, "phone number must have at most %d digits", maxPhoneDigits)
	}
	return b.String(), nil
}

// MaskPhone keeps the last four digits: "+15550001111" -> "********1111".
func MaskPhone(phone string) string {
	if len(phone) <= 4 {
		return strings.Repeat("*", len(phone))
	}
	return strings.Repeat("*", len(phone)-4) + phone[len(phone)-4:]
}

// ValidCode reports whether code is exactly length ASCII digits.
func ValidCode(code string, length int) bool {
	if len(code) != length {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}
