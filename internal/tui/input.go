package tui

import "unicode/utf8"

const maxInputLen = 120

// editRune applies a keystroke to inline text. Only backspace and single
// printable characters change the text; accept filters the latter.
func editRune(text, key string, accept func(rune) bool) string {
	if key == "backspace" {
		if text == "" {
			return text
		}
		runes := []rune(text)
		return string(runes[:len(runes)-1])
	}
	if utf8.RuneCountInString(key) != 1 || utf8.RuneCountInString(text) >= maxInputLen {
		return text
	}
	r, _ := utf8.DecodeRuneInString(key)
	if r < ' ' || (accept != nil && !accept(r)) {
		return text
	}
	return text + key
}

func anyRune(rune) bool { return true }

func isDigit(r rune) bool { return r >= '0' && r <= '9' }

func phoneRune(r rune) bool {
	return isDigit(r) || r == '+' || r == ' ' || r == '-' || r == '(' || r == ')'
}
