package util

import (
	"regexp"
	"strings"
)

var nonDigit = regexp.MustCompile(`\D+`)

// PhoneDigits strips everything but digits.
func PhoneDigits(raw string) string {
	return nonDigit.ReplaceAllString(strings.TrimSpace(raw), "")
}

// FormatPhone renders up to ten digits as "(XXX) XXX-XXXX", formatting
// partial input progressively: "(555", "(555) 123", "(555) 123-4567".
// Digits past the tenth are dropped.
func FormatPhone(raw string) string {
	d := PhoneDigits(raw)
	if len(d) > 10 {
		d = d[:10]
	}
	switch {
	case len(d) == 0:
		return ""
	case len(d) <= 3:
		return "(" + d
	case len(d) <= 6:
		return "(" + d[:3] + ") " + d[3:]
	default:
		return "(" + d[:3] + ") " + d[3:6] + "-" + d[6:]
	}
}

// ValidPhone reports whether raw holds exactly ten digits.
func ValidPhone(raw string) bool {
	return len(PhoneDigits(raw)) == 10
}
