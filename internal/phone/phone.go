// Package phone canonicalizes free-form phone strings into the form used as
// the contact deduplication key.
package phone

import (
	"strings"

	"golang.org/x/text/width"
)

// Phone is a normalized phone number: a leading "+" followed by digits, or
// the empty string when the input carried no digits at all.
type Phone string

// String returns the canonical form.
func (p Phone) String() string {
	return string(p)
}

// IsEmpty reports whether the phone carries no digits. An empty phone must
// never be used as a dedup key.
func (p Phone) IsEmpty() bool {
	return p == ""
}

// HasPlus reports whether the canonical form carries the leading plus.
func (p Phone) HasPlus() bool {
	return strings.HasPrefix(string(p), "+")
}

// Digits returns the phone without its leading plus.
func (p Phone) Digits() string {
	return strings.TrimPrefix(string(p), "+")
}

// Normalize converts a raw phone string into its canonical form. It is a pure
// function: the same input always yields the same Phone, and normalizing an
// already normalized value returns it unchanged.
//
// Rules, in order:
//  1. keep digits and a leading "+" only (full-width digits are folded first)
//  2. 11 digits starting with 8 become +7XXXXXXXXXX
//  3. 11 digits starting with 7 get a "+" prefix
//  4. anything else without a "+" gets one
func Normalize(raw string) Phone {
	s := strings.TrimSpace(width.Narrow.String(raw))
	if s == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(s))
	plus := strings.HasPrefix(s, "+")
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if digits == "" {
		return ""
	}

	if !plus && len(digits) == 11 {
		switch digits[0] {
		case '8':
			return Phone("+7" + digits[1:])
		case '7':
			return Phone("+" + digits)
		}
	}
	return Phone("+" + digits)
}
