// Package sid validates service identifiers.
//
// A sid is one or more dot-separated labels. Each label starts with a
// letter, digit or underscore, continues with letters, digits, underscores
// or hyphens, and does not end with a hyphen. The whole identifier is 1 to
// 63 bytes. These are DNS label rules without the TLD requirement.
package sid

import "errors"

// MaxLength is the longest accepted identifier in bytes.
const MaxLength = 63

var (
	ErrInvalidLength = errors.New("sid: length must be between 1 and 63 bytes")
	ErrInvalidFormat = errors.New("sid: invalid format")
)

// Validate reports whether b is a well-formed sid.
func Validate(b []byte) error {
	if len(b) == 0 || len(b) > MaxLength {
		return ErrInvalidLength
	}
	start := 0
	for i := 0; i <= len(b); i++ {
		if i < len(b) && b[i] != '.' {
			continue
		}
		if !validLabel(b[start:i]) {
			return ErrInvalidFormat
		}
		start = i + 1
	}
	return nil
}

func validLabel(l []byte) bool {
	if len(l) == 0 || l[0] == '-' || l[len(l)-1] == '-' {
		return false
	}
	for _, c := range l {
		if !labelChar(c) {
			return false
		}
	}
	return true
}

func labelChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '_' || c == '-':
		return true
	}
	return false
}
