package model

import (
	"encoding/hex"
	"errors"
	"strings"
)

// Address identifies an account: a service owner, a purchaser, a pauser or
// the marketplace itself. The canonical form is "0x" followed by 40
// lower-case hex digits.
type Address string

// ZeroAddress is the null account. It can never own a service.
const ZeroAddress Address = "0x0000000000000000000000000000000000000000"

// ErrInvalidAddress is returned by ParseAddress for malformed input.
var ErrInvalidAddress = errors.New("invalid address")

// ParseAddress validates s and returns its canonical form.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if len(s) != 42 || !(strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X")) {
		return "", ErrInvalidAddress
	}
	if _, err := hex.DecodeString(s[2:]); err != nil {
		return "", ErrInvalidAddress
	}
	return Address("0x" + strings.ToLower(s[2:])), nil
}

// MustAddress is ParseAddress for constants and tests.
func MustAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic("model: " + err.Error() + ": " + s)
	}
	return a
}

// IsZero reports whether a is empty or the zero address.
func (a Address) IsZero() bool {
	return a == "" || a == ZeroAddress
}

func (a Address) String() string { return string(a) }
