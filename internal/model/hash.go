package model

import (
	"encoding/hex"
	"errors"
	"strings"
)

// Hash is the 32-byte content hash of a service version.
type Hash [32]byte

// ErrInvalidHash is returned by ParseHash for malformed input.
var ErrInvalidHash = errors.New("invalid hash")

// ParseHash decodes a 0x-prefixed hex string of whole bytes, at most 32 of
// them. Shorter values are right-padded with zeros, the way a bytes32
// literal is. A dangling nibble is rejected: "0x1" would otherwise alias
// "0x10".
func ParseHash(s string) (Hash, error) {
	var h Hash
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return h, ErrInvalidHash
	}
	s = s[2:]
	if s == "" || len(s) > 64 || len(s)%2 == 1 {
		return h, ErrInvalidHash
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, ErrInvalidHash
	}
	copy(h[:], b)
	return h, nil
}

// MustHash is ParseHash for constants and tests.
func MustHash(s string) Hash {
	h, err := ParseHash(s)
	if err != nil {
		panic("model: " + err.Error() + ": " + s)
	}
	return h
}

func (h Hash) String() string { return "0x" + hex.EncodeToString(h[:]) }

// MarshalText encodes the hash in its 0x-prefixed hex form.
func (h Hash) MarshalText() ([]byte, error) { return []byte(h.String()), nil }

// UnmarshalText accepts the forms ParseHash accepts.
func (h *Hash) UnmarshalText(b []byte) error {
	v, err := ParseHash(string(b))
	if err != nil {
		return err
	}
	*h = v
	return nil
}
