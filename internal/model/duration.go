package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strconv"
)

// Timestamp is a point in time in unix seconds, as supplied by the caller.
type Timestamp uint64

// ErrOverflow is returned when finite arithmetic leaves the Timestamp range.
var ErrOverflow = errors.New("timestamp overflow")

const foreverText = "forever"

// Duration is either a finite span in seconds or Forever. Forever is a
// distinct state; no finite value compares equal to it.
type Duration struct {
	seconds uint64
	forever bool
}

// Forever is the unbounded duration.
var Forever = Duration{forever: true}

// Seconds returns a finite duration. Seconds(0) is the zero duration that
// offers reject.
func Seconds(n uint64) Duration { return Duration{seconds: n} }

// IsForever reports whether d is unbounded.
func (d Duration) IsForever() bool { return d.forever }

// IsZero reports whether d is the zero finite span.
func (d Duration) IsZero() bool { return !d.forever && d.seconds == 0 }

// Span returns the finite span and false for Forever.
func (d Duration) Span() (uint64, bool) { return d.seconds, !d.forever }

func (d Duration) String() string {
	if d.forever {
		return foreverText
	}
	return strconv.FormatUint(d.seconds, 10)
}

// MarshalText encodes Forever as "forever" and finite spans as decimal seconds.
func (d Duration) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Duration) UnmarshalText(b []byte) error {
	forever, n, err := parseSpan(b)
	if err != nil {
		return err
	}
	*d = Duration{seconds: n, forever: forever}
	return nil
}

// MarshalJSON writes finite spans as JSON numbers and Forever as "forever".
func (d Duration) MarshalJSON() ([]byte, error) {
	if d.forever {
		return json.Marshal(foreverText)
	}
	return []byte(strconv.FormatUint(d.seconds, 10)), nil
}

// UnmarshalJSON accepts a number, a numeric string or "forever".
func (d *Duration) UnmarshalJSON(b []byte) error {
	return d.UnmarshalText(unquote(b))
}

// Expiry is the end of a purchaser's access window: a timestamp or Forever.
type Expiry struct {
	at      Timestamp
	forever bool
}

// ExpiresNever is the unbounded expiry.
var ExpiresNever = Expiry{forever: true}

// ExpiresAt returns a finite expiry.
func ExpiresAt(t Timestamp) Expiry { return Expiry{at: t} }

// IsForever reports whether e never lapses.
func (e Expiry) IsForever() bool { return e.forever }

// At returns the finite expiry time and false for Forever.
func (e Expiry) At() (Timestamp, bool) { return e.at, !e.forever }

// ValidAt reports whether access is still granted at now. A finite expiry
// grants access strictly before its timestamp.
func (e Expiry) ValidAt(now Timestamp) bool {
	return e.forever || e.at > now
}

// Extend computes the expiry after buying d at now. Forever durations give
// Forever; a lapsed or zero expiry restarts from now; a live one extends
// additively from its current end.
func (e Expiry) Extend(now Timestamp, d Duration) (Expiry, error) {
	if d.forever {
		return ExpiresNever, nil
	}
	if e.forever {
		return e, nil
	}
	base := now
	if e.at > base {
		base = e.at
	}
	if d.seconds > math.MaxUint64-uint64(base) {
		return Expiry{}, ErrOverflow
	}
	return ExpiresAt(base + Timestamp(d.seconds)), nil
}

func (e Expiry) String() string {
	if e.forever {
		return foreverText
	}
	return strconv.FormatUint(uint64(e.at), 10)
}

func (e Expiry) MarshalText() ([]byte, error) { return []byte(e.String()), nil }

func (e *Expiry) UnmarshalText(b []byte) error {
	forever, n, err := parseSpan(b)
	if err != nil {
		return err
	}
	*e = Expiry{at: Timestamp(n), forever: forever}
	return nil
}

func (e Expiry) MarshalJSON() ([]byte, error) {
	if e.forever {
		return json.Marshal(foreverText)
	}
	return []byte(strconv.FormatUint(uint64(e.at), 10)), nil
}

func (e *Expiry) UnmarshalJSON(b []byte) error {
	return e.UnmarshalText(unquote(b))
}

func parseSpan(b []byte) (forever bool, n uint64, err error) {
	s := string(bytes.TrimSpace(b))
	if s == foreverText {
		return true, 0, nil
	}
	n, err = strconv.ParseUint(s, 10, 64)
	if err != nil {
		return false, 0, errors.New("expected seconds or \"forever\"")
	}
	return false, n, nil
}

func unquote(b []byte) []byte {
	b = bytes.TrimSpace(b)
	if len(b) >= 2 && b[0] == '"' && b[len(b)-1] == '"' {
		return b[1 : len(b)-1]
	}
	return b
}
