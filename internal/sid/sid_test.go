package sid

import (
	"strings"
	"testing"
)

func TestValidateAccepts(t *testing.T) {
	for _, s := range []string{
		"a",
		"svc-a",
		"test-service-0",
		"_private",
		"core.mesg",
		"a.b.c.d",
		"A_b-9.x1",
		"0",
		strings.Repeat("a", 63),
	} {
		if err := Validate([]byte(s)); err != nil {
			t.Fatalf("%q: unexpected %v", s, err)
		}
	}
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		in   string
		want error
	}{
		{"", ErrInvalidLength},
		{strings.Repeat("a", 64), ErrInvalidLength},
		{"-a", ErrInvalidFormat},
		{"a-", ErrInvalidFormat},
		{"a.-b", ErrInvalidFormat},
		{"a-.b", ErrInvalidFormat},
		{".a", ErrInvalidFormat},
		{"a.", ErrInvalidFormat},
		{"a..b", ErrInvalidFormat},
		{".", ErrInvalidFormat},
		{"a b", ErrInvalidFormat},
		{"a/b", ErrInvalidFormat},
		{"caf\xc3\xa9", ErrInvalidFormat},
	}
	for _, c := range cases {
		if err := Validate([]byte(c.in)); err != c.want {
			t.Fatalf("%q: want %v, got %v", c.in, c.want, err)
		}
	}
}

// Every string built from valid labels within the length bound passes.
func TestValidateGrammarProperty(t *testing.T) {
	labels := []string{"a", "_", "0", "ab", "a-b", "a--b", "_x-", "Z9"}
	for _, l1 := range labels {
		for _, l2 := range labels {
			s := l1 + "." + l2
			err := Validate([]byte(s))
			bad := strings.HasSuffix(l1, "-") || strings.HasSuffix(l2, "-")
			if bad && err == nil {
				t.Fatalf("%q: trailing hyphen accepted", s)
			}
			if !bad && err != nil {
				t.Fatalf("%q: rejected: %v", s, err)
			}
		}
	}
}
