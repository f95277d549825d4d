package registry

import (
	"errors"
	"strings"
	"testing"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"alice", "alice", true},
		{"@alice", "alice", true},
		{"  ALICE  ", "alice", true},
		{"a.b_c9", "a.b_c9", true},
		{"@", "", false},
		{"", "", false},
		{"bad!name", "", false},
		{"has space", "", false},
		{strings.Repeat("a", 30), strings.Repeat("a", 30), true},
		{strings.Repeat("a", 31), "", false},
	}
	for _, c := range cases {
		got, err := Normalize(c.in)
		if c.ok {
			if err != nil {
				t.Errorf("Normalize(%q): unexpected error %v", c.in, err)
				continue
			}
			if got != c.want {
				t.Errorf("Normalize(%q) = %q, want %q", c.in, got, c.want)
			}
			continue
		}
		if !errors.Is(err, ErrInvalidUsername) {
			t.Errorf("Normalize(%q): expected ErrInvalidUsername, got %v", c.in, err)
		}
	}
}
