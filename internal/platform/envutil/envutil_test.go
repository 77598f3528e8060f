package envutil

import (
	"testing"
	"time"
)

func TestDuration(t *testing.T) {
	cases := []struct {
		raw  string
		want time.Duration
	}{
		{"", 5 * time.Second},
		{"90s", 90 * time.Second},
		{"12", 12 * time.Second},
		{"nonsense", 5 * time.Second},
	}
	for _, tc := range cases {
		t.Setenv("CORROWATCH_TEST_DURATION", tc.raw)
		if got := Duration("CORROWATCH_TEST_DURATION", 5*time.Second); got != tc.want {
			t.Fatalf("Duration(%q): want=%s got=%s", tc.raw, tc.want, got)
		}
	}
}

func TestIntAndBool(t *testing.T) {
	t.Setenv("CORROWATCH_TEST_INT", "42")
	t.Setenv("CORROWATCH_TEST_BOOL", "on")
	if got := Int("CORROWATCH_TEST_INT", 1); got != 42 {
		t.Fatalf("Int: got %d", got)
	}
	if !Bool("CORROWATCH_TEST_BOOL", false) {
		t.Fatalf("Bool: expected true")
	}
	if got := String("CORROWATCH_TEST_MISSING", "fallback"); got != "fallback" {
		t.Fatalf("String: got %q", got)
	}
}
