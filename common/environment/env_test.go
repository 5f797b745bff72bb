package environment_test

import (
	"testing"
	"time"

	"github.com/bdobrica/Shiori/common/environment"
)

func TestStringOr(t *testing.T) {
	t.Setenv("SHIORI_TEST_STR", "fr")
	if got := environment.StringOr("SHIORI_TEST_STR", "en"); got != "fr" {
		t.Errorf("StringOr = %q, want fr", got)
	}
	t.Setenv("SHIORI_TEST_STR", "")
	if got := environment.StringOr("SHIORI_TEST_STR", "en"); got != "en" {
		t.Errorf("StringOr(empty) = %q, want en", got)
	}
}

func TestFirstOf(t *testing.T) {
	t.Setenv("SHIORI_TEST_A", "")
	t.Setenv("SHIORI_TEST_B", "key-b")
	t.Setenv("SHIORI_TEST_C", "key-c")
	if got := environment.FirstOf("SHIORI_TEST_A", "SHIORI_TEST_B", "SHIORI_TEST_C"); got != "key-b" {
		t.Errorf("FirstOf = %q, want key-b", got)
	}
	if got := environment.FirstOf("SHIORI_TEST_A", "SHIORI_TEST_UNSET"); got != "" {
		t.Errorf("FirstOf(none) = %q, want empty", got)
	}
}

func TestNumericFallbacks(t *testing.T) {
	tests := []struct {
		name  string
		value string
		check func(t *testing.T)
	}{
		{"int ok", "12", func(t *testing.T) {
			if got := environment.IntOr("SHIORI_TEST_NUM", 3); got != 12 {
				t.Errorf("IntOr = %d, want 12", got)
			}
		}},
		{"int malformed", "douze", func(t *testing.T) {
			if got := environment.IntOr("SHIORI_TEST_NUM", 3); got != 3 {
				t.Errorf("IntOr = %d, want default 3", got)
			}
		}},
		{"float ok", "0.35", func(t *testing.T) {
			if got := environment.Float64Or("SHIORI_TEST_NUM", 1); got != 0.35 {
				t.Errorf("Float64Or = %v, want 0.35", got)
			}
		}},
		{"float malformed", "x", func(t *testing.T) {
			if got := environment.Float64Or("SHIORI_TEST_NUM", 1); got != 1 {
				t.Errorf("Float64Or = %v, want default 1", got)
			}
		}},
		{"duration ok", "168h", func(t *testing.T) {
			if got := environment.DurationOr("SHIORI_TEST_NUM", time.Minute); got != 7*24*time.Hour {
				t.Errorf("DurationOr = %v, want 168h", got)
			}
		}},
		{"duration malformed", "7 days", func(t *testing.T) {
			if got := environment.DurationOr("SHIORI_TEST_NUM", time.Minute); got != time.Minute {
				t.Errorf("DurationOr = %v, want default 1m", got)
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("SHIORI_TEST_NUM", tt.value)
			tt.check(t)
		})
	}
}
