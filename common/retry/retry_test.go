package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/bdobrica/Shiori/common/retry"
)

var errTransient = errors.New("transient")

func fast(attempts int) retry.Config {
	return retry.Config{MaxAttempts: attempts, InitialDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond}
}

func TestValue(t *testing.T) {
	tests := []struct {
		name      string
		cfg       retry.Config
		failures  int
		wantCalls int
		wantErr   bool
	}{
		{"first attempt", fast(3), 0, 1, false},
		{"eventual success", fast(3), 2, 3, false},
		{"attempts exhausted", fast(3), 10, 3, true},
		{"single attempt", fast(0), 10, 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			got, err := retry.Value(context.Background(), tt.cfg, func() (string, error) {
				calls++
				if calls <= tt.failures {
					return "", errTransient
				}
				return "ok", nil
			})
			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
			if tt.wantErr {
				if !errors.Is(err, errTransient) {
					t.Errorf("err = %v, want errTransient", err)
				}
				return
			}
			if err != nil || got != "ok" {
				t.Errorf("Value = %q, %v; want ok", got, err)
			}
		})
	}
}

func TestDo_NonRetryableStopsImmediately(t *testing.T) {
	permanent := errors.New("permanent")
	cfg := fast(5)
	cfg.ShouldRetry = func(err error) bool { return !errors.Is(err, permanent) }

	calls := 0
	err := retry.Do(context.Background(), cfg, func() error {
		calls++
		return permanent
	})
	if !errors.Is(err, permanent) || calls != 1 {
		t.Errorf("Do = %v after %d calls, want permanent after 1", err, calls)
	}
}

func TestDo_OnRetrySchedule(t *testing.T) {
	var attempts []int
	var delays []time.Duration
	cfg := fast(5)
	cfg.OnRetry = func(attempt int, _ error, d time.Duration) {
		attempts = append(attempts, attempt)
		delays = append(delays, d)
	}
	_ = retry.Do(context.Background(), cfg, func() error { return errTransient })

	if diff := cmp.Diff([]int{1, 2, 3, 4}, attempts); diff != "" {
		t.Errorf("attempts mismatch (-want +got):\n%s", diff)
	}
	want := []time.Duration{time.Millisecond, 2 * time.Millisecond, 4 * time.Millisecond, 4 * time.Millisecond}
	if diff := cmp.Diff(want, delays); diff != "" {
		t.Errorf("delays mismatch (-want +got):\n%s", diff)
	}
}

func TestConfig_DelayDefaults(t *testing.T) {
	var c retry.Config
	if got := c.Delay(1); got != retry.DefaultConfig.InitialDelay {
		t.Errorf("Delay(1) = %v, want %v", got, retry.DefaultConfig.InitialDelay)
	}
	if got := c.Delay(100); got != retry.DefaultConfig.MaxDelay {
		t.Errorf("Delay(100) = %v, want cap %v", got, retry.DefaultConfig.MaxDelay)
	}
}

func TestDo_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := retry.Do(ctx, fast(5), func() error {
		calls++
		return errTransient
	})
	if calls != 0 {
		t.Errorf("calls = %d with a cancelled context, want 0", calls)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
