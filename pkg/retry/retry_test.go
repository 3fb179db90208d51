// ABOUTME: Tests for the retry executor
// ABOUTME: Verifies attempt counting, backoff delays and context handling
package retry

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func recordingSleeper(delays *[]time.Duration) func(context.Context, time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return ctx.Err()
	}
}

func TestExecuteExhaustsWithBackoff(t *testing.T) {
	s := New(Config{Times: 3, Interval: 100 * time.Millisecond, Backoff: true})
	var delays []time.Duration
	s.sleep = recordingSleeper(&delays)

	calls := 0
	boom := errors.New("connection refused")
	_, err := Execute(context.Background(), s, func(ctx context.Context) (int, error) {
		calls++
		return 0, boom
	}, nil)

	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
	if !errors.Is(err, ErrRetryExhausted) {
		t.Fatalf("expected ErrRetryExhausted, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Error("expected exhausted error to unwrap to the last failure")
	}

	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) || exhausted.Attempts != 3 {
		t.Errorf("expected ExhaustedError with 3 attempts, got %v", err)
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("expected message to carry last error, got %q", err.Error())
	}

	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}
	if len(delays) != len(want) {
		t.Fatalf("expected delays %v, got %v", want, delays)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Errorf("delay %d: expected %v, got %v", i, want[i], delays[i])
		}
	}
}

func TestExecuteRealTiming(t *testing.T) {
	s := New(Config{Times: 3, Interval: 20 * time.Millisecond, Backoff: true})

	start := time.Now()
	var callTimes []time.Duration
	s.Do(context.Background(), func(ctx context.Context) error {
		callTimes = append(callTimes, time.Since(start))
		return errors.New("fail")
	}, nil)

	if len(callTimes) != 3 {
		t.Fatalf("expected 3 calls, got %d", len(callTimes))
	}
	if gap := callTimes[1] - callTimes[0]; gap < 20*time.Millisecond {
		t.Errorf("expected first gap >= 20ms, got %v", gap)
	}
	if gap := callTimes[2] - callTimes[1]; gap < 40*time.Millisecond {
		t.Errorf("expected second gap >= 40ms, got %v", gap)
	}
}

func TestExecuteSucceedsAfterFailures(t *testing.T) {
	s := New(Config{Times: 3, Interval: time.Millisecond, Backoff: true})
	var delays []time.Duration
	s.sleep = recordingSleeper(&delays)

	calls := 0
	var retries []int
	got, err := Execute(context.Background(), s, func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("not yet")
		}
		return "ok", nil
	}, func(attempt int, err error) {
		retries = append(retries, attempt)
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" {
		t.Errorf("expected ok, got %q", got)
	}
	if s.Attempt() != 0 {
		t.Errorf("expected attempt counter reset to 0, got %d", s.Attempt())
	}
	if len(retries) != 2 || retries[0] != 1 || retries[1] != 2 {
		t.Errorf("expected onRetry for attempts 1 and 2, got %v", retries)
	}
	if len(delays) != 2 {
		t.Errorf("expected 2 waits, got %d", len(delays))
	}
}

func TestExecuteImmediateSuccessNoWait(t *testing.T) {
	s := New(DefaultConfig())
	var delays []time.Duration
	s.sleep = recordingSleeper(&delays)

	got, err := Execute(context.Background(), s, func(ctx context.Context) (int, error) {
		return 42, nil
	}, nil)
	if err != nil || got != 42 {
		t.Fatalf("expected 42, got %d (%v)", got, err)
	}
	if len(delays) != 0 {
		t.Errorf("expected no waits, got %v", delays)
	}
}

func TestFlatInterval(t *testing.T) {
	s := New(Config{Times: 4, Interval: 50 * time.Millisecond, Backoff: false})
	var delays []time.Duration
	s.sleep = recordingSleeper(&delays)

	s.Do(context.Background(), func(ctx context.Context) error {
		return errors.New("fail")
	}, nil)

	if len(delays) != 3 {
		t.Fatalf("expected 3 waits, got %d", len(delays))
	}
	for i, d := range delays {
		if d != 50*time.Millisecond {
			t.Errorf("delay %d: expected 50ms, got %v", i, d)
		}
	}
}

func TestSingleAttemptNoRetryHook(t *testing.T) {
	s := New(Config{Times: 1})
	hooked := false

	err := s.Do(context.Background(), func(ctx context.Context) error {
		return errors.New("fail")
	}, func(int, error) { hooked = true })

	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("expected ErrRetryExhausted, got %v", err)
	}
	if hooked {
		t.Error("onRetry should not run when no retry follows")
	}
}

func TestContextCanceledDuringWait(t *testing.T) {
	s := New(Config{Times: 5, Interval: time.Hour, Backoff: false})

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	done := make(chan error, 1)
	go func() {
		done <- s.Do(ctx, func(ctx context.Context) error {
			calls++
			return errors.New("fail")
		}, nil)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("retry did not stop after cancellation")
	}

	if calls != 1 {
		t.Errorf("expected 1 call before cancellation, got %d", calls)
	}
}

func TestNormalize(t *testing.T) {
	c := Config{Times: 0, Interval: -time.Second}.Normalize()
	if c.Times != 1 {
		t.Errorf("expected Times=1, got %d", c.Times)
	}
	if c.Interval != 0 {
		t.Errorf("expected Interval=0, got %v", c.Interval)
	}
}

func TestDelay(t *testing.T) {
	s := New(Config{Times: 5, Interval: time.Second, Backoff: true})

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
	}
	for _, tt := range tests {
		if got := s.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, expected %v", tt.attempt, got, tt.want)
		}
	}
}
