package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

type recordingSleeper struct {
	delays []time.Duration
	err    error
}

func (r *recordingSleeper) sleep(_ context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return r.err
}

func newTestPolicy(t *testing.T, cfg Config, sleeper *recordingSleeper) *Policy {
	t.Helper()

	p, err := New(cfg, WithSleep(sleeper.sleep))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return p
}

func TestNewRejectsNonPositiveAttempts(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{MaxAttempts: 0}); err == nil {
		t.Fatal("expected error for zero max attempts")
	}
}

func TestPolicyDelay(t *testing.T) {
	t.Parallel()

	p, err := New(DefaultConfig())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 1, want: 0},
		{attempt: 2, want: time.Second},
		{attempt: 3, want: 2 * time.Second},
		{attempt: 4, want: 4 * time.Second},
		{attempt: 5, want: 8 * time.Second},
		{attempt: 6, want: 10 * time.Second},
		{attempt: 20, want: 10 * time.Second},
	}

	for _, tt := range tests {
		if got := p.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %s, want %s", tt.attempt, got, tt.want)
		}
	}
}

func TestExecuteSucceedsFirstAttemptWithoutSleeping(t *testing.T) {
	t.Parallel()

	sleeper := &recordingSleeper{}
	p := newTestPolicy(t, DefaultConfig(), sleeper)

	hookCalls := 0
	got, err := Execute(context.Background(), p, func(context.Context, int) (string, error) {
		return "ok", nil
	}, func(context.Context, int) { hookCalls++ })
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got != "ok" {
		t.Fatalf("Execute() = %q, want ok", got)
	}
	if len(sleeper.delays) != 0 || hookCalls != 0 {
		t.Fatalf("unexpected sleeps=%v hooks=%d", sleeper.delays, hookCalls)
	}
}

func TestExecuteRetriesUntilSuccess(t *testing.T) {
	t.Parallel()

	sleeper := &recordingSleeper{}
	p := newTestPolicy(t, DefaultConfig(), sleeper)

	var hooked []int
	got, err := Execute(context.Background(), p, func(_ context.Context, attempt int) (int, error) {
		if attempt < 3 {
			return 0, errors.New("flaky")
		}
		return attempt, nil
	}, func(_ context.Context, attempt int) { hooked = append(hooked, attempt) })
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got != 3 {
		t.Fatalf("Execute() = %d, want 3", got)
	}
	if len(hooked) != 2 || hooked[0] != 2 || hooked[1] != 3 {
		t.Fatalf("beforeRetry attempts = %v, want [2 3]", hooked)
	}
	if len(sleeper.delays) != 2 || sleeper.delays[0] != time.Second || sleeper.delays[1] != 2*time.Second {
		t.Fatalf("sleeps = %v, want [1s 2s]", sleeper.delays)
	}
}

func TestExecuteExhausts(t *testing.T) {
	t.Parallel()

	sleeper := &recordingSleeper{}
	p := newTestPolicy(t, DefaultConfig(), sleeper)

	cause := errors.New("still down")
	calls := 0
	_, err := Execute(context.Background(), p, func(context.Context, int) (struct{}, error) {
		calls++
		return struct{}{}, cause
	}, nil)

	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("Execute() error = %v, want *ExhaustedError", err)
	}
	if exhausted.Attempts != 3 || exhausted.MaxAttempts != 3 {
		t.Fatalf("exhausted = %+v, want 3/3", exhausted)
	}
	if !errors.Is(err, cause) {
		t.Fatal("ExhaustedError should unwrap to last cause")
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestExecuteStopsOnPermanentError(t *testing.T) {
	t.Parallel()

	sleeper := &recordingSleeper{}
	p := newTestPolicy(t, DefaultConfig(), sleeper)

	cause := errors.New("bad request")
	calls := 0
	_, err := Execute(context.Background(), p, func(context.Context, int) (int, error) {
		calls++
		return 0, Permanent(cause)
	}, nil)

	if err != cause {
		t.Fatalf("Execute() error = %v, want unwrapped cause", err)
	}
	if calls != 1 || len(sleeper.delays) != 0 {
		t.Fatalf("calls=%d sleeps=%v, want single attempt", calls, sleeper.delays)
	}
}

func TestExecuteAbortsWhenBackoffInterrupted(t *testing.T) {
	t.Parallel()

	sleeper := &recordingSleeper{err: context.Canceled}
	p := newTestPolicy(t, DefaultConfig(), sleeper)

	calls := 0
	_, err := Execute(context.Background(), p, func(context.Context, int) (int, error) {
		calls++
		return 0, errors.New("down")
	}, nil)

	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("Execute() error = %v, want *ExhaustedError", err)
	}
	if exhausted.Attempts != 1 {
		t.Fatalf("Attempts = %d, want 1", exhausted.Attempts)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatal("expected context.Canceled in chain")
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestPermanentNil(t *testing.T) {
	t.Parallel()

	if Permanent(nil) != nil {
		t.Fatal("Permanent(nil) should be nil")
	}
}
