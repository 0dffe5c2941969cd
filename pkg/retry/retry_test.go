package retry

import (
	"context"
	stderr "errors"
	"testing"
	"time"

	"github.com/sheetsync/sheetsync/pkg/errors"
)

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.InitialDelay = time.Millisecond
	cfg.MaxDelay = 10 * time.Millisecond
	return cfg
}

func TestRetrySucceedsFirstAttempt(t *testing.T) {
	r := New(fastConfig())

	calls := 0
	err := r.Do(func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestRetryRecoversAfterTransientFailure(t *testing.T) {
	r := New(fastConfig())

	calls := 0
	err := r.Do(func() error {
		calls++
		if calls < 3 {
			return errors.NewError(errors.ErrCodeNetworkError, "connection refused")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success on third attempt, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetryExhaustion(t *testing.T) {
	r := New(fastConfig())

	calls := 0
	cause := errors.NewError(errors.ErrCodeRemoteError, "server returned 500")
	err := r.Do(func() error {
		calls++
		return cause
	})
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
	if errors.CodeOf(err) != errors.ErrCodeRetryExhausted {
		t.Fatalf("expected RETRY_EXHAUSTED, got %v", err)
	}
	if !stderr.Is(err, cause) {
		t.Error("exhaustion error must wrap the last attempt's error")
	}
}

func TestRetryNonRetryableStopsImmediately(t *testing.T) {
	r := New(fastConfig())

	calls := 0
	err := r.Do(func() error {
		calls++
		return errors.NewError(errors.ErrCodeInvalidConfig, "endpoint malformed")
	})
	if calls != 1 {
		t.Errorf("configuration errors must not be retried, got %d calls", calls)
	}
	if errors.CodeOf(err) != errors.ErrCodeInvalidConfig {
		t.Errorf("original error must pass through, got %v", err)
	}
}

func TestRetryPlainErrorNotRetried(t *testing.T) {
	r := New(fastConfig())

	calls := 0
	err := r.Do(func() error {
		calls++
		return stderr.New("some unclassified failure")
	})
	if calls != 1 {
		t.Errorf("unclassified errors must not be retried, got %d calls", calls)
	}
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestRetryRetryableOverride(t *testing.T) {
	r := New(fastConfig())

	calls := 0
	err := r.Do(func() error {
		calls++
		return errors.NewError(errors.ErrCodeSnapshotSave, "disk full").WithRetryable(true)
	})
	if calls != 3 {
		t.Errorf("explicitly retryable errors must retry, got %d calls", calls)
	}
	if errors.CodeOf(err) != errors.ErrCodeRetryExhausted {
		t.Errorf("unexpected error %v", err)
	}
}

func TestRetryContextCancellation(t *testing.T) {
	cfg := fastConfig()
	cfg.InitialDelay = time.Hour // force the wait path
	r := New(cfg)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- r.DoWithContext(ctx, func(ctx context.Context) error {
			return errors.NewError(errors.ErrCodeNetworkError, "unreachable")
		})
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !stderr.Is(err, context.Canceled) {
			t.Fatalf("expected canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("retry kept waiting after cancel")
	}
}

func TestRetryOnRetryCallback(t *testing.T) {
	var attempts []int
	cfg := fastConfig()
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		attempts = append(attempts, attempt)
	}
	r := New(cfg)

	_ = r.Do(func() error {
		return errors.NewError(errors.ErrCodeOperationTimeout, "deadline exceeded")
	})

	// Called before each retry, so attempts 1 and 2 but not the final one
	if len(attempts) != 2 || attempts[0] != 1 || attempts[1] != 2 {
		t.Errorf("unexpected callback attempts %v", attempts)
	}
}

func TestCalculateDelayExponential(t *testing.T) {
	r := New(Config{
		MaxAttempts:  5,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	})

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{10, 30 * time.Second}, // capped at MaxDelay
	}

	for _, tt := range tests {
		if got := r.calculateDelay(tt.attempt); got != tt.want {
			t.Errorf("calculateDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestCalculateDelayJitterBounded(t *testing.T) {
	cfg := fastConfig()
	cfg.InitialDelay = time.Second
	cfg.MaxDelay = 30 * time.Second
	cfg.Jitter = true
	r := New(cfg)

	for i := 0; i < 50; i++ {
		d := r.calculateDelay(1)
		if d < 800*time.Millisecond || d > 1200*time.Millisecond {
			t.Fatalf("jittered delay %v outside 20%% band", d)
		}
	}
}

func TestRetryerWithModifiers(t *testing.T) {
	r := New(fastConfig()).WithMaxAttempts(5).WithInitialDelay(2 * time.Millisecond)

	calls := 0
	_ = r.Do(func() error {
		calls++
		return errors.NewError(errors.ErrCodeNetworkError, "down")
	})
	if calls != 5 {
		t.Errorf("expected 5 attempts, got %d", calls)
	}
}
