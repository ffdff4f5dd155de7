// internal/errors/service_test.go
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

// fastRetry keeps backoff delays negligible so tests never sleep for real.
func fastRetry(maxRetries int) RetryConfig {
	return RetryConfig{
		MaxRetries:    maxRetries,
		BaseDelay:     time.Millisecond,
		BackoffFactor: 1.5,
		MaxDelay:      5 * time.Millisecond,
	}
}

func TestRetrySucceedsFirstTry(t *testing.T) {
	svc := NewService().WithRetryConfig(fastRetry(3))

	calls := 0
	err := svc.Retry(context.Background(), "navigate", func() error {
		calls++
		return nil
	})

	if err != nil {
		t.Fatalf("Retry returned error: %v", err)
	}
	if calls != 1 {
		t.Errorf("operation ran %d times, want 1", calls)
	}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	svc := NewService().WithRetryConfig(fastRetry(3))

	calls := 0
	err := svc.Retry(context.Background(), "navigate", func() error {
		calls++
		if calls < 3 {
			return fmt.Errorf("page load error net::ERR_CONNECTION_REFUSED")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Retry returned error: %v", err)
	}
	if calls != 3 {
		t.Errorf("operation ran %d times, want 3", calls)
	}
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	svc := NewService().WithRetryConfig(fastRetry(3))

	calls := 0
	err := svc.Retry(context.Background(), "navigate", func() error {
		calls++
		return fmt.Errorf("malformed search URL")
	})

	if err == nil {
		t.Fatal("expected error for permanent failure")
	}
	if calls != 1 {
		t.Errorf("permanent error retried: %d calls, want 1", calls)
	}
	if !strings.Contains(err.Error(), "navigate failed after 1 attempts") {
		t.Errorf("error message missing attempt count: %v", err)
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	svc := NewService().WithRetryConfig(fastRetry(2))

	calls := 0
	wrapped := errors.New("connection reset by peer")
	err := svc.Retry(context.Background(), "navigate", func() error {
		calls++
		return wrapped
	})

	if calls != 3 {
		t.Errorf("operation ran %d times, want 3", calls)
	}
	if !errors.Is(err, wrapped) {
		t.Errorf("final error does not wrap the last failure: %v", err)
	}
	if !strings.Contains(err.Error(), "after 3 attempts") {
		t.Errorf("error message missing attempt count: %v", err)
	}
}

func TestRetryHonorsCancellation(t *testing.T) {
	svc := NewService().WithRetryConfig(RetryConfig{
		MaxRetries:    5,
		BaseDelay:     time.Hour, // would hang without cancellation
		BackoffFactor: 2,
	})

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- svc.Retry(ctx, "navigate", func() error {
			calls++
			return errors.New("timeout waiting for page")
		})
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Retry did not return after cancellation")
	}
	if calls != 1 {
		t.Errorf("operation ran %d times before cancel, want 1", calls)
	}
}

func TestRetryCancelledBeforeStart(t *testing.T) {
	svc := NewService().WithRetryConfig(fastRetry(2))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := svc.Retry(ctx, "navigate", func() error {
		calls++
		return nil
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if calls != 0 {
		t.Errorf("operation ran despite cancelled context")
	}
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	svc := NewService().WithRetryConfig(fastRetry(0))
	svc.ConfigureBreaker("flush", BreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour})

	fail := func() error { return errors.New("disk full") }

	for i := 0; i < 2; i++ {
		if err := svc.Retry(context.Background(), "flush", fail); err == nil {
			t.Fatalf("call %d unexpectedly succeeded", i)
		}
	}

	calls := 0
	err := svc.Retry(context.Background(), "flush", func() error {
		calls++
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
	if calls != 0 {
		t.Error("operation ran while breaker was open")
	}

	states := svc.BreakerStates()
	if states["flush"] != CircuitOpen {
		t.Errorf("breaker state = %v, want open", states["flush"])
	}
}

func TestBreakerRecoversAfterTimeout(t *testing.T) {
	svc := NewService().WithRetryConfig(fastRetry(0))
	svc.ConfigureBreaker("flush", BreakerConfig{MaxFailures: 1, ResetTimeout: 20 * time.Millisecond})

	if err := svc.Retry(context.Background(), "flush", func() error {
		return errors.New("disk full")
	}); err == nil {
		t.Fatal("expected failure to trip the breaker")
	}
	if err := svc.Retry(context.Background(), "flush", func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("breaker did not open: %v", err)
	}

	time.Sleep(30 * time.Millisecond)

	// The half-open probe runs and its success closes the breaker.
	calls := 0
	if err := svc.Retry(context.Background(), "flush", func() error {
		calls++
		return nil
	}); err != nil {
		t.Fatalf("probe call failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("probe ran %d times, want 1", calls)
	}
	if svc.BreakerStates()["flush"] != CircuitClosed {
		t.Error("breaker did not close after successful probe")
	}
}

func TestBreakerReopensOnFailedProbe(t *testing.T) {
	svc := NewService().WithRetryConfig(fastRetry(0))
	svc.ConfigureBreaker("flush", BreakerConfig{MaxFailures: 1, ResetTimeout: 20 * time.Millisecond})

	fail := func() error { return errors.New("disk full") }
	if err := svc.Retry(context.Background(), "flush", fail); err == nil {
		t.Fatal("expected failure to trip the breaker")
	}

	time.Sleep(30 * time.Millisecond)

	if err := svc.Retry(context.Background(), "flush", fail); err == nil {
		t.Fatal("expected probe to fail")
	}
	if svc.BreakerStates()["flush"] != CircuitOpen {
		t.Error("failed probe did not reopen the breaker")
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"timeout", errors.New("navigation timeout exceeded"), true},
		{"chromedp net error", errors.New("page load error net::ERR_NAME_NOT_RESOLVED"), true},
		{"refused", errors.New("dial tcp: connection refused"), true},
		{"http 503", errors.New("unexpected status 503"), true},
		{"http 429", errors.New("server said 429 Too Many Requests"), true},
		{"cancelled", context.Canceled, false},
		{"deadline", fmt.Errorf("wrapped: %w", context.DeadlineExceeded), false},
		{"permanent", errors.New("unknown site profile"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := retryable(tt.err); got != tt.want {
				t.Errorf("retryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestGetExitCode(t *testing.T) {
	svc := NewService()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"config", fmt.Errorf("loading config: yaml: line 3: found tab"), ExitConfig},
		{"navigation", fmt.Errorf("navigation failed: https://example.com: timeout"), ExitNavigation},
		{"no cards", errors.New("no listing cards found"), ExitExtraction},
		{"stale", errors.New("stale card handle"), ExitExtraction},
		{"output", fmt.Errorf("output write failed: disk full"), ExitOutput},
		{"validation", errors.New("record validation failed: title too short"), ExitValidation},
		{"rate limit", errors.New("portal returned 429"), ExitRateLimit},
		{"cancelled", fmt.Errorf("run aborted: %w", context.Canceled), ExitCancelled},
		{"other", errors.New("something odd happened"), ExitGeneral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := svc.GetExitCode(tt.err); got != tt.want {
				t.Errorf("GetExitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestFriendlyMessageCategories(t *testing.T) {
	svc := NewService()

	tests := []struct {
		name      string
		err       error
		wantTitle string
	}{
		{"timeout", errors.New("navigation timeout"), "Connection Timeout"},
		{"dns", errors.New("lookup portal: no such host"), "Domain Not Found"},
		{"refused", errors.New("net::ERR_CONNECTION_REFUSED"), "Connection Failed"},
		{"no cards", errors.New("no listing cards found"), "No Listings Found"},
		{"yaml", errors.New("yaml: unmarshal error"), "Configuration Error"},
		{"rate", errors.New("429 from portal"), "Rate Limit Hit"},
		{"output", errors.New("output write failed"), "Output Error"},
		{"unknown", errors.New("wat"), "Unexpected Error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			title, message, suggestions := svc.FriendlyMessage(tt.err)
			if title != tt.wantTitle {
				t.Errorf("title = %q, want %q", title, tt.wantTitle)
			}
			if message == "" {
				t.Error("message is empty")
			}
			if len(suggestions) == 0 {
				t.Error("no suggestions returned")
			}
		})
	}

	title, message, suggestions := svc.FriendlyMessage(nil)
	if title != "" || message != "" || suggestions != nil {
		t.Error("nil error should produce empty output")
	}
}

func TestFormatForCLI(t *testing.T) {
	err := errors.New("navigation timeout after 30s")

	plain := NewService().FormatForCLI(err)
	if !strings.Contains(plain, "Error: Connection Timeout") {
		t.Errorf("title missing: %q", plain)
	}
	if !strings.Contains(plain, "Suggestions:") {
		t.Errorf("suggestions missing: %q", plain)
	}
	if strings.Contains(plain, "Technical details") {
		t.Errorf("technical details shown without verbose: %q", plain)
	}

	verbose := NewService().WithVerbose(true).FormatForCLI(err)
	if !strings.Contains(verbose, "Technical details: navigation timeout after 30s") {
		t.Errorf("technical details missing in verbose mode: %q", verbose)
	}
}
