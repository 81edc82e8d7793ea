package circuit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func testConfig() Config {
	return Config{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		Timeout:          50 * time.Millisecond,
		RequestTimeout:   50 * time.Millisecond,
	}
}

func TestBreaker_ClosedStatePassesCalls(t *testing.T) {
	b := NewBreaker(testConfig())

	if b.State() != Closed {
		t.Fatalf("State() = %v, want Closed", b.State())
	}
	if err := b.Call(context.Background(), func(ctx context.Context) error { return nil }); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if b.State() != Closed {
		t.Errorf("State() = %v, want Closed after success", b.State())
	}
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	b := NewBreaker(testConfig())

	for i := 0; i < 3; i++ {
		_ = b.Call(context.Background(), func(ctx context.Context) error { return errors.New("fail") })
	}
	if b.State() != Open {
		t.Fatalf("State() = %v, want Open after 3 consecutive failures", b.State())
	}

	if err := b.Call(context.Background(), func(ctx context.Context) error { return nil }); err != ErrOpen {
		t.Errorf("Call() = %v, want ErrOpen", err)
	}
}

func TestBreaker_HalfOpenRecoversToClosed(t *testing.T) {
	cfg := testConfig()
	cfg.FailureThreshold = 1
	cfg.Timeout = 20 * time.Millisecond
	b := NewBreaker(cfg)

	_ = b.Call(context.Background(), func(ctx context.Context) error { return errors.New("fail") })
	if b.State() != Open {
		t.Fatalf("State() = %v, want Open", b.State())
	}

	time.Sleep(30 * time.Millisecond)

	if err := b.Call(context.Background(), func(ctx context.Context) error { return nil }); err != nil {
		t.Errorf("first trial call should be admitted: %v", err)
	}
	if b.State() != HalfOpen {
		t.Fatalf("State() = %v, want HalfOpen after one trial success", b.State())
	}

	if err := b.Call(context.Background(), func(ctx context.Context) error { return nil }); err != nil {
		t.Errorf("second trial call should be admitted: %v", err)
	}
	if b.State() != Closed {
		t.Errorf("State() = %v, want Closed after success threshold met", b.State())
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	cfg := testConfig()
	cfg.FailureThreshold = 1
	cfg.Timeout = 20 * time.Millisecond
	b := NewBreaker(cfg)

	_ = b.Call(context.Background(), func(ctx context.Context) error { return errors.New("fail") })
	time.Sleep(30 * time.Millisecond)

	if err := b.Call(context.Background(), func(ctx context.Context) error { return errors.New("fail again") }); err == nil {
		t.Error("expected the trial call's error to propagate")
	}
	if b.State() != Open {
		t.Errorf("State() = %v, want Open after half-open trial fails", b.State())
	}
}

func TestBreaker_RequestTimeoutCountsAsFailure(t *testing.T) {
	cfg := testConfig()
	cfg.RequestTimeout = 10 * time.Millisecond
	b := NewBreaker(cfg)

	err := b.Call(context.Background(), func(ctx context.Context) error {
		select {
		case <-time.After(50 * time.Millisecond):
		case <-ctx.Done():
		}
		return nil
	})
	if err != ErrTimeout {
		t.Errorf("Call() = %v, want ErrTimeout", err)
	}
	if stats := b.Stats(); stats.TotalTimeouts != 1 {
		t.Errorf("TotalTimeouts = %d, want 1", stats.TotalTimeouts)
	}
}

func TestBreaker_StatsTracksSuccessRate(t *testing.T) {
	b := NewBreaker(testConfig())

	_ = b.Call(context.Background(), func(ctx context.Context) error { return nil })
	_ = b.Call(context.Background(), func(ctx context.Context) error { return errors.New("fail") })
	_ = b.Call(context.Background(), func(ctx context.Context) error { return nil })

	stats := b.Stats()
	if stats.TotalRequests != 3 {
		t.Errorf("TotalRequests = %d, want 3", stats.TotalRequests)
	}
	if stats.TotalSuccesses != 2 || stats.TotalFailures != 1 {
		t.Errorf("successes=%d failures=%d, want 2/1", stats.TotalSuccesses, stats.TotalFailures)
	}
	if got, want := stats.SuccessRate, 2.0/3.0; got < want-0.01 || got > want+0.01 {
		t.Errorf("SuccessRate = %.3f, want ~%.3f", got, want)
	}
	if stats.Healthy() {
		t.Error("expected !Healthy() with a 2/3 success rate under the 90% floor")
	}
}

func TestBreaker_Reset(t *testing.T) {
	cfg := testConfig()
	cfg.FailureThreshold = 2
	b := NewBreaker(cfg)

	_ = b.Call(context.Background(), func(ctx context.Context) error { return errors.New("fail") })
	_ = b.Call(context.Background(), func(ctx context.Context) error { return errors.New("fail") })
	if b.State() != Open {
		t.Fatalf("State() = %v, want Open", b.State())
	}

	b.Reset()

	if b.State() != Closed {
		t.Errorf("State() = %v, want Closed after Reset", b.State())
	}
	if stats := b.Stats(); stats.TotalRequests != 0 {
		t.Errorf("TotalRequests = %d, want 0 after Reset", stats.TotalRequests)
	}
}
