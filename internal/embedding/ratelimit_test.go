package embedding

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLimiterAdmitAndRelease(t *testing.T) {
	l := NewLimiter(100, 2)
	ctx := context.Background()

	r1, err := l.Admit(ctx)
	if err != nil {
		t.Fatalf("Admit() error: %v", err)
	}
	r2, err := l.Admit(ctx)
	if err != nil {
		t.Fatalf("Admit() error: %v", err)
	}
	if l.InFlight() != 2 {
		t.Errorf("InFlight() = %d, want 2", l.InFlight())
	}

	// Concurrency ceiling reached.
	if _, err := l.Admit(ctx); err == nil {
		t.Fatal("Admit() succeeded past the concurrency ceiling")
	}

	r1()
	if _, err := l.Admit(ctx); err != nil {
		t.Errorf("Admit() after release error: %v", err)
	}

	// Double release must not corrupt the counter.
	r2()
	r2()
	if l.InFlight() < 0 || l.InFlight() > 2 {
		t.Errorf("InFlight() = %d after double release", l.InFlight())
	}
}

func TestLimiterDeniesOverRPM(t *testing.T) {
	rpm := 10
	l := NewLimiter(rpm, rpm+1)
	ctx := context.Background()

	denied := 0
	for i := 0; i < rpm+1; i++ {
		release, err := l.Admit(ctx)
		if err != nil {
			var rle *RateLimitError
			if !errors.As(err, &rle) {
				t.Fatalf("denial error type %T, want *RateLimitError", err)
			}
			if rle.RetryAfter <= 0 {
				t.Errorf("RetryAfter = %v, want > 0", rle.RetryAfter)
			}
			denied++
			continue
		}
		release()
	}
	if denied < 1 {
		t.Errorf("%d admissions at rpm=%d produced no denial", rpm+1, rpm)
	}
}

func TestLimiterWindowSlides(t *testing.T) {
	l := NewLimiter(2, 10)
	base := time.Now()
	now := base
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		release, err := l.Admit(ctx)
		if err != nil {
			t.Fatalf("Admit() %d error: %v", i, err)
		}
		release()
	}
	if _, err := l.Admit(ctx); err == nil {
		t.Fatal("Admit() succeeded with a full window")
	}

	// The window slides past the earlier admissions.
	now = base.Add(61 * time.Second)
	release, err := l.Admit(ctx)
	if err != nil {
		t.Fatalf("Admit() after window slide error: %v", err)
	}
	release()
}

func TestLimiterRetryAfterHint(t *testing.T) {
	l := NewLimiter(1, 10)
	base := time.Now()
	now := base
	l.now = func() time.Time { return now }
	ctx := context.Background()

	release, err := l.Admit(ctx)
	if err != nil {
		t.Fatalf("Admit() error: %v", err)
	}
	release()

	now = base.Add(20 * time.Second)
	_, err = l.Admit(ctx)
	var rle *RateLimitError
	if !errors.As(err, &rle) {
		t.Fatalf("Admit() error = %v, want *RateLimitError", err)
	}
	// Oldest admission expires 40s from now.
	if rle.RetryAfter < 39*time.Second || rle.RetryAfter > 41*time.Second {
		t.Errorf("RetryAfter = %v, want about 40s", rle.RetryAfter)
	}
}

func TestLimiterCanceledContext(t *testing.T) {
	l := NewLimiter(10, 10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := l.Admit(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Admit() error = %v, want context.Canceled", err)
	}
}
