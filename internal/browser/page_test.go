package browser

import (
	"context"
	"testing"
	"time"
)

func TestPollUntil_ImmediateSuccess(t *testing.T) {
	calls := 0
	ok, err := pollUntil(context.Background(), time.Millisecond, time.Second, func() bool {
		calls++
		return true
	})
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected success")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestPollUntil_SucceedsAfterRetries(t *testing.T) {
	calls := 0
	ok, err := pollUntil(context.Background(), time.Millisecond, time.Second, func() bool {
		calls++
		return calls >= 3
	})
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected success")
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestPollUntil_Timeout(t *testing.T) {
	ok, err := pollUntil(context.Background(), time.Millisecond, 10*time.Millisecond, func() bool {
		return false
	})
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected timeout")
	}
}

func TestPollUntil_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ok, err := pollUntil(ctx, time.Millisecond, time.Second, func() bool {
		return false
	})
	if err == nil {
		t.Fatal("expected context error")
	}
	if ok {
		t.Fatal("cancelled poll must not report success")
	}
}

func TestSettle_WaitsDelay(t *testing.T) {
	p := &Page{settleDelay: 20 * time.Millisecond}

	start := time.Now()
	if err := p.settle(context.Background()); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("settle returned after %v, want at least 20ms", elapsed)
	}
}

func TestSettle_ContextCancelled(t *testing.T) {
	p := &Page{settleDelay: time.Hour}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := p.settle(ctx); err == nil {
		t.Fatal("expected context error from cancelled settle")
	}
}
