package converter

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBreakerBackoff(t *testing.T) {
	now := time.Unix(1000, 0)
	b := newBreaker(2, 30*time.Second, 100*time.Second)
	b.now = func() time.Time { return now }

	b.failure()
	if _, ok := b.allow(); !ok {
		t.Fatal("opened below threshold")
	}
	b.failure()
	if wait, ok := b.allow(); ok || wait != 30*time.Second {
		t.Fatalf("after threshold: wait=%v ok=%v", wait, ok)
	}

	now = now.Add(31 * time.Second)
	if _, ok := b.allow(); !ok {
		t.Fatal("trial call not allowed after cooldown")
	}
	b.failure()
	if wait, _ := b.allow(); wait != 60*time.Second {
		t.Fatalf("second cooldown = %v", wait)
	}
	b.failure()
	b.failure()
	if wait, _ := b.allow(); wait != 100*time.Second {
		t.Fatalf("capped cooldown = %v", wait)
	}

	b.success()
	if _, ok := b.allow(); !ok {
		t.Fatal("success must close the breaker")
	}
}

func TestConvertFailsFastWhileHostCoolsDown(t *testing.T) {
	bin, callLog := fakeOffice(t, `true`)
	lo := NewLibreOffice(Options{Binary: bin, CacheDir: t.TempDir(), BreakerThreshold: 1, BreakerCooldown: time.Minute})

	if _, err := lo.Convert(context.Background(), writeInput(t, "a.pptx", "a")); err == nil {
		t.Fatal("expected missing output error")
	}
	_, err := lo.Convert(context.Background(), writeInput(t, "b.pptx", "b"))
	if !errors.Is(err, ErrHostUnavailable) {
		t.Fatalf("expected host unavailable while cooling down, got %v", err)
	}
	if n := calls(t, callLog); n != 1 {
		t.Fatalf("host invoked %d times, want 1", n)
	}
}
