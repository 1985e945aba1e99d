package ratelimit

import (
	"io"
	"log/slog"
	"testing"
	"time"
)

func newTestLimiter(limit int, period time.Duration) (*Limiter, func(time.Duration)) {
	l := New(limit, period, slog.New(slog.NewTextHandler(io.Discard, nil)))
	current := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return current }
	advance := func(d time.Duration) { current = current.Add(d) }
	return l, advance
}

func TestLimiter_Allow(t *testing.T) {
	t.Run("Admits Up To Limit", func(t *testing.T) {
		l, _ := newTestLimiter(3, time.Minute)

		for i := 0; i < 3; i++ {
			if d := l.Allow("10.0.0.1"); !d.Allowed {
				t.Fatalf("request %d should be admitted", i+1)
			}
		}
		d := l.Allow("10.0.0.1")
		if d.Allowed {
			t.Fatal("fourth request should be rejected")
		}
		if d.RetryAfter <= 0 || d.RetryAfter > time.Minute {
			t.Errorf("unexpected retry-after %s", d.RetryAfter)
		}
	})

	t.Run("Subjects Are Independent", func(t *testing.T) {
		l, _ := newTestLimiter(1, time.Minute)

		if d := l.Allow("tenant-a"); !d.Allowed {
			t.Fatal("first tenant-a request should be admitted")
		}
		if d := l.Allow("tenant-a"); d.Allowed {
			t.Fatal("second tenant-a request should be rejected")
		}
		if d := l.Allow("tenant-b"); !d.Allowed {
			t.Fatal("tenant-b must not be affected by tenant-a's window")
		}
	})

	t.Run("Window Expiry Resets Count", func(t *testing.T) {
		l, advance := newTestLimiter(1, time.Minute)

		if d := l.Allow("s"); !d.Allowed {
			t.Fatal("first request should be admitted")
		}
		if d := l.Allow("s"); d.Allowed {
			t.Fatal("second request should be rejected")
		}

		advance(61 * time.Second)
		d := l.Allow("s")
		if !d.Allowed {
			t.Fatal("request after window expiry should open a fresh window")
		}
		if d.Remaining != 0 {
			t.Errorf("fresh window of limit 1 should have 0 remaining, got %d", d.Remaining)
		}
	})

	t.Run("Remaining Counts Down", func(t *testing.T) {
		l, _ := newTestLimiter(5, time.Minute)

		for want := 4; want >= 0; want-- {
			d := l.Allow("s")
			if !d.Allowed {
				t.Fatal("unexpected rejection")
			}
			if d.Remaining != want {
				t.Errorf("expected remaining %d, got %d", want, d.Remaining)
			}
		}
	})
}

func TestLimiter_Sweep(t *testing.T) {
	l, advance := newTestLimiter(10, time.Minute)

	l.Allow("old")
	advance(20 * time.Minute)
	l.Allow("fresh")

	removed := l.Sweep(10 * time.Minute)
	if removed != 1 {
		t.Errorf("expected 1 expired window removed, got %d", removed)
	}

	stats := l.Snapshot()
	if len(stats) != 1 || stats[0].Subject != "fresh" {
		t.Errorf("unexpected snapshot after sweep: %+v", stats)
	}
}

func TestLimiter_Snapshot(t *testing.T) {
	l, _ := newTestLimiter(2, time.Minute)

	l.Allow("a")
	l.Allow("a")
	l.Allow("a")

	stats := l.Snapshot()
	if len(stats) != 1 {
		t.Fatalf("expected one window, got %d", len(stats))
	}
	if stats[0].Count != 3 || stats[0].Remaining != 0 {
		t.Errorf("unexpected window stat: %+v", stats[0])
	}
}
