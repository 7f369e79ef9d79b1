package gate

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakeClock drives the gate without real sleeping.
type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func newTestGate(prim Primitive, cfg Config) (*Gate, *fakeClock) {
	g := New(prim, cfg)
	clk := &fakeClock{now: time.Unix(1000, 0)}
	g.now = clk.Now
	g.sleep = clk.Sleep
	return g, clk
}

func TestAcquireFrame_Throttles(t *testing.T) {
	calls := 0
	g, clk := newTestGate(func(context.Context) ([]byte, error) {
		calls++
		return []byte{1}, nil
	}, Config{MinInterval: time.Second})

	if _, err := g.AcquireFrame(context.Background()); err != nil {
		t.Fatal(err)
	}
	// First call: lastShot was zero, no throttle sleep expected.
	if len(clk.sleeps) != 0 {
		t.Fatalf("first frame slept %v, want no sleep", clk.sleeps)
	}

	if _, err := g.AcquireFrame(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(clk.sleeps) != 1 || clk.sleeps[0] != time.Second {
		t.Fatalf("second frame sleeps = %v, want [1s]", clk.sleeps)
	}
	if calls != 2 {
		t.Fatalf("primitive calls = %d, want 2", calls)
	}
}

func TestAcquireFrame_RetriesWithBackoff(t *testing.T) {
	calls := 0
	g, clk := newTestGate(func(context.Context) ([]byte, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("quota exceeded")
		}
		return []byte{7}, nil
	}, Config{MinInterval: 50 * time.Millisecond, MaxRetries: 3, BaseBackoff: 100 * time.Millisecond})

	data, err := g.AcquireFrame(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 1 || data[0] != 7 {
		t.Fatalf("unexpected frame %v", data)
	}
	// Two failures: backoff sleeps of 100ms then 200ms.
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}
	if len(clk.sleeps) != len(want) {
		t.Fatalf("sleeps = %v, want %v", clk.sleeps, want)
	}
	for i := range want {
		if clk.sleeps[i] != want[i] {
			t.Fatalf("sleep[%d] = %v, want %v", i, clk.sleeps[i], want[i])
		}
	}
}

func TestAcquireFrame_RetrySpacingHonorsMinInterval(t *testing.T) {
	var callAt []time.Time
	var clk *fakeClock
	g, c := newTestGate(func(context.Context) ([]byte, error) {
		callAt = append(callAt, clk.now)
		if len(callAt) == 1 {
			return nil, errors.New("quota exceeded")
		}
		return []byte{1}, nil
	}, Config{MinInterval: 600 * time.Millisecond, MaxRetries: 3, BaseBackoff: 250 * time.Millisecond})
	clk = c

	if _, err := g.AcquireFrame(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(callAt) != 2 {
		t.Fatalf("primitive calls = %d, want 2", len(callAt))
	}
	// The backoff alone is 250ms; the gap between underlying calls must
	// still be the full minimum interval.
	if gap := callAt[1].Sub(callAt[0]); gap < 600*time.Millisecond {
		t.Fatalf("underlying calls %v apart, want >= 600ms", gap)
	}
}

func TestAcquireFrame_ExhaustedRetries(t *testing.T) {
	cause := errors.New("tab went away")
	g, _ := newTestGate(func(context.Context) ([]byte, error) {
		return nil, cause
	}, Config{MaxRetries: 3})

	_, err := g.AcquireFrame(context.Background())
	var ce *CaptureError
	if !errors.As(err, &ce) {
		t.Fatalf("error = %v, want *CaptureError", err)
	}
	if ce.Attempts != 3 {
		t.Fatalf("Attempts = %d, want 3", ce.Attempts)
	}
	if !errors.Is(err, cause) {
		t.Fatal("CaptureError does not wrap the primitive's last error")
	}
}

func TestAcquireFrame_ContextCancelled(t *testing.T) {
	g := New(func(context.Context) ([]byte, error) {
		return nil, errors.New("nope")
	}, Config{MinInterval: time.Hour})
	g.lastShot = time.Now()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := g.AcquireFrame(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}
