// Package gate wraps the viewport capture primitive with minimum-interval
// throttling and retry with exponential backoff. Chrome quota-limits
// screenshot calls per unit time; exceeding the quota fails the call, so the
// gate suspends callers until the interval has elapsed.
package gate

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Primitive rasterizes the currently visible viewport.
type Primitive func(ctx context.Context) ([]byte, error)

// CaptureError is returned after the primitive exhausted all retries.
// It is fatal to the capture session.
type CaptureError struct {
	Attempts int
	Last     error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("gate: capture failed after %d attempts: %v", e.Attempts, e.Last)
}

func (e *CaptureError) Unwrap() error { return e.Last }

// Config configures a Gate.
type Config struct {
	// MinInterval is the minimum wall-clock gap between primitive calls.
	MinInterval time.Duration
	// MaxRetries bounds retries of a failing call.
	MaxRetries int
	// BaseBackoff is the first retry delay, doubled per attempt.
	BaseBackoff time.Duration

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.MinInterval <= 0 {
		c.MinInterval = 600 * time.Millisecond
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = 250 * time.Millisecond
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Gate throttles and retries an underlying capture primitive. The last-shot
// timestamp is instance state, so independent sessions never contend over a
// shared global.
type Gate struct {
	cfg      Config
	prim     Primitive
	lastShot time.Time

	// now and sleep are injectable for tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Gate around the given primitive.
func New(prim Primitive, cfg Config) *Gate {
	cfg.defaults()
	return &Gate{
		cfg:   cfg,
		prim:  prim,
		now:   time.Now,
		sleep: sleepCtx,
	}
}

// AcquireFrame waits out the minimum interval, then calls the primitive,
// retrying with exponential backoff. The final failure is surfaced as a
// *CaptureError carrying the primitive's last error.
func (g *Gate) AcquireFrame(ctx context.Context) ([]byte, error) {
	if wait := g.cfg.MinInterval - g.now().Sub(g.lastShot); wait > 0 {
		if err := g.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}

	var last error
	backoff := g.cfg.BaseBackoff
	for attempt := 1; attempt <= g.cfg.MaxRetries; attempt++ {
		g.lastShot = g.now()
		data, err := g.prim(ctx)
		if err == nil {
			return data, nil
		}
		last = err
		g.cfg.Logger.Warn("gate: capture attempt failed",
			"attempt", attempt, "error", err)

		if attempt == g.cfg.MaxRetries {
			break
		}
		// The minimum interval binds between underlying calls, not just on
		// entry. A short backoff never shortens the gap below it.
		wait := backoff
		if gap := g.cfg.MinInterval - g.now().Sub(g.lastShot); gap > wait {
			wait = gap
		}
		if err := g.sleep(ctx, wait); err != nil {
			return nil, err
		}
		backoff *= 2
	}

	return nil, &CaptureError{Attempts: g.cfg.MaxRetries, Last: last}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
