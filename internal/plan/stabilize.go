package plan

import (
	"context"
	"log/slog"
	"time"
)

// Pager is the minimal page access stabilization needs.
type Pager interface {
	// Metrics returns the live total scroll height and viewport height.
	Metrics(ctx context.Context) (total, viewport int, err error)
	// ScrollTo moves the viewport to the given offset.
	ScrollTo(ctx context.Context, y int) error
}

// StabilizeConfig tunes the pre-plan stabilization walk.
type StabilizeConfig struct {
	// Checks is how many consecutive unchanged total-height reads count
	// as settled.
	Checks int
	// Step delay between reads at the same position.
	Interval time.Duration
	// Timeout bounds the whole walk; on expiry the last measured height
	// is used as-is.
	Timeout time.Duration

	Logger *slog.Logger
}

func (c *StabilizeConfig) defaults() {
	if c.Checks <= 0 {
		c.Checks = 3
	}
	if c.Interval <= 0 {
		c.Interval = 200 * time.Millisecond
	}
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Stabilize walks the page top to bottom in viewport-sized steps, waiting at
// each step until the total height stops changing, then scrolls back to the
// top and returns the settled geometry. This defends against lazy-loaded
// content appending after a naive single measurement.
func Stabilize(ctx context.Context, pg Pager, cfg StabilizeConfig) (total, viewport int, err error) {
	cfg.defaults()

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	total, viewport, err = pg.Metrics(ctx)
	if err != nil {
		return 0, 0, err
	}

	pos := 0
	for {
		if err := pg.ScrollTo(ctx, pos); err != nil {
			break // timeout or cancellation: use what we have
		}

		if _, timedOut := settleHeight(ctx, pg, &total, cfg); timedOut {
			cfg.Logger.Debug("plan: stabilization timed out", "total", total)
			break
		}

		if pos >= total-viewport {
			break
		}
		pos += viewport
		if pos > total-viewport {
			pos = total - viewport
		}
	}

	// Always leave the page back at the top for the capture pass.
	if err := pg.ScrollTo(context.WithoutCancel(ctx), 0); err != nil {
		return 0, 0, err
	}
	return total, viewport, nil
}

// settleHeight reads the live height at cfg.Interval until it has been
// unchanged cfg.Checks times in a row, updating *total as the page grows.
// Returns timedOut=true when the walk's deadline expired.
func settleHeight(ctx context.Context, pg Pager, total *int, cfg StabilizeConfig) (settled, timedOut bool) {
	unchanged := 0
	for unchanged < cfg.Checks {
		t := time.NewTimer(cfg.Interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return false, true
		case <-t.C:
		}

		newTotal, _, err := pg.Metrics(ctx)
		if err != nil {
			return false, true
		}
		if newTotal == *total {
			unchanged++
		} else {
			cfg.Logger.Debug("plan: page grew during stabilization",
				"from", *total, "to", newTotal)
			*total = newTotal
			unchanged = 0
		}
	}
	return true, false
}
