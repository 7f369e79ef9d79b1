// Package loop drives tile acquisition: for each planned scroll position it
// settles the page, re-asserts suppression, invokes the capture gate,
// rejects duplicate frames, and collects the accepted tile sequence.
package loop

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/longshot/internal/plan"
	"github.com/hazyhaar/longshot/internal/tile"
)

// NoContentError means the page produced nothing to capture: no scrollable
// body, or zero accepted tiles. Fatal to the session.
type NoContentError struct {
	Reason string
}

func (e *NoContentError) Error() string {
	return fmt.Sprintf("loop: no content: %s", e.Reason)
}

// Driver is the page access the loop needs.
type Driver interface {
	// Metrics returns the live total scroll height and viewport height.
	Metrics(ctx context.Context) (total, viewport int, err error)
	// ScrollTo moves the viewport to the given offset.
	ScrollTo(ctx context.Context, y int) error
	// WaitQuiescent resolves once no DOM mutation has been observed for
	// window, or after timeout on perpetually busy pages.
	WaitQuiescent(ctx context.Context, window, timeout time.Duration) error
}

// Preparer hooks page-wide preparation and teardown into the loop.
type Preparer interface {
	// Prepare applies the page-wide transform (zoom, scrollbar hiding)
	// before any capture.
	Prepare(ctx context.Context) error
	// AfterFirstTile runs disturbance suppression. Called once, after the
	// first tile was captured with chrome still visible.
	AfterFirstTile(ctx context.Context) error
	// BeforeTile re-asserts overrides page scripts may have undone.
	BeforeTile(ctx context.Context, index int)
	// Restore undoes everything Prepare and AfterFirstTile touched.
	// Must never fail the session; called on every exit path.
	Restore(ctx context.Context)
}

// FrameSource produces one viewport raster per call. Implemented by the
// capture gate.
type FrameSource interface {
	AcquireFrame(ctx context.Context) ([]byte, error)
}

// Config tunes the loop.
type Config struct {
	// SettleDelay is the fixed wait after each scroll.
	SettleDelay time.Duration
	// QuiesceWindow and QuiesceTimeout bound the DOM-mutation wait.
	QuiesceWindow  time.Duration
	QuiesceTimeout time.Duration
	// MaxTiles caps the tile count to guarantee termination.
	MaxTiles int
	// Comparer judges duplicate frames.
	Comparer Comparer

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.SettleDelay <= 0 {
		c.SettleDelay = 350 * time.Millisecond
	}
	if c.QuiesceWindow <= 0 {
		c.QuiesceWindow = 200 * time.Millisecond
	}
	if c.QuiesceTimeout <= 0 {
		c.QuiesceTimeout = 2 * time.Second
	}
	if c.MaxTiles <= 0 {
		c.MaxTiles = 80
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Loop is the orchestrating state machine for one capture session.
type Loop struct {
	cfg    Config
	driver Driver
	prep   Preparer
	source FrameSource

	state State
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Loop. All collaborators are required.
func New(driver Driver, prep Preparer, source FrameSource, cfg Config) *Loop {
	cfg.defaults()
	return &Loop{
		cfg:    cfg,
		driver: driver,
		prep:   prep,
		source: source,
		state:  StateIdle,
		sleep:  sleepCtx,
	}
}

// State returns the loop's current state.
func (l *Loop) State() State { return l.state }

func (l *Loop) to(s State) {
	l.cfg.Logger.Debug("loop: state", "from", l.state.String(), "to", s.String())
	l.state = s
}

// Run executes the full acquisition sequence and returns the accepted tiles
// in order. Page state mutated along the way is restored on every exit path.
func (l *Loop) Run(ctx context.Context) (tiles []tile.Tile, err error) {
	l.to(StatePreparing)

	defer func() {
		l.to(StateRestoring)
		// Scroll first, then page-wide transforms and suppression
		// records. Each step independently guarded.
		restoreCtx := context.WithoutCancel(ctx)
		if serr := l.driver.ScrollTo(restoreCtx, 0); serr != nil {
			l.cfg.Logger.Warn("loop: scroll restore failed", "error", serr)
		}
		l.prep.Restore(restoreCtx)
		if err != nil {
			l.to(StateFailed)
		} else {
			l.to(StateComplete)
		}
	}()

	if err := l.prep.Prepare(ctx); err != nil {
		return nil, fmt.Errorf("loop: prepare: %w", err)
	}

	total, viewport, err := l.driver.Metrics(ctx)
	if err != nil {
		return nil, fmt.Errorf("loop: metrics: %w", err)
	}
	if total <= 0 || viewport <= 0 {
		return nil, &NoContentError{Reason: fmt.Sprintf("page geometry %dx%d", total, viewport)}
	}

	pln, err := plan.Build(total, viewport)
	if err != nil {
		return nil, fmt.Errorf("loop: %w", err)
	}
	l.cfg.Logger.Info("loop: planned", "positions", len(pln.Positions),
		"total", total, "viewport", viewport)

	nudged := false
	i := 0
	for i < len(pln.Positions) && len(tiles) < l.cfg.MaxTiles {
		pos := pln.Positions[i]
		l.to(StateCapturing)

		target := pos
		if nudged {
			// 1px nudge breaks exact pixel-grid staleness on pages
			// whose scroll handler rounded our previous position.
			target = pos + 1
		}
		if err := l.driver.ScrollTo(ctx, target); err != nil {
			return tiles, fmt.Errorf("loop: scroll to %d: %w", target, err)
		}

		l.to(StateStabilizing)
		if err := l.sleep(ctx, l.cfg.SettleDelay); err != nil {
			return tiles, err
		}
		if qerr := l.driver.WaitQuiescent(ctx, l.cfg.QuiesceWindow, l.cfg.QuiesceTimeout); qerr != nil {
			l.cfg.Logger.Debug("loop: quiescence wait ended early", "error", qerr)
		}

		if len(tiles) > 0 {
			l.prep.BeforeTile(ctx, i)
		}

		data, err := l.source.AcquireFrame(ctx)
		if err != nil {
			return tiles, err
		}
		tl, err := tile.Decode(data, pos, len(tiles))
		if err != nil {
			return tiles, err
		}

		l.to(StateComparing)
		if len(tiles) > 0 && l.cfg.Comparer.Duplicate(tiles[len(tiles)-1].Img, tl.Img) {
			l.to(StateRejected)
			if !nudged {
				nudged = true
				continue // retry the same position, nudged
			}
			nudged = false
			if i == len(pln.Positions)-1 {
				// Content stopped changing at the bottom: done.
				l.cfg.Logger.Debug("loop: duplicate at final position, terminating")
				break
			}
			i++
			continue
		}
		nudged = false

		l.to(StateAccepted)
		tiles = append(tiles, tl)

		if len(tiles) == 1 {
			if err := l.prep.AfterFirstTile(ctx); err != nil {
				return tiles, fmt.Errorf("loop: suppress: %w", err)
			}
		}

		// Reflow check: lazy-loaded content may have grown the page.
		if live, _, merr := l.driver.Metrics(ctx); merr == nil && live != pln.Total {
			old := len(pln.Positions)
			pln = pln.Adjust(i+1, live)
			l.cfg.Logger.Debug("loop: reflow", "total", live,
				"positions", len(pln.Positions), "was", old)
		}
		i++
	}

	if len(tiles) == 0 {
		return nil, &NoContentError{Reason: "zero tiles accepted"}
	}
	return tiles, nil
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
