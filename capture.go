// Package longshot captures full-page screenshots of live web pages. It
// orchestrates Chrome headless as a disposable component: scroll the page
// tile by tile through the viewport, neutralize fixed chrome that would
// repeat on every tile, stitch the tiles into one composite, and encode it
// under a byte budget. The page is restored to its pre-capture state on
// every exit path.
package longshot

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hazyhaar/longshot/dbopen"
	"github.com/hazyhaar/longshot/idgen"
	"github.com/hazyhaar/longshot/internal/browser"
	"github.com/hazyhaar/longshot/internal/config"
	"github.com/hazyhaar/longshot/internal/fit"
	"github.com/hazyhaar/longshot/internal/gate"
	"github.com/hazyhaar/longshot/internal/loop"
	"github.com/hazyhaar/longshot/internal/plan"
	"github.com/hazyhaar/longshot/internal/stitch"
	"github.com/hazyhaar/longshot/internal/store"
	"github.com/hazyhaar/longshot/internal/suppress"
	"github.com/hazyhaar/longshot/internal/tile"
)

// Artifact is one encoded capture output. Re-exported from internal.
type Artifact = fit.Artifact

// Result is the outcome of one capture session.
type Result struct {
	SessionID string
	URL       string
	Origin    string
	TileCount int
	Artifacts []Artifact
	Warnings  []string
}

// WriteFiles writes every artifact to dir under its deterministic filename
// and returns the written paths.
func (r *Result) WriteFiles(dir string) ([]string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("longshot: mkdir %s: %w", dir, err)
	}
	var paths []string
	for _, a := range r.Artifacts {
		p := filepath.Join(dir, a.Filename)
		if err := os.WriteFile(p, a.Bytes, 0o644); err != nil {
			return paths, fmt.Errorf("longshot: write %s: %w", p, err)
		}
		paths = append(paths, p)
	}
	return paths, nil
}

// Capturer is the top-level orchestrator. It owns the browser and the
// artifact store and runs one capture session at a time.
type Capturer struct {
	cfg    *config.Config
	logger *slog.Logger
	mgr    *browser.Manager
	db     *sql.DB
	st     *store.Store

	// One session at a time: the capture gate's pacing state and the
	// browser tab are not safe to share across concurrent sessions.
	mu sync.Mutex

	newSessionID  idgen.Generator
	newArtifactID idgen.Generator
}

// New creates a Capturer from configuration. Call Start before Capture.
func New(cfg *config.Config, logger *slog.Logger) *Capturer {
	if cfg == nil {
		cfg = config.Default()
	}
	cfg.ApplyDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	return &Capturer{
		cfg:    cfg,
		logger: logger,
		mgr: browser.NewManager(browser.Config{
			RemoteURL: cfg.Browser.Remote,
			Stealth:   cfg.Browser.Stealth,
			Logger:    logger,
		}),
		newSessionID:  idgen.Prefixed("sess_", idgen.Default),
		newArtifactID: idgen.Prefixed("art_", idgen.Default),
	}
}

// Start launches the browser and opens the artifact store when configured.
func (c *Capturer) Start(ctx context.Context) error {
	if c.cfg.Store.Path != "" {
		db, err := dbopen.Open(c.cfg.Store.Path, dbopen.WithMkdirAll())
		if err != nil {
			return fmt.Errorf("longshot: open store: %w", err)
		}
		c.db = db
		c.st = store.New(db)
		if err := c.st.Init(); err != nil {
			return fmt.Errorf("longshot: init store: %w", err)
		}
	}

	if _, err := c.mgr.Start(); err != nil {
		return fmt.Errorf("longshot: start browser: %w", err)
	}
	c.logger.Info("longshot: started", "store", c.cfg.Store.Path != "")
	return nil
}

// Store returns the artifact store, or nil when persistence is disabled.
func (c *Capturer) Store() *store.Store { return c.st }

// Close shuts down the browser and the store.
func (c *Capturer) Close() error {
	err := c.mgr.Close()
	if c.db != nil {
		if derr := c.db.Close(); err == nil {
			err = derr
		}
	}
	return err
}

// Capture runs one full capture session against pageURL and returns the
// encoded artifacts. The session is persisted when a store is configured.
func (c *Capturer) Capture(ctx context.Context, pageURL string) (*Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	origin := originOf(pageURL)
	sessionID := c.newSessionID()
	log := c.logger.With("session", sessionID, "url", pageURL)
	log.Info("capture: session started")

	if c.st != nil {
		if err := c.st.CreateSession(ctx, sessionID, pageURL, origin); err != nil {
			return nil, err
		}
	}

	res, err := c.run(ctx, sessionID, pageURL, origin, log)

	if c.st != nil {
		finCtx := context.WithoutCancel(ctx)
		if err != nil {
			if ferr := c.st.FailSession(finCtx, sessionID, err.Error()); ferr != nil {
				log.Warn("capture: record failure", "error", ferr)
			}
		} else if perr := c.persist(finCtx, sessionID, res); perr != nil {
			log.Warn("capture: persist", "error", perr)
			res.Warnings = append(res.Warnings, "session not persisted: "+perr.Error())
		}
	}

	if err != nil {
		log.Error("capture: session failed", "error", err)
		return nil, err
	}
	log.Info("capture: session complete",
		"tiles", res.TileCount, "artifacts", len(res.Artifacts), "warnings", len(res.Warnings))
	return res, err
}

func (c *Capturer) run(ctx context.Context, sessionID, pageURL, origin string, log *slog.Logger) (*Result, error) {
	tab, err := browser.OpenTab(ctx, c.mgr, pageURL, c.cfg.Browser.NavTimeout)
	if err != nil {
		return nil, fmt.Errorf("longshot: open tab: %w", err)
	}
	defer tab.Close()

	prim := tab.CaptureViewport
	if c.cfg.Capture.Format == "jpeg" {
		q := 90
		if len(c.cfg.Output.JPEGQualities) > 0 {
			q = c.cfg.Output.JPEGQualities[0]
		}
		prim = func(ctx context.Context) ([]byte, error) {
			return tab.CaptureViewportJPEG(ctx, q)
		}
	}
	g := gate.New(prim, gate.Config{
		MinInterval: c.cfg.Capture.MinInterval,
		MaxRetries:  c.cfg.Capture.MaxRetries,
		BaseBackoff: c.cfg.Capture.RetryBackoff,
		Logger:      log,
	})

	sup := suppress.New(browser.NewDOM(tab), suppress.Options{
		MinSize:  c.cfg.Suppress.MinSize,
		EdgeBand: c.cfg.Suppress.EdgeBand,
	}, c.cfg.Suppress.ProbeScroll, log)

	prep := &preparer{
		pg:  tab,
		tr:  tab,
		sup: sup,
		stab: plan.StabilizeConfig{
			Checks:  c.cfg.Capture.StabilizeChecks,
			Timeout: c.cfg.Capture.StabilizeTimeout,
			Logger:  log,
		},
		ceiling:  c.cfg.Output.RasterCeiling,
		minScale: c.cfg.Capture.MinZoomScale,
		logger:   log,
	}

	lp := loop.New(tab, prep, g, loop.Config{
		SettleDelay:    c.cfg.Capture.SettleDelay,
		QuiesceWindow:  c.cfg.Capture.QuiesceWindow,
		QuiesceTimeout: c.cfg.Capture.QuiesceTimeout,
		MaxTiles:       c.cfg.Capture.MaxTiles,
		Comparer: loop.Comparer{
			PixelTol:   c.cfg.Capture.DupPixelTolerance,
			HammingMax: c.cfg.Capture.DupHammingMax,
		},
		Logger: log,
	})

	tiles, err := lp.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("longshot: capture: %w", err)
	}

	arts, warns, err := c.assemble(tiles, prep.band, origin)
	if err != nil {
		return nil, err
	}

	return &Result{
		SessionID: sessionID,
		URL:       pageURL,
		Origin:    origin,
		TileCount: len(tiles),
		Artifacts: arts,
		Warnings:  append(prep.warnings, warns...),
	}, nil
}

// assemble turns accepted tiles into encoded artifacts: stitch, then fit
// under the byte budget.
func (c *Capturer) assemble(tiles []tile.Tile, band int, origin string) ([]Artifact, []string, error) {
	parts, err := stitch.Compose(tiles, stitch.Options{
		DetectOverlap: true,
		MaxOverlap:    c.cfg.Output.MaxOverlap,
		Tolerance:     c.cfg.Output.OverlapTolerance,
		ChromeCrop:    band,
		Ceiling:       c.cfg.Output.RasterCeiling,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("longshot: stitch: %w", err)
	}

	arts, err := fit.Fit(parts, fit.Options{
		Budget:        c.cfg.Output.ByteBudget,
		JPEGQualities: c.cfg.Output.JPEGQualities,
		Origin:        origin,
		CapturedAt:    time.Now().UTC(),
		Logger:        c.logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("longshot: encode: %w", err)
	}

	var warns []string
	for _, a := range arts {
		if a.Oversized {
			warns = append(warns, fmt.Sprintf("%s exceeds the byte budget even after downscaling", a.Filename))
		}
	}
	return arts, warns, nil
}

func (c *Capturer) persist(ctx context.Context, sessionID string, res *Result) error {
	recs := make([]*store.Artifact, 0, len(res.Artifacts))
	for _, a := range res.Artifacts {
		recs = append(recs, &store.Artifact{
			ID:        c.newArtifactID(),
			SessionID: sessionID,
			Part:      a.Part,
			Filename:  a.Filename,
			MIME:      a.MIME,
			Width:     a.Width,
			Height:    a.Height,
			Oversized: a.Oversized,
			Bytes:     a.Bytes,
		})
	}
	if err := c.st.SaveArtifacts(ctx, recs); err != nil {
		return err
	}
	return c.st.CompleteSession(ctx, sessionID, res.TileCount)
}

// originOf extracts the host for naming and session records. Falls back to
// the raw URL when parsing fails.
func originOf(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil || u.Host == "" {
		return pageURL
	}
	if u.Path != "" && u.Path != "/" {
		return u.Host + u.Path
	}
	return u.Host
}

// pageTransform is the page-wide style capability the preparer drives.
type pageTransform interface {
	ApplyTransform(ctx context.Context, scale float64) error
	RestoreTransform(ctx context.Context) error
}

// preparer bundles page preparation for the capture loop: stabilization,
// the page-wide transform, and disturbance suppression. Suppression runs
// after the first tile so page chrome appears exactly once, in context.
type preparer struct {
	pg       plan.Pager
	tr       pageTransform
	sup      *suppress.Suppressor
	stab     plan.StabilizeConfig
	ceiling  int
	minScale float64
	logger   *slog.Logger

	records  []suppress.Record
	band     int
	warnings []string
}

func (p *preparer) Prepare(ctx context.Context) error {
	total, _, err := plan.Stabilize(ctx, p.pg, p.stab)
	if err != nil {
		return err
	}

	scale := plan.FitScale(total, p.ceiling, p.minScale)
	if scale < 1 {
		p.logger.Info("capture: zooming out to fit raster ceiling",
			"scale", scale, "height", total)
	}
	return p.tr.ApplyTransform(ctx, scale)
}

// AfterFirstTile runs suppression. Failure is a warning, not a session
// error: a capture with repeated chrome beats no capture.
func (p *preparer) AfterFirstTile(ctx context.Context) error {
	recs, err := p.sup.Suppress(ctx)
	if err != nil {
		p.logger.Warn("capture: suppression failed, chrome may repeat", "error", err)
		p.warnings = append(p.warnings, "suppression failed: "+err.Error())
		return nil
	}
	p.records = recs
	p.band = p.sup.Band(recs)
	p.logger.Debug("capture: suppressed", "elements", len(recs), "band", p.band)
	return nil
}

func (p *preparer) BeforeTile(ctx context.Context, index int) {
	p.sup.Reassert(ctx, p.records)
}

func (p *preparer) Restore(ctx context.Context) {
	if err := p.tr.RestoreTransform(ctx); err != nil {
		p.logger.Warn("capture: transform restore failed", "error", err)
	}
	p.sup.Restore(ctx, p.records)
}
