// Package suppress detects and neutralizes page elements that would corrupt
// a scrolled capture: fixed/sticky headers that repeat on every tile,
// animating banners, and JS-driven "fake sticky" chrome that CSS inspection
// cannot see. Every mutation is recorded and restored when the session ends.
package suppress

import (
	"context"
	"log/slog"
	"math"
	"strings"
)

// Strategy is how a classified disturbance is neutralized.
type Strategy string

const (
	// StrategyHide removes the element from rendering entirely.
	StrategyHide Strategy = "hide"
	// StrategyForceStatic forces the element back into normal flow.
	// Reapplied on every tile in case page scripts re-assert positioning.
	StrategyForceStatic Strategy = "force-static"
	// StrategyFreeze disables animation and transitions without
	// changing layout.
	StrategyFreeze Strategy = "freeze"
)

// Vocabulary is the common chrome naming vocabulary matched against element
// tag, id and class attributes.
var Vocabulary = []string{
	"header", "nav", "banner", "cookie", "sticky", "footer",
	"topbar", "toolbar", "appbar", "consent", "gdpr", "float",
}

// VocabPattern returns the vocabulary as a case-insensitive regex
// alternation, for use inside the collection script.
func VocabPattern() string {
	return "(?:" + strings.Join(Vocabulary, "|") + ")"
}

// Candidate is one element's measured state, as reported by the page.
type Candidate struct {
	ID             int     // collection-scoped element id
	Position       string  // computed CSS position
	Visible        bool
	Width          int
	Height         int
	Top            float64 // viewport-relative
	Bottom         float64
	ViewportHeight int
	VocabHit       bool // tag/id/class matched the chrome vocabulary
	Animated       bool // has a running animation or transition
}

// Probe is a candidate's viewport position before and after a small scroll.
// Elements that do not move are fixed regardless of computed style.
type Probe struct {
	BeforeTop float64
	AfterTop  float64
	Delta     float64 // scroll distance actually applied
}

// Stationary reports whether the probed element ignored the scroll.
func (p Probe) Stationary() bool {
	return p.Delta > 0 && math.Abs(p.BeforeTop-p.AfterTop) < 2
}

// Options tune classification.
type Options struct {
	// MinSize filters out trivially small elements.
	MinSize int
	// EdgeBand restricts vocabulary matches to elements anchored within
	// this many pixels of the viewport top or bottom edge. Zero disables
	// the restriction.
	EdgeBand int
}

// Classify decides whether a candidate is a disturbance and which strategy
// neutralizes it. Pure: the only inputs are the measurement pair.
// Returns "" when the element should be left alone.
func Classify(c Candidate, probe *Probe, opt Options) Strategy {
	if !c.Visible || c.Width < opt.MinSize || c.Height < opt.MinSize {
		return ""
	}

	fixed := c.Position == "fixed"
	sticky := c.Position == "sticky"
	stationary := probe != nil && probe.Stationary()

	vocab := c.VocabHit
	if vocab && opt.EdgeBand > 0 && !c.nearEdge(opt.EdgeBand) {
		vocab = false
	}

	switch {
	case sticky:
		// Sticks while scrolling but belongs in flow. Forcing it static
		// keeps the layout and shows it once.
		return StrategyForceStatic
	case fixed || stationary:
		return StrategyHide
	case vocab && c.Animated:
		// Motion between tiles corrupts duplicate detection even for
		// in-flow elements. Freezing changes no layout, so it is safe.
		return StrategyFreeze
	case probe != nil:
		// Probed and moved with the page: in normal flow, captured once
		// naturally. A chrome-ish name alone is not grounds to remove it.
		return ""
	case vocab:
		return StrategyHide
	default:
		return ""
	}
}

func (c Candidate) nearEdge(band int) bool {
	return c.Top <= float64(band) ||
		c.Bottom >= float64(c.ViewportHeight-band)
}

// ChromeBand measures the top chrome band: the deepest bottom edge among
// top-anchored disturbances. The first tile is captured before suppression,
// so this many rows are cropped from every later tile to avoid repeats.
// Clamped to a third of the viewport so a misclassified overlay cannot eat
// whole tiles.
func ChromeBand(cands []Candidate, records []Record) int {
	suppressed := make(map[int]bool, len(records))
	for _, r := range records {
		suppressed[r.ID] = true
	}

	band := 0.0
	viewport := 0
	for _, c := range cands {
		if !suppressed[c.ID] || c.Top > 2 {
			continue
		}
		if c.Bottom > band {
			band = c.Bottom
		}
		viewport = c.ViewportHeight
	}

	b := int(math.Ceil(band))
	if viewport > 0 && b > viewport/3 {
		b = viewport / 3
	}
	if b < 0 {
		b = 0
	}
	return b
}

// Record is the restorable state of one suppressed element.
type Record struct {
	ID         int
	Strategy   Strategy
	SavedStyle string // the element's inline style before suppression
}

// DOM is the page-side capability the suppressor drives. Implemented against
// a live tab in production and faked in tests.
type DOM interface {
	// Collect tags candidate elements with collection ids and returns
	// their measured state.
	Collect(ctx context.Context) ([]Candidate, error)
	// Probe scrolls the page by scrollBy pixels, re-measures the given
	// elements, restores the scroll, and returns the position pairs.
	Probe(ctx context.Context, ids []int, scrollBy int) (map[int]Probe, error)
	// Apply neutralizes one element and returns its prior inline style.
	Apply(ctx context.Context, id int, s Strategy) (savedStyle string, err error)
	// Reapply re-asserts previously applied overrides.
	Reapply(ctx context.Context, recs []Record) error
	// Restore puts one element's inline style back exactly as saved.
	Restore(ctx context.Context, rec Record) error
}

// Suppressor runs detection and owns the records it creates.
type Suppressor struct {
	dom     DOM
	opt     Options
	probeBy int
	logger  *slog.Logger

	candidates []Candidate
}

// New creates a Suppressor. probeScroll is the probing distance in pixels.
func New(dom DOM, opt Options, probeScroll int, logger *slog.Logger) *Suppressor {
	if logger == nil {
		logger = slog.Default()
	}
	if probeScroll <= 0 {
		probeScroll = 120
	}
	return &Suppressor{dom: dom, opt: opt, probeBy: probeScroll, logger: logger}
}

// Suppress collects candidates, probes the ambiguous ones, classifies, and
// applies a strategy per disturbance. Returns the records needed to restore.
func (s *Suppressor) Suppress(ctx context.Context) ([]Record, error) {
	cands, err := s.dom.Collect(ctx)
	if err != nil {
		return nil, err
	}
	s.candidates = cands

	// Probe everything not already condemned by computed style: the probe
	// is what catches scroll-reactive JS chrome.
	var probeIDs []int
	for _, c := range cands {
		if c.Position != "fixed" && c.Position != "sticky" {
			probeIDs = append(probeIDs, c.ID)
		}
	}

	probes := map[int]Probe{}
	if len(probeIDs) > 0 {
		probes, err = s.dom.Probe(ctx, probeIDs, s.probeBy)
		if err != nil {
			// Probing is an enhancement; style-based detection still works.
			s.logger.Warn("suppress: probe failed, using style detection only", "error", err)
			probes = map[int]Probe{}
		}
	}

	var records []Record
	for _, c := range cands {
		var p *Probe
		if pr, ok := probes[c.ID]; ok {
			p = &pr
		}
		strat := Classify(c, p, s.opt)
		if strat == "" {
			continue
		}

		saved, err := s.dom.Apply(ctx, c.ID, strat)
		if err != nil {
			s.logger.Warn("suppress: apply failed", "id", c.ID, "strategy", strat, "error", err)
			continue
		}
		records = append(records, Record{ID: c.ID, Strategy: strat, SavedStyle: saved})
	}

	s.logger.Debug("suppress: applied", "candidates", len(cands), "suppressed", len(records))
	return records, nil
}

// Band returns the measured chrome band height for the last Suppress call.
func (s *Suppressor) Band(records []Record) int {
	return ChromeBand(s.candidates, records)
}

// Reassert re-applies force-static overrides before a tile capture. Page
// scripts may have re-asserted their own positioning since the last tile.
func (s *Suppressor) Reassert(ctx context.Context, records []Record) {
	var again []Record
	for _, r := range records {
		if r.Strategy == StrategyForceStatic {
			again = append(again, r)
		}
	}
	if len(again) == 0 {
		return
	}
	if err := s.dom.Reapply(ctx, again); err != nil {
		s.logger.Warn("suppress: reassert failed", "error", err)
	}
}

// Restore reverses every record. Each restoration is independently guarded:
// one failure never prevents the others, and failures are logged, not
// returned.
func (s *Suppressor) Restore(ctx context.Context, records []Record) {
	for _, r := range records {
		if err := s.dom.Restore(ctx, r); err != nil {
			s.logger.Warn("suppress: restore failed", "id", r.ID, "error", err)
		}
	}
}
