// Package config handles longshot configuration from YAML files with defaults.
// Every empirically tuned threshold in the capture pipeline is exposed here
// rather than hardcoded at its point of use.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level longshot configuration.
type Config struct {
	Browser  BrowserConfig  `yaml:"browser"`
	Capture  CaptureConfig  `yaml:"capture"`
	Suppress SuppressConfig `yaml:"suppress"`
	Output   OutputConfig   `yaml:"output"`
	Store    StoreConfig    `yaml:"store"`
}

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig struct {
	Remote     string        `yaml:"remote"`      // WebSocket URL of an external Chrome; empty = launch local
	Stealth    bool          `yaml:"stealth"`     // open tabs with stealth patches applied
	NavTimeout time.Duration `yaml:"nav_timeout"`
}

// CaptureConfig controls the tile acquisition loop and the capture gate.
type CaptureConfig struct {
	// MinInterval is the minimum wall-clock gap between two calls to the
	// viewport capture primitive. Chrome quota-limits captures per second.
	MinInterval time.Duration `yaml:"min_interval"`
	// MaxRetries bounds retries of a failing capture call.
	MaxRetries int `yaml:"max_retries"`
	// RetryBackoff is the base backoff delay, doubled per attempt.
	RetryBackoff time.Duration `yaml:"retry_backoff"`
	// SettleDelay is the fixed wait after each scroll before capturing.
	SettleDelay time.Duration `yaml:"settle_delay"`
	// QuiesceWindow: no DOM mutation for this long counts as settled.
	QuiesceWindow time.Duration `yaml:"quiesce_window"`
	// QuiesceTimeout caps the quiescence wait on perpetually busy pages.
	QuiesceTimeout time.Duration `yaml:"quiesce_timeout"`
	// MaxTiles is the hard cap guaranteeing termination on pathological pages.
	MaxTiles int `yaml:"max_tiles"`
	// DupPixelTolerance is the per-channel delta under which two sampled
	// pixels count as equal during duplicate detection.
	DupPixelTolerance int `yaml:"dup_pixel_tolerance"`
	// DupHammingMax is the dHash Hamming distance at or under which two
	// tiles count as near-duplicates.
	DupHammingMax int `yaml:"dup_hamming_max"`
	// StabilizeChecks is how many consecutive unchanged height reads the
	// pre-scroll stabilization walk requires.
	StabilizeChecks int `yaml:"stabilize_checks"`
	// StabilizeTimeout bounds the whole stabilization walk.
	StabilizeTimeout time.Duration `yaml:"stabilize_timeout"`
	// MinZoomScale clamps the scale-down applied to very tall pages.
	MinZoomScale float64 `yaml:"min_zoom_scale"`
	// Format is the wire format requested from the capture primitive: png | jpeg.
	Format string `yaml:"format"`
}

// SuppressConfig controls fixed/sticky element neutralization.
type SuppressConfig struct {
	// ProbeScroll is the probing scroll distance in CSS pixels used to
	// expose JS-driven fake-sticky elements.
	ProbeScroll int `yaml:"probe_scroll"`
	// MinSize is the minimum width and height for an element to count as
	// a disturbance. Filters out 1px trackers.
	MinSize int `yaml:"min_size"`
	// EdgeBand restricts vocabulary matches to elements anchored within
	// this many pixels of the viewport top or bottom. Zero = no restriction.
	EdgeBand int `yaml:"edge_band"`
}

// OutputConfig controls compositing and encoding.
type OutputConfig struct {
	// ByteBudget is the hard ceiling per emitted artifact.
	ByteBudget int `yaml:"byte_budget"`
	// RasterCeiling is the maximum safe canvas height in pixels.
	RasterCeiling int `yaml:"raster_ceiling"`
	// JPEGQualities is the lossy rung ladder, tried in order after PNG.
	JPEGQualities []int `yaml:"jpeg_qualities"`
	// MaxOverlap caps the per-pair overlap scan in rows.
	MaxOverlap int `yaml:"max_overlap"`
	// OverlapTolerance is the per-channel delta allowed in the
	// tolerance-bounded overlap pass. Zero = exact rows only.
	OverlapTolerance int `yaml:"overlap_tolerance"`
	// Dir is where one-shot CLI captures write their artifacts.
	Dir string `yaml:"dir"`
	// PDF additionally bundles each session's artifacts into one PDF.
	PDF bool `yaml:"pdf"`
}

// StoreConfig controls artifact persistence.
type StoreConfig struct {
	Path string `yaml:"path"` // SQLite database path; empty = no persistence
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// Default returns a Config with every field at its default.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero fields in place.
func (c *Config) ApplyDefaults() {
	if c.Browser.NavTimeout <= 0 {
		c.Browser.NavTimeout = 30 * time.Second
	}
	if c.Capture.MinInterval <= 0 {
		c.Capture.MinInterval = 600 * time.Millisecond
	}
	if c.Capture.MaxRetries <= 0 {
		c.Capture.MaxRetries = 3
	}
	if c.Capture.RetryBackoff <= 0 {
		c.Capture.RetryBackoff = 250 * time.Millisecond
	}
	if c.Capture.SettleDelay <= 0 {
		c.Capture.SettleDelay = 350 * time.Millisecond
	}
	if c.Capture.QuiesceWindow <= 0 {
		c.Capture.QuiesceWindow = 200 * time.Millisecond
	}
	if c.Capture.QuiesceTimeout <= 0 {
		c.Capture.QuiesceTimeout = 2 * time.Second
	}
	if c.Capture.MaxTiles <= 0 {
		c.Capture.MaxTiles = 80
	}
	if c.Capture.DupPixelTolerance <= 0 {
		c.Capture.DupPixelTolerance = 10
	}
	if c.Capture.DupHammingMax <= 0 {
		c.Capture.DupHammingMax = 4
	}
	if c.Capture.StabilizeChecks <= 0 {
		c.Capture.StabilizeChecks = 3
	}
	if c.Capture.StabilizeTimeout <= 0 {
		c.Capture.StabilizeTimeout = 15 * time.Second
	}
	if c.Capture.MinZoomScale <= 0 {
		c.Capture.MinZoomScale = 0.25
	}
	if c.Capture.Format == "" {
		c.Capture.Format = "png"
	}
	if c.Suppress.ProbeScroll <= 0 {
		c.Suppress.ProbeScroll = 120
	}
	if c.Suppress.MinSize <= 0 {
		c.Suppress.MinSize = 16
	}
	if c.Suppress.EdgeBand < 0 {
		c.Suppress.EdgeBand = 0
	}
	if c.Output.ByteBudget <= 0 {
		c.Output.ByteBudget = 19 << 20 // 19 MiB
	}
	if c.Output.RasterCeiling <= 0 {
		c.Output.RasterCeiling = 16384
	}
	if len(c.Output.JPEGQualities) == 0 {
		c.Output.JPEGQualities = []int{90, 65}
	}
	if c.Output.MaxOverlap <= 0 {
		c.Output.MaxOverlap = 400
	}
	if c.Output.OverlapTolerance < 0 {
		c.Output.OverlapTolerance = 0
	}
	if c.Output.Dir == "" {
		c.Output.Dir = "."
	}
}
