package longshot

import (
	"github.com/hazyhaar/longshot/internal/config"
)

// Config is the top-level longshot configuration. Re-exported from internal.
type Config = config.Config

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig = config.BrowserConfig

// CaptureConfig controls the tile acquisition loop and the capture gate.
type CaptureConfig = config.CaptureConfig

// SuppressConfig controls fixed/sticky element neutralization.
type SuppressConfig = config.SuppressConfig

// OutputConfig controls compositing and encoding.
type OutputConfig = config.OutputConfig

// StoreConfig controls artifact persistence.
type StoreConfig = config.StoreConfig

// LoadConfigFile reads a YAML configuration file.
func LoadConfigFile(path string) (*Config, error) {
	return config.LoadFile(path)
}

// DefaultConfig returns a Config with every field at its default.
func DefaultConfig() *Config {
	return config.Default()
}
