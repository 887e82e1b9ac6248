// Package config loads the gateway's runtime configuration as a flat
// struct with JSON tags and a Validate method: everything has a
// zero-value-safe default, an optional JSON file can override any subset
// of fields, and Validate rejects nonsensical values before the engine
// starts.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Verbosity names a log volume. It is validated and stored in Config only;
// the logger does not read it, so every message is printed at any setting.
type Verbosity string

const (
	VerbosityQuiet Verbosity = "quiet"
	VerbosityInfo  Verbosity = "info"
	VerbosityDebug Verbosity = "debug"
)

// DefaultHTTPPort is the default listen port.
const DefaultHTTPPort = 6502

// Config holds the runtime options recognised by the gateway.
type Config struct {
	HTTPPort    uint16   `json:"httpPort"`
	Brands      []string `json:"brands,omitempty"` // empty means "all compiled-in"
	RecordingDir string  `json:"recordingDir,omitempty"`
	Replay      string   `json:"replay,omitempty"` // path to a .mrr/.mrr.gz file, or ""
	Verbosity   Verbosity `json:"verbosity,omitempty"`
}

// Default returns a Config with the gateway's documented defaults.
func Default() Config {
	return Config{
		HTTPPort:  DefaultHTTPPort,
		Brands:    []string{"navico", "furuno", "garmin", "raymarine"},
		Verbosity: VerbosityInfo,
	}
}

// Load reads a JSON config file and overlays it onto the defaults. Fields
// omitted from the file keep their default values, so partial configs are
// safe. An empty path returns the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	cleanPath := filepath.Clean(path)
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	// Decode onto the defaults so omitted fields are preserved rather than
	// zeroed out.
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot start with.
func (c Config) Validate() error {
	if c.HTTPPort == 0 {
		return fmt.Errorf("httpPort must be non-zero")
	}
	for _, b := range c.Brands {
		switch b {
		case "navico", "furuno", "garmin", "raymarine":
		default:
			return fmt.Errorf("unknown brand %q", b)
		}
	}
	switch c.Verbosity {
	case "", VerbosityQuiet, VerbosityInfo, VerbosityDebug:
	default:
		return fmt.Errorf("unknown verbosity %q", c.Verbosity)
	}
	return nil
}

// BrandEnabled reports whether the given brand is enabled by this config.
// An empty Brands list means every compiled-in brand is enabled.
func (c Config) BrandEnabled(brand string) bool {
	if len(c.Brands) == 0 {
		return true
	}
	for _, b := range c.Brands {
		if b == brand {
			return true
		}
	}
	return false
}
