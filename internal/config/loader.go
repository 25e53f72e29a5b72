// Package config loads the daemon configuration file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"diffusiond/internal/sampler"
	"diffusiond/internal/schedule"
)

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and will be replaced by defaults in main.
type Config struct {
	Addr            string `json:"addr" yaml:"addr" toml:"addr"`
	ModelsDir       string `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	ModelsRecursive bool   `json:"models_recursive" yaml:"models_recursive" toml:"models_recursive"`
	VRAMBudgetMB    int    `json:"vram_budget_mb" yaml:"vram_budget_mb" toml:"vram_budget_mb"`
	VRAMMarginMB    int    `json:"vram_margin_mb" yaml:"vram_margin_mb" toml:"vram_margin_mb"`
	DefaultModel    string `json:"default_model" yaml:"default_model" toml:"default_model"`

	MaxQueueDepth        int   `json:"max_queue_depth" yaml:"max_queue_depth" toml:"max_queue_depth"`
	MaxWaitSeconds       int   `json:"max_wait_seconds" yaml:"max_wait_seconds" toml:"max_wait_seconds"`
	DrainTimeoutSeconds  int   `json:"drain_timeout_seconds" yaml:"drain_timeout_seconds" toml:"drain_timeout_seconds"`
	MaxBodyBytes         int64 `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`
	SampleTimeoutSeconds int64 `json:"sample_timeout_seconds" yaml:"sample_timeout_seconds" toml:"sample_timeout_seconds"`

	LogLevel  string `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFormat string `json:"log_format" yaml:"log_format" toml:"log_format"`

	CORS     CORS     `json:"cors" yaml:"cors" toml:"cors"`
	Sampling Sampling `json:"sampling" yaml:"sampling" toml:"sampling"`
}

// CORS is opt-in; nothing is added to responses unless Enabled is set.
type CORS struct {
	Enabled bool     `json:"enabled" yaml:"enabled" toml:"enabled"`
	Origins []string `json:"origins" yaml:"origins" toml:"origins"`
	Methods []string `json:"methods" yaml:"methods" toml:"methods"`
	Headers []string `json:"headers" yaml:"headers" toml:"headers"`
}

// Sampling overrides the defaults requests are layered on.
type Sampling struct {
	Sampler         string  `json:"sampler_name" yaml:"sampler_name" toml:"sampler_name"`
	Scheduler       string  `json:"scheduler_name" yaml:"scheduler_name" toml:"scheduler_name"`
	Steps           int     `json:"steps" yaml:"steps" toml:"steps"`
	CFGScale        float64 `json:"cfg_scale" yaml:"cfg_scale" toml:"cfg_scale"`
	Rho             float64 `json:"rho" yaml:"rho" toml:"rho"`
	TileSize        int     `json:"tile_size" yaml:"tile_size" toml:"tile_size"`
	Previews        string  `json:"previews" yaml:"previews" toml:"previews"`
	LatentChannels  int     `json:"latent_channels" yaml:"latent_channels" toml:"latent_channels"`
	ScaleFactor     int     `json:"scale_factor" yaml:"scale_factor" toml:"scale_factor"`
	AuxCacheEntries int     `json:"aux_cache_entries" yaml:"aux_cache_entries" toml:"aux_cache_entries"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// SamplerDefaults applies the sampling section to sampler.DefaultConfig and
// validates the result.
func (c Config) SamplerDefaults() (sampler.Config, error) {
	s := c.Sampling
	out := sampler.DefaultConfig()
	if s.Sampler != "" {
		out.Sampler = sampler.Name(s.Sampler)
	}
	if s.Scheduler != "" {
		out.Scheduler = schedule.Algorithm(s.Scheduler)
	}
	if s.Steps != 0 {
		out.Steps = s.Steps
	}
	if s.CFGScale != 0 {
		out.CFGScale = s.CFGScale
	}
	if s.Rho != 0 {
		out.Rho = s.Rho
	}
	if s.TileSize != 0 {
		out.TileSizePixels = s.TileSize
	}
	if s.Previews != "" {
		out.Previews = sampler.PreviewMode(s.Previews)
	}
	if s.LatentChannels != 0 {
		out.LatentChannels = s.LatentChannels
	}
	if s.ScaleFactor != 0 {
		out.ScaleFactor = s.ScaleFactor
	}
	if err := out.Validate(); err != nil {
		return sampler.Config{}, fmt.Errorf("sampling defaults: %w", err)
	}
	return out, nil
}
