// Package draftconfig loads and validates the project configuration file
// (spec.md §6 "on-disk state" / CLI surface). Config file loading is
// explicitly out of core scope; this package is the boundary the core
// consumes once a document has been parsed and validated.
package draftconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/juvistr/draftspec/internal/specerr"
)

// RetryConfig mirrors the Retry middleware's defaults. Pointer fields are
// optional: nil means "not set in this file, fall back to the built-in
// default", following the teacher's RunConfigFile convention.
type RetryConfig struct {
	MaxRetries  *int  `yaml:"max_retries,omitempty"`
	DelayMS     *int  `yaml:"delay_ms,omitempty"`
	BackoffMS   *int  `yaml:"backoff_ms,omitempty"`
	Jitter      *bool `yaml:"jitter,omitempty"`
}

// TimeoutConfig mirrors the Timeout middleware's defaults.
type TimeoutConfig struct {
	DefaultMS *int `yaml:"default_ms,omitempty"`
}

// ParallelConfig mirrors the scheduler's parallel-mode defaults.
type ParallelConfig struct {
	Enabled *bool `yaml:"enabled,omitempty"`
	Degree  *int  `yaml:"degree,omitempty"`
}

// ProjectConfig is the root configuration document.
type ProjectConfig struct {
	Version int `yaml:"version"`

	SpecRoot    string   `yaml:"spec_root,omitempty"`
	SourceRoots []string `yaml:"source_roots,omitempty"`
	SnapshotDir string   `yaml:"snapshot_dir,omitempty"`
	Reporters   []string `yaml:"reporters,omitempty"`

	Retry    RetryConfig    `yaml:"retry,omitempty"`
	Timeout  TimeoutConfig  `yaml:"timeout,omitempty"`
	Parallel ParallelConfig `yaml:"parallel,omitempty"`

	WatchDebounceMS *int `yaml:"watch_debounce_ms,omitempty"`
}

// Default returns a ProjectConfig with every required field populated from
// spec.md's documented defaults, as if no config file existed at all.
func Default() ProjectConfig {
	return ProjectConfig{
		Version:     1,
		SpecRoot:    ".",
		SnapshotDir: "__snapshots__",
		Reporters:   []string{"progress"},
	}
}

// Load reads path, validates the document against the bundled
// project-config JSON Schema, then YAML-decodes it into a ProjectConfig
// and applies the value-range checks in Validate. A missing file is not
// an error: Load returns Default().
func Load(path string) (ProjectConfig, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, specerr.NewConfiguration(fmt.Sprintf("reading config %s: %v", path, err))
	}
	if err := validateProjectDocument(data); err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, specerr.NewConfiguration(fmt.Sprintf("parsing config %s: %v", path, err))
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate layers value-range checks over the schema pass; both surface
// as Configuration errors rejected before any spec executes (spec.md §7).
func Validate(cfg ProjectConfig) error {
	if cfg.Parallel.Degree != nil && *cfg.Parallel.Degree < 0 {
		return specerr.NewConfiguration("parallel.degree must be >= 0")
	}
	if cfg.Retry.MaxRetries != nil && *cfg.Retry.MaxRetries < 0 {
		return specerr.NewConfiguration("retry.max_retries must be >= 0")
	}
	if cfg.WatchDebounceMS != nil && *cfg.WatchDebounceMS < 0 {
		return specerr.NewConfiguration("watch_debounce_ms must be >= 0")
	}
	return nil
}

// IntOr returns *p if p is non-nil, else def.
func IntOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

// BoolOr returns *p if p is non-nil, else def.
func BoolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}
