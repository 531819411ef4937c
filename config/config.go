// Package config provides configuration management for the script bridge.
// It uses koanf v2 to load configuration from YAML files and supports
// saving a populated configuration (e.g., writing an initial config for
// a new deployment).
//
// The configuration defines the bridge's security boundary (allow-listed
// script roots, environment variable allow-list) and its resource limits
// (pool size, output caps, timeouts), so it should be treated as
// security-sensitive and writable only by the operator.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	goyaml "gopkg.in/yaml.v3"
)

// Config holds the bridge configuration loaded from the YAML config file.
// Fields are tagged for both koanf (loading) and yaml (saving).
type Config struct {
	// AllowedRoots is the ordered set of absolute directory paths under
	// which script paths must resolve to be executable.
	// Required; at least one root must be configured.
	AllowedRoots []string `koanf:"allowed_roots" yaml:"allowed_roots"`

	// AllowedEnv lists the environment variable names permitted to pass
	// from the bridge's own process environment into spawned subprocesses.
	// Anything not listed is stripped. Default: PATH, HOME, LANG, TZ.
	AllowedEnv []string `koanf:"allowed_env" yaml:"allowed_env"`

	// Interpreters is the allow-list of interpreter names a request may
	// select to run its script. Default: pwsh, bash, sh, python.
	Interpreters []string `koanf:"interpreters" yaml:"interpreters"`

	// PoolSize is the maximum number of subprocesses alive at any instant.
	// Requests beyond this queue in arrival order. Default: 4.
	PoolSize int `koanf:"pool_size" yaml:"pool_size"`

	// DefaultTimeoutSeconds applies to requests that do not set their own
	// timeout. Default: 300 (5 minutes).
	DefaultTimeoutSeconds int `koanf:"default_timeout_seconds" yaml:"default_timeout_seconds"`

	// MaxTimeoutSeconds caps per-request timeouts. Requests asking for
	// more are clamped. Default: 1800 (30 minutes).
	MaxTimeoutSeconds int `koanf:"max_timeout_seconds" yaml:"max_timeout_seconds"`

	// MaxOutputBytes caps captured bytes per stream (stdout and stderr
	// independently). Beyond the cap, output is discarded and the result
	// carries a truncation flag. Default: 1048576 (1 MiB).
	MaxOutputBytes int64 `koanf:"max_output_bytes" yaml:"max_output_bytes"`

	// FieldDelimiter is the single-character field delimiter used when
	// decoding delimited-text output. Default: ",".
	FieldDelimiter string `koanf:"field_delimiter" yaml:"field_delimiter"`

	// CachePath is the path of the bbolt database backing the result
	// cache. Empty selects the in-memory store (cache does not survive
	// restarts).
	CachePath string `koanf:"cache_path" yaml:"cache_path"`

	// DefaultCacheTTLSeconds applies to cacheable requests that do not
	// set their own TTL. Default: 300.
	DefaultCacheTTLSeconds int `koanf:"default_cache_ttl_seconds" yaml:"default_cache_ttl_seconds"`

	// SweepSchedule is the cron schedule for the background sweep that
	// evicts expired cache entries. Accepts standard 5-field cron
	// expressions and descriptors like "@every 1m". Default: "@every 1m".
	SweepSchedule string `koanf:"sweep_schedule" yaml:"sweep_schedule"`

	// AllowShellMetachars disables rejection of parameter values that
	// contain shell metacharacters. The bridge always passes arguments
	// as a vector, so metacharacters cannot escape the invocation
	// itself; enable this only for scripts known not to re-interpret
	// their inputs through a shell. Default: false (reject).
	AllowShellMetachars bool `koanf:"allow_shell_metachars" yaml:"allow_shell_metachars"`

	// CollectProcessStats enables sampling of each subprocess's memory
	// and CPU usage while it runs. Default: false.
	CollectProcessStats bool `koanf:"collect_process_stats" yaml:"collect_process_stats"`

	// LogLevel controls the verbosity of bridge logging.
	// Valid values: "debug", "info", "warn", "error".
	// Default: "info".
	LogLevel string `koanf:"log_level" yaml:"log_level"`
}

// Validation errors returned by Load when required fields are missing
// or invalid.
var (
	ErrNoAllowedRoots     = errors.New("allowed_roots must list at least one directory")
	ErrRootNotAbsolute    = errors.New("allowed_roots entries must be absolute paths")
	ErrInvalidPoolSize    = errors.New("pool_size must be positive")
	ErrInvalidTimeout     = errors.New("default_timeout_seconds must be positive and no greater than max_timeout_seconds")
	ErrInvalidOutputLimit = errors.New("max_output_bytes must be positive")
	ErrInvalidDelimiter   = errors.New("field_delimiter must be a single character")
)

// Load reads configuration from the specified YAML file path.
// It applies defaults for optional fields and validates required fields.
// Returns an error if the file cannot be read or required fields are missing.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Load YAML file
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Apply defaults for optional fields
	cfg.ApplyDefaults()

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ApplyDefaults sets default values for optional configuration fields.
// It is exported so configurations built in code (rather than loaded
// from a file) can be normalized the same way.
func (c *Config) ApplyDefaults() {
	if len(c.AllowedEnv) == 0 {
		c.AllowedEnv = []string{"PATH", "HOME", "LANG", "TZ"}
	}
	if len(c.Interpreters) == 0 {
		c.Interpreters = []string{"pwsh", "bash", "sh", "python"}
	}
	if c.PoolSize == 0 {
		c.PoolSize = 4
	}
	if c.DefaultTimeoutSeconds == 0 {
		c.DefaultTimeoutSeconds = 300
	}
	if c.MaxTimeoutSeconds == 0 {
		c.MaxTimeoutSeconds = 1800
	}
	if c.MaxOutputBytes == 0 {
		c.MaxOutputBytes = 1 << 20
	}
	if c.FieldDelimiter == "" {
		c.FieldDelimiter = ","
	}
	if c.DefaultCacheTTLSeconds == 0 {
		c.DefaultCacheTTLSeconds = 300
	}
	if c.SweepSchedule == "" {
		c.SweepSchedule = "@every 1m"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate checks that required configuration fields are present and valid.
func (c *Config) Validate() error {
	if len(c.AllowedRoots) == 0 {
		return ErrNoAllowedRoots
	}
	for _, root := range c.AllowedRoots {
		if !filepath.IsAbs(root) {
			return fmt.Errorf("%w: %q", ErrRootNotAbsolute, root)
		}
	}
	if c.PoolSize <= 0 {
		return ErrInvalidPoolSize
	}
	if c.DefaultTimeoutSeconds <= 0 || c.DefaultTimeoutSeconds > c.MaxTimeoutSeconds {
		return ErrInvalidTimeout
	}
	if c.MaxOutputBytes <= 0 {
		return ErrInvalidOutputLimit
	}
	if utf8.RuneCountInString(c.FieldDelimiter) != 1 {
		return ErrInvalidDelimiter
	}
	return nil
}

// Save writes the configuration to the specified YAML file path.
// The file is created with 0600 permissions (owner read/write only)
// since the allow-lists define the bridge's security boundary.
func Save(path string, cfg *Config) error {
	// Marshal config to YAML
	data, err := goyaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Write file with restricted permissions
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config to %s: %w", path, err)
	}

	return nil
}

// Delimiter returns the field delimiter as a rune for the decoder.
// Validate guarantees the field holds exactly one character.
func (c *Config) Delimiter() rune {
	r, _ := utf8.DecodeRuneInString(c.FieldDelimiter)
	return r
}
