// Package config handles the hostprobe configuration surface.
//
// Configuration lives in a small TOML file; every key can be overridden from
// the environment so shell scripts never need to write a file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/lajosnagyuk/hostprobe/pkg/validate"
	"github.com/pelletier/go-toml/v2"
)

const (
	// ConfigDir is the hostprobe configuration directory name
	ConfigDir = ".hostprobe"

	// ConfigFile is the configuration filename
	ConfigFile = "config.toml"

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "HOSTPROBE_"
)

// Defaults.
const (
	DefaultTTL            = 300 * time.Second
	DefaultMaxFileSize    = 8192
	DefaultCommandTimeout = 10 * time.Second
)

// Read and size strategy names accepted in the config file.
var (
	ReadStrategies = []string{"head", "dd", "native"}
	SizeProbes     = []string{"native", "stat"}
)

// Config is the full configuration surface consumed by the detector.
type Config struct {
	// TTL is how long a committed snapshot stays usable.
	TTL Duration `toml:"ttl" json:"ttl" yaml:"ttl"`

	// MaxFileSize is the byte ceiling for probe file reads.
	MaxFileSize int64 `toml:"max_file_size" json:"max_file_size" yaml:"max_file_size"`

	// CommandTimeout bounds every external command.
	CommandTimeout Duration `toml:"command_timeout" json:"command_timeout" yaml:"command_timeout"`

	// Strict disallows any unsandboxed fallback.
	Strict bool `toml:"strict" json:"strict" yaml:"strict"`

	// SanitizeEnv replaces the child environment with a minimal fixed set.
	SanitizeEnv bool `toml:"sanitize_env" json:"sanitize_env" yaml:"sanitize_env"`

	// Parallel runs independent sub-detectors concurrently.
	Parallel bool `toml:"parallel" json:"parallel" yaml:"parallel"`

	// ReadStrategies is the preference order for bounded reads.
	ReadStrategies []string `toml:"read_strategies" json:"read_strategies" yaml:"read_strategies"`

	// SizeProbes is the preference order for file size queries.
	SizeProbes []string `toml:"size_probes" json:"size_probes" yaml:"size_probes"`
}

// Duration is a wrapper around time.Duration for TOML parsing.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for go-toml/v2.
// A bare number is taken as seconds.
func (d *Duration) UnmarshalText(text []byte) error {
	dur, err := parseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = dur
	return nil
}

// MarshalText implements encoding.TextMarshaler for go-toml/v2.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if secs, err := strconv.Atoi(s); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return dur, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		TTL:            Duration{DefaultTTL},
		MaxFileSize:    DefaultMaxFileSize,
		CommandTimeout: Duration{DefaultCommandTimeout},
		Strict:         true,
		SanitizeEnv:    true,
		Parallel:       true,
		ReadStrategies: []string{"head", "dd", "native"},
		SizeProbes:     []string{"native", "stat"},
	}
}

// DefaultConfigPath returns the default config file path (~/.hostprobe/config.toml).
func DefaultConfigPath() (string, error) {
	if p := os.Getenv(EnvPrefix + "CONFIG"); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot find home directory: %w", err)
	}
	return filepath.Join(home, ConfigDir, ConfigFile), nil
}

// Load reads the config file from the given path and applies environment
// overrides. If path is empty, uses the default path. A missing file
// yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return nil, err
		}
	}

	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err == nil {
		if err := Parse(data, cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes TOML onto cfg. Keys absent from data keep their values.
func Parse(data []byte, cfg *Config) error {
	if err := toml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

// Encode renders cfg as TOML.
func Encode(cfg *Config) ([]byte, error) {
	return toml.Marshal(cfg)
}

// ApplyEnv applies HOSTPROBE_* overrides using lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvPrefix + "TTL"); ok && v != "" {
		d, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("%sTTL: %w", EnvPrefix, err)
		}
		c.TTL.Duration = d
	}
	if v, ok := lookup(EnvPrefix + "COMMAND_TIMEOUT"); ok && v != "" {
		d, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("%sCOMMAND_TIMEOUT: %w", EnvPrefix, err)
		}
		c.CommandTimeout.Duration = d
	}
	if v, ok := lookup(EnvPrefix + "MAX_FILE_SIZE"); ok && v != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("%sMAX_FILE_SIZE: invalid size %q", EnvPrefix, v)
		}
		c.MaxFileSize = n
	}
	for _, b := range []struct {
		key string
		dst *bool
	}{
		{"STRICT", &c.Strict},
		{"SANITIZE_ENV", &c.SanitizeEnv},
		{"PARALLEL", &c.Parallel},
	} {
		v, ok := lookup(EnvPrefix + b.key)
		if !ok || v == "" {
			continue
		}
		parsed, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s%s: invalid boolean %q", EnvPrefix, b.key, v)
		}
		*b.dst = parsed
	}
	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if err := validate.TTL(c.TTL.Duration); err != nil {
		return err
	}
	if err := validate.FileSize(c.MaxFileSize); err != nil {
		return err
	}
	if err := validate.CommandTimeout(c.CommandTimeout.Duration); err != nil {
		return err
	}
	if err := checkNames("read_strategies", c.ReadStrategies, ReadStrategies); err != nil {
		return err
	}
	if err := checkNames("size_probes", c.SizeProbes, SizeProbes); err != nil {
		return err
	}
	return nil
}

// Clamp bounds every numeric setting into its valid range and fills empty
// strategy lists. Library callers use it instead of failing on bad input.
func (c *Config) Clamp() {
	c.TTL.Duration = clampDuration(c.TTL.Duration, time.Second, 24*time.Hour)
	c.CommandTimeout.Duration = clampDuration(c.CommandTimeout.Duration, time.Second, 5*time.Minute)
	switch {
	case c.MaxFileSize < 64:
		c.MaxFileSize = 64
	case c.MaxFileSize > 1<<20:
		c.MaxFileSize = 1 << 20
	}
	if len(c.ReadStrategies) == 0 {
		c.ReadStrategies = Default().ReadStrategies
	}
	if len(c.SizeProbes) == 0 {
		c.SizeProbes = Default().SizeProbes
	}
}

func clampDuration(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}

func checkNames(field string, got, allowed []string) error {
	if len(got) == 0 {
		return fmt.Errorf("%s must not be empty", field)
	}
	for _, name := range got {
		ok := false
		for _, a := range allowed {
			if name == a {
				ok = true
				break
			}
		}
		if !ok {
			return fmt.Errorf("unknown %s entry: %s (use %s)", field, name, strings.Join(allowed, ", "))
		}
	}
	return nil
}
