// Package config resolves the scan settings from defaults, an optional TOML
// file, SIGSCAN_* environment variables and command line flags, in this
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/ostafen/sigscan/internal/fs"
	"github.com/ostafen/sigscan/internal/scan"
	"github.com/ostafen/sigscan/pkg/util/format"
)

const EnvPrefix = "SIGSCAN_"

const (
	OutputText = "text"
	OutputYAML = "yaml"
)

var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	Workers       int           `koanf:"workers"`
	QueueSize     int           `koanf:"queue_size"`
	Timeout       time.Duration `koanf:"timeout"`
	MmapThreshold string        `koanf:"mmap_threshold"`
	Output        string        `koanf:"output"`
	LogLevel      string        `koanf:"log_level"`
	Progress      bool          `koanf:"progress"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Workers:       scan.DefaultWorkers,
		Timeout:       scan.DefaultTimeout,
		MmapThreshold: format.FormatBytes(fs.DefaultMmapThreshold),
		Output:        OutputText,
		LogLevel:      "WARN",
	}
}

func defaults() map[string]interface{} {
	d := Default()
	return map[string]interface{}{
		"workers":        d.Workers,
		"queue_size":     d.QueueSize,
		"timeout":        d.Timeout.String(),
		"mmap_threshold": d.MmapThreshold,
		"output":         d.Output,
		"log_level":      d.LogLevel,
		"progress":       d.Progress,
	}
}

// Load merges the configuration layers. configPath may be empty; when set,
// the file must exist. overrides holds the values of explicitly set flags,
// keyed like the TOML file.
func Load(configPath string, overrides map[string]interface{}) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
		}
	}

	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if len(overrides) > 0 {
		if err := k.Load(confmap.Provider(overrides, "."), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	unmarshalConf := koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           &cfg,
			WeaklyTypedInput: true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
			),
		},
	}
	if err := k.UnmarshalWithConf("", &cfg, unmarshalConf); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("%w: workers must be at least 1, got %d", ErrInvalid, c.Workers)
	}
	if c.QueueSize < 0 {
		return fmt.Errorf("%w: queue_size must not be negative", ErrInvalid)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("%w: timeout must not be negative", ErrInvalid)
	}

	switch c.Output {
	case OutputText, OutputYAML:
	default:
		return fmt.Errorf("%w: unknown output format %q", ErrInvalid, c.Output)
	}

	if _, err := format.ParseBytes(c.MmapThreshold); err != nil {
		return fmt.Errorf("%w: mmap_threshold: %w", ErrInvalid, err)
	}
	return nil
}

// MmapThresholdBytes returns the parsed mmap threshold.
func (c *Config) MmapThresholdBytes() int64 {
	v, _ := format.ParseBytes(c.MmapThreshold)
	return int64(v)
}

// ScanOptions converts the configuration into scanner options.
func (c *Config) ScanOptions() scan.Options {
	return scan.Options{
		Workers:   c.Workers,
		QueueSize: c.QueueSize,
		Timeout:   c.Timeout,
		ReadFile:  fs.NewReader(c.MmapThresholdBytes()).ReadFile,
	}
}
