// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package config implements the blockwipe configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/afero"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/siderolabs/go-blockwipe/catalog"
	"github.com/siderolabs/go-blockwipe/wipe"
)

// Limits.
const (
	MaxPasses    = 100
	MaxChunkSize = 256 * 1024 * 1024
)

// DefaultPasses is the default number of zero passes.
const DefaultPasses = 5

// Config is the blockwipe configuration.
type Config struct {
	Wipe      Wipe      `yaml:"wipe"`
	Logging   Logging   `yaml:"logging"`
	Discovery Discovery `yaml:"discovery"`
}

// Wipe configures passes, verification and repair.
type Wipe struct {
	// Passes is the number of full zero passes.
	Passes int `yaml:"passes"`
	// Verify enables the verification scan after the passes.
	Verify bool `yaml:"verify"`
	// RepairAttempts is the repair budget, zero means same as Passes.
	RepairAttempts int `yaml:"repair_attempts"`
	// ChunkSize of reads and writes in bytes.
	ChunkSize int `yaml:"chunk_size"`
	// RateLimit in bytes per second, zero means unlimited.
	RateLimit float64 `yaml:"rate_limit"`
}

// Logging configures the logger.
type Logging struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Discovery configures device discovery.
type Discovery struct {
	// SkipPrefixes are kernel device name prefixes which are never listed.
	SkipPrefixes []string `yaml:"skip_prefixes"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Wipe: Wipe{
			Passes:    DefaultPasses,
			Verify:    true,
			ChunkSize: wipe.DefaultChunkSize,
		},
		Logging: Logging{
			Level: "info",
		},
		Discovery: Discovery{
			SkipPrefixes: slices.Clone(catalog.DefaultSkipPrefixes),
		},
	}
}

// Load reads the configuration file on top of the defaults.
//
// An empty path returns the defaults.
func Load(fs afero.Fs, path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		return cfg, nil
	}

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err = Decode(bytes.NewReader(data), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err = cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration %s: %w", path, err)
	}

	return cfg, nil
}

// Decode decodes YAML into cfg, rejecting unknown fields.
func Decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}

	return nil
}

// Validate checks the configuration.
func (cfg *Config) Validate() error {
	if cfg.Wipe.Passes < 1 || cfg.Wipe.Passes > MaxPasses {
		return fmt.Errorf("passes must be between 1 and %d, got %d", MaxPasses, cfg.Wipe.Passes)
	}

	if cfg.Wipe.RepairAttempts < 0 || cfg.Wipe.RepairAttempts > MaxPasses {
		return fmt.Errorf("repair attempts must be between 0 and %d, got %d", MaxPasses, cfg.Wipe.RepairAttempts)
	}

	if cfg.Wipe.ChunkSize <= 0 || cfg.Wipe.ChunkSize > MaxChunkSize {
		return fmt.Errorf("chunk size must be between 1 and %d, got %d", MaxChunkSize, cfg.Wipe.ChunkSize)
	}

	if cfg.Wipe.RateLimit < 0 {
		return fmt.Errorf("rate limit can't be negative, got %g", cfg.Wipe.RateLimit)
	}

	if _, err := cfg.LogLevel(); err != nil {
		return err
	}

	if slices.Contains(cfg.Discovery.SkipPrefixes, "") {
		return errors.New("empty skip prefix")
	}

	return nil
}

// RepairBudget returns the number of repair iterations.
func (cfg *Config) RepairBudget() int {
	if cfg.Wipe.RepairAttempts > 0 {
		return cfg.Wipe.RepairAttempts
	}

	return cfg.Wipe.Passes
}

// LogLevel parses the logging level.
func (cfg *Config) LogLevel() (zapcore.Level, error) {
	level, err := zapcore.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return level, fmt.Errorf("invalid log level: %w", err)
	}

	return level, nil
}
