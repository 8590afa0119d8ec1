// Package config holds the pipeline settings shared by the server and the
// CLI, with environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"token-graph-lab/internal/filter"
	"token-graph-lab/internal/reducer"
)

// Environment variables read by FromEnv.
const (
	EnvMonthsBack         = "TGL_MONTHS_BACK"
	EnvMaxNodes           = "TGL_MAX_NODES"
	EnvMinBalanceFraction = "TGL_MIN_BALANCE_FRACTION"
	EnvBucketWidth        = "TGL_BUCKET_WIDTH"
	EnvHiddenIDs          = "TGL_HIDDEN_IDS"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid config")

// PipelineConfig controls reduction and the initial filter selection.
type PipelineConfig struct {
	MonthsBack         int      // one of filter.AllowedMonths, or 0 for all time
	MaxNodes           int      // reducer budget, 0 disables reduction
	MinBalanceFraction float64  // share of supply kept as individual nodes
	BucketWidth        float64  // aggregate bucket width in percentage points
	HiddenIDs          []string // wallets hidden initially
}

// Default returns the dashboard defaults.
func Default() PipelineConfig {
	return PipelineConfig{
		MonthsBack:         filter.DefaultMonths,
		MaxNodes:           reducer.DefaultMaxNodes,
		MinBalanceFraction: reducer.DefaultMinBalanceFraction,
		BucketWidth:        reducer.DefaultBucketWidth,
	}
}

// Validate checks every field.
func (c PipelineConfig) Validate() error {
	if c.MonthsBack != 0 {
		if err := filter.ValidateMonths(c.MonthsBack); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}
	if c.MaxNodes < 0 {
		return fmt.Errorf("%w: max nodes %d is negative", ErrInvalidConfig, c.MaxNodes)
	}
	if c.MinBalanceFraction < 0 || c.MinBalanceFraction >= 1 {
		return fmt.Errorf("%w: min balance fraction %v outside [0, 1)", ErrInvalidConfig, c.MinBalanceFraction)
	}
	if c.BucketWidth <= 0 {
		return fmt.Errorf("%w: bucket width %v must be positive", ErrInvalidConfig, c.BucketWidth)
	}
	return nil
}

// ReducerOptions converts the config to reducer options.
func (c PipelineConfig) ReducerOptions() reducer.Options {
	opts := reducer.DefaultOptions()
	opts.MaxNodes = c.MaxNodes
	opts.MinBalanceFraction = c.MinBalanceFraction
	opts.BucketWidth = c.BucketWidth
	return opts
}

// LoadDotEnv loads .env files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// FromEnv returns base with environment overrides applied.
func FromEnv(base PipelineConfig) (PipelineConfig, error) {
	return fromLookup(base, os.LookupEnv)
}

func fromLookup(base PipelineConfig, lookup func(string) (string, bool)) (PipelineConfig, error) {
	cfg := base
	if v, ok := lookup(EnvMonthsBack); ok && v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return cfg, fmt.Errorf("parse %s: %w", EnvMonthsBack, err)
		}
		cfg.MonthsBack = n
	}
	if v, ok := lookup(EnvMaxNodes); ok && v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return cfg, fmt.Errorf("parse %s: %w", EnvMaxNodes, err)
		}
		cfg.MaxNodes = n
	}
	if v, ok := lookup(EnvMinBalanceFraction); ok && v != "" {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return cfg, fmt.Errorf("parse %s: %w", EnvMinBalanceFraction, err)
		}
		cfg.MinBalanceFraction = f
	}
	if v, ok := lookup(EnvBucketWidth); ok && v != "" {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return cfg, fmt.Errorf("parse %s: %w", EnvBucketWidth, err)
		}
		cfg.BucketWidth = f
	}
	if v, ok := lookup(EnvHiddenIDs); ok && v != "" {
		cfg.HiddenIDs = SplitList(v)
	}
	return cfg, nil
}

// SplitList splits a comma separated list, dropping blanks.
func SplitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Getenv returns the variable or def when unset or empty.
func Getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
