package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/BurntSushi/toml"
)

// File is the on-disk CLI configuration. Unset pipeline keys keep the
// values of the base config.
type File struct {
	Pipeline PipelineSection `toml:"pipeline"`
	Backend  BackendSection  `toml:"backend"`
	Output   OutputSection   `toml:"output"`
}

// PipelineSection overrides PipelineConfig fields.
type PipelineSection struct {
	MonthsBack         *int     `toml:"months_back"`
	MaxNodes           *int     `toml:"max_nodes"`
	MinBalanceFraction *float64 `toml:"min_balance_fraction"`
	BucketWidth        *float64 `toml:"bucket_width"`
	HiddenIDs          []string `toml:"hidden_ids"`
}

// BackendSection configures the analysis backend client.
type BackendSection struct {
	URL          string   `toml:"url"`
	Timeout      Duration `toml:"timeout"`
	MaxRetries   int      `toml:"max_retries"`
	PollInterval Duration `toml:"poll_interval"`
}

// OutputSection configures report output.
type OutputSection struct {
	Dir      string `toml:"dir"`
	MaxTicks int    `toml:"max_ticks"`
}

// Duration decodes TOML strings such as "30s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// LoadFile decodes a TOML config file. A missing file yields an empty File.
func LoadFile(path string) (*File, error) {
	var f File
	if path == "" {
		return &f, nil
	}
	md, err := toml.DecodeFile(path, &f)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &f, nil
		}
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%w: unknown key %q in %s", ErrInvalidConfig, undecoded[0].String(), path)
	}
	return &f, nil
}

// Apply returns base with the file's pipeline overrides applied.
func (f *File) Apply(base PipelineConfig) PipelineConfig {
	cfg := base
	p := f.Pipeline
	if p.MonthsBack != nil {
		cfg.MonthsBack = *p.MonthsBack
	}
	if p.MaxNodes != nil {
		cfg.MaxNodes = *p.MaxNodes
	}
	if p.MinBalanceFraction != nil {
		cfg.MinBalanceFraction = *p.MinBalanceFraction
	}
	if p.BucketWidth != nil {
		cfg.BucketWidth = *p.BucketWidth
	}
	if len(p.HiddenIDs) > 0 {
		cfg.HiddenIDs = append([]string(nil), p.HiddenIDs...)
	}
	return cfg
}
