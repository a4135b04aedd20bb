// Package config loads and validates the pipeline configuration from a YAML
// file, applying defaults for anything omitted.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/archlab/deflect/internal/types"
)

// Config is the full pipeline configuration.
type Config struct {
	// InputFile is the tidy long-format CSV of trial measurements.
	InputFile string `yaml:"input_file"`

	// OutputDir receives the exported tables and figures.
	OutputDir string `yaml:"output_dir"`

	// PooledMethod selects which method's aligned data feeds the global fit.
	PooledMethod types.Method `yaml:"pooled_method"`

	Fit     FitConfig     `yaml:"fit"`
	Extrema ExtremaConfig `yaml:"extrema"`
	Render  RenderConfig  `yaml:"render"`
}

// FitConfig bounds the nonlinear least-squares solver.
type FitConfig struct {
	MaxIterations int     `yaml:"max_iterations"`
	Tolerance     float64 `yaml:"tolerance"`

	// CurveSamples is the sampling resolution used when a fitted curve is
	// drawn or exported.
	CurveSamples int `yaml:"curve_samples"`
}

// ExtremaConfig controls global extremum detection.
type ExtremaConfig struct {
	CurveSamples     int     `yaml:"curve_samples"`
	MinSeparationDeg float64 `yaml:"min_separation_deg"`
}

// RenderConfig controls figure generation.
type RenderConfig struct {
	Enabled      bool    `yaml:"enabled"`
	WidthInches  float64 `yaml:"width_inches"`
	HeightInches float64 `yaml:"height_inches"`
}

// Default returns the configuration used when a field is omitted.
func Default() Config {
	return Config{
		InputFile:    "deflection_long.csv",
		OutputDir:    "angle_deflection_output",
		PooledMethod: types.MethodASTM,
		Fit: FitConfig{
			MaxIterations: 200,
			Tolerance:     1e-10,
			CurveSamples:  400,
		},
		Extrema: ExtremaConfig{
			CurveSamples:     1200,
			MinSeparationDeg: 60,
		},
		Render: RenderConfig{
			Enabled:      true,
			WidthInches:  8,
			HeightInches: 6,
		},
	}
}

// Load reads the YAML file at path over the defaults and validates the
// result.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for values the pipeline cannot run with.
func (c Config) Validate() error {
	if c.InputFile == "" {
		return fmt.Errorf("input_file must be set")
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output_dir must be set")
	}
	if _, err := types.ParseMethod(string(c.PooledMethod)); err != nil {
		return fmt.Errorf("pooled_method: %w", err)
	}
	if c.Fit.MaxIterations <= 0 {
		return fmt.Errorf("fit.max_iterations must be positive, got %d", c.Fit.MaxIterations)
	}
	if c.Fit.Tolerance <= 0 {
		return fmt.Errorf("fit.tolerance must be positive, got %g", c.Fit.Tolerance)
	}
	if c.Fit.CurveSamples < 2 {
		return fmt.Errorf("fit.curve_samples must be at least 2, got %d", c.Fit.CurveSamples)
	}
	if c.Extrema.CurveSamples < 1000 {
		return fmt.Errorf("extrema.curve_samples must be at least 1000, got %d", c.Extrema.CurveSamples)
	}
	if c.Extrema.MinSeparationDeg <= 0 || c.Extrema.MinSeparationDeg > 180 {
		return fmt.Errorf("extrema.min_separation_deg must be in (0, 180], got %g", c.Extrema.MinSeparationDeg)
	}
	if c.Render.Enabled && (c.Render.WidthInches <= 0 || c.Render.HeightInches <= 0) {
		return fmt.Errorf("render dimensions must be positive")
	}
	return nil
}
