package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/RyanBlaney/sonido-pvs/algorithms/pvs"
)

// Estimator names accepted in AnalysisConfig.Estimators
const (
	EstimatorCentroid = "centroid"
	EstimatorPitch    = "pitch"
)

// Config is the complete configuration of an analysis run
type Config struct {
	LogLevel     string `json:"log_level" yaml:"log_level" mapstructure:"log_level"`
	OutputFormat string `json:"output_format" yaml:"output_format" mapstructure:"output_format"` // table, json, yaml, csv

	Analysis AnalysisConfig `json:"analysis" yaml:"analysis" mapstructure:"analysis"`
	Decoder  DecoderConfig  `json:"decoder" yaml:"decoder" mapstructure:"decoder"`
}

// AnalysisConfig describes the phase vocoder and the estimators run on it
type AnalysisConfig struct {
	SampleRate    int      `json:"sample_rate" yaml:"sample_rate" mapstructure:"sample_rate"`
	FFTSize       int      `json:"fft_size" yaml:"fft_size" mapstructure:"fft_size"`
	Overlap       int      `json:"overlap" yaml:"overlap" mapstructure:"overlap"`                      // hop size in samples
	ControlPeriod int      `json:"control_period" yaml:"control_period" mapstructure:"control_period"` // samples per control period (ksmps)
	Format        string   `json:"format" yaml:"format" mapstructure:"format"`                         // "amp_freq" or "amp_phase"
	Sliding       bool     `json:"sliding" yaml:"sliding" mapstructure:"sliding"`
	FullScale     float64  `json:"full_scale" yaml:"full_scale" mapstructure:"full_scale"` // 0 dBFS amplitude
	Threshold     float64  `json:"threshold" yaml:"threshold" mapstructure:"threshold"`    // pitch peak threshold, normalized to FullScale
	Estimators    []string `json:"estimators" yaml:"estimators" mapstructure:"estimators"`
}

// DecoderConfig holds the settings passed on to the ffmpeg decoder
type DecoderConfig struct {
	FFmpegPath string        `json:"ffmpeg_path" yaml:"ffmpeg_path" mapstructure:"ffmpeg_path"`
	Timeout    time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
}

// DefaultConfig returns sensible defaults for an analysis run
func DefaultConfig() *Config {
	return &Config{
		LogLevel:     "info",
		OutputFormat: "table",
		Analysis:     DefaultAnalysisConfig(),
		Decoder: DecoderConfig{
			FFmpegPath: "ffmpeg",
			Timeout:    30 * time.Second,
		},
	}
}

// DefaultAnalysisConfig returns a 1024-point amp-freq analysis at 44.1 kHz
func DefaultAnalysisConfig() AnalysisConfig {
	return AnalysisConfig{
		SampleRate:    44100,
		FFTSize:       1024,
		Overlap:       256,
		ControlPeriod: 64,
		Format:        pvs.FormatAmpFreq.String(),
		Sliding:       false,
		FullScale:     1.0,
		Threshold:     0.01,
		Estimators:    []string{EstimatorCentroid, EstimatorPitch},
	}
}

// Validate checks the analysis parameters
func (c AnalysisConfig) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive")
	}
	if c.FFTSize <= 0 || c.FFTSize%2 != 0 {
		return fmt.Errorf("fft size must be positive and even, got %d", c.FFTSize)
	}
	if c.Overlap <= 0 || c.Overlap > c.FFTSize {
		return fmt.Errorf("overlap must be between 1 and fft size, got %d", c.Overlap)
	}
	if c.ControlPeriod <= 0 {
		return fmt.Errorf("control period must be positive")
	}
	if _, err := c.SpectralFormat(); err != nil {
		return err
	}
	if c.FullScale <= 0 {
		return fmt.Errorf("full scale reference must be positive")
	}
	if c.Threshold < 0 {
		return fmt.Errorf("threshold cannot be negative")
	}
	if len(c.Estimators) == 0 {
		return fmt.Errorf("at least one estimator must be enabled")
	}
	for _, name := range c.Estimators {
		if name != EstimatorCentroid && name != EstimatorPitch {
			return fmt.Errorf("unknown estimator %q", name)
		}
	}
	return nil
}

// SpectralFormat parses Format
func (c AnalysisConfig) SpectralFormat() (pvs.Format, error) {
	format, err := pvs.ParseFormat(c.Format)
	if err != nil {
		return 0, fmt.Errorf("invalid analysis format: %w", err)
	}
	return format, nil
}

// Enabled reports whether the named estimator is requested
func (c AnalysisConfig) Enabled(name string) bool {
	return slices.Contains(c.Estimators, name)
}

// Validate checks the whole configuration
func (c *Config) Validate() error {
	switch c.OutputFormat {
	case "table", "json", "yaml", "csv":
	default:
		return fmt.Errorf("unsupported output format %q", c.OutputFormat)
	}
	if err := c.Analysis.Validate(); err != nil {
		return fmt.Errorf("analysis: %w", err)
	}
	if c.Decoder.Timeout < 0 {
		return fmt.Errorf("decoder: timeout cannot be negative")
	}
	return nil
}

// SetDefaults registers DefaultConfig on v
func SetDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("output_format", d.OutputFormat)

	v.SetDefault("analysis.sample_rate", d.Analysis.SampleRate)
	v.SetDefault("analysis.fft_size", d.Analysis.FFTSize)
	v.SetDefault("analysis.overlap", d.Analysis.Overlap)
	v.SetDefault("analysis.control_period", d.Analysis.ControlPeriod)
	v.SetDefault("analysis.format", d.Analysis.Format)
	v.SetDefault("analysis.sliding", d.Analysis.Sliding)
	v.SetDefault("analysis.full_scale", d.Analysis.FullScale)
	v.SetDefault("analysis.threshold", d.Analysis.Threshold)
	v.SetDefault("analysis.estimators", d.Analysis.Estimators)

	v.SetDefault("decoder.ffmpeg_path", d.Decoder.FFmpegPath)
	v.SetDefault("decoder.timeout", d.Decoder.Timeout)
}

// NewViper returns a viper instance with defaults and PVS_ environment
// overrides, reading path when it is not empty
func NewViper(path string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix("PVS")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("unable to read config file %s: %w", path, err)
		}
	}

	return v, nil
}

// FromViper decodes and validates the configuration held by v
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads the configuration file at path (optional) on top of the defaults
func Load(path string) (*Config, error) {
	v, err := NewViper(path)
	if err != nil {
		return nil, err
	}
	return FromViper(v)
}
