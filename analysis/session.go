package analysis

import (
	"context"
	"fmt"

	"github.com/RyanBlaney/sonido-pvs/algorithms/harmonic"
	"github.com/RyanBlaney/sonido-pvs/algorithms/pvs"
	"github.com/RyanBlaney/sonido-pvs/algorithms/spectral"
	"github.com/RyanBlaney/sonido-pvs/config"
	"github.com/RyanBlaney/sonido-pvs/logging"
)

// frameSource is a phase vocoder that writes into a shared frame
type frameSource interface {
	Process(block []float64)
	Frame() *pvs.Frame
}

// Result holds the estimator outputs for one control period
type Result struct {
	Period    int     `json:"period" yaml:"period"`
	Time      float64 `json:"time" yaml:"time"` // seconds at the start of the period
	Frame     uint64  `json:"frame" yaml:"frame"`
	Centroid  float64 `json:"centroid" yaml:"centroid"`
	Pitch     float64 `json:"pitch" yaml:"pitch"`
	Amplitude float64 `json:"amplitude" yaml:"amplitude"`
}

// Session drives a phase vocoder and the configured estimators over audio,
// one control period at a time
type Session struct {
	cfg    config.AnalysisConfig
	source frameSource

	centroid *spectral.PVSCentroid
	pitch    *harmonic.PVSPitch

	stream []float64 // per-sample centroid output of every Run
	logger logging.Logger
}

// NewSession builds the analyzer and estimators described by cfg. Estimators
// that cannot read the analyzer's frames fail here with a *pvs.ConfigError.
func NewSession(cfg config.AnalysisConfig, logger logging.Logger) (*Session, error) {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	logger = logger.WithFields(logging.Fields{
		"component": "analysis_session",
	})

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid analysis config: %w", err)
	}
	format, err := cfg.SpectralFormat()
	if err != nil {
		return nil, err
	}

	var source frameSource
	sampleRate := float64(cfg.SampleRate)
	if cfg.Sliding {
		if format != pvs.FormatAmpFreq {
			logger.Warn("Sliding analysis always produces amp_freq bins", logging.Fields{
				"requested_format": format.String(),
			})
		}
		source, err = pvs.NewSlidingAnalyzer(cfg.FFTSize, sampleRate, cfg.ControlPeriod)
	} else {
		source, err = pvs.NewAnalyzer(format, cfg.FFTSize, cfg.Overlap, sampleRate)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create analyzer: %w", err)
	}

	s := &Session{
		cfg:    cfg,
		source: source,
		logger: logger,
	}

	if cfg.Enabled(config.EstimatorCentroid) {
		if s.centroid, err = spectral.NewPVSCentroid(source.Frame()); err != nil {
			return nil, fmt.Errorf("failed to create centroid estimator: %w", err)
		}
	}
	if cfg.Enabled(config.EstimatorPitch) {
		if s.pitch, err = harmonic.NewPVSPitch(source.Frame(), cfg.FullScale); err != nil {
			return nil, fmt.Errorf("failed to create pitch estimator: %w", err)
		}
	}

	logger.Debug("Session created", logging.Fields{
		"fft_size":       cfg.FFTSize,
		"overlap":        cfg.Overlap,
		"control_period": cfg.ControlPeriod,
		"sliding":        cfg.Sliding,
		"estimators":     cfg.Estimators,
	})

	return s, nil
}

// Run analyzes signal in control periods and returns one Result per period.
// Results gathered before a cancellation are returned with the error.
func (s *Session) Run(ctx context.Context, signal []float64) ([]Result, error) {
	period := s.cfg.ControlPeriod
	sampleRate := float64(s.cfg.SampleRate)
	frame := s.source.Frame()

	s.logger.Info("Starting analysis", logging.Fields{
		"samples":  len(signal),
		"duration": float64(len(signal)) / sampleRate,
	})

	results := make([]Result, 0, (len(signal)+period-1)/period)
	for start := 0; start < len(signal); start += period {
		if err := ctx.Err(); err != nil {
			s.logger.Warn("Analysis cancelled", logging.Fields{"periods": len(results)})
			return results, fmt.Errorf("analysis cancelled: %w", err)
		}

		block := signal[start:min(start+period, len(signal))]
		s.source.Process(block)

		r := Result{
			Period: len(results),
			Time:   float64(start) / sampleRate,
			Frame:  frame.Sequence,
		}
		if s.centroid != nil {
			values := s.centroid.ComputeStream(frame, len(block))
			s.stream = append(s.stream, values...)
			r.Centroid = values[len(values)-1]
		}
		if s.pitch != nil {
			r.Pitch, r.Amplitude = s.pitch.Compute(frame, s.cfg.Threshold)
		}

		results = append(results, r)
	}

	s.logger.Info("Analysis finished", logging.Fields{
		"periods": len(results),
		"frames":  frame.Sequence,
	})

	return results, nil
}

// Stream returns the per-sample centroid output accumulated so far
func (s *Session) Stream() []float64 {
	out := make([]float64, len(s.stream))
	copy(out, s.stream)
	return out
}

// Frame returns the frame shared by the analyzer and the estimators
func (s *Session) Frame() *pvs.Frame {
	return s.source.Frame()
}

// Config returns the configuration the session was built with
func (s *Session) Config() config.AnalysisConfig {
	return s.cfg
}
