package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/sonido-pvs/analysis"
	"github.com/RyanBlaney/sonido-pvs/config"
	"github.com/RyanBlaney/sonido-pvs/logging"
	"github.com/RyanBlaney/sonido-pvs/transcode"
)

var (
	analyzeTone     float64
	analyzePartials int
	analyzeDuration time.Duration
	analyzeEvery    int
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [file]",
	Short: "Estimate spectral centroid and pitch per control period",
	Long: `Analyze an audio file (decoded with ffmpeg) or a synthetic harmonic tone.

Every control period of --ksmps samples is fed to the phase vocoder and the
enabled estimators. The report lists the centroid, pitch and frame energy of
each period followed by a summary.

Examples:
  # Analyze a file with the default 1024-point amp_freq analysis
  pvsanalyze analyze voice.wav

  # A 220 Hz tone with 6 partials, as JSON
  pvsanalyze analyze --tone 220 --partials 6 --duration 2s -o json

  # Sample-accurate centroid from a sliding analysis
  pvsanalyze analyze --tone 440 --sliding --fft-size 256 --estimators centroid`,
	Args: func(cmd *cobra.Command, args []string) error {
		if analyzeTone > 0 {
			if len(args) != 0 {
				return fmt.Errorf("--tone and a file argument are mutually exclusive")
			}
			return nil
		}
		if len(args) != 1 {
			return fmt.Errorf("requires exactly one audio file or --tone")
		}
		return nil
	},
	RunE: runAnalyze,
}

// commandKeys maps per-command flags onto configuration keys
var commandKeys = map[string]map[string]string{
	"analyze": {
		"sample-rate": "analysis.sample_rate",
		"fft-size":    "analysis.fft_size",
		"overlap":     "analysis.overlap",
		"ksmps":       "analysis.control_period",
		"format":      "analysis.format",
		"sliding":     "analysis.sliding",
		"full-scale":  "analysis.full_scale",
		"threshold":   "analysis.threshold",
		"estimators":  "analysis.estimators",
		"ffmpeg":      "decoder.ffmpeg_path",
		"timeout":     "decoder.timeout",
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	d := config.DefaultConfig()
	flags := analyzeCmd.Flags()

	flags.Float64Var(&analyzeTone, "tone", 0,
		"analyze a synthetic harmonic tone at this fundamental (Hz) instead of a file")
	flags.IntVar(&analyzePartials, "partials", 4,
		"number of partials in the synthetic tone")
	flags.DurationVar(&analyzeDuration, "duration", 0,
		"tone length (default 1s), or maximum decode length for files (0=whole file)")
	flags.IntVar(&analyzeEvery, "every", 1,
		"print every n-th period in table and csv output")

	flags.Int("sample-rate", d.Analysis.SampleRate, "analysis sample rate")
	flags.Int("fft-size", d.Analysis.FFTSize, "phase vocoder frame size")
	flags.Int("overlap", d.Analysis.Overlap, "hop size between frames in samples")
	flags.Int("ksmps", d.Analysis.ControlPeriod, "samples per control period")
	flags.String("format", d.Analysis.Format, "frame format (amp_freq, amp_phase)")
	flags.Bool("sliding", d.Analysis.Sliding, "use a sliding DFT instead of block frames")
	flags.Float64("full-scale", d.Analysis.FullScale, "amplitude of 0 dBFS")
	flags.Float64("threshold", d.Analysis.Threshold, "pitch peak threshold relative to full scale")
	flags.StringSlice("estimators", d.Analysis.Estimators, "estimators to run (centroid, pitch)")
	flags.String("ffmpeg", d.Decoder.FFmpegPath, "path to the ffmpeg binary")
	flags.Duration("timeout", d.Decoder.Timeout, "ffmpeg decode timeout")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger := logging.WithFields(logging.Fields{
		"component": "pvsanalyze",
	})

	source, samples, err := loadSignal(ctx, cfg, args)
	if err != nil {
		return err
	}

	session, err := analysis.NewSession(cfg.Analysis, logger)
	if err != nil {
		return err
	}

	start := time.Now()
	results, err := session.Run(ctx, samples)
	if err != nil {
		return err
	}

	logger.Debug("Analysis completed", logging.Fields{
		"source":     source,
		"periods":    len(results),
		"elapsed_ms": time.Since(start).Milliseconds(),
	})

	report := &Report{
		Source:   source,
		Samples:  len(samples),
		Analysis: cfg.Analysis,
		Summary:  analysis.Summarize(results),
		Results:  results,
	}

	return writeReport(os.Stdout, cfg.OutputFormat, report, analyzeEvery)
}

// loadSignal synthesizes the --tone signal or decodes the file argument
func loadSignal(ctx context.Context, cfg *config.Config, args []string) (string, []float64, error) {
	sampleRate := float64(cfg.Analysis.SampleRate)

	if analyzeTone > 0 {
		if analyzeTone >= sampleRate/2 {
			return "", nil, fmt.Errorf("tone %.1f Hz is at or above Nyquist", analyzeTone)
		}
		duration := analyzeDuration
		if duration == 0 {
			duration = time.Second
		}
		if duration < 0 {
			return "", nil, fmt.Errorf("tone duration cannot be negative")
		}
		source := fmt.Sprintf("tone:%.2fHz/%d", analyzeTone, analyzePartials)
		return source, analysis.HarmonicTone(analyzeTone, analyzePartials, 0.8, sampleRate, duration.Seconds()), nil
	}

	decoder := transcode.NewDecoder(&transcode.DecoderConfig{
		TargetSampleRate: cfg.Analysis.SampleRate,
		MaxDuration:      analyzeDuration,
		FFmpegPath:       cfg.Decoder.FFmpegPath,
		Timeout:          cfg.Decoder.Timeout,
	})
	if err := decoder.ValidateConfig(); err != nil {
		return "", nil, err
	}
	if err := decoder.CheckFFmpeg(ctx); err != nil {
		return "", nil, err
	}

	audio, err := decoder.DecodeFile(ctx, args[0])
	if err != nil {
		return "", nil, fmt.Errorf("failed to decode %s: %w", args[0], err)
	}
	return audio.Source, audio.PCM, nil
}
