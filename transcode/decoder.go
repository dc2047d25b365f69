package transcode

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/RyanBlaney/sonido-pvs/logging"
)

// AudioData represents decoded mono audio ready for phase vocoder analysis
type AudioData struct {
	PCM        []float64     `json:"-"`
	SampleRate int           `json:"sample_rate"`
	Channels   int           `json:"channels"`
	Duration   time.Duration `json:"duration"`
	Source     string        `json:"source"`
}

// DecoderConfig holds decoder configuration
type DecoderConfig struct {
	TargetSampleRate int           `json:"target_sample_rate"`
	MaxDuration      time.Duration `json:"max_duration"`
	FFmpegPath       string        `json:"ffmpeg_path"` // Path to ffmpeg binary
	Timeout          time.Duration `json:"timeout"`     // Timeout for ffmpeg operations
}

// DefaultDecoderConfig returns default decoder configuration
func DefaultDecoderConfig() *DecoderConfig {
	return &DecoderConfig{
		TargetSampleRate: 44100,
		MaxDuration:      0, // No limit
		FFmpegPath:       "ffmpeg",
		Timeout:          30 * time.Second,
	}
}

// Decoder turns audio files into mono float64 PCM using FFmpeg
type Decoder struct {
	config *DecoderConfig
}

// NewDecoder creates a new audio decoder
func NewDecoder(config *DecoderConfig) *Decoder {
	if config == nil {
		config = DefaultDecoderConfig()
	}
	return &Decoder{config: config}
}

// DecodeFile decodes an audio file to mono PCM at the target sample rate
func (d *Decoder) DecodeFile(ctx context.Context, filename string) (*AudioData, error) {
	logger := logging.WithFields(logging.Fields{
		"component": "audio_decoder",
		"function":  "DecodeFile",
		"filename":  filename,
	})

	if _, err := os.Stat(filename); err != nil {
		return nil, fmt.Errorf("cannot open audio file: %w", err)
	}

	if d.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.config.Timeout)
		defer cancel()
	}

	args := d.buildFFmpegArgs(filename)
	cmd := exec.CommandContext(ctx, d.config.FFmpegPath, args...)

	logger.Debug("Running ffmpeg command", logging.Fields{
		"args": strings.Join(args, " "),
	})

	output, err := cmd.Output()
	if err != nil {
		var exitError *exec.ExitError
		if errors.As(err, &exitError) {
			logger.Error(err, "Ffmpeg decode failed", logging.Fields{
				"stderr": string(exitError.Stderr),
			})
		}
		return nil, fmt.Errorf("ffmpeg decode failed: %w", err)
	}

	audio, err := d.processOutput(output, filename)
	if err != nil {
		return nil, err
	}

	logger.Debug("FFmpeg decode completed successfully", logging.Fields{
		"output_samples":     len(audio.PCM),
		"output_sample_rate": audio.SampleRate,
		"output_duration":    audio.Duration.Seconds(),
	})

	return audio, nil
}

// buildFFmpegArgs builds the ffmpeg arguments for a mono f64le decode to stdout
func (d *Decoder) buildFFmpegArgs(filename string) []string {
	args := []string{
		"-i", filename,
		"-f", "f64le",
		"-ac", "1",
		"-ar", strconv.Itoa(d.config.TargetSampleRate),
	}

	if d.config.MaxDuration > 0 {
		args = append(args, "-t", fmt.Sprintf("%.2f", d.config.MaxDuration.Seconds()))
	}

	// Suppress ffmpeg output
	args = append(args, "-v", "error", "pipe:1")

	return args
}

// processOutput wraps raw ffmpeg output as AudioData
func (d *Decoder) processOutput(output []byte, source string) (*AudioData, error) {
	samples := bytesToFloat64(output)
	if len(samples) == 0 {
		return nil, fmt.Errorf("no audio samples decoded")
	}

	duration := time.Duration(len(samples)) * time.Second / time.Duration(d.config.TargetSampleRate)

	return &AudioData{
		PCM:        samples,
		SampleRate: d.config.TargetSampleRate,
		Channels:   1,
		Duration:   duration,
		Source:     source,
	}, nil
}

// bytesToFloat64 converts raw little-endian float64 bytes, dropping a trailing partial sample
func bytesToFloat64(data []byte) []float64 {
	if len(data)%8 != 0 {
		data = data[:len(data)-(len(data)%8)]
	}

	if len(data) == 0 {
		return nil
	}

	sampleCount := len(data) / 8
	samples := make([]float64, sampleCount)

	for i := range sampleCount {
		bits := binary.LittleEndian.Uint64(data[i*8 : i*8+8])
		samples[i] = math.Float64frombits(bits)
	}

	return samples
}

// ValidateConfig validates the decoder configuration
func (d *Decoder) ValidateConfig() error {
	if d.config.TargetSampleRate <= 0 {
		return fmt.Errorf("target sample rate must be positive: %d", d.config.TargetSampleRate)
	}

	if d.config.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative: %v", d.config.Timeout)
	}

	if d.config.FFmpegPath == "" {
		return fmt.Errorf("ffmpeg path is empty")
	}

	return nil
}

// CheckFFmpeg verifies that the configured ffmpeg binary can be run
func (d *Decoder) CheckFFmpeg(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, d.config.FFmpegPath, "-version")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg not found at %s: %w", d.config.FFmpegPath, err)
	}
	return nil
}
