package pvs

import (
	"fmt"
)

// Format identifies how each bin of a block-rate frame is laid out
type Format int

const (
	FormatAmpFreq  Format = iota // amplitude, frequency in Hz
	FormatAmpPhase               // amplitude, phase in radians
	FormatComplex                // real, imaginary
	FormatTracks                 // partial tracks
)

func (f Format) String() string {
	switch f {
	case FormatAmpFreq:
		return "amp_freq"
	case FormatAmpPhase:
		return "amp_phase"
	case FormatComplex:
		return "complex"
	case FormatTracks:
		return "tracks"
	default:
		return "unknown"
	}
}

// ParseFormat maps a config string onto a Format
func ParseFormat(s string) (Format, error) {
	switch s {
	case "amp_freq", "ampfreq", "":
		return FormatAmpFreq, nil
	case "amp_phase", "ampphase":
		return FormatAmpPhase, nil
	case "complex":
		return FormatComplex, nil
	case "tracks":
		return FormatTracks, nil
	}
	return 0, fmt.Errorf("unknown spectral format %q", s)
}

// Bin is one block-rate frequency-domain sample.
// Freq holds the tracked frequency for FormatAmpFreq and the phase for FormatAmpPhase.
type Bin struct {
	Amp  float64
	Freq float64
}

// Frame is a phase vocoder analysis frame owned by its producer and read by
// estimators each control period.
//
// A frame is one of two variants, selected by Sliding:
//
//	block:   Bins holds Size/2+1 bins for DC..Nyquist
//	sliding: Slides[n] holds BinCount complex bins for audio sample n of the
//	         control period (real = amplitude, imaginary = frequency in Hz)
//
// Sequence is incremented exactly once per completed analysis frame and never
// decreases. Zero means no frame has been produced yet.
type Frame struct {
	Format     Format
	Size       int     // FFT size N
	SampleRate float64 // Hz
	Sliding    bool
	BinCount   int // NB, sliding frames only

	Sequence uint64
	ReadyAt  int // sample offset within the control period where the latest frame became available

	Bins   []Bin
	Slides [][]complex128
}

// NewFrame allocates a block-rate frame for an N-point analysis
func NewFrame(format Format, size int, sampleRate float64) *Frame {
	return &Frame{
		Format:     format,
		Size:       size,
		SampleRate: sampleRate,
		Bins:       make([]Bin, size/2+1),
	}
}

// NewSlidingFrame allocates a sliding frame holding binCount bins for each of
// the controlPeriod samples in a period
func NewSlidingFrame(format Format, size int, sampleRate float64, binCount, controlPeriod int) *Frame {
	slides := make([][]complex128, controlPeriod)
	for n := range slides {
		slides[n] = make([]complex128, binCount)
	}

	return &Frame{
		Format:     format,
		Size:       size,
		SampleRate: sampleRate,
		Sliding:    true,
		BinCount:   binCount,
		Slides:     slides,
	}
}

// NumBins is the number of block-rate bins, N/2+1
func (f *Frame) NumBins() int {
	return f.Size/2 + 1
}

// BinSize is the spacing used for bin-center weighting, 0.5*sr/N
func (f *Frame) BinSize() float64 {
	if f.Size == 0 {
		return 0
	}
	return 0.5 * f.SampleRate / float64(f.Size)
}

// Publish marks a newly completed frame, readyAt samples into the current period
func (f *Frame) Publish(readyAt int) {
	f.Sequence++
	f.ReadyAt = readyAt
}

// Validate checks that the frame is well formed for its variant
func (f *Frame) Validate() error {
	if f.Size <= 0 || f.Size%2 != 0 {
		return &ConfigError{Op: "frame", Reason: fmt.Sprintf("fft size must be positive and even, got %d", f.Size)}
	}
	if f.SampleRate <= 0 {
		return &ConfigError{Op: "frame", Reason: fmt.Sprintf("sample rate must be positive, got %g", f.SampleRate)}
	}

	if f.Sliding {
		if f.BinCount <= 0 || f.BinCount > f.NumBins() {
			return &ConfigError{Op: "frame", Reason: fmt.Sprintf("bin count %d out of range 1..%d", f.BinCount, f.NumBins())}
		}
		for n, slide := range f.Slides {
			if len(slide) != f.BinCount {
				return &ConfigError{Op: "frame", Reason: fmt.Sprintf("sample %d carries %d bins, want %d", n, len(slide), f.BinCount)}
			}
		}
		return nil
	}

	if len(f.Bins) != f.NumBins() {
		return &ConfigError{Op: "frame", Reason: fmt.Sprintf("frame carries %d bins, want %d", len(f.Bins), f.NumBins())}
	}
	return nil
}
