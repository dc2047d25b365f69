package pvs

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

// Analyzer is a block-rate phase vocoder. It turns a stream of audio samples
// into AmpFreq or AmpPhase frames, one every overlap samples.
type Analyzer struct {
	frame   *Frame
	overlap int

	window    []float64
	windowSum float64

	history  []float64 // circular input buffer of the last Size samples
	pos      int
	sinceHop int

	windowed  []float64
	lastPhase []float64
}

// NewAnalyzer creates a phase vocoder producing frames of the given size every
// overlap samples
func NewAnalyzer(format Format, size, overlap int, sampleRate float64) (*Analyzer, error) {
	if format != FormatAmpFreq && format != FormatAmpPhase {
		return nil, fmt.Errorf("analyzer produces amp_freq or amp_phase frames, got %s", format)
	}
	if size <= 0 || size%2 != 0 {
		return nil, fmt.Errorf("fft size must be positive and even, got %d", size)
	}
	if overlap <= 0 || overlap > size {
		return nil, fmt.Errorf("overlap must be in 1..%d, got %d", size, overlap)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %g", sampleRate)
	}

	win := window.Hann(size)
	sum := 0.0
	for _, w := range win {
		sum += w
	}

	return &Analyzer{
		frame:     NewFrame(format, size, sampleRate),
		overlap:   overlap,
		window:    win,
		windowSum: sum,
		history:   make([]float64, size),
		windowed:  make([]float64, size),
		lastPhase: make([]float64, size/2+1),
	}, nil
}

// Frame returns the frame this analyzer writes into
func (a *Analyzer) Frame() *Frame {
	return a.frame
}

// Process consumes one control period of audio. Every completed hop rewrites
// the frame and publishes it at the offset of the sample that completed it.
func (a *Analyzer) Process(block []float64) {
	for n, x := range block {
		a.history[a.pos] = x
		a.pos = (a.pos + 1) % len(a.history)

		a.sinceHop++
		if a.sinceHop == a.overlap {
			a.sinceHop = 0
			a.analyze()
			a.frame.Publish(n)
		}
	}
}

func (a *Analyzer) analyze() {
	size := len(a.history)
	for i := range size {
		a.windowed[i] = a.history[(a.pos+i)%size] * a.window[i]
	}

	spectrum := fft.FFTReal(a.windowed)

	binWidth := a.frame.SampleRate / float64(size)
	expected := 2 * math.Pi * float64(a.overlap) / float64(size)
	norm := 0.0
	if a.windowSum > 0 {
		norm = 2 / a.windowSum
	}

	for k := range a.frame.Bins {
		mag, phase := cmplx.Polar(spectrum[k])
		bin := &a.frame.Bins[k]
		bin.Amp = mag * norm

		if a.frame.Format == FormatAmpPhase {
			bin.Freq = phase
			continue
		}

		delta := wrapPhase(phase - a.lastPhase[k] - float64(k)*expected)
		a.lastPhase[k] = phase
		bin.Freq = (float64(k) + delta/expected) * binWidth
	}
}

// wrapPhase maps a phase onto [-pi, pi)
func wrapPhase(p float64) float64 {
	return p - 2*math.Pi*math.Floor((p+math.Pi)/(2*math.Pi))
}
