package pvs

import (
	"fmt"
	"math"
	"math/cmplx"
)

// amplitudeFloor is the smallest amplitude a sliding bin reports. The running
// DFT never cancels exactly, so anything below it is flushed to zero.
const amplitudeFloor = 1e-12

// SlidingAnalyzer is a sliding DFT that recomputes every bin for every input
// sample, producing sample-accurate sliding frames.
type SlidingAnalyzer struct {
	frame *Frame

	history []float64
	pos     int

	bins      []complex128
	twiddle   []complex128
	lastPhase []float64
}

// NewSlidingAnalyzer creates a sliding DFT of the given size whose frame holds
// one set of size/2+1 bins per sample of a controlPeriod-sample period
func NewSlidingAnalyzer(size int, sampleRate float64, controlPeriod int) (*SlidingAnalyzer, error) {
	if size <= 0 || size%2 != 0 {
		return nil, fmt.Errorf("fft size must be positive and even, got %d", size)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %g", sampleRate)
	}
	if controlPeriod <= 0 {
		return nil, fmt.Errorf("control period must be positive, got %d", controlPeriod)
	}

	numBins := size/2 + 1
	twiddle := make([]complex128, numBins)
	for k := range twiddle {
		twiddle[k] = cmplx.Rect(1, 2*math.Pi*float64(k)/float64(size))
	}

	return &SlidingAnalyzer{
		frame:     NewSlidingFrame(FormatAmpFreq, size, sampleRate, numBins, controlPeriod),
		history:   make([]float64, size),
		bins:      make([]complex128, numBins),
		twiddle:   twiddle,
		lastPhase: make([]float64, numBins),
	}, nil
}

// Frame returns the sliding frame this analyzer writes into
func (s *SlidingAnalyzer) Frame() *Frame {
	return s.frame
}

// Process consumes up to one control period of audio, filling one slide per
// sample. Sliding frames are always current, so the frame is published once
// per call.
func (s *SlidingAnalyzer) Process(block []float64) {
	if len(block) > len(s.frame.Slides) {
		block = block[:len(s.frame.Slides)]
	}

	size := float64(len(s.history))
	toHz := s.frame.SampleRate / (2 * math.Pi)

	for n, x := range block {
		delta := complex(x-s.history[s.pos], 0)
		s.history[s.pos] = x
		s.pos = (s.pos + 1) % len(s.history)

		slide := s.frame.Slides[n]
		for k := range s.bins {
			s.bins[k] = (s.bins[k] + delta) * s.twiddle[k]

			mag, phase := cmplx.Polar(s.bins[k])
			freq := wrapPhase(phase-s.lastPhase[k]) * toHz
			s.lastPhase[k] = phase

			amp := 2 * mag / size
			if amp < amplitudeFloor {
				amp = 0
			}
			slide[k] = complex(amp, freq)
		}
	}

	s.frame.Publish(0)
}
