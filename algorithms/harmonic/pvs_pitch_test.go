package harmonic

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/sonido-pvs/algorithms/pvs"
)

const (
	pitchTestSampleRate = 44100.0
	pitchTestSize       = 64
	pitchTestThreshold  = 0.1
)

type testPeak struct {
	bin  int
	amp  float64
	freq float64
}

// peakFrame builds a published amp-freq frame with a constant floor and the
// given peaks
func peakFrame(t *testing.T, floor float64, peaks ...testPeak) *pvs.Frame {
	t.Helper()
	frame := pvs.NewFrame(pvs.FormatAmpFreq, pitchTestSize, pitchTestSampleRate)
	for i := range frame.Bins {
		frame.Bins[i] = pvs.Bin{Amp: floor, Freq: float64(i) * pitchTestSampleRate / pitchTestSize}
	}
	for _, p := range peaks {
		frame.Bins[p.bin] = pvs.Bin{Amp: p.amp, Freq: p.freq}
	}
	frame.Publish(0)
	return frame
}

func newPitch(t *testing.T, frame *pvs.Frame) *PVSPitch {
	t.Helper()
	p, err := NewPVSPitch(frame, 1)
	require.NoError(t, err)
	return p
}

func TestNewPVSPitchRejectsFrames(t *testing.T) {
	tests := []struct {
		name   string
		frame  *pvs.Frame
		reason string
	}{
		{"sliding", pvs.NewSlidingFrame(pvs.FormatAmpFreq, 16, 44100, 9, 4), pvs.ReasonSlidingUnsupported},
		{"sliding amp-phase", pvs.NewSlidingFrame(pvs.FormatAmpPhase, 16, 44100, 9, 4), pvs.ReasonSlidingUnsupported},
		{"amp-phase", pvs.NewFrame(pvs.FormatAmpPhase, 16, 44100), pvs.ReasonAmpFreqRequired},
		{"complex", pvs.NewFrame(pvs.FormatComplex, 16, 44100), pvs.ReasonAmpFreqRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPVSPitch(tt.frame, 1)
			require.Error(t, err)

			var cfgErr *pvs.ConfigError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tt.reason, cfgErr.Reason)
		})
	}
}

func TestNewPVSPitchScratchCapacity(t *testing.T) {
	for _, size := range []int{4, 16, 64, 1024} {
		p, err := NewPVSPitch(pvs.NewFrame(pvs.FormatAmpFreq, size, 44100), 1)
		require.NoError(t, err)

		want := int(math.Ceil(float64(size+2) / 4))
		assert.Len(t, p.peakFreqs, want, "size %d", size)
		assert.Len(t, p.inharmonicity, want, "size %d", size)
	}
}

func TestPVSPitchSinglePeak(t *testing.T) {
	frame := peakFrame(t, 0.01, testPeak{bin: 5, amp: 1, freq: 440})
	p := newPitch(t, frame)

	freq, amp := p.Compute(frame, pitchTestThreshold)

	assert.InDelta(t, 440, freq, 1e-9)
	assert.Equal(t, []float64{440}, p.Peaks())
	assert.Equal(t, 0.0, p.inharmonicity[0])

	// the peak bin itself is skipped by the energy scan: 30 scanned floor bins plus DC and Nyquist
	assert.InDelta(t, 0.16, amp, 1e-12)
}

func TestPVSPitchNoPeaks(t *testing.T) {
	frame := peakFrame(t, 0.01)
	p := newPitch(t, frame)

	freq, amp := p.Compute(frame, 0.5)

	assert.Equal(t, 0.0, freq)
	assert.InDelta(t, 0.165, amp, 1e-12)
	assert.Empty(t, p.Peaks())
}

func TestPVSPitchSilentFrame(t *testing.T) {
	frame := peakFrame(t, 0)
	p := newPitch(t, frame)

	freq, amp := p.Compute(frame, 0)
	assert.Equal(t, 0.0, freq)
	assert.Equal(t, 0.0, amp)
}

func TestPVSPitchHarmonicSeries(t *testing.T) {
	frame := peakFrame(t, 0,
		testPeak{bin: 4, amp: 1, freq: 220},
		testPeak{bin: 8, amp: 0.8, freq: 440},
		testPeak{bin: 12, amp: 0.6, freq: 660},
		testPeak{bin: 16, amp: 0.4, freq: 880},
	)
	p := newPitch(t, frame)

	freq, _ := p.Compute(frame, pitchTestThreshold)
	assert.InDelta(t, 220, freq, 1e-9)
}

func TestPVSPitchMissingFundamental(t *testing.T) {
	frame := peakFrame(t, 0,
		testPeak{bin: 6, amp: 1, freq: 300},
		testPeak{bin: 10, amp: 1, freq: 500},
	)
	p := newPitch(t, frame)

	freq, _ := p.Compute(frame, pitchTestThreshold)
	assert.InDelta(t, 100, freq, 1e-9)
}

func TestPVSPitchLaterCandidateWithLowerInharmonicity(t *testing.T) {
	frame := peakFrame(t, 0,
		testPeak{bin: 4, amp: 1, freq: 200},
		testPeak{bin: 20, amp: 1, freq: 900},
	)
	p := newPitch(t, frame)

	freq, _ := p.Compute(frame, pitchTestThreshold)
	assert.InDelta(t, 100, freq, 1e-9)
}

func TestPVSPitchAdjacencyOverridesInharmonicity(t *testing.T) {
	// Only candidates 100, 50, 33.3, 25 and 20 Hz are tried. 100 Hz scores best but
	// its partials are not adjacent; 20 Hz is the first candidate with adjacent
	// partials and wins despite scoring worse.
	frame := peakFrame(t, 0,
		testPeak{bin: 2, amp: 1, freq: 100},
		testPeak{bin: 5, amp: 1, freq: 110},
		testPeak{bin: 10, amp: 1, freq: 400},
	)
	p := newPitch(t, frame)

	freq, _ := p.Compute(frame, pitchTestThreshold)

	assert.Less(t, p.inharmonicity[0], p.inharmonicity[4])
	assert.InDelta(t, (20+110.0/6+20)/3, freq, 1e-9)
}

func TestPVSPitchSkipsPeaksBelowHalfFundamental(t *testing.T) {
	// 30 Hz allows a single candidate. The 10 Hz peak rounds to harmonic 0 and is
	// left out of the average instead of dragging it down.
	frame := peakFrame(t, 0,
		testPeak{bin: 2, amp: 1, freq: 30},
		testPeak{bin: 6, amp: 1, freq: 10},
		testPeak{bin: 10, amp: 1, freq: 60},
	)
	p := newPitch(t, frame)

	freq, _ := p.Compute(frame, pitchTestThreshold)

	assert.Equal(t, []float64{30, 10, 60}, p.Peaks())
	assert.InDelta(t, 30, freq, 1e-9)
}

func TestPVSPitchFirstPeakBelowHearing(t *testing.T) {
	frame := peakFrame(t, 0,
		testPeak{bin: 1, amp: 1, freq: 15},
		testPeak{bin: 3, amp: 1, freq: 45},
	)
	p := newPitch(t, frame)

	freq, _ := p.Compute(frame, pitchTestThreshold)
	assert.Equal(t, 0.0, freq)
	assert.Len(t, p.Peaks(), 2)
}

func TestPVSPitchThresholdUsesFullScale(t *testing.T) {
	frame := peakFrame(t, 0, testPeak{bin: 5, amp: 1000, freq: 440})

	quiet, err := NewPVSPitch(frame, 32768)
	require.NoError(t, err)
	freq, _ := quiet.Compute(frame, 0.5)
	assert.Equal(t, 0.0, freq)

	loud, err := NewPVSPitch(frame, 1000)
	require.NoError(t, err)
	freq, _ = loud.Compute(frame, 0.5)
	assert.InDelta(t, 440, freq, 1e-9)
}

func TestPVSPitchNonPositiveFullScaleDefaultsToUnity(t *testing.T) {
	p, err := NewPVSPitch(pvs.NewFrame(pvs.FormatAmpFreq, 16, 44100), 0)
	require.NoError(t, err)
	assert.Equal(t, 1.0, p.fullScale)
}

func TestPVSPitchStaleFrameIsHeld(t *testing.T) {
	frame := peakFrame(t, 0.01, testPeak{bin: 5, amp: 1, freq: 440})
	p := newPitch(t, frame)

	f1, a1 := p.Compute(frame, pitchTestThreshold)

	frame.Bins[5].Freq = 880
	f2, a2 := p.Compute(frame, pitchTestThreshold)

	assert.Equal(t, math.Float64bits(f1), math.Float64bits(f2))
	assert.Equal(t, math.Float64bits(a1), math.Float64bits(a2))
	assert.Equal(t, 1, p.recomputes)

	frame.Publish(0)
	f3, _ := p.Compute(frame, pitchTestThreshold)
	assert.InDelta(t, 880, f3, 1e-9)
	assert.Equal(t, 2, p.recomputes)
}

func TestPVSPitchBeforeFirstFrame(t *testing.T) {
	frame := pvs.NewFrame(pvs.FormatAmpFreq, pitchTestSize, pitchTestSampleRate)
	frame.Bins[5] = pvs.Bin{Amp: 1, Freq: 440}

	p := newPitch(t, frame)
	freq, amp := p.Compute(frame, pitchTestThreshold)

	assert.Equal(t, 0.0, freq)
	assert.Equal(t, 0.0, amp)
	assert.Equal(t, 0, p.recomputes)
}

func TestPVSPitchPeakCapacityClamp(t *testing.T) {
	for _, size := range []int{8, 16, 64, 256} {
		frame := pvs.NewFrame(pvs.FormatAmpFreq, size, pitchTestSampleRate)
		// every odd bin is a peak
		for i := range frame.Bins {
			frame.Bins[i].Freq = 100 * float64(i)
			if i%2 == 1 {
				frame.Bins[i].Amp = 1
			}
		}
		frame.Publish(0)

		p, err := NewPVSPitch(frame, 1)
		require.NoError(t, err)

		assert.NotPanics(t, func() { p.Compute(frame, 0.5) })

		numBins := frame.NumBins()
		assert.Len(t, p.Peaks(), numBins/2, "size %d", size)
		assert.LessOrEqual(t, len(p.Peaks()), len(p.peakFreqs))
	}
}

func TestPVSPitchManyCandidatesBeyondScratch(t *testing.T) {
	// 8000/20 = 400 candidates, far beyond the scratch capacity of a 16-point frame
	frame := pvs.NewFrame(pvs.FormatAmpFreq, 16, pitchTestSampleRate)
	frame.Bins[2] = pvs.Bin{Amp: 1, Freq: 8000}
	frame.Bins[5] = pvs.Bin{Amp: 1, Freq: 12000}
	frame.Publish(0)

	p, err := NewPVSPitch(frame, 1)
	require.NoError(t, err)

	var freq float64
	require.NotPanics(t, func() { freq, _ = p.Compute(frame, 0.5) })
	assert.InDelta(t, 4000, freq, 1e-9)
}

func TestPVSPitchFromAnalyzer(t *testing.T) {
	const (
		sampleRate = 44100.0
		size       = 2048
		f0         = 220.0
	)

	a, err := pvs.NewAnalyzer(pvs.FormatAmpFreq, size, size/4, sampleRate)
	require.NoError(t, err)
	p, err := NewPVSPitch(a.Frame(), 1)
	require.NoError(t, err)

	signal := make([]float64, 8*size)
	for n := range signal {
		ts := float64(n) / sampleRate
		for h := 1; h <= 4; h++ {
			signal[n] += 0.5 / float64(h) * math.Sin(2*math.Pi*f0*float64(h)*ts)
		}
	}

	var freq, amp float64
	for start := 0; start < len(signal); start += 128 {
		a.Process(signal[start : start+128])
		freq, amp = p.Compute(a.Frame(), 0.05)
	}

	assert.InDelta(t, f0, freq, 1)
	assert.Greater(t, amp, 0.0)
}

func TestNearestMultipleDeviation(t *testing.T) {
	tests := []struct {
		x, f, want float64
	}{
		{300, 100, 0},
		{250, 100, 0.5},
		{260, 100, 0.4},
		{290, 100, 0.1},
		{110, 100, 0.1},
	}

	for _, tt := range tests {
		assert.InDelta(t, tt.want, nearestMultipleDeviation(tt.x, tt.f), 1e-12, "%g/%g", tt.x, tt.f)
	}
}

func TestHasAdjacentPartials(t *testing.T) {
	assert.True(t, hasAdjacentPartials([]float64{200, 400}, 200))
	assert.True(t, hasAdjacentPartials([]float64{200, 600}, 200))
	assert.False(t, hasAdjacentPartials([]float64{200, 800}, 200))
	assert.False(t, hasAdjacentPartials([]float64{200, 210}, 200))
	assert.False(t, hasAdjacentPartials([]float64{600, 200}, 200))
	assert.False(t, hasAdjacentPartials([]float64{440}, 440))
}
