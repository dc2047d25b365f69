package harmonic

import (
	"math"

	"github.com/RyanBlaney/sonido-pvs/algorithms/pvs"
	"github.com/RyanBlaney/sonido-pvs/logging"
)

const (
	// No fundamental below the threshold of hearing is tried
	lowHearingThreshold = 20.0

	// Consecutive peaks closer than this many partials count as adjacent
	maxAdjacentPartials = 3
)

// PVSPitch estimates the fundamental frequency and energy of harmonic
// amp-freq phase vocoder frames.
//
// Peaks are picked from the frame, then every submultiple of the first peak
// down to 20 Hz is scored by how far the remaining peaks sit from its integer
// multiples. The search is a first-improvement scan in candidate order, not a
// global minimum search.
type PVSPitch struct {
	fullScale float64

	peakFreqs     []float64 // capacity ceil((N+2)/4), never resized
	inharmonicity []float64 // scores of the first len(inharmonicity) candidates
	numPeaks      int

	lastSequence uint64
	freq         float64
	amp          float64

	recomputes int
	logger     logging.Logger
}

// NewPVSPitch binds a pitch estimator to the size of frame. fullScale is the
// host's 0 dBFS amplitude reference used to un-normalize thresholds; values
// <= 0 fall back to 1.
func NewPVSPitch(frame *pvs.Frame, fullScale float64) (*PVSPitch, error) {
	logger := logging.WithFields(logging.Fields{
		"component": "pvs_pitch",
		"function":  "NewPVSPitch",
	})

	if frame.Sliding {
		err := &pvs.ConfigError{Op: "pvspitch", Reason: pvs.ReasonSlidingUnsupported}
		logger.Error(err, "Rejected sliding frame")
		return nil, err
	}
	if frame.Format != pvs.FormatAmpFreq {
		err := &pvs.ConfigError{Op: "pvspitch", Reason: pvs.ReasonAmpFreqRequired}
		logger.Error(err, "Rejected frame format", logging.Fields{"format": frame.Format.String()})
		return nil, err
	}
	if err := frame.Validate(); err != nil {
		logger.Error(err, "Rejected malformed frame")
		return nil, err
	}

	if fullScale <= 0 {
		fullScale = 1
	}

	capacity := (frame.Size + 2 + 3) / 4

	logger.Debug("Pitch estimator initialized", logging.Fields{
		"fft_size":   frame.Size,
		"capacity":   capacity,
		"full_scale": fullScale,
	})

	return &PVSPitch{
		fullScale:     fullScale,
		peakFreqs:     make([]float64, capacity),
		inharmonicity: make([]float64, capacity),
		logger:        logger,
	}, nil
}

// Compute returns the estimated fundamental in Hz and the coarse frame energy.
// threshold is normalized to the full-scale reference. When the frame has not
// advanced since the previous call both outputs are returned unchanged.
func (p *PVSPitch) Compute(frame *pvs.Frame, threshold float64) (freq, amp float64) {
	if frame.Sequence <= p.lastSequence {
		return p.freq, p.amp
	}

	p.amp = p.findPeaks(frame.Bins, threshold*p.fullScale)

	p.freq = 0
	if p.numPeaks > 0 {
		if partial := p.searchFundamental(); partial != 0 {
			p.freq = p.averageFundamental(p.peakFreqs[0] / float64(partial))
		}
	}

	p.lastSequence = frame.Sequence
	p.recomputes++

	return p.freq, p.amp
}

// Peaks returns the peak frequencies found in the last computed frame
func (p *PVSPitch) Peaks() []float64 {
	peaks := make([]float64, p.numPeaks)
	copy(peaks, p.peakFreqs[:p.numPeaks])
	return peaks
}

// findPeaks records the tracked frequency of every bin above threshold that is
// louder than both neighbours and returns the coarse energy of the frame.
// Detection stops silently once half the bins' worth of peaks is found.
func (p *PVSPitch) findPeaks(bins []pvs.Bin, threshold float64) float64 {
	numBins := len(bins)
	limit := min(numBins/2, len(p.peakFreqs))

	p.numPeaks = 0
	energy := 0.0

	for i := 1; i < numBins-1 && p.numPeaks < limit; i++ {
		a := bins[i].Amp
		if a > threshold && a > bins[i-1].Amp && a > bins[i+1].Amp {
			p.peakFreqs[p.numPeaks] = bins[i].Freq
			p.numPeaks++
			// two peaks can never be adjacent
			i++
		}

		energy += bins[i].Amp
	}

	if numBins > 0 {
		energy += bins[0].Amp
		energy += bins[numBins-1].Amp
	}

	return energy * 0.5
}

// searchFundamental scans the candidates peakFreqs[0]/(k+1) and returns the
// 1-based partial number of the first peak under the chosen fundamental.
func (p *PVSPitch) searchFundamental() int {
	peaks := p.peakFreqs[:p.numPeaks]
	maxPartial := int(peaks[0] / lowHearingThreshold)

	partial := 0
	best := 0.0
	prevNotAdjacent := false

	for k := range maxPartial {
		f0 := peaks[0] / float64(k+1)

		score := inharmonicity(peaks, f0)
		if k < len(p.inharmonicity) {
			p.inharmonicity[k] = score
		}
		adjacent := hasAdjacentPartials(peaks, f0)

		if k == 0 || score < best || (prevNotAdjacent && adjacent) {
			partial = k + 1
			best = score
			prevNotAdjacent = !adjacent
		}
	}

	return partial
}

// averageFundamental averages the fundamental each peak implies under f0
func (p *PVSPitch) averageFundamental(f0 float64) float64 {
	sum := 0.0
	count := 0
	for _, peak := range p.peakFreqs[:p.numPeaks] {
		harmonic := math.Round(peak / f0)
		if harmonic == 0 {
			continue
		}
		sum += peak / harmonic
		count++
	}

	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// inharmonicity sums, over every peak but the first, the distance to the
// nearest multiple of f0 in cycles, scaled by the peak frequency
func inharmonicity(peaks []float64, f0 float64) float64 {
	total := 0.0
	for _, peak := range peaks[1:] {
		if peak == 0 {
			continue
		}
		total += nearestMultipleDeviation(peak, f0) / peak
	}
	return total
}

// nearestMultipleDeviation is frac(x/f) folded onto [0, 0.5]
func nearestMultipleDeviation(x, f float64) float64 {
	ratio := x / f
	frac := ratio - math.Trunc(ratio)
	if frac > 0.5 {
		frac = 1 - frac
	}
	return frac
}

// hasAdjacentPartials reports whether any two consecutive peaks land on
// distinct partials of f0 fewer than maxAdjacentPartials apart
func hasAdjacentPartials(peaks []float64, f0 float64) bool {
	for j := 0; j < len(peaks)-1; j++ {
		p1 := math.Round(peaks[j] / f0)
		p2 := math.Round(peaks[j+1] / f0)
		if d := p2 - p1; d > 0 && d < maxAdjacentPartials {
			return true
		}
	}
	return false
}
