package spectral

import (
	"gonum.org/v1/gonum/floats"

	"github.com/RyanBlaney/sonido-pvs/algorithms/pvs"
	"github.com/RyanBlaney/sonido-pvs/logging"
)

// PVSCentroid computes the spectral centroid (amplitude-weighted mean
// frequency) of phase vocoder frames.
//
// Each bin is weighted by its fixed bin-center frequency (i+0.5)*binSize, not by
// the frequency the analysis tracked for it. Block-rate frames are only
// recomputed when the producer has published a new frame; otherwise the held
// value is returned.
type PVSCentroid struct {
	centers []float64 // pre-calculated bin-center frequencies
	amps    []float64 // amplitude column of the frame being weighted

	lastSequence uint64
	held         float64

	recomputes int
	logger     logging.Logger
}

// NewPVSCentroid binds a centroid estimator to the format and size of frame.
// Only amp-freq and amp-phase frames are accepted.
func NewPVSCentroid(frame *pvs.Frame) (*PVSCentroid, error) {
	logger := logging.WithFields(logging.Fields{
		"component": "pvs_centroid",
		"function":  "NewPVSCentroid",
	})

	if frame.Format != pvs.FormatAmpFreq && frame.Format != pvs.FormatAmpPhase {
		err := &pvs.ConfigError{Op: "pvscent", Reason: pvs.ReasonUnsupportedFormat}
		logger.Error(err, "Rejected frame format", logging.Fields{"format": frame.Format.String()})
		return nil, err
	}
	if err := frame.Validate(); err != nil {
		logger.Error(err, "Rejected malformed frame")
		return nil, err
	}

	numBins := max(frame.NumBins(), frame.BinCount)
	centers := make([]float64, numBins)
	binSize := frame.BinSize()
	for i := range centers {
		centers[i] = (float64(i) + 0.5) * binSize
	}

	logger.Debug("Centroid estimator initialized", logging.Fields{
		"fft_size": frame.Size,
		"sliding":  frame.Sliding,
		"bins":     numBins,
	})

	return &PVSCentroid{
		centers: centers,
		amps:    make([]float64, numBins),
		logger:  logger,
	}, nil
}

// Compute returns the centroid in Hz for the current control period.
// Sliding frames are always recomputed from the first sample's bins.
func (c *PVSCentroid) Compute(frame *pvs.Frame) float64 {
	if frame.Sliding {
		if len(frame.Slides) > 0 {
			c.held = c.weightSlide(frame.Slides[0])
			c.recomputes++
		}
		return c.held
	}

	if frame.Sequence > c.lastSequence {
		c.held = c.weightBins(frame.Bins)
		c.lastSequence = frame.Sequence
		c.recomputes++
	}

	return c.held
}

// ComputeStream returns one centroid per audio sample of the control period.
//
// Sliding frames are weighted independently for every sample. For block-rate
// frames at most one new frame arrives per period: samples before its arrival
// (frame.ReadyAt) repeat the held value, later samples carry the new one.
func (c *PVSCentroid) ComputeStream(frame *pvs.Frame, numSamples int) []float64 {
	if numSamples <= 0 {
		return []float64{}
	}
	out := make([]float64, numSamples)

	if frame.Sliding {
		for n := range out {
			if n < len(frame.Slides) {
				c.held = c.weightSlide(frame.Slides[n])
				c.recomputes++
			}
			out[n] = c.held
		}
		return out
	}

	readyAt := min(max(frame.ReadyAt, 0), numSamples-1)
	for n := range out {
		if n >= readyAt && frame.Sequence > c.lastSequence {
			c.held = c.weightBins(frame.Bins)
			c.lastSequence = frame.Sequence
			c.recomputes++
		}
		out[n] = c.held
	}

	return out
}

func (c *PVSCentroid) weightBins(bins []pvs.Bin) float64 {
	n := min(len(bins), len(c.amps))
	for i := range n {
		c.amps[i] = bins[i].Amp
	}
	return c.weight(n)
}

func (c *PVSCentroid) weightSlide(slide []complex128) float64 {
	n := min(len(slide), len(c.amps))
	for i := range n {
		c.amps[i] = real(slide[i])
	}
	return c.weight(n)
}

func (c *PVSCentroid) weight(n int) float64 {
	amps := c.amps[:n]

	denominator := floats.Sum(amps)
	if denominator == 0 {
		return 0
	}

	return floats.Dot(amps, c.centers[:n]) / denominator
}
