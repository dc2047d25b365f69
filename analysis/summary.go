package analysis

import (
	"math"

	"github.com/RyanBlaney/sonido-pvs/algorithms/common"
)

// Summary aggregates the per-period results of a run
type Summary struct {
	Periods int `json:"periods" yaml:"periods"`

	CentroidMean   float64 `json:"centroid_mean" yaml:"centroid_mean"`
	CentroidMedian float64 `json:"centroid_median" yaml:"centroid_median"`
	CentroidStdDev float64 `json:"centroid_stddev" yaml:"centroid_stddev"`
	CentroidMin    float64 `json:"centroid_min" yaml:"centroid_min"`
	CentroidMax    float64 `json:"centroid_max" yaml:"centroid_max"`

	// Periods with a non-zero pitch estimate
	VoicedPeriods int     `json:"voiced_periods" yaml:"voiced_periods"`
	PitchMean     float64 `json:"pitch_mean" yaml:"pitch_mean"`
	PitchMedian   float64 `json:"pitch_median" yaml:"pitch_median"`
	AmplitudeRMS  float64 `json:"amplitude_rms" yaml:"amplitude_rms"`
}

// Summarize computes centroid statistics over all periods and pitch
// statistics over voiced periods
func Summarize(results []Result) Summary {
	centroids := make([]float64, len(results))
	pitches := make([]float64, len(results))
	amps := make([]float64, len(results))
	for i, r := range results {
		centroids[i] = r.Centroid
		pitches[i] = r.Pitch
		amps[i] = r.Amplitude
	}

	voiced := common.NonZero(pitches)
	lo, hi := common.Range(centroids)

	return Summary{
		Periods:        len(results),
		CentroidMean:   common.Mean(centroids),
		CentroidMedian: common.Median(centroids),
		CentroidStdDev: common.StandardDeviation(centroids),
		CentroidMin:    lo,
		CentroidMax:    hi,
		VoicedPeriods:  len(voiced),
		PitchMean:      common.Mean(voiced),
		PitchMedian:    common.Median(voiced),
		AmplitudeRMS:   common.RMS(amps),
	}
}

// HarmonicTone synthesizes seconds of a tone at f0 with the given number of
// equal-amplitude partials. Partials at or above Nyquist are left out and the
// peak amplitude never exceeds amplitude.
func HarmonicTone(f0 float64, partials int, amplitude, sampleRate, seconds float64) []float64 {
	length := int(seconds * sampleRate)
	if length <= 0 || partials <= 0 {
		return []float64{}
	}

	signal := make([]float64, length)
	gain := amplitude / float64(partials)
	for h := 1; h <= partials; h++ {
		freq := f0 * float64(h)
		if freq >= sampleRate/2 {
			break
		}
		step := 2 * math.Pi * freq / sampleRate
		for n := range signal {
			signal[n] += gain * math.Sin(step*float64(n))
		}
	}

	return signal
}
