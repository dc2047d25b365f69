package pvs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatRoundTrip(t *testing.T) {
	for _, f := range []Format{FormatAmpFreq, FormatAmpPhase, FormatComplex, FormatTracks} {
		parsed, err := ParseFormat(f.String())
		require.NoError(t, err)
		assert.Equal(t, f, parsed)
	}

	_, err := ParseFormat("polar")
	assert.Error(t, err)
	assert.Equal(t, "unknown", Format(42).String())
}

func TestNewFrameLayout(t *testing.T) {
	f := NewFrame(FormatAmpFreq, 1024, 48000)

	assert.Len(t, f.Bins, 513)
	assert.Equal(t, 513, f.NumBins())
	assert.InDelta(t, 23.4375, f.BinSize(), 1e-12)
	assert.Zero(t, f.Sequence)
	require.NoError(t, f.Validate())
}

func TestNewSlidingFrameLayout(t *testing.T) {
	f := NewSlidingFrame(FormatAmpFreq, 64, 8000, 33, 16)

	require.Len(t, f.Slides, 16)
	for _, slide := range f.Slides {
		assert.Len(t, slide, 33)
	}
	assert.True(t, f.Sliding)
	require.NoError(t, f.Validate())
}

func TestPublishAdvancesSequenceOnce(t *testing.T) {
	f := NewFrame(FormatAmpFreq, 16, 44100)

	f.Publish(3)
	assert.Equal(t, uint64(1), f.Sequence)
	assert.Equal(t, 3, f.ReadyAt)

	f.Publish(0)
	assert.Equal(t, uint64(2), f.Sequence)
	assert.Equal(t, 0, f.ReadyAt)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		frame *Frame
	}{
		{"odd size", &Frame{Size: 15, SampleRate: 44100, Bins: make([]Bin, 8)}},
		{"zero size", &Frame{Size: 0, SampleRate: 44100}},
		{"no sample rate", &Frame{Size: 16, Bins: make([]Bin, 9)}},
		{"short bins", &Frame{Size: 16, SampleRate: 44100, Bins: make([]Bin, 4)}},
		{"too many sliding bins", NewSlidingFrame(FormatAmpFreq, 16, 44100, 10, 4)},
		{"ragged slides", &Frame{Size: 16, SampleRate: 44100, Sliding: true, BinCount: 9,
			Slides: [][]complex128{make([]complex128, 9), make([]complex128, 3)}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.frame.Validate()
			require.Error(t, err)

			var cfgErr *ConfigError
			assert.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, "frame", cfgErr.Op)
		})
	}
}

func TestConfigErrorMessage(t *testing.T) {
	err := &ConfigError{Op: "pvscent", Reason: ReasonUnsupportedFormat}
	assert.Equal(t, "pvscent: unsupported spectral format", err.Error())

	bare := &ConfigError{Reason: ReasonAmpFreqRequired}
	assert.Equal(t, "AMP_FREQ required", bare.Error())
}
