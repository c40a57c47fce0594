package quality

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/hdsemg/hdsemg-select/internal/testutil"
)

func TestPowerSpectrum(t *testing.T) {
	x := testutil.Sine(50, 1000, 1, 1000)
	sp, _, ok := powerSpectrum(fourier.NewFFT(len(x)), x, 1000, nil)
	require.True(t, ok)
	require.Len(t, sp.power, 501)
	assert.InDelta(t, 500.0, sp.freqs[500], 1e-9)

	bin := sp.closestBin(50)
	assert.Equal(t, 50, bin)
	assert.InDelta(t, 250000, sp.power[bin], 1e-3)
	assert.InDelta(t, 500, sp.avg, 1e-3)
	assert.True(t, sp.isLocalMax(bin))
	assert.False(t, sp.isLocalMax(bin+1))

	_, _, ok = powerSpectrum(nil, []float64{1}, 1000, nil)
	assert.False(t, ok)
}

func TestClosestBin_FirstWins(t *testing.T) {
	sp := spectrum{freqs: []float64{0, 49, 51, 53}}
	assert.Equal(t, 1, sp.closestBin(50))
	assert.Equal(t, 0, sp.closestBin(-5))
}

func TestBandPeak(t *testing.T) {
	tests := []struct {
		name  string
		power []float64
		want  int
		ok    bool
	}{
		{"single peak", []float64{1, 2, 5, 2, 1}, 2, true},
		{"edge is not a peak", []float64{9, 2, 1, 1, 1}, 0, false},
		{"plateau middle", []float64{1, 4, 4, 4, 1}, 2, true},
		{"monotonic", []float64{1, 2, 3, 4, 5}, 0, false},
		{"closest of two", []float64{1, 3, 1, 1, 2, 1}, 1, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sp := spectrum{power: tc.power, freqs: make([]float64, len(tc.power))}
			for i := range sp.freqs {
				sp.freqs[i] = 48 + float64(i)
			}
			got, ok := sp.bandPeak(50, 10)
			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.Equal(t, tc.want, got)
			}
		})
	}

	sp := spectrum{power: []float64{1, 5, 1}, freqs: []float64{0, 10, 20}}
	_, ok := sp.bandPeak(50, 2)
	assert.False(t, ok, "empty window")
}
