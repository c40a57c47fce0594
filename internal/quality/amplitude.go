package quality

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// DefaultAmplitudeFraction scales the mean channel extremes into thresholds.
const DefaultAmplitudeFraction = 0.8

// AmplitudeThresholds bounds the amplitude window a channel must span to
// stay selected.
type AmplitudeThresholds struct {
	Lower float64
	Upper float64
}

// Validate requires Lower < Upper.
func (t AmplitudeThresholds) Validate() error {
	if !(t.Lower < t.Upper) {
		return fmt.Errorf("lower amplitude threshold %v must be less than upper %v", t.Lower, t.Upper)
	}
	return nil
}

// Passes reports whether a channel with the given extremes reaches both
// thresholds: its maximum is at least Upper and its minimum at most Lower.
func (t AmplitudeThresholds) Passes(minV, maxV float64) bool {
	return t.Upper <= maxV && t.Lower >= minV
}

// ComputeAmplitudeThresholds averages the per-channel minima and maxima over
// channels and scales each by fraction, truncated toward zero.
func ComputeAmplitudeThresholds(samples mat.Matrix, channels []int, fraction float64) (AmplitudeThresholds, error) {
	if isEmpty(samples) {
		return AmplitudeThresholds{}, fmt.Errorf("no samples loaded")
	}
	if len(channels) == 0 {
		return AmplitudeThresholds{}, fmt.Errorf("no channels to derive thresholds from")
	}
	if !(fraction > 0) {
		return AmplitudeThresholds{}, fmt.Errorf("amplitude fraction must be > 0, got %v", fraction)
	}

	mins := make([]float64, len(channels))
	maxs := make([]float64, len(channels))
	for i, ch := range channels {
		minV, maxV, err := Extremes(samples, ch)
		if err != nil {
			return AmplitudeThresholds{}, err
		}
		mins[i], maxs[i] = minV, maxV
	}
	return AmplitudeThresholds{
		Lower: math.Trunc(stat.Mean(mins, nil) * fraction),
		Upper: math.Trunc(stat.Mean(maxs, nil) * fraction),
	}, nil
}

// Extremes returns the minimum and maximum sample of one channel.
func Extremes(samples mat.Matrix, ch int) (minV, maxV float64, err error) {
	if isEmpty(samples) {
		return 0, 0, fmt.Errorf("no samples loaded")
	}
	_, c := samples.Dims()
	if ch < 0 || ch >= c {
		return 0, 0, fmt.Errorf("channel %d out of range [0, %d)", ch, c)
	}
	col := mat.Col(nil, ch, samples)
	return floats.Min(col), floats.Max(col), nil
}
