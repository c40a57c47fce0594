// Package quality flags channels whose signal shows power-line noise or
// excessive variance, and tags reference channels.
package quality

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidSettings reports a missing or out-of-range detection setting.
var ErrInvalidSettings = errors.New("invalid detection settings")

// Settings controls one analysis run. Every field is required; build it
// through the config package, which refuses to invent defaults.
type Settings struct {
	Check50Hz bool
	Check60Hz bool
	// NoiseFreqThreshold is the minimum ratio of the target-bin power to the
	// mean non-DC spectral power.
	NoiseFreqThreshold float64
	// NoiseFreqBandHz is the half-width of the peak search window.
	NoiseFreqBandHz float64
	// ArtifactVarianceThreshold flags channels whose variance exceeds it.
	// Zero disables the check.
	ArtifactVarianceThreshold float64
}

// Validate checks ranges. It returns an error wrapping ErrInvalidSettings
// that names the offending field.
func (s Settings) Validate() error {
	if !(s.NoiseFreqThreshold > 0) || math.IsInf(s.NoiseFreqThreshold, 0) {
		return fmt.Errorf("%w: noise_freq_threshold must be > 0, got %v", ErrInvalidSettings, s.NoiseFreqThreshold)
	}
	if !(s.NoiseFreqBandHz > 0) || math.IsInf(s.NoiseFreqBandHz, 0) {
		return fmt.Errorf("%w: noise_freq_band_hz must be > 0, got %v", ErrInvalidSettings, s.NoiseFreqBandHz)
	}
	if !(s.ArtifactVarianceThreshold >= 0) || math.IsInf(s.ArtifactVarianceThreshold, 0) {
		return fmt.Errorf("%w: artifact_variance_threshold must be >= 0, got %v", ErrInvalidSettings, s.ArtifactVarianceThreshold)
	}
	return nil
}

// targets returns the enabled power-line frequencies in probe order.
func (s Settings) targets() []float64 {
	var out []float64
	if s.Check50Hz {
		out = append(out, 50)
	}
	if s.Check60Hz {
		out = append(out, 60)
	}
	return out
}
