package quality

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/stat"
)

// epsilon keeps the peak ratio finite on an all-zero spectrum.
const epsilon = 2.220446049250313e-16

// spectrum is the one-sided power spectrum of a real signal.
type spectrum struct {
	power []float64
	freqs []float64
	// avg is the mean power over bins above 0 Hz.
	avg float64
}

// powerSpectrum computes |X|^2 of the real FFT of x. fft must have been
// built for len(x) samples. It returns false when fewer than two samples
// are available.
func powerSpectrum(fft *fourier.FFT, x []float64, fs float64, coeff []complex128) (spectrum, []complex128, bool) {
	n := len(x)
	if n < 2 {
		return spectrum{}, coeff, false
	}
	coeff = fft.Coefficients(coeff, x)

	sp := spectrum{
		power: make([]float64, len(coeff)),
		freqs: make([]float64, len(coeff)),
	}
	for i, c := range coeff {
		a := cmplx.Abs(c)
		sp.power[i] = a * a
		sp.freqs[i] = float64(i) * fs / float64(n)
	}
	if len(sp.power) > 1 {
		sp.avg = stat.Mean(sp.power[1:], nil)
	}
	return sp, coeff, true
}

// closestBin returns the first bin whose frequency is nearest to f.
func (sp spectrum) closestBin(f float64) int {
	best, bestDist := 0, math.Inf(1)
	for i, fr := range sp.freqs {
		if d := math.Abs(fr - f); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

// isLocalMax reports whether bin i is not below either immediate neighbour.
func (sp spectrum) isLocalMax(i int) bool {
	if i > 0 && sp.power[i] < sp.power[i-1] {
		return false
	}
	if i < len(sp.power)-1 && sp.power[i] < sp.power[i+1] {
		return false
	}
	return true
}

// bandPeak finds the local maximum inside [f-band, f+band] closest to f.
// Edges of the window are never peaks; flat tops count once, at their
// middle. ok is false when the window holds no peak.
func (sp spectrum) bandPeak(f, band float64) (bin int, ok bool) {
	lo, hi := -1, -1
	for i, fr := range sp.freqs {
		if fr >= f-band && fr <= f+band {
			if lo < 0 {
				lo = i
			}
			hi = i
		}
	}
	if lo < 0 {
		return 0, false
	}

	bestDist := math.Inf(1)
	i := lo + 1
	for i < hi {
		if sp.power[i] <= sp.power[i-1] {
			i++
			continue
		}
		j := i
		for j+1 < hi && sp.power[j+1] == sp.power[i] {
			j++
		}
		if j+1 <= hi && sp.power[j+1] < sp.power[i] {
			mid := (i + j) / 2
			if d := math.Abs(sp.freqs[mid] - f); d < bestDist {
				bin, bestDist, ok = mid, d, true
			}
		}
		i = j + 1
	}
	return bin, ok
}
