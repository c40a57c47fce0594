package quality

import (
	"fmt"
	"math"
	"runtime"
	"sort"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/hdsemg/hdsemg-select/internal/labels"
	"github.com/hdsemg/hdsemg-select/internal/monitoring"
)

// Report maps a channel index to its suggested labels. Channels without
// suggestions are absent.
type Report map[int][]labels.Label

// Channels returns the flagged channel indices in ascending order.
func (r Report) Channels() []int {
	out := make([]int, 0, len(r))
	for ch := range r {
		out = append(out, ch)
	}
	sort.Ints(out)
	return out
}

// Has reports whether ch carries l.
func (r Report) Has(ch int, l labels.Label) bool {
	for _, got := range r[ch] {
		if got == l {
			return true
		}
	}
	return false
}

// Counts splits the flagged channels into EMG and reference channels.
func (r Report) Counts(refs map[int]struct{}) (emg, ref int) {
	for ch := range r {
		if _, ok := refs[ch]; ok {
			ref++
		} else {
			emg++
		}
	}
	return emg, ref
}

// Analyzer runs channel analysis across a bounded pool of workers.
type Analyzer struct {
	// Workers bounds concurrency; zero or negative means GOMAXPROCS.
	Workers int
}

// Analyze runs a default Analyzer.
func Analyze(samples mat.Matrix, fs float64, s Settings, refs map[int]struct{}) (Report, error) {
	return (&Analyzer{}).Analyze(samples, fs, s, refs)
}

// Analyze inspects every column of samples (samples x channels) and returns
// the suggested labels. Invalid settings are the only error; missing data
// or a non-positive fs yield an empty report. A channel that fails analysis
// keeps only its reference tag.
func (a *Analyzer) Analyze(samples mat.Matrix, fs float64, s Settings, refs map[int]struct{}) (Report, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	report := make(Report)

	if isEmpty(samples) {
		monitoring.Logf("quality: analysis skipped, no samples")
		return report, nil
	}
	if !(fs > 0) || math.IsInf(fs, 0) {
		monitoring.Logf("quality: analysis skipped, invalid sampling frequency %v", fs)
		return report, nil
	}
	targets := s.targets()
	if len(targets) == 0 && s.ArtifactVarianceThreshold == 0 && len(refs) == 0 {
		monitoring.Logf("quality: analysis skipped, no checks enabled and no reference channels")
		return report, nil
	}

	n, channels := samples.Dims()
	workers := a.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	workers = min(workers, channels)

	results := make([][]labels.Label, channels)
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cw := channelWorker{
				fs:       fs,
				settings: s,
				targets:  targets,
				col:      make([]float64, n),
			}
			if len(targets) > 0 && n >= 2 {
				cw.fft = fourier.NewFFT(n)
			}
			for ch := range jobs {
				mat.Col(cw.col, ch, samples)
				got, err := cw.run(ch)
				if err != nil {
					monitoring.Logf("quality: channel %d analysis failed: %v", ch+1, err)
					got = nil
				}
				if _, ok := refs[ch]; ok {
					got = append(got, labels.ReferenceSignal)
				}
				results[ch] = dedupe(got)
			}
		}()
	}
	for ch := 0; ch < channels; ch++ {
		jobs <- ch
	}
	close(jobs)
	wg.Wait()

	for ch, ls := range results {
		if len(ls) > 0 {
			report[ch] = ls
		}
	}
	monitoring.Logf("quality: suggested flags for %d of %d channels", len(report), channels)
	return report, nil
}

type channelWorker struct {
	fs       float64
	settings Settings
	targets  []float64
	fft      *fourier.FFT
	col      []float64
	coeff    []complex128
}

// run computes the signal-derived labels of the channel currently in col.
func (cw *channelWorker) run(ch int) (out []labels.Label, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()

	x := cw.col
	if floats.HasNaN(x) || math.IsInf(floats.Max(x), 1) || math.IsInf(floats.Min(x), -1) {
		return nil, fmt.Errorf("non-finite samples")
	}

	if cw.fft != nil {
		var sp spectrum
		var ok bool
		sp, cw.coeff, ok = powerSpectrum(cw.fft, x, cw.fs, cw.coeff)
		if ok {
			for _, f := range cw.targets {
				if l, hit := cw.checkNoise(ch, sp, f); hit {
					out = append(out, l)
				}
			}
		}
	}

	if thr := cw.settings.ArtifactVarianceThreshold; thr > 0 {
		v := stat.PopVariance(x, nil)
		if v > thr {
			out = append(out, labels.Artifact)
			monitoring.Debugf("quality: ch %d flagged artifact (variance %.3e)", ch+1, v)
		} else {
			monitoring.Debugf("quality: ch %d variance %.3e below threshold", ch+1, v)
		}
	}
	return out, nil
}

// checkNoise probes one power-line frequency.
func (cw *channelWorker) checkNoise(ch int, sp spectrum, f float64) (labels.Label, bool) {
	idx := sp.closestBin(f)
	if idx == 0 {
		return 0, false
	}
	ratio := sp.power[idx] / (sp.avg + epsilon)
	localMax := sp.isLocalMax(idx)

	if peak, ok := sp.bandPeak(f, cw.settings.NoiseFreqBandHz); ok {
		monitoring.Debugf("quality: ch %d band peak near %.0f Hz at %.2f Hz", ch+1, f, sp.freqs[peak])
	} else {
		monitoring.Debugf("quality: ch %d no band peak near %.0f Hz", ch+1, f)
	}

	hit := localMax && ratio > cw.settings.NoiseFreqThreshold
	monitoring.Debugf("quality: ch %d %.0f Hz ratio=%.2f local_max=%t flagged=%t", ch+1, f, ratio, localMax, hit)
	if !hit {
		return 0, false
	}
	if f == 60 {
		return labels.Noise60, true
	}
	return labels.Noise50, true
}

func dedupe(ls []labels.Label) []labels.Label {
	if len(ls) < 2 {
		return ls
	}
	seen := make(map[labels.Label]bool, len(ls))
	out := ls[:0]
	for _, l := range ls {
		if !seen[l] {
			seen[l] = true
			out = append(out, l)
		}
	}
	return out
}

func isEmpty(m mat.Matrix) bool {
	if m == nil {
		return true
	}
	if d, ok := m.(*mat.Dense); ok {
		if d == nil || d.IsEmpty() {
			return true
		}
	}
	r, c := m.Dims()
	return r == 0 || c == 0
}
