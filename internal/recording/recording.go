// Package recording loads and writes multi-channel recordings and exports
// a channel selection together with its JSON sidecar.
package recording

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrFormat reports a malformed or unsupported recording file.
	ErrFormat = errors.New("unsupported recording format")
	// ErrNoChannelsSelected is returned when an export would be empty.
	ErrNoChannelsSelected = errors.New("no channels selected")
)

// Recording is a loaded multi-channel recording.
type Recording struct {
	FileName string
	// Descriptions holds one description string per channel.
	Descriptions []string
	// Units holds the physical dimension of each channel, e.g. "uV".
	Units []string
	// Samples is a samples x channels matrix of physical values.
	Samples           *mat.Dense
	SamplingFrequency float64
}

// ChannelCount returns the number of channels.
func (r *Recording) ChannelCount() int {
	return len(r.Descriptions)
}

// SampleCount returns the number of samples per channel.
func (r *Recording) SampleCount() int {
	if r.Samples == nil || r.Samples.IsEmpty() {
		return 0
	}
	n, _ := r.Samples.Dims()
	return n
}

// Channel returns a copy of one channel's samples.
func (r *Recording) Channel(ch int) ([]float64, error) {
	if ch < 0 || ch >= r.ChannelCount() {
		return nil, fmt.Errorf("channel %d out of range [0, %d)", ch, r.ChannelCount())
	}
	if r.SampleCount() == 0 {
		return nil, nil
	}
	return mat.Col(nil, ch, r.Samples), nil
}

// Validate checks that the sample matrix agrees with the channel metadata.
func (r *Recording) Validate() error {
	if r.SampleCount() == 0 {
		return nil
	}
	_, c := r.Samples.Dims()
	if c != len(r.Descriptions) {
		return fmt.Errorf("%w: %d sample columns for %d channel descriptions", ErrFormat, c, len(r.Descriptions))
	}
	if r.Units != nil && len(r.Units) != len(r.Descriptions) {
		return fmt.Errorf("%w: %d units for %d channels", ErrFormat, len(r.Units), len(r.Descriptions))
	}
	if !(r.SamplingFrequency > 0) {
		return fmt.Errorf("%w: sampling frequency must be > 0, got %v", ErrFormat, r.SamplingFrequency)
	}
	return nil
}

// Subset returns a recording holding only the given channels, in order.
func (r *Recording) Subset(channels []int) (*Recording, error) {
	if len(channels) == 0 {
		return nil, ErrNoChannelsSelected
	}
	out := &Recording{
		FileName:          r.FileName,
		Descriptions:      make([]string, len(channels)),
		SamplingFrequency: r.SamplingFrequency,
	}
	if r.Units != nil {
		out.Units = make([]string, len(channels))
	}
	n := r.SampleCount()
	if n > 0 {
		out.Samples = mat.NewDense(n, len(channels), nil)
	}
	for i, ch := range channels {
		if ch < 0 || ch >= r.ChannelCount() {
			return nil, fmt.Errorf("channel %d out of range [0, %d)", ch, r.ChannelCount())
		}
		out.Descriptions[i] = r.Descriptions[ch]
		if r.Units != nil {
			out.Units[i] = r.Units[ch]
		}
		if n > 0 {
			out.Samples.SetCol(i, mat.Col(nil, ch, r.Samples))
		}
	}
	return out, nil
}
