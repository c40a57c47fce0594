// Package selection holds the per-recording selection state: which channels
// are kept, which labels they carry and which grid is being paged.
package selection

import (
	"fmt"
	"sort"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/hdsemg/hdsemg-select/internal/grid"
	"github.com/hdsemg/hdsemg-select/internal/labels"
	"github.com/hdsemg/hdsemg-select/internal/layout"
	"github.com/hdsemg/hdsemg-select/internal/monitoring"
	"github.com/hdsemg/hdsemg-select/internal/quality"
)

// Session is the selection state of one loaded recording. It is safe for
// concurrent use.
type Session struct {
	mu sync.RWMutex

	fileName     string
	descriptions []string
	status       []bool
	labels       map[int][]labels.Label
	custom       map[int][]labels.Custom

	topology *grid.Topology
	gridKey  string
	mapping  *layout.Mapping
}

// New starts a session for a recording with the given channel descriptions.
// All channels start deselected.
func New(fileName string, descriptions []string) *Session {
	s := &Session{}
	s.load(fileName, descriptions)
	return s
}

func (s *Session) load(fileName string, descriptions []string) {
	s.fileName = fileName
	s.descriptions = append([]string(nil), descriptions...)
	s.status = make([]bool, len(descriptions))
	s.labels = make(map[int][]labels.Label)
	s.custom = make(map[int][]labels.Custom)
	s.topology = nil
	s.gridKey = ""
	s.mapping = nil
}

// Reload discards all state and starts over for a new recording.
func (s *Session) Reload(fileName string, descriptions []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.load(fileName, descriptions)
}

// Reset clears the session back to an empty recording.
func (s *Session) Reset() {
	s.Reload("", nil)
}

// FileName returns the recording's file name.
func (s *Session) FileName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fileName
}

// ChannelCount returns the number of channels in the recording.
func (s *Session) ChannelCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.status)
}

// Description returns the description of channel idx.
func (s *Session) Description(idx int) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx < 0 || idx >= len(s.descriptions) {
		return ""
	}
	return s.descriptions[idx]
}

// Descriptions returns a copy of all channel descriptions.
func (s *Session) Descriptions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.descriptions...)
}

func (s *Session) checkIndex(idx int) error {
	if idx < 0 || idx >= len(s.status) {
		return fmt.Errorf("channel %d out of range [0, %d)", idx, len(s.status))
	}
	return nil
}

// SetChannel selects or deselects one channel.
func (s *Session) SetChannel(idx int, selected bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkIndex(idx); err != nil {
		return err
	}
	s.status[idx] = selected
	return nil
}

// Selected reports whether channel idx is selected.
func (s *Session) Selected(idx int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return idx >= 0 && idx < len(s.status) && s.status[idx]
}

// SelectAll sets every channel to selected.
func (s *Session) SelectAll(selected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.status {
		s.status[i] = selected
	}
}

// SelectChannels sets the given channels and leaves the rest untouched.
func (s *Session) SelectChannels(indices []int, selected bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, idx := range indices {
		if err := s.checkIndex(idx); err != nil {
			return err
		}
	}
	for _, idx := range indices {
		s.status[idx] = selected
	}
	return nil
}

// CountSelected returns the number of selected channels.
func (s *Session) CountSelected() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, on := range s.status {
		if on {
			n++
		}
	}
	return n
}

// Status returns a copy of the per-channel selection flags.
func (s *Session) Status() []bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]bool(nil), s.status...)
}

// SelectedIndices returns the selected channel indices in ascending order.
func (s *Session) SelectedIndices() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []int
	for i, on := range s.status {
		if on {
			out = append(out, i)
		}
	}
	return out
}

// Labels returns a copy of the built-in labels of channel idx.
func (s *Session) Labels(idx int) []labels.Label {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]labels.Label(nil), s.labels[idx]...)
}

// SetLabels replaces the built-in labels of channel idx.
func (s *Session) SetLabels(idx int, ls []labels.Label) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkIndex(idx); err != nil {
		return err
	}
	for _, l := range ls {
		if !l.Valid() {
			return fmt.Errorf("channel %d: invalid label %d", idx, int(l))
		}
	}
	if len(ls) == 0 {
		delete(s.labels, idx)
		return nil
	}
	s.labels[idx] = sortLabels(ls)
	return nil
}

// AddLabel adds l to channel idx if not already present. It reports whether
// the channel's labels changed.
func (s *Session) AddLabel(idx int, l labels.Label) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkIndex(idx); err != nil {
		return false, err
	}
	return s.addLabels(idx, []labels.Label{l}), nil
}

// addLabels merges ls into channel idx. The caller holds mu.
func (s *Session) addLabels(idx int, ls []labels.Label) bool {
	merged := sortLabels(append(append([]labels.Label(nil), s.labels[idx]...), ls...))
	if equalLabels(merged, s.labels[idx]) {
		return false
	}
	s.labels[idx] = merged
	return true
}

// CustomLabels returns a copy of the custom labels of channel idx.
func (s *Session) CustomLabels(idx int) []labels.Custom {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]labels.Custom(nil), s.custom[idx]...)
}

// AddCustomLabel attaches a custom label to channel idx; a label with the
// same id is not added twice.
func (s *Session) AddCustomLabel(idx int, c labels.Custom) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkIndex(idx); err != nil {
		return err
	}
	for _, have := range s.custom[idx] {
		if have.ID == c.ID {
			return nil
		}
	}
	s.custom[idx] = append(s.custom[idx], c)
	return nil
}

// MergeSuggestions adds analyzer suggestions to the existing labels. Invalid
// channel indices are skipped. It returns the number of channels whose labels
// changed.
func (s *Session) MergeSuggestions(report quality.Report) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	updated := 0
	for _, ch := range report.Channels() {
		if ch < 0 || ch >= len(s.status) {
			monitoring.Logf("selection: skipping suggestions for invalid channel %d", ch)
			continue
		}
		if s.addLabels(ch, report[ch]) {
			updated++
		}
	}
	if updated > 0 {
		monitoring.Logf("selection: applied suggested flags to %d channels", updated)
	} else {
		monitoring.Logf("selection: no new flags suggested")
	}
	return updated
}

// DeselectLabelled deselects every channel carrying one of ls and returns
// how many were deselected.
func (s *Session) DeselectLabelled(ls ...labels.Label) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for ch, have := range s.labels {
		if !s.status[ch] {
			continue
		}
		for _, l := range ls {
			if containsLabel(have, l) {
				s.status[ch] = false
				n++
				break
			}
		}
	}
	return n
}

// ApplyAmplitude selects the channels that reach both thresholds and
// deselects the rest, labelling them BAD_CHANNEL.
func (s *Session) ApplyAmplitude(samples mat.Matrix, channels []int, th quality.AmplitudeThresholds) (selected, deselected int, err error) {
	if err := th.Validate(); err != nil {
		return 0, 0, err
	}
	type extremes struct{ lo, hi float64 }
	ext := make([]extremes, len(channels))
	for i, ch := range channels {
		lo, hi, err := quality.Extremes(samples, ch)
		if err != nil {
			return 0, 0, err
		}
		ext[i] = extremes{lo, hi}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range channels {
		if err := s.checkIndex(ch); err != nil {
			return 0, 0, err
		}
	}
	for i, ch := range channels {
		if th.Passes(ext[i].lo, ext[i].hi) {
			s.status[ch] = true
			selected++
			continue
		}
		s.status[ch] = false
		deselected++
		s.addLabels(ch, []labels.Label{labels.BadChannel})
	}
	monitoring.Logf("selection: amplitude window [%v, %v] kept %d, dropped %d channels", th.Lower, th.Upper, selected, deselected)
	return selected, deselected, nil
}

// SetTopology installs the grid topology of the recording and clears any
// current grid selection.
func (s *Session) SetTopology(t *grid.Topology) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.topology = t
	s.gridKey = ""
	s.mapping = nil
}

// Topology returns the recording's grid topology, or nil before extraction.
func (s *Session) Topology() *grid.Topology {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.topology
}

// SelectGrid maps the named grid for paging. On failure the previous
// selection is kept.
func (s *Session) SelectGrid(key string, fiber layout.FiberMode, prefs layout.Preferences) (*layout.Mapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.topology == nil {
		return nil, fmt.Errorf("no grid topology loaded")
	}
	e, ok := s.topology.Get(key)
	if !ok {
		return nil, fmt.Errorf("unknown grid %q", key)
	}
	m, err := layout.Apply(e, fiber, prefs)
	if err != nil {
		return nil, err
	}
	s.gridKey = key
	s.mapping = m
	return m, nil
}

// CurrentGrid returns the selected grid entry and its mapping.
func (s *Session) CurrentGrid() (*grid.Entry, *layout.Mapping, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.mapping == nil || s.topology == nil {
		return nil, nil, false
	}
	e, ok := s.topology.Get(s.gridKey)
	return e, s.mapping, ok
}

// sortLabels de-duplicates ls and orders it by display name.
func sortLabels(ls []labels.Label) []labels.Label {
	out := make([]labels.Label, 0, len(ls))
	for _, l := range ls {
		if !containsLabel(out, l) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DisplayName() < out[j].DisplayName() })
	return out
}

func containsLabel(ls []labels.Label, l labels.Label) bool {
	for _, have := range ls {
		if have == l {
			return true
		}
	}
	return false
}

func equalLabels(a, b []labels.Label) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
