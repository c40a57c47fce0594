package selection

import (
	"fmt"

	"github.com/hdsemg/hdsemg-select/internal/labels"
)

// Snapshot is the persistable part of a session.
type Snapshot struct {
	FileName     string                  `json:"file_name"`
	Descriptions []string                `json:"descriptions"`
	Status       []bool                  `json:"status"`
	Labels       map[int][]labels.Label  `json:"labels"`
	Custom       map[int][]labels.Custom `json:"custom_labels,omitempty"`
	GridKey      string                  `json:"grid_key,omitempty"`
}

// Snapshot copies the session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		FileName:     s.fileName,
		Descriptions: append([]string(nil), s.descriptions...),
		Status:       append([]bool(nil), s.status...),
		Labels:       make(map[int][]labels.Label, len(s.labels)),
		Custom:       make(map[int][]labels.Custom, len(s.custom)),
		GridKey:      s.gridKey,
	}
	for ch, ls := range s.labels {
		snap.Labels[ch] = append([]labels.Label(nil), ls...)
	}
	for ch, cs := range s.custom {
		snap.Custom[ch] = append([]labels.Custom(nil), cs...)
	}
	return snap
}

// Restore rebuilds a session from a snapshot. The topology and grid mapping
// are not part of a snapshot and must be recomputed by the caller.
func Restore(snap Snapshot) (*Session, error) {
	if len(snap.Status) != len(snap.Descriptions) {
		return nil, fmt.Errorf("snapshot has %d status flags for %d channels", len(snap.Status), len(snap.Descriptions))
	}
	s := New(snap.FileName, snap.Descriptions)
	copy(s.status, snap.Status)
	for ch, ls := range snap.Labels {
		if err := s.SetLabels(ch, ls); err != nil {
			return nil, fmt.Errorf("restore labels: %w", err)
		}
	}
	for ch, cs := range snap.Custom {
		for _, c := range cs {
			if err := s.AddCustomLabel(ch, c); err != nil {
				return nil, fmt.Errorf("restore custom labels: %w", err)
			}
		}
	}
	return s, nil
}
