package grid

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// ReferenceSignal is a non-grid channel attached to the grid it follows.
type ReferenceSignal struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
}

// Entry describes one electrode grid discovered in a recording.
type Entry struct {
	Key                      string            `json:"key"`
	Rows                     int               `json:"rows"`
	Cols                     int               `json:"cols"`
	InterElectrodeDistanceMM int               `json:"inter_electrode_distance_mm"`
	ElectrodeCount           int               `json:"electrode_count"`
	ElectrodeCountInferred   bool              `json:"electrode_count_inferred"`
	Product                  string            `json:"product,omitempty"`
	Indices                  []int             `json:"indices"`
	ReferenceSignals         []ReferenceSignal `json:"reference_signals"`
}

// Size returns the nominal number of electrode positions (rows*cols).
func (e *Entry) Size() int {
	return e.Rows * e.Cols
}

// Short reports whether the grid model has fewer physical electrodes than
// its nominal shape.
func (e *Entry) Short() bool {
	return e.ElectrodeCount < e.Size()
}

// Key returns the canonical grid key for a shape, e.g. "8x8".
func Key(rows, cols int) string {
	return fmt.Sprintf("%dx%d", rows, cols)
}

// Topology maps grid keys to entries, preserving first-seen order.
// A Topology belongs to one loaded recording and is rebuilt on reload.
type Topology struct {
	keys    []string
	entries map[string]*Entry
}

// NewTopology returns an empty topology.
func NewTopology() *Topology {
	return &Topology{entries: make(map[string]*Entry)}
}

// Len returns the number of grids.
func (t *Topology) Len() int {
	if t == nil {
		return 0
	}
	return len(t.keys)
}

// Empty reports whether no grid was found. Callers treat an empty topology as
// a failed automatic extraction and fall back to a manual one.
func (t *Topology) Empty() bool {
	return t.Len() == 0
}

// Keys returns the grid keys in first-seen order.
func (t *Topology) Keys() []string {
	if t == nil {
		return nil
	}
	out := make([]string, len(t.keys))
	copy(out, t.keys)
	return out
}

// Get returns the entry for key.
func (t *Topology) Get(key string) (*Entry, bool) {
	if t == nil {
		return nil, false
	}
	e, ok := t.entries[key]
	return e, ok
}

// Entries returns the entries in first-seen order.
func (t *Topology) Entries() []*Entry {
	if t == nil {
		return nil
	}
	out := make([]*Entry, 0, len(t.keys))
	for _, k := range t.keys {
		out = append(out, t.entries[k])
	}
	return out
}

// Add inserts an entry built outside automatic extraction, e.g. a manual
// topology entered by the user. An existing key is replaced in place.
func (t *Topology) Add(e *Entry) error {
	if e == nil {
		return fmt.Errorf("nil grid entry")
	}
	if e.Rows <= 0 || e.Cols <= 0 {
		return fmt.Errorf("grid shape must be positive, got %dx%d", e.Rows, e.Cols)
	}
	if len(e.Indices) > e.Size() {
		return fmt.Errorf("grid %s has %d indices, more than its %d positions", Key(e.Rows, e.Cols), len(e.Indices), e.Size())
	}
	if e.Key == "" {
		e.Key = Key(e.Rows, e.Cols)
	}
	if e.ElectrodeCount <= 0 {
		e.ElectrodeCount = e.Size()
		e.ElectrodeCountInferred = true
	}
	if e.ReferenceSignals == nil {
		e.ReferenceSignals = []ReferenceSignal{}
	}
	if _, ok := t.entries[e.Key]; !ok {
		t.keys = append(t.keys, e.Key)
	}
	t.entries[e.Key] = e
	return nil
}

// ReferenceIndices collects the channel indices of every reference signal
// across all grids.
func (t *Topology) ReferenceIndices() map[int]struct{} {
	out := make(map[int]struct{})
	for _, e := range t.Entries() {
		for _, r := range e.ReferenceSignals {
			out[r.Index] = struct{}{}
		}
	}
	return out
}

// GridChannels returns every grid channel index across all grids, sorted.
func (t *Topology) GridChannels() []int {
	var out []int
	for _, e := range t.Entries() {
		out = append(out, e.Indices...)
	}
	sort.Ints(out)
	return out
}

// MarshalJSON encodes the topology as an object whose keys keep first-seen order.
func (t *Topology) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range t.Entries() {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(e.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(e)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
