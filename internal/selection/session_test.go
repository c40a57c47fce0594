package selection

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hdsemg/hdsemg-select/internal/grid"
	"github.com/hdsemg/hdsemg-select/internal/labels"
	"github.com/hdsemg/hdsemg-select/internal/layout"
	"github.com/hdsemg/hdsemg-select/internal/monitoring"
	"github.com/hdsemg/hdsemg-select/internal/quality"
	"github.com/hdsemg/hdsemg-select/internal/testutil"
)

func init() {
	monitoring.SetLogger(nil)
}

func newSession(n int) *Session {
	descs := make([]string, n)
	for i := range descs {
		descs[i] = "ch"
	}
	return New("rec.edf", descs)
}

func TestChannelManagement(t *testing.T) {
	s := newSession(4)
	assert.Equal(t, 4, s.ChannelCount())
	assert.Equal(t, 0, s.CountSelected())

	require.NoError(t, s.SetChannel(2, true))
	assert.True(t, s.Selected(2))
	assert.False(t, s.Selected(1))
	assert.Equal(t, 1, s.CountSelected())

	s.SelectAll(true)
	assert.Equal(t, []bool{true, true, true, true}, s.Status())
	assert.Equal(t, 4, s.CountSelected())

	s.SelectAll(false)
	assert.Equal(t, 0, s.CountSelected())
	assert.Empty(t, s.SelectedIndices())

	assert.Error(t, s.SetChannel(4, true))
	assert.Error(t, s.SetChannel(-1, true))
	assert.False(t, s.Selected(99))

	require.NoError(t, s.SelectChannels([]int{0, 3}, true))
	assert.Equal(t, []int{0, 3}, s.SelectedIndices())
	assert.Error(t, s.SelectChannels([]int{1, 9}, true))
	assert.False(t, s.Selected(1), "no partial update on error")
}

func TestStatusIsACopy(t *testing.T) {
	s := newSession(2)
	st := s.Status()
	st[0] = true
	assert.False(t, s.Selected(0))
}

func TestMergeSuggestions(t *testing.T) {
	s := newSession(5)
	require.NoError(t, s.SetLabels(1, []labels.Label{labels.ECG}))

	report := quality.Report{
		1:  {labels.Noise50},
		2:  {labels.Artifact, labels.ReferenceSignal},
		7:  {labels.Artifact}, // out of range
		-1: {labels.Noise60},
	}
	updated := s.MergeSuggestions(report)
	assert.Equal(t, 2, updated)

	assert.Equal(t, []labels.Label{labels.ECG, labels.Noise50}, s.Labels(1))
	assert.Equal(t, []labels.Label{labels.Artifact, labels.ReferenceSignal}, s.Labels(2))

	// merging again changes nothing
	assert.Equal(t, 0, s.MergeSuggestions(report))
}

func TestLabelsSortedByDisplayName(t *testing.T) {
	s := newSession(1)
	require.NoError(t, s.SetLabels(0, []labels.Label{labels.ReferenceSignal, labels.Noise60, labels.BadChannel, labels.Noise60}))
	want := []labels.Label{labels.BadChannel, labels.Noise60, labels.ReferenceSignal}
	if diff := cmp.Diff(want, s.Labels(0)); diff != "" {
		t.Errorf("labels (-want +got):\n%s", diff)
	}

	changed, err := s.AddLabel(0, labels.Artifact)
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = s.AddLabel(0, labels.Artifact)
	require.NoError(t, err)
	assert.False(t, changed)

	require.NoError(t, s.SetLabels(0, nil))
	assert.Empty(t, s.Labels(0))
	assert.Error(t, s.SetLabels(0, []labels.Label{labels.Label(42)}))
}

func TestDeselectLabelled(t *testing.T) {
	s := newSession(4)
	s.SelectAll(true)
	s.MergeSuggestions(quality.Report{
		0: {labels.Noise50},
		2: {labels.ReferenceSignal},
		3: {labels.Artifact},
	})
	n := s.DeselectLabelled(labels.Noise50, labels.Noise60, labels.Artifact)
	assert.Equal(t, 2, n)
	assert.Equal(t, []int{1, 2}, s.SelectedIndices())
}

func TestApplyAmplitude(t *testing.T) {
	samples := testutil.Matrix(
		[]float64{-100, 0, 100},
		[]float64{-5, 0, 5},
		[]float64{-90, 10, 95},
		[]float64{-1, 0, 1},
	)
	s := newSession(4)
	channels := []int{0, 1, 2}
	th, err := quality.ComputeAmplitudeThresholds(samples, channels, quality.DefaultAmplitudeFraction)
	require.NoError(t, err)

	sel, desel, err := s.ApplyAmplitude(samples, channels, th)
	require.NoError(t, err)
	assert.Equal(t, 2, sel)
	assert.Equal(t, 1, desel)
	assert.Equal(t, []bool{true, false, true, false}, s.Status())
	assert.Equal(t, []labels.Label{labels.BadChannel}, s.Labels(1))
	assert.Empty(t, s.Labels(3), "channels outside the grid are untouched")

	_, _, err = s.ApplyAmplitude(samples, channels, quality.AmplitudeThresholds{Lower: 1, Upper: 1})
	assert.Error(t, err)
	_, _, err = s.ApplyAmplitude(samples, []int{9}, th)
	assert.Error(t, err)
}

func TestSelectGrid(t *testing.T) {
	descs := testutil.GridDescriptions("HD10MM0204", 8, "REF")
	s := New("rec.edf", descs)

	_, err := s.SelectGrid("2x4", layout.Parallel, layout.DefaultPreferences())
	assert.Error(t, err, "no topology yet")

	s.SetTopology(grid.Extract(descs, nil))
	m, err := s.SelectGrid("2x4", layout.Parallel, layout.DefaultPreferences())
	require.NoError(t, err)
	assert.Equal(t, 2, m.ItemsPerPage)

	e, cur, ok := s.CurrentGrid()
	require.True(t, ok)
	assert.Equal(t, "2x4", e.Key)
	assert.Same(t, m, cur)

	_, err = s.SelectGrid("8x8", layout.Parallel, layout.DefaultPreferences())
	assert.Error(t, err)
	_, cur, ok = s.CurrentGrid()
	require.True(t, ok)
	assert.Same(t, m, cur, "failed selection keeps the previous one")
}

func TestSelectGrid_ShapeMismatch(t *testing.T) {
	descs := testutil.GridDescriptions("HD08MM1305", 60)
	s := New("rec.edf", descs)
	s.SetTopology(grid.Extract(descs, grid.NewCatalogue([]grid.Product{{Product: "HD08MM1305", Electrodes: 64}}).Lookup))

	_, err := s.SelectGrid("13x5", layout.Perpendicular, layout.DefaultPreferences())
	require.ErrorIs(t, err, layout.ErrShapeMismatch)
	_, _, ok := s.CurrentGrid()
	assert.False(t, ok)
}

func TestReloadDiscardsState(t *testing.T) {
	s := newSession(3)
	s.SelectAll(true)
	require.NoError(t, s.SetLabels(0, []labels.Label{labels.ECG}))
	s.SetTopology(grid.NewTopology())

	s.Reload("other.edf", []string{"a", "b"})
	assert.Equal(t, "other.edf", s.FileName())
	assert.Equal(t, 2, s.ChannelCount())
	assert.Equal(t, 0, s.CountSelected())
	assert.Empty(t, s.Labels(0))
	assert.Nil(t, s.Topology())

	s.Reset()
	assert.Equal(t, 0, s.ChannelCount())
	assert.Equal(t, "", s.FileName())
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := newSession(3)
	require.NoError(t, s.SetChannel(1, true))
	require.NoError(t, s.SetLabels(2, []labels.Label{labels.Artifact}))
	custom, err := labels.NewCustom("Motion", "#000000")
	require.NoError(t, err)
	require.NoError(t, s.AddCustomLabel(0, custom))
	require.NoError(t, s.AddCustomLabel(0, custom))
	assert.Len(t, s.CustomLabels(0), 1)

	b, err := json.Marshal(s.Snapshot())
	require.NoError(t, err)
	var snap Snapshot
	require.NoError(t, json.Unmarshal(b, &snap))

	r, err := Restore(snap)
	require.NoError(t, err)
	if diff := cmp.Diff(s.Snapshot(), r.Snapshot()); diff != "" {
		t.Errorf("snapshot mismatch (-orig +restored):\n%s", diff)
	}

	_, err = Restore(Snapshot{Descriptions: []string{"a"}, Status: nil})
	assert.Error(t, err)
}
