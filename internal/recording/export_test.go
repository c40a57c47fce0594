package recording

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hdsemg/hdsemg-select/internal/grid"
	"github.com/hdsemg/hdsemg-select/internal/labels"
	"github.com/hdsemg/hdsemg-select/internal/monitoring"
)

type fakeSelection struct {
	status []bool
	labels map[int][]labels.Label
}

func (f fakeSelection) Status() []bool { return f.status }
func (f fakeSelection) Labels(i int) []labels.Label { return f.labels[i] }

func TestBuildSidecar(t *testing.T) {
	rec := sampleRecording(8)
	topo := grid.Extract(rec.Descriptions, nil)
	sel := fakeSelection{
		status: []bool{true, false, true, true, false},
		labels: map[int][]labels.Label{1: {labels.Noise50}},
	}

	sc, err := BuildSidecar(rec.FileName, rec.Descriptions, sel, topo)
	require.NoError(t, err)

	want := &Sidecar{
		FileName: "session.edf",
		Grids: []SidecarGrid{{
			Columns:                  2,
			Rows:                     2,
			InterElectrodeDistanceMM: 10,
			Channels: []SidecarChannel{
				{Channel: 1, Selected: true, Description: "HD10MM0202"},
				{Channel: 2, Selected: false, Description: "HD10MM0202", Labels: []labels.Label{labels.Noise50}},
				{Channel: 3, Selected: true, Description: "HD10MM0202"},
				{Channel: 4, Selected: true, Description: "HD10MM0202"},
			},
		}},
	}
	if diff := cmp.Diff(want, sc); diff != "" {
		t.Errorf("sidecar mismatch (-want +got):\n%s", diff)
	}

	_, err = BuildSidecar(rec.FileName, rec.Descriptions[:2], sel, topo)
	assert.Error(t, err)
}

func TestExport(t *testing.T) {
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.SetLogger(nil) })

	rec := sampleRecording(2048)
	topo := grid.Extract(rec.Descriptions, nil)
	sel := fakeSelection{status: []bool{true, false, true, false, true}}
	out := filepath.Join(t.TempDir(), "filtered.edf")

	res, err := Export(out, rec, sel, topo)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Channels)
	assert.Equal(t, filepath.Join(filepath.Dir(out), "filtered.json"), res.SidecarPath)

	got, err := Open(out)
	require.NoError(t, err)
	assert.Equal(t, []string{"HD10MM0202", "HD10MM0202", "Ref"}, got.Descriptions)

	raw, err := os.ReadFile(res.SidecarPath)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, "session.edf", doc["filename"])
	grids := doc["grids"].([]any)
	require.Len(t, grids, 1)
	g := grids[0].(map[string]any)
	assert.EqualValues(t, 2, g["columns"])
	assert.EqualValues(t, 10, g["inter_electrode_distance_mm"])
	assert.Len(t, g["channels"], 4)

	// Re-extraction of the export sees a short grid.
	reTopo := grid.Extract(got.Descriptions, nil)
	e, ok := reTopo.Get("2x2")
	require.True(t, ok)
	assert.Len(t, e.Indices, 2)
}

func TestExport_NothingSelected(t *testing.T) {
	rec := sampleRecording(16)
	sel := fakeSelection{status: make([]bool, 5)}
	_, err := Export(filepath.Join(t.TempDir(), "x.edf"), rec, sel, grid.NewTopology())
	assert.ErrorIs(t, err, ErrNoChannelsSelected)

	_, err = Export(filepath.Join(t.TempDir(), "x.edf"), rec, fakeSelection{status: []bool{true}}, grid.NewTopology())
	assert.Error(t, err)
}
