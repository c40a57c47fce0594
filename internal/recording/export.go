package recording

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hdsemg/hdsemg-select/internal/grid"
	"github.com/hdsemg/hdsemg-select/internal/labels"
	"github.com/hdsemg/hdsemg-select/internal/monitoring"
)

// Selection is the channel state an export reads.
type Selection interface {
	Status() []bool
	Labels(idx int) []labels.Label
}

// Sidecar is the JSON document written next to an exported recording.
type Sidecar struct {
	FileName string        `json:"filename"`
	Grids    []SidecarGrid `json:"grids"`
}

// SidecarGrid describes one grid and the selection state of its channels.
type SidecarGrid struct {
	Columns                  int              `json:"columns"`
	Rows                     int              `json:"rows"`
	InterElectrodeDistanceMM int              `json:"inter_electrode_distance_mm"`
	Channels                 []SidecarChannel `json:"channels"`
}

// SidecarChannel is one grid channel. Channel numbers are 1-based.
type SidecarChannel struct {
	Channel     int            `json:"channel"`
	Selected    bool           `json:"selected"`
	Description string         `json:"description"`
	Labels      []labels.Label `json:"labels,omitempty"`
}

// BuildSidecar describes every grid of topo against the selection.
func BuildSidecar(fileName string, descriptions []string, sel Selection, topo *grid.Topology) (*Sidecar, error) {
	status := sel.Status()
	if len(status) != len(descriptions) {
		return nil, fmt.Errorf("selection has %d channels, recording has %d", len(status), len(descriptions))
	}
	sc := &Sidecar{FileName: fileName, Grids: []SidecarGrid{}}
	for _, e := range topo.Entries() {
		g := SidecarGrid{
			Columns:                  e.Cols,
			Rows:                     e.Rows,
			InterElectrodeDistanceMM: e.InterElectrodeDistanceMM,
			Channels:                 make([]SidecarChannel, 0, len(e.Indices)),
		}
		for _, idx := range e.Indices {
			if idx < 0 || idx >= len(status) {
				return nil, fmt.Errorf("grid %s references channel %d, recording has %d", e.Key, idx, len(status))
			}
			g.Channels = append(g.Channels, SidecarChannel{
				Channel:     idx + 1,
				Selected:    status[idx],
				Description: descriptions[idx],
				Labels:      sel.Labels(idx),
			})
		}
		sc.Grids = append(sc.Grids, g)
	}
	return sc, nil
}

// WriteSidecar writes sc as indented JSON.
func WriteSidecar(path string, sc *Sidecar) error {
	b, err := json.MarshalIndent(sc, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode sidecar: %w", err)
	}
	if err := os.WriteFile(filepath.Clean(path), b, 0o644); err != nil {
		return fmt.Errorf("failed to write sidecar: %w", err)
	}
	return nil
}

// ExportResult reports what Export wrote.
type ExportResult struct {
	RecordingPath string
	SidecarPath   string
	Channels      int
}

// Export writes the selected channels of rec to path and the selection
// sidecar to the same path with a .json extension.
func Export(path string, rec *Recording, sel Selection, topo *grid.Topology) (*ExportResult, error) {
	status := sel.Status()
	if len(status) != rec.ChannelCount() {
		return nil, fmt.Errorf("selection has %d channels, recording has %d", len(status), rec.ChannelCount())
	}
	var keep []int
	for i, on := range status {
		if on {
			keep = append(keep, i)
		}
	}
	subset, err := rec.Subset(keep)
	if err != nil {
		return nil, err
	}

	if err := WriteEDFFile(path, subset); err != nil {
		return nil, err
	}
	sidecarPath := strings.TrimSuffix(path, filepath.Ext(path)) + ".json"
	sc, err := BuildSidecar(rec.FileName, rec.Descriptions, sel, topo)
	if err != nil {
		return nil, err
	}
	if err := WriteSidecar(sidecarPath, sc); err != nil {
		return nil, err
	}
	monitoring.Logf("recording: exported %d of %d channels to %s", len(keep), rec.ChannelCount(), path)
	return &ExportResult{RecordingPath: path, SidecarPath: sidecarPath, Channels: len(keep)}, nil
}
