// Package grid extracts electrode-grid topology from per-channel description
// strings and resolves expected electrode counts against a product catalogue.
package grid

import (
	"regexp"
	"strconv"

	"github.com/hdsemg/hdsemg-select/internal/monitoring"
)

// descriptorPattern matches HD<DD>MM<RR><CC>: inter-electrode distance in mm,
// row count and column count, two digits each.
var descriptorPattern = regexp.MustCompile(`HD(\d{2})MM(\d{2})(\d{2})`)

// ElectrodeCountLookup resolves a matched descriptor token such as
// "HD10MM0808" to the number of physical electrodes of that grid model.
// It must answer from memory and report false when the model is unknown.
type ElectrodeCountLookup func(product string) (int, bool)

// Descriptor is the parsed form of a grid-channel description.
type Descriptor struct {
	Token string
	IEDMM int
	Rows  int
	Cols  int
}

// ParseDescriptor finds the grid token inside a channel description.
func ParseDescriptor(description string) (Descriptor, bool) {
	m := descriptorPattern.FindStringSubmatch(description)
	if m == nil {
		return Descriptor{}, false
	}
	ied, _ := strconv.Atoi(m[1])
	rows, _ := strconv.Atoi(m[2])
	cols, _ := strconv.Atoi(m[3])
	// A zero-sized shape cannot be paged, so the token is not treated as a grid.
	if rows == 0 || cols == 0 {
		return Descriptor{}, false
	}
	return Descriptor{Token: m[0], IEDMM: ied, Rows: rows, Cols: cols}, true
}

// Extract scans channel descriptions in index order and groups matching
// channels into grids keyed by shape. Non-matching channels become reference
// signals of the most recently matched grid; those before the first match
// are dropped. A nil lookup falls back to rows*cols for every grid.
//
// Grids are keyed by shape, so a key that reappears after another grid keeps
// accumulating into its first entry, while references always follow the
// most recent match.
func Extract(descriptions []string, lookup ElectrodeCountLookup) *Topology {
	topo := NewTopology()
	current := ""

	for idx, desc := range descriptions {
		d, ok := ParseDescriptor(desc)
		if !ok {
			if current != "" {
				e := topo.entries[current]
				e.ReferenceSignals = append(e.ReferenceSignals, ReferenceSignal{Index: idx, Name: desc})
			}
			continue
		}

		key := Key(d.Rows, d.Cols)
		e, seen := topo.entries[key]
		if !seen {
			e = &Entry{
				Key:                      key,
				Rows:                     d.Rows,
				Cols:                     d.Cols,
				InterElectrodeDistanceMM: d.IEDMM,
				Product:                  d.Token,
				Indices:                  []int{},
				ReferenceSignals:         []ReferenceSignal{},
			}
			if n, ok := safeLookup(lookup, d.Token); ok {
				e.ElectrodeCount = n
			} else {
				e.ElectrodeCount = d.Rows * d.Cols
				e.ElectrodeCountInferred = true
			}
			topo.keys = append(topo.keys, key)
			topo.entries[key] = e
		}
		e.Indices = append(e.Indices, idx)
		current = key
	}

	return topo
}

// safeLookup calls lookup and treats a panic or a non-positive answer as
// "unknown" so extraction never fails because of the catalogue.
func safeLookup(lookup ElectrodeCountLookup, token string) (n int, ok bool) {
	if lookup == nil {
		return 0, false
	}
	defer func() {
		if r := recover(); r != nil {
			monitoring.Logf("grid: electrode lookup for %s failed: %v", token, r)
			n, ok = 0, false
		}
	}()
	n, ok = lookup(token)
	if !ok || n <= 0 {
		return 0, false
	}
	return n, true
}
