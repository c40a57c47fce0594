package layout

import (
	"errors"
	"fmt"

	"github.com/hdsemg/hdsemg-select/internal/grid"
)

// ErrShapeMismatch is returned when a grid's matched channel count disagrees
// with its expected electrode count.
var ErrShapeMismatch = errors.New("grid shape mismatch")

// ShapeMismatchError carries the details of a rejected grid selection.
type ShapeMismatchError struct {
	GridKey  string
	Found    int
	Expected int
	// Inferred is true when Expected is the rows*cols fallback rather than a
	// catalogue value.
	Inferred bool
}

func (e *ShapeMismatchError) Error() string {
	if e.Inferred {
		return fmt.Sprintf("grid %s: found %d channels, shape implies %d", e.GridKey, e.Found, e.Expected)
	}
	return fmt.Sprintf("grid %s: found %d channels, catalogue expects %d electrodes (recording may already be a filtered export)",
		e.GridKey, e.Found, e.Expected)
}

func (e *ShapeMismatchError) Unwrap() error { return ErrShapeMismatch }

// absent marks a missing electrode position before sentinels are stripped.
const absent = -1

// Mapping is the paged channel order for one grid and orientation.
type Mapping struct {
	GridKey        string
	Rows, Cols     int
	FiberMode      FiberMode
	LayoutMode     Mode
	OrderedIndices []int
	ItemsPerPage   int
	// ChannelToPageSlot maps an absolute channel index to its position in
	// OrderedIndices.
	ChannelToPageSlot map[int]int
}

// Apply builds the mapping for entry under the given fiber mode.
func Apply(entry *grid.Entry, fiber FiberMode, prefs Preferences) (*Mapping, error) {
	if entry == nil {
		return nil, fmt.Errorf("layout: nil grid entry")
	}
	if entry.Rows <= 0 || entry.Cols <= 0 {
		return nil, fmt.Errorf("layout: grid %s has invalid shape %dx%d", entry.Key, entry.Rows, entry.Cols)
	}
	if len(entry.Indices) != entry.ElectrodeCount {
		return nil, &ShapeMismatchError{
			GridKey:  entry.Key,
			Found:    len(entry.Indices),
			Expected: entry.ElectrodeCount,
			Inferred: entry.ElectrodeCountInferred,
		}
	}

	size := entry.Rows * entry.Cols
	if len(entry.Indices) > size {
		return nil, &ShapeMismatchError{GridKey: entry.Key, Found: len(entry.Indices), Expected: size, Inferred: true}
	}

	padded := make([]int, size)
	copy(padded, entry.Indices)
	for i := len(entry.Indices); i < size; i++ {
		padded[i] = absent
	}

	mode := prefs.Resolve(fiber)
	m := &Mapping{
		GridKey:    entry.Key,
		Rows:       entry.Rows,
		Cols:       entry.Cols,
		FiberMode:  fiber,
		LayoutMode: mode,
	}

	// padded is the row-major fill of a rows x cols matrix.
	flat := make([]int, 0, size)
	switch mode {
	case Columns:
		for c := 0; c < entry.Cols; c++ {
			for r := 0; r < entry.Rows; r++ {
				flat = append(flat, padded[r*entry.Cols+c])
			}
		}
		m.ItemsPerPage = entry.Rows
	default:
		flat = append(flat, padded...)
		m.ItemsPerPage = entry.Cols
	}

	ordered := flat[:0]
	for _, idx := range flat {
		if idx != absent {
			ordered = append(ordered, idx)
		}
	}
	if len(ordered) > size {
		ordered = ordered[:size]
	}
	m.OrderedIndices = ordered

	m.ChannelToPageSlot = make(map[int]int, len(ordered))
	for pos, idx := range ordered {
		m.ChannelToPageSlot[idx] = pos
	}
	return m, nil
}

// TotalPages is ceil(len(OrderedIndices) / ItemsPerPage).
func (m *Mapping) TotalPages() int {
	if m == nil || m.ItemsPerPage <= 0 {
		return 0
	}
	return (len(m.OrderedIndices) + m.ItemsPerPage - 1) / m.ItemsPerPage
}

// Page returns the channel indices shown on page n (0-based). The last page
// may be short.
func (m *Mapping) Page(n int) ([]int, error) {
	total := m.TotalPages()
	if n < 0 || n >= total {
		return nil, fmt.Errorf("page %d out of range [0, %d)", n, total)
	}
	start := n * m.ItemsPerPage
	end := min(start+m.ItemsPerPage, len(m.OrderedIndices))
	out := make([]int, end-start)
	copy(out, m.OrderedIndices[start:end])
	return out, nil
}

// Locate returns the page and the position within that page of a channel.
func (m *Mapping) Locate(channel int) (page, slot int, ok bool) {
	pos, ok := m.ChannelToPageSlot[channel]
	if !ok || m.ItemsPerPage <= 0 {
		return 0, 0, false
	}
	return pos / m.ItemsPerPage, pos % m.ItemsPerPage, true
}
