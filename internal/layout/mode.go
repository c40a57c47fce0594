// Package layout turns a grid entry and a fiber orientation into a paged
// sequence of absolute channel indices.
package layout

import (
	"fmt"
	"strings"
)

// FiberMode is the orientation of the paging axis relative to the muscle fibers.
type FiberMode int

const (
	Parallel FiberMode = iota
	Perpendicular
)

func (f FiberMode) String() string {
	switch f {
	case Parallel:
		return "parallel"
	case Perpendicular:
		return "perpendicular"
	}
	return fmt.Sprintf("FiberMode(%d)", int(f))
}

// ParseFiberMode accepts "parallel" or "perpendicular", case-insensitively.
func ParseFiberMode(s string) (FiberMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "parallel":
		return Parallel, nil
	case "perpendicular":
		return Perpendicular, nil
	}
	return 0, fmt.Errorf("unknown fiber mode %q", s)
}

// Mode selects which logical axis of the grid becomes the page-traversal axis.
type Mode int

const (
	// Rows flattens the grid row-major; one page holds one row.
	Rows Mode = iota
	// Columns flattens the grid column-major; one page holds one column.
	Columns
)

func (m Mode) String() string {
	switch m {
	case Rows:
		return "rows"
	case Columns:
		return "columns"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ParseMode accepts "rows" or "columns" (and the singular/short forms).
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rows", "row":
		return Rows, nil
	case "columns", "column", "cols", "col":
		return Columns, nil
	}
	return 0, fmt.Errorf("unknown layout mode %q", s)
}

// Preferences maps each fiber mode to a layout mode. It is user data,
// typically loaded from the tuning config.
type Preferences struct {
	Parallel      Mode
	Perpendicular Mode
}

// DefaultPreferences pairs perpendicular with row-major and parallel with
// column-major paging.
func DefaultPreferences() Preferences {
	return Preferences{Parallel: Columns, Perpendicular: Rows}
}

// Resolve returns the layout mode for a fiber mode.
func (p Preferences) Resolve(f FiberMode) Mode {
	if f == Parallel {
		return p.Parallel
	}
	return p.Perpendicular
}
