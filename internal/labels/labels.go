// Package labels defines the channel label identities used by the selection
// engine. Display metadata (names, colours) lives in a separate presentation
// table so the analysis code only deals with stable identities.
package labels

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Label identifies one of the built-in channel labels.
type Label int

const (
	ECG Label = iota + 1
	Noise50
	Noise60
	Artifact
	BadChannel
	ReferenceSignal
)

var identifiers = map[Label]string{
	ECG:             "ECG",
	Noise50:         "NOISE_50",
	Noise60:         "NOISE_60",
	Artifact:        "ARTIFACT",
	BadChannel:      "BAD_CHANNEL",
	ReferenceSignal: "REFERENCE_SIGNAL",
}

// All returns every built-in label in id order.
func All() []Label {
	return []Label{ECG, Noise50, Noise60, Artifact, BadChannel, ReferenceSignal}
}

// String returns the stable identifier, e.g. "NOISE_50".
func (l Label) String() string {
	if s, ok := identifiers[l]; ok {
		return s
	}
	return fmt.Sprintf("Label(%d)", int(l))
}

// Valid reports whether l is one of the built-in labels.
func (l Label) Valid() bool {
	_, ok := identifiers[l]
	return ok
}

// Parse converts an identifier such as "ARTIFACT" back into a Label.
// Matching is case-insensitive.
func Parse(s string) (Label, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for l, id := range identifiers {
		if id == s {
			return l, nil
		}
	}
	return 0, fmt.Errorf("unknown label %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (l Label) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("cannot marshal invalid label %d", int(l))
	}
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Label) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// Custom is a user-defined label. Custom labels are identified by a UUID so
// they survive renames.
type Custom struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Color string    `json:"color"`
}

// NewCustom creates a custom label with a fresh random id.
func NewCustom(name, color string) (Custom, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Custom{}, fmt.Errorf("custom label name must not be empty")
	}
	if _, ok := ByName(name); ok {
		return Custom{}, fmt.Errorf("custom label %q clashes with a built-in label", name)
	}
	return Custom{ID: uuid.New(), Name: name, Color: color}, nil
}
