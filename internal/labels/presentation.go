package labels

// Display holds the user-facing name and colour of a label.
type Display struct {
	Name  string
	Color string
}

// Presentation maps built-in labels to their display metadata.
var Presentation = map[Label]Display{
	ECG:             {Name: "ECG", Color: "#ef4444"},
	Noise50:         {Name: "Noise 50 Hz", Color: "#eab308"},
	Noise60:         {Name: "Noise 60 Hz", Color: "#eab308"},
	Artifact:        {Name: "Artifact", Color: "#ca8a04"},
	BadChannel:      {Name: "Bad Channel", Color: "#dc2626"},
	ReferenceSignal: {Name: "Reference Signal", Color: "#22c55e"},
}

// DisplayName returns the user-facing name, falling back to the identifier.
func (l Label) DisplayName() string {
	if d, ok := Presentation[l]; ok {
		return d.Name
	}
	return l.String()
}

// ByName looks up a built-in label by its display name ("Noise 50 Hz").
func ByName(name string) (Label, bool) {
	for _, l := range All() {
		if Presentation[l].Name == name {
			return l, true
		}
	}
	return 0, false
}
