package workflow

// Descriptor is a bundle of weak identifying attributes captured for a page
// element at recording time. No field is guaranteed present; anything that
// consumes a Descriptor must tolerate every field being empty.
type Descriptor struct {
	Tag             string `json:"tag,omitempty" yaml:"tag,omitempty"`
	Text            string `json:"text,omitempty" yaml:"text,omitempty"`
	AriaLabel       string `json:"aria_label,omitempty" yaml:"aria_label,omitempty"`
	Placeholder     string `json:"placeholder,omitempty" yaml:"placeholder,omitempty"`
	Role            string `json:"role,omitempty" yaml:"role,omitempty"`
	Name            string `json:"name,omitempty" yaml:"name,omitempty"`
	InputType       string `json:"input_type,omitempty" yaml:"input_type,omitempty"`
	Tooltip         string `json:"tooltip,omitempty" yaml:"tooltip,omitempty"`
	Title           string `json:"title,omitempty" yaml:"title,omitempty"`
	ContentEditable bool   `json:"contenteditable,omitempty" yaml:"contenteditable,omitempty"`
	ParentContext   string `json:"parent_context,omitempty" yaml:"parent_context,omitempty"`
	Label           string `json:"label,omitempty" yaml:"label,omitempty"`
}

// IsZero reports whether no identifying attribute was captured at all.
func (d Descriptor) IsZero() bool {
	return d == Descriptor{}
}

// Matches reports whether two descriptors refer to the same element: they
// share a non-empty, exactly equal value on any one of the strong-ish
// identifiers. No fuzzy matching.
func (d Descriptor) Matches(other Descriptor) bool {
	pairs := [][2]string{
		{d.AriaLabel, other.AriaLabel},
		{d.Name, other.Name},
		{d.Placeholder, other.Placeholder},
		{d.Label, other.Label},
		{d.Tooltip, other.Tooltip},
	}
	for _, p := range pairs {
		if p[0] != "" && p[0] == p[1] {
			return true
		}
	}
	return false
}

// FieldID is the identity used for typed-field deduplication: the first
// non-empty of aria-label, name, placeholder. Empty means the field cannot
// be tracked.
func (d Descriptor) FieldID() string {
	switch {
	case d.AriaLabel != "":
		return d.AriaLabel
	case d.Name != "":
		return d.Name
	case d.Placeholder != "":
		return d.Placeholder
	default:
		return ""
	}
}

// Describe renders a short human-readable identity for step descriptions,
// by identifier priority.
func (d Descriptor) Describe() string {
	if d.AriaLabel != "" {
		return "'" + d.AriaLabel + "'"
	}
	if d.Tooltip != "" {
		return "'" + d.Tooltip + "'"
	}
	if d.Title != "" {
		return "'" + d.Title + "'"
	}
	if d.Text != "" {
		text := d.Text
		if len(text) > 40 {
			text = text[:40] + "..."
		}
		return "'" + text + "'"
	}
	if d.Placeholder != "" {
		return "'" + d.Placeholder + "' field"
	}
	if d.Role != "" {
		return d.Role
	}
	if d.Tag != "" {
		return d.Tag
	}
	return "element"
}

// DescribeField renders an input-field identity for typed steps and AI
// instructions.
func (d Descriptor) DescribeField() string {
	if d.AriaLabel != "" {
		return "the '" + d.AriaLabel + "' field"
	}
	if d.Label != "" {
		return "the '" + d.Label + "' field"
	}
	if d.Placeholder != "" {
		return "the field with placeholder '" + d.Placeholder + "'"
	}
	if d.Name != "" {
		return "the '" + d.Name + "' field"
	}
	if d.ParentContext != "" {
		return "the input field inside '" + d.ParentContext + "'"
	}
	return "the text field"
}
