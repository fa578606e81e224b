package workflow

import "fmt"

// Action is the closed set of replayable step kinds.
type Action string

const (
	ActionClick    Action = "click"
	ActionType     Action = "type"
	ActionKey      Action = "key"
	ActionNavigate Action = "navigate"
)

// Step is one canonical, replayable user action. Steps are immutable once a
// Workflow is saved; both replay engines consume them read-only.
type Step struct {
	Action      Action     `yaml:"action"`
	Description string     `yaml:"description,omitempty"`
	Coordinates []int      `yaml:"coordinates,omitempty,flow"`
	Text        string     `yaml:"text,omitempty"`
	Key         string     `yaml:"key,omitempty"`
	URL         string     `yaml:"url,omitempty"`
	Element     Descriptor `yaml:"element,omitempty"`
}

// Instruction renders the step as one numbered line of the AI replay
// instruction, with locating hints from the descriptor.
func (s Step) Instruction(num int) string {
	switch s.Action {
	case ActionClick:
		line := fmt.Sprintf("%d. CLICK: %s", num, describeDetailed(s.Element))
		if len(s.Coordinates) == 2 {
			line += fmt.Sprintf("\n   (approximate position: x=%d, y=%d)", s.Coordinates[0], s.Coordinates[1])
		}
		return line
	case ActionType:
		line := fmt.Sprintf("%d. TYPE: '%s' into %s", num, s.Text, s.Element.DescribeField())
		if s.Element.ContentEditable {
			line += "\n   (this is a rich text field, not a regular input)"
		}
		return line
	case ActionKey:
		return fmt.Sprintf("%d. PRESS: %s key", num, s.Key)
	case ActionNavigate:
		return fmt.Sprintf("%d. NAVIGATE: Go to %s", num, s.URL)
	default:
		return fmt.Sprintf("%d. %s", num, s.Action)
	}
}

func describeDetailed(d Descriptor) string {
	var parts []string
	switch {
	case d.AriaLabel != "":
		parts = append(parts, "the element labeled '"+d.AriaLabel+"'")
	case d.Tooltip != "":
		parts = append(parts, "the element with tooltip '"+d.Tooltip+"'")
	case d.Title != "":
		parts = append(parts, "the element titled '"+d.Title+"'")
	case d.Text != "":
		text := d.Text
		if len(text) > 50 {
			text = text[:50]
		}
		parts = append(parts, "the element with text '"+text+"'")
	case d.Role != "":
		parts = append(parts, "the "+d.Role+" element")
	case d.Tag != "":
		parts = append(parts, "the "+d.Tag)
	default:
		parts = append(parts, "the element")
	}
	if d.Role != "" && d.AriaLabel != "" {
		parts = append(parts, "role: "+d.Role)
	}
	if d.ParentContext != "" {
		parts = append(parts, "inside the '"+d.ParentContext+"' area")
	}
	out := parts[0]
	for _, p := range parts[1:] {
		out += ", " + p
	}
	return out
}
