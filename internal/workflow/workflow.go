package workflow

import (
	"fmt"
	"strings"
	"time"
)

// Parameter is a named placeholder a workflow exposes. Occurrences of
// {{name}} in step text and URLs are substituted before a run.
type Parameter struct {
	Name    string `yaml:"name"`
	Label   string `yaml:"label,omitempty"`
	Default string `yaml:"default,omitempty"`
}

// Workflow is the persisted, parameterizable unit of replay.
type Workflow struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description,omitempty"`
	RecordedAt  string      `yaml:"recorded_at,omitempty"`
	StartURL    string      `yaml:"start_url,omitempty"`
	Parameters  []Parameter `yaml:"parameters,omitempty"`
	Steps       []Step      `yaml:"steps"`
}

// New builds a workflow from canonicalized steps, stamped with the current
// time.
func New(name, description, startURL string, steps []Step) Workflow {
	return Workflow{
		Name:        name,
		Description: description,
		RecordedAt:  time.Now().UTC().Format(time.RFC3339),
		StartURL:    startURL,
		Steps:       steps,
	}
}

// Resolve substitutes parameter values into {{name}} placeholders in step
// text, step URLs and the start URL, returning a new Workflow value. The
// receiver is never mutated. Parameters without a supplied value fall back
// to their default; a required parameter (no default) left unset is an
// error and nothing is resolved.
func (w Workflow) Resolve(values map[string]string) (Workflow, error) {
	var missing []string
	final := make(map[string]string, len(w.Parameters))
	for _, p := range w.Parameters {
		if v, ok := values[p.Name]; ok && v != "" {
			final[p.Name] = v
			continue
		}
		if p.Default != "" {
			final[p.Name] = p.Default
			continue
		}
		missing = append(missing, p.Name)
	}
	if len(missing) > 0 {
		return Workflow{}, fmt.Errorf("missing required parameters: %s", strings.Join(missing, ", "))
	}

	out := w
	out.StartURL = substitute(w.StartURL, final)
	out.Steps = make([]Step, len(w.Steps))
	for i, s := range w.Steps {
		s.Text = substitute(s.Text, final)
		s.URL = substitute(s.URL, final)
		s.Description = substitute(s.Description, final)
		out.Steps[i] = s
	}
	return out, nil
}

func substitute(s string, values map[string]string) string {
	if !strings.Contains(s, "{{") {
		return s
	}
	for name, val := range values {
		s = strings.ReplaceAll(s, "{{"+name+"}}", val)
	}
	return s
}

// RequiredParameters lists parameter names that have no default.
func (w Workflow) RequiredParameters() []string {
	var required []string
	for _, p := range w.Parameters {
		if p.Default == "" {
			required = append(required, p.Name)
		}
	}
	return required
}

// Instruction renders the workflow as a natural-language task for the AI
// agent loop, one numbered line per step.
func (w Workflow) Instruction() string {
	var b strings.Builder
	if w.Description != "" {
		fmt.Fprintf(&b, "Task: %s\n", w.Description)
	} else {
		fmt.Fprintf(&b, "Task: Replay recorded workflow '%s'\n", w.Name)
	}
	if w.StartURL != "" {
		fmt.Fprintf(&b, "Starting page: %s\n", w.StartURL)
	}
	b.WriteString("\nFollow these steps in order. Use the screenshot to find each element. ")
	b.WriteString("The hints about screen position and element context should help you locate them.\n\n")
	for i, s := range w.Steps {
		b.WriteString(s.Instruction(i + 1))
		b.WriteByte('\n')
	}
	b.WriteString("\nAfter completing ALL steps above, report that the task is done. ")
	b.WriteString("Do not add extra steps that were not listed.")
	return b.String()
}
