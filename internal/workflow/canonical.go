package workflow

import (
	"fmt"
	"strings"
)

// RawEvent is one timestamped interaction captured by the browser recorder,
// before canonicalization. The JSON shape matches the injected recorder
// script.
type RawEvent struct {
	Type      string     `json:"type"`
	Timestamp int64      `json:"timestamp"`
	X         int        `json:"x,omitempty"`
	Y         int        `json:"y,omitempty"`
	Text      string     `json:"text,omitempty"`
	Key       string     `json:"key,omitempty"`
	URL       string     `json:"url,omitempty"`
	Element   Descriptor `json:"element,omitempty"`
}

// lookaheadWindow bounds how far ahead the click-absorption check scans.
const lookaheadWindow = 5

// Canonicalizer turns a raw recorded event stream into minimal replayable
// steps. It infers intent from noise: clicks that only focus a field before
// typing, debounced partial type events, typo corrections via Backspace,
// and hash-only navigations produced by transient app state.
type Canonicalizer struct {
	StartURL string

	// FragmentMarker and FragmentMinLen tune the ephemeral-navigation
	// filter: a navigation to the same base URL whose fragment contains
	// FragmentMarker followed by a token longer than FragmentMinLen is
	// dropped. The defaults match webmail compose-draft URLs; other sites
	// with long hash fragments may need different values.
	FragmentMarker string
	FragmentMinLen int
}

// NewCanonicalizer returns a canonicalizer with the default ephemeral
// heuristic.
func NewCanonicalizer(startURL string) Canonicalizer {
	return Canonicalizer{
		StartURL:       startURL,
		FragmentMarker: "compose=",
		FragmentMinLen: 20,
	}
}

// Steps runs the canonicalization: one left-to-right pass with bounded
// lookahead, then a deduplication pass.
func (c Canonicalizer) Steps(events []RawEvent) []Step {
	if len(events) == 0 {
		return nil
	}

	var raw []Step
	i := 0
	for i < len(events) {
		ev := events[i]
		switch ev.Type {
		case "navigate":
			if ev.URL != "" && ev.URL != c.StartURL && !c.ephemeral(ev.URL) {
				raw = append(raw, Step{
					Action:      ActionNavigate,
					URL:         ev.URL,
					Description: "Navigate to " + ev.URL,
				})
			}
			i++

		case "click":
			// A click immediately followed by typing into the same element
			// was only focusing the field; the type step carries the intent.
			if next := nextActionable(events, i+1); next != nil &&
				next.Type == "type" && ev.Element.Matches(next.Element) {
				i++
				continue
			}
			raw = append(raw, Step{
				Action:      ActionClick,
				Coordinates: []int{ev.X, ev.Y},
				Element:     ev.Element,
				Description: "Click " + ev.Element.Describe(),
			})
			i++

		case "type":
			text, elem, next := mergeTypeRun(events, i)
			if text != "" {
				raw = append(raw, Step{
					Action:      ActionType,
					Text:        text,
					Element:     elem,
					Description: fmt.Sprintf("Type '%s' in %s", text, elem.Describe()),
				})
			}
			i = next

		case "key":
			// Standalone Backspace/Delete are typo corrections.
			if ev.Key != "" && !isCorrectionKey(ev) {
				raw = append(raw, Step{
					Action:      ActionKey,
					Key:         ev.Key,
					Element:     ev.Element,
					Description: "Press " + ev.Key,
				})
			}
			i++

		default:
			i++
		}
	}

	return dedupe(raw)
}

// ephemeral reports whether a navigation is an artifact of transient UI
// state rather than a meaningful step.
func (c Canonicalizer) ephemeral(url string) bool {
	baseNew, fragment, _ := strings.Cut(url, "#")
	baseStart, _, _ := strings.Cut(c.StartURL, "#")
	if baseNew != baseStart {
		return false
	}
	marker := c.FragmentMarker
	if marker == "" {
		marker = "compose="
	}
	if _, token, ok := strings.Cut(fragment, marker); ok {
		minLen := c.FragmentMinLen
		if minLen <= 0 {
			minLen = 20
		}
		return len(token) > minLen
	}
	return false
}

func isCorrectionKey(ev RawEvent) bool {
	return ev.Type == "key" && (ev.Key == "Backspace" || ev.Key == "Delete")
}

// nextActionable scans up to lookaheadWindow events forward, skipping
// correction keys, and returns the first other event.
func nextActionable(events []RawEvent, start int) *RawEvent {
	end := start + lookaheadWindow
	if end > len(events) {
		end = len(events)
	}
	for j := start; j < end; j++ {
		if isCorrectionKey(events[j]) {
			continue
		}
		return &events[j]
	}
	return nil
}

// mergeTypeRun folds a run of type events on the same element into its
// final text. Debounced partial values are superseded by later ones, and
// interleaved Backspace/Delete presses are swallowed as corrections in
// progress. Returns the merged text, the run's final descriptor, and the
// index of the first event past the run.
func mergeTypeRun(events []RawEvent, start int) (string, Descriptor, int) {
	text := events[start].Text
	elem := events[start].Element
	j := start + 1
	for j < len(events) {
		next := events[j]
		switch {
		case next.Type == "type" && elem.Matches(next.Element):
			text = next.Text
			elem = next.Element
			j++
		case isCorrectionKey(next):
			j++
		default:
			return text, elem, j
		}
	}
	return text, elem, j
}

// dedupe removes redundant steps: a later type on a field with an unchanged
// value is dropped, a changed value replaces the earlier type step for that
// field, and a click on a field that already has a typed value is a
// redundant re-focus. Fields are identified by Descriptor.FieldID; steps
// whose field identity is empty are never deduplicated.
func dedupe(steps []Step) []Step {
	var result []Step
	typed := make(map[string]string)

	for _, step := range steps {
		switch step.Action {
		case ActionType:
			fieldID := step.Element.FieldID()
			if fieldID != "" {
				if prev, ok := typed[fieldID]; ok && prev == step.Text {
					continue
				}
				typed[fieldID] = step.Text
				filtered := result[:0]
				for _, s := range result {
					if s.Action == ActionType && s.Element.FieldID() == fieldID {
						continue
					}
					filtered = append(filtered, s)
				}
				result = filtered
			}
			result = append(result, step)

		case ActionClick:
			fieldID := step.Element.FieldID()
			if fieldID != "" {
				if _, ok := typed[fieldID]; ok {
					continue
				}
			}
			result = append(result, step)

		default:
			result = append(result, step)
		}
	}
	return result
}
