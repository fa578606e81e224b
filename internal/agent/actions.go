package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sgurov/browserflow/internal/browser"
	"github.com/sgurov/browserflow/internal/llm"
)

// Verb is a model-issued action name. The set is closed; ParseVerb rejects
// anything else so a typo from the model becomes a reported error, not a
// silent no-op.
type Verb string

const (
	VerbScreenshot    Verb = "screenshot"
	VerbLeftClick     Verb = "left_click"
	VerbRightClick    Verb = "right_click"
	VerbMiddleClick   Verb = "middle_click"
	VerbDoubleClick   Verb = "double_click"
	VerbTripleClick   Verb = "triple_click"
	VerbMouseMove     Verb = "mouse_move"
	VerbLeftClickDrag Verb = "left_click_drag"
	VerbType          Verb = "type"
	VerbKey           Verb = "key"
	VerbScroll        Verb = "scroll"
	VerbWait          Verb = "wait"
	VerbHoldKey       Verb = "hold_key"
)

var verbs = map[Verb]bool{
	VerbScreenshot:    true,
	VerbLeftClick:     true,
	VerbRightClick:    true,
	VerbMiddleClick:   true,
	VerbDoubleClick:   true,
	VerbTripleClick:   true,
	VerbMouseMove:     true,
	VerbLeftClickDrag: true,
	VerbType:          true,
	VerbKey:           true,
	VerbScroll:        true,
	VerbWait:          true,
	VerbHoldKey:       true,
}

func ParseVerb(name string) (Verb, error) {
	v := Verb(name)
	if !verbs[v] {
		return "", fmt.Errorf("unknown action: %s", name)
	}
	return v, nil
}

const (
	scrollUnitPx       = 100
	defaultScrollUnits = 3
	maxPauseDuration   = 5 * time.Second
)

// Executor translates abstract model actions into browser operations.
// Coordinates arrive in scaled screenshot space and are mapped to viewport
// pixels before use. Every failure comes back as an error value so the
// caller can feed it to the model as a tool result.
type Executor struct {
	drv    browser.Driver
	shots  *browser.Capturer
	logger zerolog.Logger
}

func NewExecutor(drv browser.Driver, shots *browser.Capturer, logger zerolog.Logger) *Executor {
	return &Executor{drv: drv, shots: shots, logger: logger}
}

// Execute performs one action. VerbScreenshot is a no-op here; the loop
// captures the screen after every action anyway.
func (e *Executor) Execute(ctx context.Context, act llm.Action) error {
	verb, err := ParseVerb(act.Name)
	if err != nil {
		return err
	}
	e.logger.Debug().Str("action", act.Name).Ints("coordinate", act.Coordinate).Msg("executing action")

	if err := e.dispatch(ctx, verb, act); err != nil {
		return fmt.Errorf("action %s failed: %w", act.Name, err)
	}
	return nil
}

func (e *Executor) dispatch(ctx context.Context, verb Verb, act llm.Action) error {
	switch verb {
	case VerbScreenshot:
		return nil
	case VerbLeftClick:
		return e.click(ctx, act, "left", 1)
	case VerbRightClick:
		return e.click(ctx, act, "right", 1)
	case VerbMiddleClick:
		return e.click(ctx, act, "middle", 1)
	case VerbDoubleClick:
		return e.click(ctx, act, "left", 2)
	case VerbTripleClick:
		return e.click(ctx, act, "left", 3)
	case VerbMouseMove:
		x, y, err := e.screenCoords(act.Coordinate)
		if err != nil {
			return err
		}
		return e.drv.MoveMouse(ctx, x, y)
	case VerbLeftClickDrag:
		return e.drag(ctx, act)
	case VerbType:
		return e.drv.TypeText(ctx, act.Text)
	case VerbKey:
		return e.drv.PressKey(ctx, normalizeKeyCombo(act.Text))
	case VerbScroll:
		return e.scroll(ctx, act)
	case VerbWait:
		return e.pause(ctx, rawDuration(act, 1))
	case VerbHoldKey:
		return e.holdKey(ctx, act)
	}
	return fmt.Errorf("unknown action: %s", verb)
}

func (e *Executor) click(ctx context.Context, act llm.Action, button string, count int) error {
	x, y, err := e.screenCoords(act.Coordinate)
	if err != nil {
		return err
	}
	return e.drv.Click(ctx, x, y, button, count)
}

func (e *Executor) drag(ctx context.Context, act llm.Action) error {
	start := intSlice(act.Raw["start_coordinate"])
	sx, sy, err := e.screenCoords(start)
	if err != nil {
		return fmt.Errorf("start_coordinate: %w", err)
	}
	ex, ey, err := e.screenCoords(act.Coordinate)
	if err != nil {
		return err
	}
	if err := e.drv.MoveMouse(ctx, sx, sy); err != nil {
		return err
	}
	if err := e.drv.MouseDown(ctx); err != nil {
		return err
	}
	if err := e.drv.MoveMouse(ctx, ex, ey); err != nil {
		return err
	}
	return e.drv.MouseUp(ctx)
}

func (e *Executor) scroll(ctx context.Context, act llm.Action) error {
	x, y, err := e.screenCoords(act.Coordinate)
	if err != nil {
		return err
	}
	units := act.ScrollAmount
	if units <= 0 {
		units = defaultScrollUnits
	}
	px := float64(units * scrollUnitPx)
	var dx, dy float64
	switch act.ScrollDirection {
	case "up":
		dy = -px
	case "down", "":
		dy = px
	case "left":
		dx = -px
	case "right":
		dx = px
	default:
		return fmt.Errorf("unknown scroll direction: %s", act.ScrollDirection)
	}
	if err := e.drv.MoveMouse(ctx, x, y); err != nil {
		return err
	}
	return e.drv.Wheel(ctx, dx, dy)
}

func (e *Executor) holdKey(ctx context.Context, act llm.Action) error {
	if act.Text == "" {
		return errors.New("no key to hold")
	}
	key := normalizeKeyCombo(act.Text)
	if err := e.drv.KeyDown(ctx, key); err != nil {
		return err
	}
	if err := e.pause(ctx, rawDuration(act, 0.5)); err != nil {
		_ = e.drv.KeyUp(ctx, key)
		return err
	}
	return e.drv.KeyUp(ctx, key)
}

// pause sleeps for the given seconds, capped and context-aware.
func (e *Executor) pause(ctx context.Context, seconds float64) error {
	d := time.Duration(seconds * float64(time.Second))
	if d > maxPauseDuration {
		d = maxPauseDuration
	}
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func (e *Executor) screenCoords(coord []int) (float64, float64, error) {
	if len(coord) < 2 {
		return 0, 0, errors.New("no coordinate provided")
	}
	x, y := e.shots.ToScreen(coord[0], coord[1])
	return x, y, nil
}

func rawDuration(act llm.Action, fallback float64) float64 {
	switch v := act.Raw["duration"].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return fallback
}

func intSlice(v any) []int {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]int, 0, len(raw))
	for _, item := range raw {
		if f, ok := item.(float64); ok {
			out = append(out, int(f))
		}
	}
	return out
}

var keyAliases = map[string]string{
	"ctrl":      "Control",
	"control":   "Control",
	"cmd":       "Meta",
	"super":     "Meta",
	"win":       "Meta",
	"alt":       "Alt",
	"option":    "Alt",
	"shift":     "Shift",
	"enter":     "Enter",
	"return":    "Enter",
	"tab":       "Tab",
	"escape":    "Escape",
	"esc":       "Escape",
	"backspace": "Backspace",
	"delete":    "Delete",
	"space":     " ",
	"up":        "ArrowUp",
	"down":      "ArrowDown",
	"left":      "ArrowLeft",
	"right":     "ArrowRight",
	"arrowup":   "ArrowUp",
	"arrowdown": "ArrowDown",
	"arrowleft": "ArrowLeft",
	"arrowright": "ArrowRight",
	"pageup":    "PageUp",
	"pagedown":  "PageDown",
	"home":      "Home",
	"end":       "End",
}

// normalizeKeyCombo maps model key names ("ctrl+a", "Return") onto
// playwright key names ("Control+a", "Enter"). Unrecognized tokens pass
// through unchanged.
func normalizeKeyCombo(combo string) string {
	parts := strings.Split(combo, "+")
	for i, part := range parts {
		if mapped, ok := keyAliases[strings.ToLower(strings.TrimSpace(part))]; ok {
			parts[i] = mapped
		} else {
			parts[i] = strings.TrimSpace(part)
		}
	}
	return strings.Join(parts, "+")
}
