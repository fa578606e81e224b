package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/sgurov/browserflow/internal/browser"
	"github.com/sgurov/browserflow/internal/config"
	"github.com/sgurov/browserflow/internal/workflow"
)

const elementTimeout = 5 * time.Second

// ErrNoMatch reports that no locator strategy resolved a step's element.
var ErrNoMatch = errors.New("could not find element and no coordinates available")

// Replayer executes a recorded workflow step by step without any model in
// the loop. Elements are resolved semantically first; recorded coordinates
// are the fallback, since layout drifts but labels rarely do.
type Replayer struct {
	drv         browser.Driver
	shots       *browser.Capturer
	hub         Broadcaster
	settleDelay time.Duration
	logger      zerolog.Logger
}

func NewReplayer(drv browser.Driver, shots *browser.Capturer, hub Broadcaster, cfg config.Settings, logger zerolog.Logger) *Replayer {
	return &Replayer{
		drv:         drv,
		shots:       shots,
		hub:         hub,
		settleDelay: cfg.SettleDelay,
		logger:      logger,
	}
}

// Run replays the workflow, updating and broadcasting task state as it
// goes. The first failing step fails the whole task; later steps usually
// depend on earlier ones, so continuing would act on the wrong page.
func (r *Replayer) Run(ctx context.Context, task *Task, wf workflow.Workflow) {
	task.setRunning()
	r.hub.Broadcast(task.Event())
	r.logger.Info().Str("workflow", wf.Name).Int("steps", len(wf.Steps)).Msg("replay started")

	for i, step := range wf.Steps {
		if task.Cancelled() || ctx.Err() != nil {
			task.cancelledAfter(i)
			r.hub.Broadcast(task.Event())
			r.logger.Info().Int("steps", i).Msg("replay cancelled")
			return
		}

		desc := step.Description
		if desc == "" {
			desc = string(step.Action)
		}
		task.setAction(desc)
		task.setSteps(i + 1)
		r.hub.Broadcast(task.Event())
		r.logger.Info().Int("step", i+1).Str("action", string(step.Action)).Str("description", desc).Msg("replay step")

		if err := r.executeStep(ctx, step); err != nil {
			task.fail(fmt.Sprintf("Step %d failed: %s", i+1, err))
			r.hub.Broadcast(task.Event())
			r.logger.Error().Err(err).Int("step", i+1).Msg("replay step failed")
			return
		}

		select {
		case <-ctx.Done():
		case <-time.After(r.settleDelay):
		}
		if _, err := r.shots.Capture(ctx, r.drv, true); err != nil {
			r.logger.Debug().Err(err).Msg("progress screenshot failed")
		}
	}

	task.complete(fmt.Sprintf("Workflow completed (%d steps)", len(wf.Steps)), len(wf.Steps))
	r.hub.Broadcast(task.Event())
	r.logger.Info().Int("steps", len(wf.Steps)).Msg("replay completed")
}

func (r *Replayer) executeStep(ctx context.Context, step workflow.Step) error {
	switch step.Action {
	case workflow.ActionNavigate:
		return r.drv.Navigate(ctx, step.URL)
	case workflow.ActionClick:
		return r.clickStep(ctx, step)
	case workflow.ActionType:
		return r.typeStep(ctx, step)
	case workflow.ActionKey:
		return r.drv.PressKey(ctx, normalizeKeyCombo(step.Key))
	default:
		return fmt.Errorf("unknown step action: %s", step.Action)
	}
}

func (r *Replayer) clickStep(ctx context.Context, step workflow.Step) error {
	if handle := r.findElement(step.Element); handle != nil {
		if err := handle.Click(elementTimeout); err == nil {
			return nil
		}
		r.logger.Debug().Str("element", step.Element.Describe()).Msg("semantic click failed, trying coordinates")
	}
	if len(step.Coordinates) >= 2 {
		return r.drv.Click(ctx, float64(step.Coordinates[0]), float64(step.Coordinates[1]), "left", 1)
	}
	return ErrNoMatch
}

func (r *Replayer) typeStep(ctx context.Context, step workflow.Step) error {
	if handle := r.findElement(step.Element); handle != nil {
		if err := handle.Click(elementTimeout); err == nil {
			if step.Element.ContentEditable {
				// Fill clobbers rich-text editors; type through the keyboard
				// instead.
				return r.drv.TypeText(ctx, step.Text)
			}
			if err := handle.Fill(step.Text); err == nil {
				return nil
			}
			return r.drv.TypeText(ctx, step.Text)
		}
	}
	if len(step.Coordinates) >= 2 {
		if err := r.drv.Click(ctx, float64(step.Coordinates[0]), float64(step.Coordinates[1]), "left", 1); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
		return r.drv.TypeText(ctx, step.Text)
	}
	// Last resort: type into whatever currently has focus.
	return r.drv.TypeText(ctx, step.Text)
}

// findElement resolves a descriptor against the live page, strongest
// attribute first. Returns nil when no strategy matches.
func (r *Replayer) findElement(el workflow.Descriptor) browser.Handle {
	if el.IsZero() {
		return nil
	}
	for _, handle := range r.candidates(el) {
		if n, err := handle.Count(); err == nil && n > 0 {
			return handle
		}
	}
	return nil
}

func (r *Replayer) candidates(el workflow.Descriptor) []browser.Handle {
	var out []browser.Handle
	// Strategy 1 uses the role with whichever accessible name was
	// captured: aria-label when present, visible text otherwise.
	if el.Role != "" {
		if name := el.AriaLabel; name != "" {
			out = append(out, r.drv.LocateRole(el.Role, name))
		} else if el.Text != "" {
			out = append(out, r.drv.LocateRole(el.Role, el.Text))
		}
	}
	if el.AriaLabel != "" {
		out = append(out, r.drv.LocateLabel(el.AriaLabel))
	}
	if el.Placeholder != "" {
		out = append(out, r.drv.LocatePlaceholder(el.Placeholder))
	}
	if el.Role != "" && el.Text != "" {
		out = append(out, r.drv.LocateRole(el.Role, el.Text))
	}
	if el.Text != "" {
		out = append(out, r.drv.LocateText(el.Text))
	}
	return out
}
