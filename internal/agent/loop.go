package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/sgurov/browserflow/internal/browser"
	"github.com/sgurov/browserflow/internal/config"
	"github.com/sgurov/browserflow/internal/llm"
)

const (
	signatureWindow = 6
	stuckThreshold  = 4

	stuckMessage = "You appear to be stuck repeating the same action. Try a completely different approach."
)

const systemPrompt = `You are a browser automation agent. You see the page through screenshots and act through the computer tool.

Rules:
- Take one or a few actions at a time, then study the resulting screenshot before continuing.
- Prefer clicking visible, labeled controls. Scroll if what you need is off-screen.
- If an action fails or the page does not change as expected, try a different element or approach instead of repeating.
- When the task is done, respond with plain text describing the outcome and take no further actions.`

// Loop runs the AI-driven agent: screenshot in, actions out, repeated until
// the model stops issuing actions or the step budget runs out. Action
// failures are fed back to the model as tool results rather than aborting
// the task.
type Loop struct {
	client    llm.Client
	exec      *Executor
	drv       browser.Driver
	shots     *browser.Capturer
	hub       Broadcaster
	maxSteps  int
	stepDelay time.Duration
	logger    zerolog.Logger
}

func NewLoop(client llm.Client, exec *Executor, drv browser.Driver, shots *browser.Capturer, hub Broadcaster, cfg config.Settings, logger zerolog.Logger) *Loop {
	return &Loop{
		client:    client,
		exec:      exec,
		drv:       drv,
		shots:     shots,
		hub:       hub,
		maxSteps:  cfg.MaxSteps,
		stepDelay: cfg.StepDelay,
		logger:    logger,
	}
}

// Run drives the task to a terminal status and broadcasts progress along
// the way.
func (l *Loop) Run(ctx context.Context, task *Task) {
	task.setRunning()
	l.hub.Broadcast(task.Event())
	l.logger.Info().Str("task", task.ID).Str("model", l.client.Name()).Msg("agent loop started")

	shot, err := l.shots.Capture(ctx, l.drv, true)
	if err != nil {
		task.fail(fmt.Sprintf("Initial screenshot failed: %v", err))
		l.hub.Broadcast(task.Event())
		return
	}
	messages := []llm.Message{llm.UserTurn(task.Instruction, shot)}

	var window []string
	for step := 0; step < l.maxSteps; step++ {
		if task.Cancelled() || ctx.Err() != nil {
			task.cancelledAfter(step)
			l.hub.Broadcast(task.Event())
			l.logger.Info().Str("task", task.ID).Int("steps", step).Msg("agent loop cancelled")
			return
		}

		reply, err := l.client.Send(ctx, messages, systemPrompt)
		if err != nil {
			task.fail(fmt.Sprintf("LLM error: %v", err))
			l.hub.Broadcast(task.Event())
			return
		}
		messages = append(messages, llm.AssistantTurn(reply.Raw))

		if !reply.HasActions() {
			result := reply.Text
			if result == "" {
				result = "Task completed"
			}
			task.complete(result, step+1)
			l.hub.Broadcast(task.Event())
			l.logger.Info().Str("task", task.ID).Int("steps", step+1).Msg("agent loop completed")
			return
		}

		var results []llm.ContentBlock
		for _, act := range reply.Actions {
			task.setAction(act.Name)
			task.setSteps(step + 1)
			l.hub.Broadcast(task.Event())

			if act.Name == string(VerbScreenshot) {
				results = append(results, l.screenshotResult(ctx, act.ID))
				continue
			}

			window = pushSignature(window, act.Signature())
			if isStuck(window) {
				l.logger.Warn().Str("task", task.ID).Str("signature", act.Signature()).Msg("repeated action detected")
				results = append(results, llm.ErrorResult(act.ID, stuckMessage))
				continue
			}

			if err := l.exec.Execute(ctx, act); err != nil {
				l.logger.Warn().Err(err).Str("action", act.Name).Msg("action failed")
				results = append(results, llm.ErrorResult(act.ID, err.Error()))
				continue
			}

			select {
			case <-ctx.Done():
			case <-time.After(l.stepDelay):
			}
			results = append(results, l.screenshotResult(ctx, act.ID))
		}
		messages = append(messages, llm.ResultsTurn(results))
	}

	task.fail(fmt.Sprintf("Max steps (%d) reached without completing the task", l.maxSteps))
	l.hub.Broadcast(task.Event())
}

func (l *Loop) screenshotResult(ctx context.Context, toolUseID string) llm.ContentBlock {
	shot, err := l.shots.Capture(ctx, l.drv, true)
	if err != nil {
		return llm.ErrorResult(toolUseID, fmt.Sprintf("Screenshot failed: %v", err))
	}
	return llm.ScreenshotResult(toolUseID, shot)
}

func pushSignature(window []string, sig string) []string {
	window = append(window, sig)
	if len(window) > signatureWindow {
		window = window[1:]
	}
	return window
}

// isStuck reports whether the most recent actions are all identical.
func isStuck(window []string) bool {
	if len(window) < stuckThreshold {
		return false
	}
	last := window[len(window)-1]
	for _, sig := range window[len(window)-stuckThreshold:] {
		if sig != last {
			return false
		}
	}
	return true
}
