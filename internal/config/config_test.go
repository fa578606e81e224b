package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "anthropic", cfg.Provider)
	assert.Equal(t, 1920, cfg.BrowserWidth)
	assert.Equal(t, 1080, cfg.BrowserHeight)
	assert.Equal(t, 1568, cfg.ScreenshotMaxDim)
	assert.Equal(t, 50, cfg.MaxSteps)
	assert.Equal(t, 500*time.Millisecond, cfg.StepDelay)
	assert.Equal(t, "compose=", cfg.EphemeralFragmentMarker)
	assert.Equal(t, 20, cfg.EphemeralFragmentMinLen)
	assert.Equal(t, "data/workflows", cfg.WorkflowsDir)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "Anthropic")
	t.Setenv("BROWSER_WIDTH", "1280")
	t.Setenv("AGENT_MAX_STEPS", "25")
	t.Setenv("AGENT_STEP_DELAY_MS", "0")
	t.Setenv("AGENT_HEADLESS", "true")
	t.Setenv("DATA_DIR", "/tmp/bf")

	cfg := Load()
	assert.Equal(t, "anthropic", cfg.Provider, "provider is lowercased")
	assert.Equal(t, 1280, cfg.BrowserWidth)
	assert.Equal(t, 25, cfg.MaxSteps)
	assert.Equal(t, time.Duration(0), cfg.StepDelay)
	assert.True(t, cfg.Headless)
	assert.Equal(t, "/tmp/bf/workflows", cfg.WorkflowsDir)
}

func TestLoadIgnoresGarbage(t *testing.T) {
	t.Setenv("BROWSER_WIDTH", "not-a-number")
	t.Setenv("AGENT_HEADLESS", "maybe")

	cfg := Load()
	assert.Equal(t, 1920, cfg.BrowserWidth)
	assert.False(t, cfg.Headless)
}
