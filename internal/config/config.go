package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Settings holds process-wide configuration, populated from the
// environment. Call godotenv.Load before Load to pick up a .env file.
type Settings struct {
	// LLM
	Provider        string
	AnthropicAPIKey string
	Model           string
	MaxTokens       int

	// Browser
	BrowserWidth     int
	BrowserHeight    int
	ScreenshotMaxDim int
	Headless         bool

	// Agent
	MaxSteps    int
	StepDelay   time.Duration
	SettleDelay time.Duration

	// Ephemeral-navigation heuristic. A hash-only navigation whose fragment
	// contains Marker followed by a token longer than MinLen is dropped by
	// the canonicalizer. Observed on webmail compose drafts; tune per site.
	EphemeralFragmentMarker string
	EphemeralFragmentMinLen int

	// Paths
	DataDir        string
	WorkflowsDir   string
	ScreenshotsDir string
	SessionsDir    string
}

func Load() Settings {
	dataDir := stringEnv("DATA_DIR", "data")
	return Settings{
		Provider:        strings.ToLower(stringEnv("LLM_PROVIDER", "anthropic")),
		AnthropicAPIKey: strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")),
		Model:           stringEnv("ANTHROPIC_MODEL", "claude-sonnet-4-5-20250929"),
		MaxTokens:       intEnv("LLM_MAX_TOKENS", 4096),

		BrowserWidth:     intEnv("BROWSER_WIDTH", 1920),
		BrowserHeight:    intEnv("BROWSER_HEIGHT", 1080),
		ScreenshotMaxDim: intEnv("SCREENSHOT_MAX_DIMENSION", 1568),
		Headless:         boolEnv("AGENT_HEADLESS", false),

		MaxSteps:    intEnv("AGENT_MAX_STEPS", 50),
		StepDelay:   durationEnv("AGENT_STEP_DELAY_MS", 500*time.Millisecond),
		SettleDelay: durationEnv("AGENT_SETTLE_DELAY_MS", 800*time.Millisecond),

		EphemeralFragmentMarker: stringEnv("EPHEMERAL_FRAGMENT_MARKER", "compose="),
		EphemeralFragmentMinLen: intEnv("EPHEMERAL_FRAGMENT_MIN_LEN", 20),

		DataDir:        dataDir,
		WorkflowsDir:   stringEnv("WORKFLOWS_DIR", filepath.Join(dataDir, "workflows")),
		ScreenshotsDir: stringEnv("SCREENSHOTS_DIR", filepath.Join(dataDir, "screenshots")),
		SessionsDir:    stringEnv("SESSIONS_DIR", filepath.Join(dataDir, "sessions")),
	}
}

func stringEnv(name, def string) string {
	val := strings.TrimSpace(os.Getenv(name))
	if val == "" {
		return def
	}
	return val
}

func intEnv(name string, def int) int {
	val := strings.TrimSpace(os.Getenv(name))
	if val == "" {
		return def
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return def
	}
	return n
}

func durationEnv(name string, def time.Duration) time.Duration {
	ms := intEnv(name, -1)
	if ms < 0 {
		return def
	}
	return time.Duration(ms) * time.Millisecond
}

func boolEnv(name string, def bool) bool {
	val := strings.TrimSpace(os.Getenv(name))
	if val == "" {
		return def
	}
	switch strings.ToLower(val) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}
