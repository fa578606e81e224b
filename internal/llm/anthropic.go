package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sgurov/browserflow/internal/config"
)

const (
	anthropicURL     = "https://api.anthropic.com/v1/messages"
	anthropicVersion = "2023-06-01"
	computerUseBeta  = "computer-use-2025-01-24"

	maxRetries     = 3
	retryBaseDelay = 500 * time.Millisecond
)

// anthropicClient talks to the Anthropic Messages API with the computer-use
// tool enabled. Transient failures (429, 5xx, network errors) are retried
// with exponential backoff.
type anthropicClient struct {
	apiKey        string
	model         string
	maxTokens     int
	displayWidth  int
	displayHeight int
	httpClient    *http.Client
	logger        zerolog.Logger
}

func newAnthropic(cfg config.Settings, displayWidth, displayHeight int, logger zerolog.Logger) (*anthropicClient, error) {
	if strings.TrimSpace(cfg.AnthropicAPIKey) == "" {
		return nil, errors.New("ANTHROPIC_API_KEY is not set")
	}
	return &anthropicClient{
		apiKey:        cfg.AnthropicAPIKey,
		model:         cfg.Model,
		maxTokens:     cfg.MaxTokens,
		displayWidth:  displayWidth,
		displayHeight: displayHeight,
		httpClient:    &http.Client{Timeout: 120 * time.Second},
		logger:        logger,
	}, nil
}

func (c *anthropicClient) Name() string { return "anthropic/" + c.model }

type anthropicRequest struct {
	Model     string         `json:"model"`
	MaxTokens int            `json:"max_tokens"`
	System    string         `json:"system,omitempty"`
	Messages  []Message      `json:"messages"`
	Tools     []computerTool `json:"tools"`
}

type computerTool struct {
	Type            string `json:"type"`
	Name            string `json:"name"`
	DisplayWidthPx  int    `json:"display_width_px"`
	DisplayHeightPx int    `json:"display_height_px"`
	DisplayNumber   int    `json:"display_number"`
}

type anthropicResponse struct {
	Content    []ContentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Error      *anthropicError `json:"error"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (c *anthropicClient) Send(ctx context.Context, messages []Message, system string) (Reply, error) {
	payload := anthropicRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    system,
		Messages:  messages,
		Tools: []computerTool{{
			Type:            "computer_20250124",
			Name:            "computer",
			DisplayWidthPx:  c.displayWidth,
			DisplayHeightPx: c.displayHeight,
			DisplayNumber:   1,
		}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Reply{}, fmt.Errorf("marshal request: %w", err)
	}

	c.logger.Debug().
		Str("model", c.model).
		Int("messages", len(messages)).
		Msg("anthropic request")

	raw, err := c.doWithRetry(ctx, body)
	if err != nil {
		return Reply{}, err
	}

	var resp anthropicResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return Reply{}, fmt.Errorf("decode response: %w", err)
	}
	if resp.Error != nil {
		return Reply{}, fmt.Errorf("anthropic: %s: %s", resp.Error.Type, resp.Error.Message)
	}

	reply := parseReply(resp)
	c.logger.Debug().
		Str("stop_reason", reply.StopReason).
		Int("actions", len(reply.Actions)).
		Msg("anthropic response")
	return reply, nil
}

func (c *anthropicClient) doWithRetry(ctx context.Context, body []byte) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := retryBaseDelay << (attempt - 1)
			c.logger.Warn().
				Int("attempt", attempt).
				Dur("delay", delay).
				Err(lastErr).
				Msg("retrying anthropic request")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, anthropicURL, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-api-key", c.apiKey)
		req.Header.Set("anthropic-version", anthropicVersion)
		req.Header.Set("anthropic-beta", computerUseBeta)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}
		data, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("anthropic: status %d: %s", resp.StatusCode, truncate(string(data), 200))
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("anthropic: status %d: %s", resp.StatusCode, truncate(string(data), 500))
		}
		return data, nil
	}
	return nil, fmt.Errorf("anthropic: %d retries exhausted: %w", maxRetries, lastErr)
}

// parseReply extracts actions and narration from the raw content blocks.
// Unknown input fields are preserved in Action.Raw so verb-specific options
// like duration or start_coordinate survive.
func parseReply(resp anthropicResponse) Reply {
	reply := Reply{StopReason: resp.StopReason, Raw: resp.Content}
	var texts []string
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			if block.Text != "" {
				texts = append(texts, block.Text)
			}
		case "tool_use":
			reply.Actions = append(reply.Actions, actionFromInput(block.ID, block.Input))
		}
	}
	reply.Text = strings.Join(texts, "\n")
	return reply
}

func actionFromInput(id string, input map[string]any) Action {
	return Action{
		ID:              id,
		Name:            stringField(input, "action"),
		Coordinate:      intSliceField(input, "coordinate"),
		Text:            stringField(input, "text"),
		ScrollDirection: stringField(input, "scroll_direction"),
		ScrollAmount:    intField(input, "scroll_amount"),
		Raw:             input,
	}
}

func stringField(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

func intField(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

func intSliceField(m map[string]any, key string) []int {
	raw, ok := m[key].([]any)
	if !ok {
		return nil
	}
	out := make([]int, 0, len(raw))
	for _, v := range raw {
		if f, ok := v.(float64); ok {
			out = append(out, int(f))
		}
	}
	if len(out) != len(raw) {
		return nil
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
