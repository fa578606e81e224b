package llm

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/sgurov/browserflow/internal/config"
)

// Client is a vision-capable model that turns a conversation ending in a
// screenshot into abstract browser actions or terminal text.
type Client interface {
	Send(ctx context.Context, messages []Message, system string) (Reply, error)
	Name() string
}

// NewClient selects a provider from configuration. The display dimensions
// are the scaled screenshot size; returned action coordinates live in that
// space.
func NewClient(cfg config.Settings, displayWidth, displayHeight int, logger zerolog.Logger) (Client, error) {
	switch cfg.Provider {
	case "", "anthropic":
		return newAnthropic(cfg, displayWidth, displayHeight, logger)
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (use 'anthropic')", cfg.Provider)
	}
}

// Message is one conversation turn, made of typed content blocks.
type Message struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// ContentBlock is the wire shape shared by text, image, tool_use and
// tool_result blocks; unused fields stay empty per block type.
type ContentBlock struct {
	Type      string         `json:"type"`
	Text      string         `json:"text,omitempty"`
	Source    *ImageSource   `json:"source,omitempty"`
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name,omitempty"`
	Input     map[string]any `json:"input,omitempty"`
	ToolUseID string         `json:"tool_use_id,omitempty"`
	Content   any            `json:"content,omitempty"`
	IsError   bool           `json:"is_error,omitempty"`
}

type ImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// Action is a single abstract action returned by the model. ID is the
// provider-assigned correlation id that must be echoed back in the matching
// tool result.
type Action struct {
	ID              string
	Name            string
	Coordinate      []int
	Text            string
	ScrollDirection string
	ScrollAmount    int
	Raw             map[string]any
}

// Signature identifies a repeated action for stuck-loop detection.
func (a Action) Signature() string {
	return fmt.Sprintf("%s:%v:%s", a.Name, a.Coordinate, a.Text)
}

// Reply is a full model response: zero or more actions plus optional text.
type Reply struct {
	Actions    []Action
	Text       string
	StopReason string
	Raw        []ContentBlock
}

func (r Reply) HasActions() bool { return len(r.Actions) > 0 }

// UserTurn builds the opening user message: the instruction plus the
// current screenshot.
func UserTurn(instruction, screenshotB64 string) Message {
	return Message{
		Role: "user",
		Content: []ContentBlock{
			{Type: "text", Text: instruction},
			{Type: "image", Source: pngSource(screenshotB64)},
		},
	}
}

// AssistantTurn echoes the model's raw content back into the conversation.
func AssistantTurn(raw []ContentBlock) Message {
	return Message{Role: "assistant", Content: raw}
}

// ResultsTurn wraps tool results as the next user message.
func ResultsTurn(results []ContentBlock) Message {
	return Message{Role: "user", Content: results}
}

// ScreenshotResult reports an action's outcome as a screenshot, correlated
// by the provider's tool-use id.
func ScreenshotResult(toolUseID, screenshotB64 string) ContentBlock {
	return ContentBlock{
		Type:      "tool_result",
		ToolUseID: toolUseID,
		Content:   []ContentBlock{{Type: "image", Source: pngSource(screenshotB64)}},
	}
}

// ErrorResult reports an action's failure so the model can adapt.
func ErrorResult(toolUseID, message string) ContentBlock {
	return ContentBlock{
		Type:      "tool_result",
		ToolUseID: toolUseID,
		Content:   message,
		IsError:   true,
	}
}

func pngSource(b64 string) *ImageSource {
	return &ImageSource{Type: "base64", MediaType: "image/png", Data: b64}
}
