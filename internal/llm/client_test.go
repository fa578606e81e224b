package llm

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sgurov/browserflow/internal/config"
)

func TestNewClientUnknownProvider(t *testing.T) {
	cfg := config.Settings{Provider: "llamacpp"}
	_, err := NewClient(cfg, 100, 100, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown LLM provider")
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	cfg := config.Settings{Provider: "anthropic"}
	_, err := NewClient(cfg, 100, 100, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ANTHROPIC_API_KEY")
}

func TestUserTurnShape(t *testing.T) {
	msg := UserTurn("click the button", "aW1hZ2U=")
	assert.Equal(t, "user", msg.Role)
	require.Len(t, msg.Content, 2)
	assert.Equal(t, "text", msg.Content[0].Type)
	assert.Equal(t, "click the button", msg.Content[0].Text)
	assert.Equal(t, "image", msg.Content[1].Type)
	assert.Equal(t, "image/png", msg.Content[1].Source.MediaType)
	assert.Equal(t, "aW1hZ2U=", msg.Content[1].Source.Data)
}

func TestToolResultBuilders(t *testing.T) {
	shot := ScreenshotResult("toolu_01", "aW1hZ2U=")
	assert.Equal(t, "tool_result", shot.Type)
	assert.Equal(t, "toolu_01", shot.ToolUseID)
	assert.False(t, shot.IsError)
	blocks, ok := shot.Content.([]ContentBlock)
	require.True(t, ok)
	require.Len(t, blocks, 1)
	assert.Equal(t, "image", blocks[0].Type)

	fail := ErrorResult("toolu_02", "element not found")
	assert.True(t, fail.IsError)
	assert.Equal(t, "element not found", fail.Content)
}

func TestActionSignature(t *testing.T) {
	a := Action{Name: "left_click", Coordinate: []int{100, 200}}
	b := Action{Name: "left_click", Coordinate: []int{100, 200}, ID: "different-id"}
	c := Action{Name: "left_click", Coordinate: []int{100, 201}}

	assert.Equal(t, a.Signature(), b.Signature(), "id must not affect the signature")
	assert.NotEqual(t, a.Signature(), c.Signature())
}
