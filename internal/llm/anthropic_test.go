package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReplyExtractsActionsAndText(t *testing.T) {
	resp := anthropicResponse{
		StopReason: "tool_use",
		Content: []ContentBlock{
			{Type: "text", Text: "I will click the button."},
			{Type: "tool_use", ID: "toolu_01", Input: map[string]any{
				"action":     "left_click",
				"coordinate": []any{float64(120), float64(340)},
			}},
			{Type: "tool_use", ID: "toolu_02", Input: map[string]any{
				"action":           "scroll",
				"coordinate":       []any{float64(10), float64(20)},
				"scroll_direction": "down",
				"scroll_amount":    float64(2),
			}},
		},
	}

	reply := parseReply(resp)
	assert.Equal(t, "tool_use", reply.StopReason)
	assert.Equal(t, "I will click the button.", reply.Text)
	require.Len(t, reply.Actions, 2)

	first := reply.Actions[0]
	assert.Equal(t, "toolu_01", first.ID)
	assert.Equal(t, "left_click", first.Name)
	assert.Equal(t, []int{120, 340}, first.Coordinate)

	second := reply.Actions[1]
	assert.Equal(t, "scroll", second.Name)
	assert.Equal(t, "down", second.ScrollDirection)
	assert.Equal(t, 2, second.ScrollAmount)
	assert.Equal(t, resp.Content[2].Input, second.Raw)
}

func TestParseReplyTextOnly(t *testing.T) {
	reply := parseReply(anthropicResponse{
		StopReason: "end_turn",
		Content: []ContentBlock{
			{Type: "text", Text: "First line."},
			{Type: "text", Text: "Second line."},
		},
	})
	assert.False(t, reply.HasActions())
	assert.Equal(t, "First line.\nSecond line.", reply.Text)
}

func TestActionFromInputToleratesMissingFields(t *testing.T) {
	act := actionFromInput("id", map[string]any{"action": "screenshot"})
	assert.Equal(t, "screenshot", act.Name)
	assert.Nil(t, act.Coordinate)
	assert.Empty(t, act.Text)
}

func TestIntSliceFieldRejectsMixedTypes(t *testing.T) {
	m := map[string]any{"coordinate": []any{float64(1), "two"}}
	assert.Nil(t, intSliceField(m, "coordinate"))
	assert.Nil(t, intSliceField(m, "absent"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcde...", truncate("abcdefgh", 5))
}
