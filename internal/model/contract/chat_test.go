package contract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestText_JoinsTextItems(t *testing.T) {
	msg := ChatMessage{
		Role: RoleUser,
		Content: MessageContent{Items: []Content{
			TextContent("first"),
			ImageContent("data:image/png;base64,xyz"),
			TextContent("second"),
		}},
	}
	assert.Equal(t, "first\nsecond", msg.Text())

	plain := UserMessage("hello")
	assert.Equal(t, "hello", plain.Text())
}

func TestClone_IsDeep(t *testing.T) {
	original := ChatMessage{
		Role:      RoleAssistant,
		Content:   MessageContent{Items: []Content{TextContent("a")}},
		ToolCalls: []ToolCall{{ID: "call_1", Function: "f"}},
	}

	clone := original.Clone()
	clone.Content.Items[0].Text = "changed"
	clone.ToolCalls[0].ID = "call_2"

	assert.Equal(t, "a", original.Content.Items[0].Text)
	assert.Equal(t, "call_1", original.ToolCalls[0].ID)
}

func TestUsageAdd_CacheCountersAbsentUntilPresent(t *testing.T) {
	var total ModelUsage
	total.Add(ModelUsage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15})
	assert.Nil(t, total.InputTokensCacheRead)

	total.Add(ModelUsage{InputTokens: 4, TotalTokens: 4, InputTokensCacheRead: Int(3)})
	assert.Equal(t, 14, total.InputTokens)
	assert.Equal(t, 19, total.TotalTokens)
	assert.Equal(t, 3, *total.InputTokensCacheRead)
}

func TestNewModelCall_RedactsDataURLs(t *testing.T) {
	call := NewModelCall(map[string]any{
		"model": "m",
		"messages": []any{
			map[string]any{"content": "data:image/png;base64,AAAA"},
		},
	}, nil, nil)

	messages := call.Request["messages"].([]any)
	content := messages[0].(map[string]any)["content"]
	assert.Equal(t, "<redacted>", content)
	assert.Equal(t, "m", call.Request["model"])
}
