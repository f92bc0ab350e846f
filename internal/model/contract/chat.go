package contract

import "strings"

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ContentType identifies the kind of a structured content item.
type ContentType string

const (
	ContentTypeText  ContentType = "text"
	ContentTypeImage ContentType = "image"
	ContentTypeAudio ContentType = "audio"
	ContentTypeVideo ContentType = "video"
)

// Content is a single typed item within a structured message body.
// Text carries the text for text items; Data carries a URL or base64
// payload for image/audio/video items.
type Content struct {
	Type   ContentType `json:"type"`
	Text   string      `json:"text,omitempty"`
	Data   string      `json:"data,omitempty"`
	Detail string      `json:"detail,omitempty"`
}

// TextContent creates a text content item.
func TextContent(text string) Content {
	return Content{Type: ContentTypeText, Text: text}
}

// ImageContent creates an image content item.
func ImageContent(data string) Content {
	return Content{Type: ContentTypeImage, Data: data}
}

// MessageContent is a message body: either plain text (Items == nil) or an
// ordered sequence of typed content items. A body with both Text and Items
// set has no defined shape and is rejected by transforms that combine
// message bodies.
type MessageContent struct {
	Text  string    `json:"text,omitempty"`
	Items []Content `json:"items,omitempty"`
}

// IsItems reports whether the body is in structured form.
func (c MessageContent) IsItems() bool { return c.Items != nil }

// ChatMessage is one entry in a conversation. The Role discriminates the
// variant; variant-specific fields are zero for other roles.
//
// Transforms never mutate a ChatMessage in place. Copy before editing.
type ChatMessage struct {
	Role    Role           `json:"role"`
	Content MessageContent `json:"content"`

	// Assistant fields.
	Reasoning string     `json:"reasoning,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// Tool result fields.
	ToolCallID string `json:"tool_call_id,omitempty"`
	Function   string `json:"function,omitempty"`
	Error      string `json:"error,omitempty"`

	// Set on user messages synthesized from extracted tool result images,
	// correlating them back to the originating tool calls.
	ToolCallIDs []string `json:"tool_call_ids,omitempty"`
}

// SystemMessage creates a system message with plain text content.
func SystemMessage(text string) ChatMessage {
	return ChatMessage{Role: RoleSystem, Content: MessageContent{Text: text}}
}

// UserMessage creates a user message with plain text content.
func UserMessage(text string) ChatMessage {
	return ChatMessage{Role: RoleUser, Content: MessageContent{Text: text}}
}

// AssistantMessage creates an assistant message with plain text content.
func AssistantMessage(text string) ChatMessage {
	return ChatMessage{Role: RoleAssistant, Content: MessageContent{Text: text}}
}

// ToolMessage creates a tool result message.
func ToolMessage(toolCallID, function, text string) ChatMessage {
	return ChatMessage{
		Role:       RoleTool,
		Content:    MessageContent{Text: text},
		ToolCallID: toolCallID,
		Function:   function,
	}
}

// Text returns the textual content of the message: the plain text body, or
// the newline-joined text items of a structured body.
func (m ChatMessage) Text() string {
	if !m.Content.IsItems() {
		return m.Content.Text
	}
	var parts []string
	for _, item := range m.Content.Items {
		if item.Type == ContentTypeText {
			parts = append(parts, item.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// Clone returns a deep copy of the message.
func (m ChatMessage) Clone() ChatMessage {
	out := m
	if m.Content.Items != nil {
		out.Content.Items = append([]Content(nil), m.Content.Items...)
	}
	if m.ToolCalls != nil {
		out.ToolCalls = append([]ToolCall(nil), m.ToolCalls...)
	}
	if m.ToolCallIDs != nil {
		out.ToolCallIDs = append([]string(nil), m.ToolCallIDs...)
	}
	return out
}

// CloneMessages returns a deep copy of a message sequence.
func CloneMessages(messages []ChatMessage) []ChatMessage {
	out := make([]ChatMessage, len(messages))
	for i, m := range messages {
		out[i] = m.Clone()
	}
	return out
}
