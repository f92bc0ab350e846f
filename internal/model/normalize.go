package model

import (
	"fmt"

	"github.com/ginmihq/ginmi/internal/errors"
	"github.com/ginmihq/ginmi/internal/model/contract"
)

// The normalization pipeline runs before every call, in this fixed order:
// reasoning-history resolution, tool model-input rewriting, tool-result
// image extraction, consecutive-message collapsing. Each stage is a pure
// sequence-to-sequence transform; input slices are never mutated in place.

// placeholder inserted where an image was lifted out of a tool result.
const imagePlaceholderText = "Image content is included below."

// resolveReasoningHistory reconciles assistant reasoning text with what the
// adapter can represent. Adapters with native reasoning history either keep
// the messages untouched (include) or get copies with reasoning stripped
// (exclude). Adapters without native support get the reasoning inlined as a
// <think> block when config says include.
func resolveReasoningHistory(messages []contract.ChatMessage, config contract.GenerateConfig, apiHasReasoningHistory bool) []contract.ChatMessage {
	include := config.IncludeReasoningHistory()

	haveReasoning := false
	for _, m := range messages {
		if m.Role == contract.RoleAssistant && m.Reasoning != "" {
			haveReasoning = true
			break
		}
	}
	if !haveReasoning {
		return messages
	}

	if apiHasReasoningHistory {
		if include {
			return messages
		}
		resolved := make([]contract.ChatMessage, 0, len(messages))
		for _, m := range messages {
			if m.Role == contract.RoleAssistant && m.Reasoning != "" {
				stripped := m.Clone()
				stripped.Reasoning = ""
				resolved = append(resolved, stripped)
			} else {
				resolved = append(resolved, m)
			}
		}
		return resolved
	}

	if !include {
		return messages
	}

	resolved := make([]contract.ChatMessage, 0, len(messages))
	for _, m := range messages {
		if m.Role == contract.RoleAssistant && m.Reasoning != "" {
			inlined := m.Clone()
			block := fmt.Sprintf("<think>\n%s\n</think>\n", m.Reasoning)
			if inlined.Content.IsItems() {
				items := append([]contract.Content{contract.TextContent(block)}, inlined.Content.Items...)
				inlined.Content = contract.MessageContent{Items: items}
			} else {
				inlined.Content = contract.MessageContent{Text: block + "\n" + inlined.Content.Text}
			}
			inlined.Reasoning = ""
			resolved = append(resolved, inlined)
		} else {
			resolved = append(resolved, m)
		}
	}
	return resolved
}

// resolveToolModelInput runs each tool's model-input formatter over the
// tool result messages invoking it, passing the result's index among that
// tool's results and the total count of tool results in the conversation.
func resolveToolModelInput(tdefs []contract.ToolDef, messages []contract.ChatMessage) []contract.ChatMessage {
	var handlers []contract.ToolDef
	for _, tdef := range tdefs {
		if tdef.ModelInput != nil {
			handlers = append(handlers, tdef)
		}
	}
	if len(handlers) == 0 {
		return messages
	}

	resolved := contract.CloneMessages(messages)

	totalToolMessages := 0
	for _, m := range resolved {
		if m.Role == contract.RoleTool {
			totalToolMessages++
		}
	}

	for _, tdef := range handlers {
		index := 0
		for i := range resolved {
			if resolved[i].Role != contract.RoleTool || resolved[i].Function != tdef.Name {
				continue
			}
			resolved[i].Content = tdef.ModelInput(index, totalToolMessages, resolved[i].Content)
			index++
		}
	}
	return resolved
}

// toolResultImagesAsUserMessages rewrites the history for adapters that
// cannot accept images inside tool results: each such image is replaced by
// a placeholder text item and carried forward into a synthesized user
// message tagged with the originating tool call ids. Pending images flush
// just before the next non-extracting message, and once more at the end.
func toolResultImagesAsUserMessages(messages []contract.ChatMessage) []contract.ChatMessage {
	var out []contract.ChatMessage
	var pendingImages []contract.Content
	var pendingIDs []string

	flush := func() {
		if len(pendingImages) == 0 {
			return
		}
		out = append(out, contract.ChatMessage{
			Role:        contract.RoleUser,
			Content:     contract.MessageContent{Items: pendingImages},
			ToolCallIDs: pendingIDs,
		})
		pendingImages = nil
		pendingIDs = nil
	}

	for _, m := range messages {
		if m.Role == contract.RoleTool && hasImageContent(m.Content) {
			edited := make([]contract.Content, 0, len(m.Content.Items))
			for _, item := range m.Content.Items {
				if item.Type == contract.ContentTypeImage {
					pendingImages = append(pendingImages, item)
					edited = append(edited, contract.TextContent(imagePlaceholderText))
				} else {
					edited = append(edited, item)
				}
			}
			replaced := m.Clone()
			replaced.Content = contract.MessageContent{Items: edited}
			out = append(out, replaced)
			if m.ToolCallID != "" {
				pendingIDs = append(pendingIDs, m.ToolCallID)
			}
		} else {
			flush()
			out = append(out, m)
		}
	}
	flush()
	return out
}

func hasImageContent(content contract.MessageContent) bool {
	if !content.IsItems() {
		return false
	}
	for _, item := range content.Items {
		if item.Type == contract.ContentTypeImage {
			return true
		}
	}
	return false
}

// collapseConsecutiveUserMessages folds runs of user messages into one.
func collapseConsecutiveUserMessages(messages []contract.ChatMessage) ([]contract.ChatMessage, error) {
	return collapseConsecutive(messages, contract.RoleUser)
}

// collapseConsecutiveAssistantMessages folds runs of assistant messages into one.
func collapseConsecutiveAssistantMessages(messages []contract.ChatMessage) ([]contract.ChatMessage, error) {
	return collapseConsecutive(messages, contract.RoleAssistant)
}

func collapseConsecutive(messages []contract.ChatMessage, role contract.Role) ([]contract.ChatMessage, error) {
	var out []contract.ChatMessage
	for _, m := range messages {
		if m.Role == role && len(out) > 0 && out[len(out)-1].Role == role {
			combined, err := combineMessages(out[len(out)-1], m, role)
			if err != nil {
				return nil, err
			}
			out[len(out)-1] = combined
		} else {
			out = append(out, m)
		}
	}
	return out, nil
}

// combineMessages joins two same-role message bodies: text pairs join with
// a newline, item sequences concatenate, and mixed pairs wrap the text side
// as a single text item first.
func combineMessages(a, b contract.ChatMessage, role contract.Role) (contract.ChatMessage, error) {
	if !validContentShape(a.Content) || !validContentShape(b.Content) {
		return contract.ChatMessage{}, errors.MessageShape(
			fmt.Sprintf("cannot combine %s messages with ambiguous content shapes", role))
	}

	var content contract.MessageContent
	switch {
	case !a.Content.IsItems() && !b.Content.IsItems():
		content = contract.MessageContent{Text: a.Content.Text + "\n" + b.Content.Text}
	case a.Content.IsItems() && b.Content.IsItems():
		items := append(append([]contract.Content(nil), a.Content.Items...), b.Content.Items...)
		content = contract.MessageContent{Items: items}
	case !a.Content.IsItems():
		items := append([]contract.Content{contract.TextContent(a.Content.Text)}, b.Content.Items...)
		content = contract.MessageContent{Items: items}
	default:
		items := append(append([]contract.Content(nil), a.Content.Items...), contract.TextContent(b.Content.Text))
		content = contract.MessageContent{Items: items}
	}

	return contract.ChatMessage{Role: role, Content: content}, nil
}

// validContentShape rejects a body carrying both plain text and items.
func validContentShape(content contract.MessageContent) bool {
	return content.Items == nil || content.Text == ""
}
