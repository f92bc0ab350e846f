// Package anthropic adapts the Anthropic messages API.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"

	"github.com/ginmihq/ginmi/internal/model"
	"github.com/ginmihq/ginmi/internal/model/contract"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultMaxTokens = 4096

func init() {
	model.RegisterAPI("anthropic", New)
}

type API struct {
	model.BaseAPI
	client anthropic.Client
}

func New(opts model.APIOptions) (model.ModelAPI, error) {
	apiKey := opts.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}

	options := []option.RequestOption{option.WithAPIKey(apiKey)}
	if opts.BaseURL != "" {
		options = append(options, option.WithBaseURL(opts.BaseURL))
	}

	return &API{
		BaseAPI: model.BaseAPI{
			Name:    opts.ModelName,
			BaseURL: opts.BaseURL,
			APIKey:  apiKey,
			Config:  opts.Config,
		},
		client: anthropic.NewClient(options...),
	}, nil
}

// MaxTokens is required by the messages API, so the adapter supplies a
// default when the config leaves it unset.
func (a *API) MaxTokens() int { return defaultMaxTokens }

// The messages API errors on tool_use/tool_result blocks whose tool is not
// defined, so definitions must survive a "none" choice.
func (a *API) ToolsRequired() bool { return true }

func (a *API) CollapseUserMessages() bool      { return true }
func (a *API) CollapseAssistantMessages() bool { return true }
func (a *API) ToolResultImages() bool          { return true }

// IsRateLimit treats 429 and 529 (overloaded) as retryable.
func (a *API) IsRateLimit(err error) bool {
	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == 429 || apiErr.StatusCode == 529
}

func (a *API) Generate(ctx context.Context, input []contract.ChatMessage, tools []contract.ToolInfo,
	toolChoice contract.ToolChoice, config contract.GenerateConfig) (*contract.ModelOutput, *contract.ModelCall, error) {

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.Name),
		MaxTokens: int64(defaultMaxTokens),
		System:    systemBlocks(input),
		Messages:  messageParams(input),
		Tools:     toolParams(tools),
	}
	if params.Tools != nil {
		params.ToolChoice = toolChoiceParam(toolChoice, config)
	}
	applyConfig(&params, config)

	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) && apiErr.StatusCode == 400 {
			return nil, modelCall(params, nil), err
		}
		return nil, nil, err
	}

	message := contract.ChatMessage{Role: contract.RoleAssistant}
	var text strings.Builder
	for _, block := range msg.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(b.Text)
		case anthropic.ThinkingBlock:
			message.Reasoning += b.Thinking
		case anthropic.ToolUseBlock:
			arguments, _ := json.Marshal(b.Input)
			message.ToolCalls = append(message.ToolCalls, contract.ToolCall{
				ID:        b.ID,
				Function:  b.Name,
				Arguments: string(arguments),
			})
		}
	}
	message.Content = contract.MessageContent{Text: text.String()}

	output := &contract.ModelOutput{
		Model: string(msg.Model),
		Choices: []contract.ChatCompletionChoice{
			{Message: message, StopReason: stopReason(msg.StopReason)},
		},
		Usage: usage(msg.Usage),
	}
	return output, modelCall(params, msg), nil
}

// systemBlocks collects system messages into the dedicated system parameter.
func systemBlocks(input []contract.ChatMessage) []anthropic.TextBlockParam {
	var blocks []anthropic.TextBlockParam
	for _, m := range input {
		if m.Role == contract.RoleSystem {
			blocks = append(blocks, anthropic.TextBlockParam{Text: m.Text()})
		}
	}
	return blocks
}

func messageParams(input []contract.ChatMessage) []anthropic.MessageParam {
	var messages []anthropic.MessageParam
	for _, m := range input {
		switch m.Role {
		case contract.RoleUser:
			messages = append(messages, anthropic.NewUserMessage(contentBlocks(m.Content)...))
		case contract.RoleAssistant:
			blocks := contentBlocks(m.Content)
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, json.RawMessage(tc.Arguments), tc.Function))
			}
			messages = append(messages, anthropic.NewAssistantMessage(blocks...))
		case contract.RoleTool:
			messages = append(messages, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(m.ToolCallID, m.Text(), m.Error != "")))
		}
	}
	return messages
}

func contentBlocks(content contract.MessageContent) []anthropic.ContentBlockParamUnion {
	if !content.IsItems() {
		return []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(content.Text)}
	}
	var blocks []anthropic.ContentBlockParamUnion
	for _, item := range content.Items {
		switch item.Type {
		case contract.ContentTypeImage:
			if mediaType, data, ok := splitDataURL(item.Data); ok {
				blocks = append(blocks, anthropic.NewImageBlockBase64(mediaType, data))
			} else {
				blocks = append(blocks, anthropic.NewTextBlock(item.Data))
			}
		default:
			blocks = append(blocks, anthropic.NewTextBlock(item.Text))
		}
	}
	return blocks
}

// splitDataURL decomposes "data:<media-type>;base64,<payload>".
func splitDataURL(url string) (mediaType, data string, ok bool) {
	rest, found := strings.CutPrefix(url, "data:")
	if !found {
		return "", "", false
	}
	mediaType, data, found = strings.Cut(rest, ";base64,")
	if !found {
		return "", "", false
	}
	return mediaType, data, true
}

func toolParams(tools []contract.ToolInfo) []anthropic.ToolUnionParam {
	var out []anthropic.ToolUnionParam
	for _, t := range tools {
		tool := anthropic.ToolParam{
			Name:        t.Name,
			Description: anthropic.String(t.Description),
			InputSchema: anthropic.ToolInputSchemaParam{Properties: map[string]any{}},
		}
		if props, ok := t.Parameters["properties"].(map[string]any); ok {
			tool.InputSchema = anthropic.ToolInputSchemaParam{Properties: props}
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: &tool})
	}
	return out
}

func toolChoiceParam(choice contract.ToolChoice, config contract.GenerateConfig) anthropic.ToolChoiceUnionParam {
	serialTools := config.ParallelToolCalls != nil && !*config.ParallelToolCalls
	switch choice.Mode {
	case contract.ToolChoiceNone:
		return anthropic.ToolChoiceUnionParam{OfNone: &anthropic.ToolChoiceNoneParam{}}
	case contract.ToolChoiceAny:
		return anthropic.ToolChoiceUnionParam{OfAny: &anthropic.ToolChoiceAnyParam{
			DisableParallelToolUse: anthropic.Bool(serialTools),
		}}
	case contract.ToolChoiceFunction:
		return anthropic.ToolChoiceUnionParam{OfTool: &anthropic.ToolChoiceToolParam{
			Name:                   choice.Function,
			DisableParallelToolUse: anthropic.Bool(serialTools),
		}}
	default:
		return anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{
			DisableParallelToolUse: anthropic.Bool(serialTools),
		}}
	}
}

func applyConfig(params *anthropic.MessageNewParams, config contract.GenerateConfig) {
	if config.MaxTokens != nil {
		params.MaxTokens = int64(*config.MaxTokens)
	}
	if config.Temperature != nil {
		params.Temperature = anthropic.Float(*config.Temperature)
	}
	if config.TopP != nil {
		params.TopP = anthropic.Float(*config.TopP)
	}
	if config.TopK != nil {
		params.TopK = anthropic.Int(int64(*config.TopK))
	}
	if config.StopSeqs != nil {
		params.StopSequences = config.StopSeqs
	}
}

func stopReason(reason anthropic.StopReason) contract.StopReason {
	switch reason {
	case anthropic.StopReasonEndTurn, anthropic.StopReasonStopSequence, anthropic.StopReasonToolUse:
		return contract.StopReasonStop
	case anthropic.StopReasonMaxTokens:
		return contract.StopReasonMaxTokens
	case anthropic.StopReasonRefusal:
		return contract.StopReasonContentFilter
	default:
		return contract.StopReasonUnknown
	}
}

func usage(u anthropic.Usage) *contract.ModelUsage {
	out := &contract.ModelUsage{
		InputTokens:  int(u.InputTokens),
		OutputTokens: int(u.OutputTokens),
		TotalTokens:  int(u.InputTokens + u.OutputTokens),
	}
	if u.CacheCreationInputTokens > 0 {
		out.InputTokensCacheWrite = contract.Int(int(u.CacheCreationInputTokens))
	}
	if u.CacheReadInputTokens > 0 {
		out.InputTokensCacheRead = contract.Int(int(u.CacheReadInputTokens))
	}
	return out
}

func modelCall(params anthropic.MessageNewParams, msg *anthropic.Message) *contract.ModelCall {
	request := map[string]any{
		"model":      params.Model,
		"max_tokens": params.MaxTokens,
		"system":     params.System,
		"messages":   params.Messages,
		"tools":      params.Tools,
	}
	var response map[string]any
	if msg != nil {
		response = map[string]any{
			"id":          msg.ID,
			"model":       msg.Model,
			"content":     msg.Content,
			"stop_reason": msg.StopReason,
			"usage":       msg.Usage,
		}
	}
	return contract.NewModelCall(request, response, nil)
}
