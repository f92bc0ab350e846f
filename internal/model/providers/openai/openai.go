// Package openai adapts the OpenAI chat completions API.
package openai

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/ginmihq/ginmi/internal/model"
	"github.com/ginmihq/ginmi/internal/model/contract"

	"github.com/sashabaranov/go-openai"
)

func init() {
	model.RegisterAPI("openai", New)
}

type API struct {
	model.BaseAPI
	client *openai.Client
}

func New(opts model.APIOptions) (model.ModelAPI, error) {
	apiKey := opts.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}

	cfg := openai.DefaultConfig(apiKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(opts.BaseURL, "/")
	}

	return &API{
		BaseAPI: model.BaseAPI{
			Name:    opts.ModelName,
			BaseURL: cfg.BaseURL,
			APIKey:  apiKey,
			Config:  opts.Config,
		},
		client: openai.NewClientWithConfig(cfg),
	}, nil
}

func (a *API) Generate(ctx context.Context, input []contract.ChatMessage, tools []contract.ToolInfo,
	toolChoice contract.ToolChoice, config contract.GenerateConfig) (*contract.ModelOutput, *contract.ModelCall, error) {

	req := openai.ChatCompletionRequest{
		Model:    a.Name,
		Messages: chatMessages(input),
		Tools:    chatTools(tools),
	}
	if req.Tools != nil {
		req.ToolChoice = chatToolChoice(toolChoice)
	}
	applyConfig(&req, config)

	resp, err := a.client.CreateChatCompletion(ctx, req)
	if err != nil {
		// Malformed requests are not worth retrying; hand the request
		// snapshot back with the failure.
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == 400 {
			return nil, modelCall(req, nil), err
		}
		return nil, nil, err
	}

	output := &contract.ModelOutput{
		Model:   resp.Model,
		Choices: chatChoices(resp.Choices),
		Usage:   chatUsage(resp.Usage),
	}
	return output, modelCall(req, &resp), nil
}

// IsRateLimit reports 429 responses as retryable.
func (a *API) IsRateLimit(err error) bool {
	var apiErr *openai.APIError
	return errors.As(err, &apiErr) && apiErr.HTTPStatusCode == 429
}

func chatMessages(input []contract.ChatMessage) []openai.ChatCompletionMessage {
	var messages []openai.ChatCompletionMessage
	for _, m := range input {
		msg := openai.ChatCompletionMessage{Role: string(m.Role)}
		if m.Content.IsItems() {
			msg.MultiContent = chatParts(m.Content.Items)
		} else {
			msg.Content = m.Content.Text
		}

		switch m.Role {
		case contract.RoleAssistant:
			for _, tc := range m.ToolCalls {
				msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Function,
						Arguments: tc.Arguments,
					},
				})
			}
		case contract.RoleTool:
			msg.ToolCallID = m.ToolCallID
		}
		messages = append(messages, msg)
	}
	return messages
}

func chatParts(items []contract.Content) []openai.ChatMessagePart {
	var parts []openai.ChatMessagePart
	for _, item := range items {
		switch item.Type {
		case contract.ContentTypeImage:
			part := openai.ChatMessagePart{
				Type:     openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{URL: item.Data},
			}
			if item.Detail != "" {
				part.ImageURL.Detail = openai.ImageURLDetail(item.Detail)
			}
			parts = append(parts, part)
		default:
			parts = append(parts, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeText,
				Text: item.Text,
			})
		}
	}
	return parts
}

func chatTools(tools []contract.ToolInfo) []openai.Tool {
	var out []openai.Tool
	for _, t := range tools {
		params := t.Parameters
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}
	return out
}

func chatToolChoice(choice contract.ToolChoice) any {
	switch choice.Mode {
	case contract.ToolChoiceAny:
		return "required"
	case contract.ToolChoiceFunction:
		return openai.ToolChoice{
			Type:     openai.ToolTypeFunction,
			Function: openai.ToolFunction{Name: choice.Function},
		}
	default:
		return string(choice.Mode)
	}
}

func applyConfig(req *openai.ChatCompletionRequest, config contract.GenerateConfig) {
	if config.Temperature != nil {
		req.Temperature = float32(*config.Temperature)
	}
	if config.TopP != nil {
		req.TopP = float32(*config.TopP)
	}
	if config.MaxTokens != nil {
		req.MaxTokens = *config.MaxTokens
	}
	if config.StopSeqs != nil {
		req.Stop = config.StopSeqs
	}
	if config.NumChoices != nil {
		req.N = *config.NumChoices
	}
	if config.PresencePenalty != nil {
		req.PresencePenalty = float32(*config.PresencePenalty)
	}
	if config.FrequencyPenalty != nil {
		req.FrequencyPenalty = float32(*config.FrequencyPenalty)
	}
	if config.ParallelToolCalls != nil && req.Tools != nil {
		req.ParallelToolCalls = *config.ParallelToolCalls
	}
}

func chatChoices(choices []openai.ChatCompletionChoice) []contract.ChatCompletionChoice {
	var out []contract.ChatCompletionChoice
	for _, choice := range choices {
		message := contract.ChatMessage{
			Role:      contract.RoleAssistant,
			Content:   contract.MessageContent{Text: choice.Message.Content},
			Reasoning: choice.Message.ReasoningContent,
		}
		for _, tc := range choice.Message.ToolCalls {
			message.ToolCalls = append(message.ToolCalls, contract.ToolCall{
				ID:        tc.ID,
				Function:  tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
		out = append(out, contract.ChatCompletionChoice{
			Message:    message,
			StopReason: stopReason(choice.FinishReason),
		})
	}
	return out
}

func stopReason(reason openai.FinishReason) contract.StopReason {
	switch reason {
	case openai.FinishReasonStop, openai.FinishReasonToolCalls, openai.FinishReasonFunctionCall:
		return contract.StopReasonStop
	case openai.FinishReasonLength:
		return contract.StopReasonMaxTokens
	case openai.FinishReasonContentFilter:
		return contract.StopReasonContentFilter
	default:
		return contract.StopReasonUnknown
	}
}

func chatUsage(usage openai.Usage) *contract.ModelUsage {
	out := &contract.ModelUsage{
		InputTokens:  usage.PromptTokens,
		OutputTokens: usage.CompletionTokens,
		TotalTokens:  usage.TotalTokens,
	}
	if usage.PromptTokensDetails != nil {
		out.InputTokensCacheRead = contract.Int(usage.PromptTokensDetails.CachedTokens)
	}
	return out
}

func modelCall(req openai.ChatCompletionRequest, resp *openai.ChatCompletionResponse) *contract.ModelCall {
	request := map[string]any{
		"model":    req.Model,
		"messages": req.Messages,
		"tools":    req.Tools,
	}
	var response map[string]any
	if resp != nil {
		response = map[string]any{
			"id":      resp.ID,
			"model":   resp.Model,
			"choices": resp.Choices,
			"usage":   resp.Usage,
		}
	}
	return contract.NewModelCall(request, response, nil)
}
