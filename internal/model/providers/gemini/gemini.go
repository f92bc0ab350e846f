// Package gemini adapts the Google Gemini API.
package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"os"
	"strings"

	"github.com/ginmihq/ginmi/internal/model"
	"github.com/ginmihq/ginmi/internal/model/contract"

	"google.golang.org/genai"
)

func init() {
	model.RegisterAPI("google", New)
}

type API struct {
	model.BaseAPI
	client *genai.Client
}

func New(opts model.APIOptions) (model.ModelAPI, error) {
	apiKey := opts.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}

	cfg := &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI}
	if opts.BaseURL != "" {
		cfg.HTTPOptions.BaseURL = opts.BaseURL
	}
	client, err := genai.NewClient(context.Background(), cfg)
	if err != nil {
		return nil, err
	}

	return &API{
		BaseAPI: model.BaseAPI{
			Name:    opts.ModelName,
			BaseURL: opts.BaseURL,
			APIKey:  apiKey,
			Config:  opts.Config,
		},
		client: client,
	}, nil
}

// ConnectionKey scopes admission per model: Gemini rate limits are
// per-model, not per-account.
func (a *API) ConnectionKey() string { return a.Name }

// IsRateLimit retries throttling and transient server errors.
func (a *API) IsRateLimit(err error) bool {
	var apiErr *genai.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Code {
	case 429, 500, 503, 504:
		return true
	}
	return false
}

func (a *API) Generate(ctx context.Context, input []contract.ChatMessage, tools []contract.ToolInfo,
	toolChoice contract.ToolChoice, config contract.GenerateConfig) (*contract.ModelOutput, *contract.ModelCall, error) {

	contents := contentList(input)
	genConfig := &genai.GenerateContentConfig{
		SystemInstruction: systemInstruction(input),
		Tools:             toolList(tools),
	}
	if genConfig.Tools != nil {
		genConfig.ToolConfig = toolConfig(toolChoice)
	}
	applyConfig(genConfig, config)

	resp, err := a.client.Models.GenerateContent(ctx, a.Name, contents, genConfig)
	if err != nil {
		var apiErr *genai.APIError
		if errors.As(err, &apiErr) && apiErr.Code == 400 {
			return nil, modelCall(a.Name, contents, genConfig, nil), err
		}
		return nil, nil, err
	}

	output := &contract.ModelOutput{
		Model:   a.Name,
		Choices: choices(resp),
		Usage:   usage(resp.UsageMetadata),
	}
	return output, modelCall(a.Name, contents, genConfig, resp), nil
}

func systemInstruction(input []contract.ChatMessage) *genai.Content {
	var parts []*genai.Part
	for _, m := range input {
		if m.Role == contract.RoleSystem {
			parts = append(parts, &genai.Part{Text: m.Text()})
		}
	}
	if parts == nil {
		return nil
	}
	return &genai.Content{Parts: parts}
}

func contentList(input []contract.ChatMessage) []*genai.Content {
	var contents []*genai.Content
	for _, m := range input {
		switch m.Role {
		case contract.RoleUser:
			contents = append(contents, &genai.Content{Role: "user", Parts: parts(m.Content)})
		case contract.RoleAssistant:
			content := &genai.Content{Role: "model", Parts: parts(m.Content)}
			for _, tc := range m.ToolCalls {
				var args map[string]any
				_ = json.Unmarshal([]byte(tc.Arguments), &args)
				content.Parts = append(content.Parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{ID: tc.ID, Name: tc.Function, Args: args},
				})
			}
			contents = append(contents, content)
		case contract.RoleTool:
			contents = append(contents, &genai.Content{Role: "function", Parts: []*genai.Part{{
				FunctionResponse: &genai.FunctionResponse{
					ID:       m.ToolCallID,
					Name:     m.Function,
					Response: map[string]any{"output": m.Text()},
				},
			}}})
		}
	}
	return contents
}

func parts(content contract.MessageContent) []*genai.Part {
	if !content.IsItems() {
		if content.Text == "" {
			return nil
		}
		return []*genai.Part{{Text: content.Text}}
	}
	var out []*genai.Part
	for _, item := range content.Items {
		switch item.Type {
		case contract.ContentTypeImage:
			if mimeType, data, ok := decodeDataURL(item.Data); ok {
				out = append(out, &genai.Part{InlineData: &genai.Blob{MIMEType: mimeType, Data: data}})
			} else {
				out = append(out, &genai.Part{FileData: &genai.FileData{FileURI: item.Data}})
			}
		default:
			out = append(out, &genai.Part{Text: item.Text})
		}
	}
	return out
}

// decodeDataURL decodes "data:<mime-type>;base64,<payload>" into bytes.
func decodeDataURL(url string) (mimeType string, data []byte, ok bool) {
	rest, found := strings.CutPrefix(url, "data:")
	if !found {
		return "", nil, false
	}
	mimeType, encoded, found := strings.Cut(rest, ";base64,")
	if !found {
		return "", nil, false
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", nil, false
	}
	return mimeType, data, true
}

func toolList(tools []contract.ToolInfo) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}
	var decls []*genai.FunctionDeclaration
	for _, t := range tools {
		var schema genai.Schema
		if t.Parameters != nil {
			b, _ := json.Marshal(t.Parameters)
			_ = json.Unmarshal(b, &schema)
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  &schema,
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func toolConfig(choice contract.ToolChoice) *genai.ToolConfig {
	fc := &genai.FunctionCallingConfig{}
	switch choice.Mode {
	case contract.ToolChoiceNone:
		fc.Mode = genai.FunctionCallingConfigModeNone
	case contract.ToolChoiceAny:
		fc.Mode = genai.FunctionCallingConfigModeAny
	case contract.ToolChoiceFunction:
		fc.Mode = genai.FunctionCallingConfigModeAny
		fc.AllowedFunctionNames = []string{choice.Function}
	default:
		fc.Mode = genai.FunctionCallingConfigModeAuto
	}
	return &genai.ToolConfig{FunctionCallingConfig: fc}
}

func applyConfig(genConfig *genai.GenerateContentConfig, config contract.GenerateConfig) {
	if config.Temperature != nil {
		genConfig.Temperature = genai.Ptr(float32(*config.Temperature))
	}
	if config.TopP != nil {
		genConfig.TopP = genai.Ptr(float32(*config.TopP))
	}
	if config.TopK != nil {
		genConfig.TopK = genai.Ptr(float32(*config.TopK))
	}
	if config.MaxTokens != nil {
		genConfig.MaxOutputTokens = int32(*config.MaxTokens)
	}
	if config.NumChoices != nil {
		genConfig.CandidateCount = int32(*config.NumChoices)
	}
	if config.StopSeqs != nil {
		genConfig.StopSequences = config.StopSeqs
	}
	if config.PresencePenalty != nil {
		genConfig.PresencePenalty = genai.Ptr(float32(*config.PresencePenalty))
	}
	if config.FrequencyPenalty != nil {
		genConfig.FrequencyPenalty = genai.Ptr(float32(*config.FrequencyPenalty))
	}
}

func choices(resp *genai.GenerateContentResponse) []contract.ChatCompletionChoice {
	var out []contract.ChatCompletionChoice
	for _, candidate := range resp.Candidates {
		message := contract.ChatMessage{Role: contract.RoleAssistant}
		var text strings.Builder
		if candidate.Content != nil {
			for _, part := range candidate.Content.Parts {
				if part.Text != "" {
					text.WriteString(part.Text)
				}
				if part.FunctionCall != nil {
					arguments, _ := json.Marshal(part.FunctionCall.Args)
					id := part.FunctionCall.ID
					if id == "" {
						id = part.FunctionCall.Name
					}
					message.ToolCalls = append(message.ToolCalls, contract.ToolCall{
						ID:        id,
						Function:  part.FunctionCall.Name,
						Arguments: string(arguments),
					})
				}
			}
		}
		message.Content = contract.MessageContent{Text: text.String()}
		out = append(out, contract.ChatCompletionChoice{
			Message:    message,
			StopReason: stopReason(candidate.FinishReason),
		})
	}
	return out
}

func stopReason(reason genai.FinishReason) contract.StopReason {
	switch reason {
	case genai.FinishReasonStop:
		return contract.StopReasonStop
	case genai.FinishReasonMaxTokens:
		return contract.StopReasonMaxTokens
	case genai.FinishReasonSafety, genai.FinishReasonRecitation, genai.FinishReasonProhibitedContent:
		return contract.StopReasonContentFilter
	default:
		return contract.StopReasonUnknown
	}
}

func usage(meta *genai.GenerateContentResponseUsageMetadata) *contract.ModelUsage {
	if meta == nil {
		return nil
	}
	out := &contract.ModelUsage{
		InputTokens:  int(meta.PromptTokenCount),
		OutputTokens: int(meta.CandidatesTokenCount),
		TotalTokens:  int(meta.TotalTokenCount),
	}
	if meta.CachedContentTokenCount > 0 {
		out.InputTokensCacheRead = contract.Int(int(meta.CachedContentTokenCount))
	}
	return out
}

func modelCall(model string, contents []*genai.Content, config *genai.GenerateContentConfig,
	resp *genai.GenerateContentResponse) *contract.ModelCall {

	request := map[string]any{
		"model":    model,
		"contents": contents,
		"config":   config,
	}
	var response map[string]any
	if resp != nil {
		response = map[string]any{
			"candidates": resp.Candidates,
			"usage":      resp.UsageMetadata,
		}
	}
	return contract.NewModelCall(request, response, nil)
}
