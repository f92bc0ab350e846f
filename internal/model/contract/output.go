package contract

import "time"

// StopReason explains why a completion choice stopped.
type StopReason string

const (
	StopReasonStop          StopReason = "stop"
	StopReasonMaxTokens     StopReason = "max_tokens"
	StopReasonContentFilter StopReason = "content_filter"
	StopReasonUnknown       StopReason = "unknown"
)

// Logprob is a single token log-probability entry.
type Logprob struct {
	Token   string  `json:"token"`
	Logprob float64 `json:"logprob"`
}

// ChatCompletionChoice is one completion alternative.
type ChatCompletionChoice struct {
	Message    ChatMessage `json:"message"`
	StopReason StopReason  `json:"stop_reason"`
	Logprobs   []Logprob   `json:"logprobs,omitempty"`
}

// ModelUsage is the token accounting for one call. The cache counters are
// optional and only reported by providers that support prompt caching.
type ModelUsage struct {
	InputTokens           int  `json:"input_tokens"`
	OutputTokens          int  `json:"output_tokens"`
	TotalTokens           int  `json:"total_tokens"`
	InputTokensCacheWrite *int `json:"input_tokens_cache_write,omitempty"`
	InputTokensCacheRead  *int `json:"input_tokens_cache_read,omitempty"`
}

// Add accumulates other into u. Optional counters stay absent until the
// first operand that carries them.
func (u *ModelUsage) Add(other ModelUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.TotalTokens += other.TotalTokens
	if other.InputTokensCacheWrite != nil {
		if u.InputTokensCacheWrite == nil {
			u.InputTokensCacheWrite = Int(0)
		}
		*u.InputTokensCacheWrite += *other.InputTokensCacheWrite
	}
	if other.InputTokensCacheRead != nil {
		if u.InputTokensCacheRead == nil {
			u.InputTokensCacheRead = Int(0)
		}
		*u.InputTokensCacheRead += *other.InputTokensCacheRead
	}
}

// ModelOutput is the result of one generate call.
type ModelOutput struct {
	Model   string                 `json:"model"`
	Choices []ChatCompletionChoice `json:"choices"`
	Usage   *ModelUsage            `json:"usage,omitempty"`
	Time    time.Duration          `json:"time,omitempty"`
}

// OutputFromContent builds a single-choice output with plain text content.
func OutputFromContent(model, content string) *ModelOutput {
	return &ModelOutput{
		Model: model,
		Choices: []ChatCompletionChoice{
			{Message: AssistantMessage(content), StopReason: StopReasonStop},
		},
	}
}

// Completion returns the text of the first choice.
func (o *ModelOutput) Completion() string {
	if o == nil || len(o.Choices) == 0 {
		return ""
	}
	return o.Choices[0].Message.Text()
}
