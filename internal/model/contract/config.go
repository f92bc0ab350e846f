package contract

import "time"

// GenerateConfig holds generation options. Every field is optional; nil
// means "unset" and defers to whatever the merge chain or the adapter
// supplies. ReasoningHistory is tri-state: nil is "auto" (include).
type GenerateConfig struct {
	Temperature       *float64       `json:"temperature,omitempty"`
	TopP              *float64       `json:"top_p,omitempty"`
	TopK              *int           `json:"top_k,omitempty"`
	MaxTokens         *int           `json:"max_tokens,omitempty"`
	StopSeqs          []string       `json:"stop_seqs,omitempty"`
	NumChoices        *int           `json:"num_choices,omitempty"`
	PresencePenalty   *float64       `json:"presence_penalty,omitempty"`
	FrequencyPenalty  *float64       `json:"frequency_penalty,omitempty"`
	Timeout           *time.Duration `json:"timeout,omitempty"`
	MaxRetries        *int           `json:"max_retries,omitempty"`
	MaxConnections    *int           `json:"max_connections,omitempty"`
	SystemMessage     *string        `json:"system_message,omitempty"`
	ReasoningHistory  *bool          `json:"reasoning_history,omitempty"`
	ParallelToolCalls *bool          `json:"parallel_tool_calls,omitempty"`
}

// Merge returns a config where every field the override explicitly set
// wins, and every unset field falls back to the receiver. Merge is
// associative and merging the zero config is the identity.
func (c GenerateConfig) Merge(override GenerateConfig) GenerateConfig {
	out := c
	if override.Temperature != nil {
		out.Temperature = override.Temperature
	}
	if override.TopP != nil {
		out.TopP = override.TopP
	}
	if override.TopK != nil {
		out.TopK = override.TopK
	}
	if override.MaxTokens != nil {
		out.MaxTokens = override.MaxTokens
	}
	if override.StopSeqs != nil {
		out.StopSeqs = override.StopSeqs
	}
	if override.NumChoices != nil {
		out.NumChoices = override.NumChoices
	}
	if override.PresencePenalty != nil {
		out.PresencePenalty = override.PresencePenalty
	}
	if override.FrequencyPenalty != nil {
		out.FrequencyPenalty = override.FrequencyPenalty
	}
	if override.Timeout != nil {
		out.Timeout = override.Timeout
	}
	if override.MaxRetries != nil {
		out.MaxRetries = override.MaxRetries
	}
	if override.MaxConnections != nil {
		out.MaxConnections = override.MaxConnections
	}
	if override.SystemMessage != nil {
		out.SystemMessage = override.SystemMessage
	}
	if override.ReasoningHistory != nil {
		out.ReasoningHistory = override.ReasoningHistory
	}
	if override.ParallelToolCalls != nil {
		out.ParallelToolCalls = override.ParallelToolCalls
	}
	return out
}

// IncludeReasoningHistory reports whether reasoning history should be
// carried into the outbound messages (unset means include).
func (c GenerateConfig) IncludeReasoningHistory() bool {
	return c.ReasoningHistory == nil || *c.ReasoningHistory
}

// Float64 returns a pointer to v, for building configs literally.
func Float64(v float64) *float64 { return &v }

// Int returns a pointer to v, for building configs literally.
func Int(v int) *int { return &v }

// Bool returns a pointer to v, for building configs literally.
func Bool(v bool) *bool { return &v }

// String returns a pointer to v, for building configs literally.
func String(v string) *string { return &v }

// Duration returns a pointer to v, for building configs literally.
func Duration(v time.Duration) *time.Duration { return &v }
