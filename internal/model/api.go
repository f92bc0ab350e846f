package model

import (
	"context"

	"github.com/ginmihq/ginmi/internal/model/contract"
)

// DefaultMaxConnections is the admission pool size used when neither the
// config nor the adapter specifies one.
const DefaultMaxConnections = 10

// ModelAPI is the capability contract every backend adapter implements.
//
// Generate returns the completion plus an optional raw request/response
// snapshot for the audit trail. Two failure shapes exist and they are
// handled differently upstream: an error returned together with a call
// record is a provider failure value and terminates the request; a bare
// error is classified by IsRateLimit and retried when transient.
type ModelAPI interface {
	Generate(ctx context.Context, input []contract.ChatMessage, tools []contract.ToolInfo,
		toolChoice contract.ToolChoice, config contract.GenerateConfig) (*contract.ModelOutput, *contract.ModelCall, error)

	// ModelName is the backend-specific model identifier.
	ModelName() string

	// MaxTokens is the adapter's default max_tokens; zero means none.
	MaxTokens() int

	// MaxConnections is the default admission pool size absent explicit config.
	MaxConnections() int

	// ConnectionKey refines the admission scope (by account, endpoint, ...).
	ConnectionKey() string

	// IsRateLimit classifies an error as transient and retryable.
	IsRateLimit(err error) bool

	// Formatting quirks.
	CollapseUserMessages() bool
	CollapseAssistantMessages() bool
	ToolsRequired() bool
	ToolResultImages() bool
	HasReasoningHistory() bool

	// Close releases any adapter-held resources.
	Close() error
}

// BaseAPI carries the common adapter state and the default answers to the
// capability contract. Adapters embed it and override what they need.
type BaseAPI struct {
	Name    string
	BaseURL string
	APIKey  string
	Config  contract.GenerateConfig
}

func (a BaseAPI) ModelName() string               { return a.Name }
func (a BaseAPI) APIBaseURL() string              { return a.BaseURL }
func (a BaseAPI) MaxTokens() int                  { return 0 }
func (a BaseAPI) MaxConnections() int             { return DefaultMaxConnections }
func (a BaseAPI) ConnectionKey() string           { return "default" }
func (a BaseAPI) IsRateLimit(err error) bool      { return false }
func (a BaseAPI) CollapseUserMessages() bool      { return false }
func (a BaseAPI) CollapseAssistantMessages() bool { return false }
func (a BaseAPI) ToolsRequired() bool             { return false }
func (a BaseAPI) ToolResultImages() bool          { return false }
func (a BaseAPI) HasReasoningHistory() bool       { return false }
func (a BaseAPI) Close() error                    { return nil }
