package model

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/ginmihq/ginmi/internal/admission"
	"github.com/ginmihq/ginmi/internal/cache"
	"github.com/ginmihq/ginmi/internal/errors"
	"github.com/ginmihq/ginmi/internal/model/contract"
	"github.com/ginmihq/ginmi/internal/retry"
	"github.com/ginmihq/ginmi/internal/transcript"
	"github.com/ginmihq/ginmi/internal/usage"
)

// DisableModelAPIEnvVar is the kill switch: when set, every family except
// the mock one fails before reaching its backend.
const DisableModelAPIEnvVar = "INSPECT_DISABLE_MODEL_API"

// Model is the generation orchestrator: it merges configuration, runs the
// message normalization pipeline, acquires admission for the backend scope,
// and executes the retried+cached call against its adapter, updating the
// usage ledger and emitting audit events along the way.
type Model struct {
	api        ModelAPI
	family     string
	config     contract.GenerateConfig
	admission  *admission.Controller
	cacheStore cache.Store

	// sleep overrides the retry backoff sleep in tests.
	sleep func(ctx context.Context, d time.Duration) error

	mu           sync.Mutex
	contextBound bool
	closed       bool
}

// ModelOption configures a Model.
type ModelOption func(*Model)

// WithAdmission sets the admission controller (tests use a private one).
func WithAdmission(c *admission.Controller) ModelOption {
	return func(m *Model) { m.admission = c }
}

// WithCacheStore sets the generate cache store.
func WithCacheStore(s cache.Store) ModelOption {
	return func(m *Model) { m.cacheStore = s }
}

// NewModel wraps an adapter as an orchestrator. Defaults: the process-wide
// admission controller and an in-memory cache store.
func NewModel(family string, api ModelAPI, config contract.GenerateConfig, opts ...ModelOption) *Model {
	m := &Model{
		api:        api,
		family:     family,
		config:     config,
		admission:  admission.Default(),
		cacheStore: cache.NewMemoryStore(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Name returns the backend-specific model name.
func (m *Model) Name() string {
	return m.api.ModelName()
}

// Family returns the adapter family.
func (m *Model) Family() string {
	return m.family
}

func (m *Model) String() string {
	return ModelName{API: m.family, Name: m.api.ModelName()}.String()
}

// Close releases adapter resources. A closed model is considered
// context-bound and gets swept from the resolution memo table.
func (m *Model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.contextBound = true
	if m.closed {
		return nil
	}
	m.closed = true
	return m.api.Close()
}

func (m *Model) isContextBound() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.contextBound
}

// GenerateOptions are the per-call inputs to Generate.
type GenerateOptions struct {
	Tools      []contract.ToolDef
	ToolChoice *contract.ToolChoice
	Config     contract.GenerateConfig

	// Cache enables response caching under the given policy; nil disables
	// caching for the call.
	Cache *cache.Policy
}

// GenerateText generates a completion from a bare prompt, coerced into a
// single user message.
func (m *Model) GenerateText(ctx context.Context, prompt string, opts GenerateOptions) (*contract.ModelOutput, error) {
	return m.Generate(ctx, []contract.ChatMessage{contract.UserMessage(prompt)}, opts)
}

// Generate produces output from the model for a conversation.
func (m *Model) Generate(ctx context.Context, input []contract.ChatMessage, opts GenerateOptions) (*contract.ModelOutput, error) {
	// The ambient message limit applies only when we are the model under
	// evaluation, and fires before the call is issued.
	isActive := ActiveModel(ctx) == m
	if isActive {
		if err := usage.CheckMessageLimit(ctx, len(input)); err != nil {
			return nil, err
		}
	}

	base := m.config
	if isActive {
		base = base.Merge(ActiveGenerateConfig(ctx))
	}
	config := base.Merge(opts.Config)

	if config.MaxTokens == nil {
		if maxTokens := m.api.MaxTokens(); maxTokens > 0 {
			config.MaxTokens = contract.Int(maxTokens)
		}
	}

	if contract.DisableParallelTools(opts.Tools) {
		config.ParallelToolCalls = contract.Bool(false)
	}

	if config.SystemMessage != nil {
		input = append([]contract.ChatMessage{contract.SystemMessage(*config.SystemMessage)}, input...)
	}

	toolChoice := contract.ChooseAuto()
	if opts.ToolChoice != nil {
		toolChoice = *opts.ToolChoice
	}

	tools := contract.ToolInfos(opts.Tools)
	if toolChoice.Mode == contract.ToolChoiceFunction {
		var filtered []contract.ToolInfo
		for _, tool := range tools {
			if tool.Name == toolChoice.Function {
				filtered = append(filtered, tool)
			}
		}
		tools = filtered
	}

	// With tool_choice "none" (or no tools at all) the definitions are
	// purged entirely: some backends half-use tools passed alongside a
	// "none" directive. Adapters that error on dangling tool references in
	// the history can demand the definitions stay via ToolsRequired.
	if toolChoice.Mode == contract.ToolChoiceNone || len(tools) == 0 {
		if !m.api.ToolsRequired() {
			tools = nil
		}
		toolChoice = contract.ChooseNone()
	}

	input = resolveReasoningHistory(input, config, m.api.HasReasoningHistory())
	input = resolveToolModelInput(opts.Tools, input)
	if !m.api.ToolResultImages() {
		input = toolResultImagesAsUserMessages(input)
	}
	if m.api.CollapseUserMessages() {
		var err error
		if input, err = collapseConsecutiveUserMessages(input); err != nil {
			return nil, err
		}
	}
	if m.api.CollapseAssistantMessages() {
		var err error
		if input, err = collapseConsecutiveAssistantMessages(input); err != nil {
			return nil, err
		}
	}

	capacity := m.api.MaxConnections()
	if config.MaxConnections != nil {
		capacity = *config.MaxConnections
	}
	key := admission.Key{Family: m.family, ConnectionKey: m.api.ConnectionKey()}

	release, err := m.admission.Acquire(ctx, key, capacity)
	if err != nil {
		return nil, err
	}
	defer release()

	return m.generate(ctx, input, opts.Tools, tools, toolChoice, config, opts.Cache)
}

// generate runs the retried unit: cache lookup, adapter invocation,
// bookkeeping, cache store. The whole unit retries on rate limits, so a
// retried attempt re-reads the cache and a racing concurrent call can
// short-circuit it.
func (m *Model) generate(ctx context.Context, input []contract.ChatMessage, tdefs []contract.ToolDef,
	tools []contract.ToolInfo, toolChoice contract.ToolChoice, config contract.GenerateConfig,
	cachePolicy *cache.Policy) (*contract.ModelOutput, error) {

	var fingerprint string
	if cachePolicy != nil {
		entry := cache.Entry{
			BaseURL:    baseURL(m.api),
			Config:     config,
			Input:      input,
			Model:      m.String(),
			Policy:     *cachePolicy,
			ToolChoice: toolChoice,
			Tools:      tools,
		}
		var err error
		if fingerprint, err = entry.Fingerprint(); err != nil {
			return nil, err
		}
	}

	var out *contract.ModelOutput
	err := m.retryPolicy(config).Do(ctx, func(ctx context.Context) error {
		recorder := transcript.RecorderFrom(ctx)

		if cachePolicy != nil {
			existing, ok, err := m.cacheStore.Fetch(fingerprint)
			if err != nil {
				slog.Warn("Cache fetch failed", "model", m.String(), "error", err)
			}
			if ok {
				event := m.newModelEvent(input, tools, toolChoice, config, transcript.CacheRead)
				event.Complete(existing, nil, nil)
				recorder.Event(event)
				out = existing
				return nil
			}
		}

		if err := verifyModelAPIs(m.family); err != nil {
			return err
		}

		disposition := transcript.CacheDisposition("")
		if cachePolicy != nil {
			disposition = transcript.CacheWrite
		}
		event := m.newModelEvent(input, tools, toolChoice, config, disposition)
		recorder.Event(event)

		start := time.Now()
		output, call, apiErr := m.api.Generate(ctx, input, tools, toolChoice, config)
		elapsed := time.Since(start)

		if apiErr != nil {
			event.Complete(nil, apiErr, call)
			if call != nil {
				// A failure value returned with its call record is
				// terminal; the request payload travels with the error
				// for diagnosis.
				request, _ := json.MarshalIndent(call.Request, "", "  ")
				return fmt.Errorf("%v\n\nRequest:\n%s: %w", apiErr, request, errors.ErrProvider)
			}
			return apiErr
		}

		output.Time = elapsed
		attachToolCallViews(output, tdefs)
		event.Complete(output, nil, call)

		if output.Usage != nil {
			if err := usage.Record(ctx, m.String(), *output.Usage); err != nil {
				return err
			}
		}

		if cachePolicy != nil {
			if err := m.cacheStore.Put(fingerprint, output); err != nil {
				slog.Warn("Cache store failed", "model", m.String(), "error", err)
			}
		}

		out = output
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// retryPolicy builds the rate-limit retry policy for one call. Only errors
// the adapter classifies as rate limits are retried; the stop condition is
// whichever of the configured timeout and max_retries fires first, and
// retries are unbounded when neither is set.
func (m *Model) retryPolicy(config contract.GenerateConfig) retry.Policy {
	policy := retry.Policy{
		Retryable: m.api.IsRateLimit,
		OnRetry: func(attempt int, delay time.Duration, err error) {
			slog.Warn("Rate limited, backing off",
				"model", m.String(),
				"attempt", attempt,
				"delay", delay,
				"error", err)
		},
	}
	if config.MaxRetries != nil {
		policy.MaxRetries = *config.MaxRetries
	}
	if config.Timeout != nil {
		policy.Timeout = *config.Timeout
	}
	policy.Sleep = m.sleep
	return policy
}

func (m *Model) newModelEvent(input []contract.ChatMessage, tools []contract.ToolInfo,
	toolChoice contract.ToolChoice, config contract.GenerateConfig,
	cache transcript.CacheDisposition) *transcript.ModelEvent {

	event := transcript.NewModelEvent(m.String())
	event.Input = input
	event.Tools = tools
	event.ToolChoice = toolChoice
	event.Config = config
	event.Cache = cache
	return event
}

func attachToolCallViews(output *contract.ModelOutput, tdefs []contract.ToolDef) {
	viewers := make(map[string]contract.ViewerFunc, len(tdefs))
	for _, tdef := range tdefs {
		if tdef.Viewer != nil {
			viewers[tdef.Name] = tdef.Viewer
		}
	}
	if len(viewers) == 0 {
		return
	}
	for ci := range output.Choices {
		calls := output.Choices[ci].Message.ToolCalls
		for ti := range calls {
			if viewer, ok := viewers[calls[ti].Function]; ok {
				calls[ti].View = viewer(calls[ti])
			}
		}
	}
}

// verifyModelAPIs enforces the kill switch.
func verifyModelAPIs(family string) error {
	if os.Getenv(DisableModelAPIEnvVar) != "" && family != MockFamily {
		return errors.APIDisabled("model APIs disabled by " + DisableModelAPIEnvVar)
	}
	return nil
}

func baseURL(api ModelAPI) string {
	if provider, ok := api.(interface{ APIBaseURL() string }); ok {
		return provider.APIBaseURL()
	}
	return ""
}
