package model

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginmihq/ginmi/internal/admission"
	"github.com/ginmihq/ginmi/internal/cache"
	"github.com/ginmihq/ginmi/internal/errors"
	"github.com/ginmihq/ginmi/internal/model/contract"
	"github.com/ginmihq/ginmi/internal/transcript"
	"github.com/ginmihq/ginmi/internal/usage"
)

var errThrottled = stderrors.New("throttled")

// stubAPI is a scriptable adapter for orchestrator tests.
type stubAPI struct {
	BaseAPI

	generate func(call int) (*contract.ModelOutput, *contract.ModelCall, error)

	maxTokens     int
	toolsRequired bool
	collapseUser  bool

	mu          sync.Mutex
	calls       int
	inflight    int
	maxInflight int
	holdFor     time.Duration

	lastInput      []contract.ChatMessage
	lastTools      []contract.ToolInfo
	lastToolChoice contract.ToolChoice
	lastConfig     contract.GenerateConfig
}

func (s *stubAPI) Generate(ctx context.Context, input []contract.ChatMessage, tools []contract.ToolInfo,
	toolChoice contract.ToolChoice, config contract.GenerateConfig) (*contract.ModelOutput, *contract.ModelCall, error) {

	s.mu.Lock()
	s.calls++
	call := s.calls
	s.inflight++
	if s.inflight > s.maxInflight {
		s.maxInflight = s.inflight
	}
	s.lastInput = input
	s.lastTools = tools
	s.lastToolChoice = toolChoice
	s.lastConfig = config
	hold := s.holdFor
	s.mu.Unlock()

	if hold > 0 {
		time.Sleep(hold)
	}

	s.mu.Lock()
	s.inflight--
	s.mu.Unlock()

	if s.generate != nil {
		return s.generate(call)
	}
	return contract.OutputFromContent("stub/"+s.Name, "ok"), nil, nil
}

func (s *stubAPI) MaxTokens() int      { return s.maxTokens }
func (s *stubAPI) ToolsRequired() bool { return s.toolsRequired }
func (s *stubAPI) CollapseUserMessages() bool {
	return s.collapseUser
}

func (s *stubAPI) IsRateLimit(err error) bool {
	return stderrors.Is(err, errThrottled)
}

func (s *stubAPI) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func newTestModel(api *stubAPI, config contract.GenerateConfig) *Model {
	if api.Name == "" {
		api.Name = "test-model"
	}
	m := NewModel("stub", api, config, WithAdmission(admission.NewController()))
	m.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return m
}

func TestGenerate_RetriesRateLimitsUpToMaxRetries(t *testing.T) {
	api := &stubAPI{
		generate: func(call int) (*contract.ModelOutput, *contract.ModelCall, error) {
			if call <= 2 {
				return nil, nil, errThrottled
			}
			return contract.OutputFromContent("stub/test-model", "recovered"), nil, nil
		},
	}
	m := newTestModel(api, contract.GenerateConfig{})

	output, err := m.GenerateText(context.Background(), "hi", GenerateOptions{
		Config: contract.GenerateConfig{MaxRetries: contract.Int(2)},
	})

	require.NoError(t, err)
	assert.Equal(t, "recovered", output.Completion())
	assert.Equal(t, 3, api.callCount())
}

func TestGenerate_GivesUpWhenRetriesExhausted(t *testing.T) {
	api := &stubAPI{
		generate: func(call int) (*contract.ModelOutput, *contract.ModelCall, error) {
			return nil, nil, errThrottled
		},
	}
	m := newTestModel(api, contract.GenerateConfig{})

	_, err := m.GenerateText(context.Background(), "hi", GenerateOptions{
		Config: contract.GenerateConfig{MaxRetries: contract.Int(1)},
	})

	require.ErrorIs(t, err, errThrottled)
	assert.Equal(t, 2, api.callCount())
}

func TestGenerate_NonRateLimitErrorIsNotRetried(t *testing.T) {
	boom := stderrors.New("boom")
	api := &stubAPI{
		generate: func(call int) (*contract.ModelOutput, *contract.ModelCall, error) {
			return nil, nil, boom
		},
	}
	m := newTestModel(api, contract.GenerateConfig{})

	_, err := m.GenerateText(context.Background(), "hi", GenerateOptions{
		Config: contract.GenerateConfig{MaxRetries: contract.Int(5)},
	})

	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, api.callCount())
}

func TestGenerate_ErrorWithCallRecordIsTerminal(t *testing.T) {
	// A rate-limit error returned together with a call record flattens into
	// a provider failure, so the classifier never sees the original error.
	api := &stubAPI{
		generate: func(call int) (*contract.ModelOutput, *contract.ModelCall, error) {
			record := contract.NewModelCall(map[string]any{"model": "test-model"}, nil, nil)
			return nil, record, errThrottled
		},
	}
	m := newTestModel(api, contract.GenerateConfig{})

	_, err := m.GenerateText(context.Background(), "hi", GenerateOptions{
		Config: contract.GenerateConfig{MaxRetries: contract.Int(5)},
	})

	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.ErrProvider))
	assert.False(t, stderrors.Is(err, errThrottled))
	assert.Equal(t, 1, api.callCount())
}

func TestGenerate_CacheRoundTrip(t *testing.T) {
	api := &stubAPI{}
	m := newTestModel(api, contract.GenerateConfig{})
	recorder := transcript.NewMemoryRecorder()
	ctx := transcript.WithRecorder(context.Background(), recorder)

	policy := cache.DefaultPolicy()
	opts := GenerateOptions{Cache: &policy}

	first, err := m.GenerateText(ctx, "cached prompt", opts)
	require.NoError(t, err)

	second, err := m.GenerateText(ctx, "cached prompt", opts)
	require.NoError(t, err)

	assert.Equal(t, 1, api.callCount())
	assert.Equal(t, first.Completion(), second.Completion())

	events := recorder.Events()
	require.Len(t, events, 2)
	assert.Equal(t, transcript.CacheWrite, events[0].Cache)
	assert.Equal(t, transcript.CacheRead, events[1].Cache)
	assert.False(t, events[1].Pending)
	require.NotNil(t, events[1].Output)
}

func TestGenerate_CacheMissOnDifferentConfig(t *testing.T) {
	api := &stubAPI{}
	m := newTestModel(api, contract.GenerateConfig{})

	policy := cache.DefaultPolicy()
	_, err := m.GenerateText(context.Background(), "prompt", GenerateOptions{Cache: &policy})
	require.NoError(t, err)

	_, err = m.GenerateText(context.Background(), "prompt", GenerateOptions{
		Cache:  &policy,
		Config: contract.GenerateConfig{Temperature: contract.Float64(0.7)},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, api.callCount())
}

func TestGenerate_KillSwitch(t *testing.T) {
	t.Setenv(DisableModelAPIEnvVar, "1")

	api := &stubAPI{}
	m := newTestModel(api, contract.GenerateConfig{})

	_, err := m.GenerateText(context.Background(), "hi", GenerateOptions{})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.ErrAPIDisabled))
	assert.Equal(t, 0, api.callCount())

	// The mock family stays usable for offline runs.
	mock := &stubAPI{BaseAPI: BaseAPI{Name: "mock-model"}}
	mm := NewModel(MockFamily, mock, contract.GenerateConfig{}, WithAdmission(admission.NewController()))
	_, err = mm.GenerateText(context.Background(), "hi", GenerateOptions{})
	require.NoError(t, err)
}

func TestGenerate_MessageLimitFiresBeforeCall(t *testing.T) {
	api := &stubAPI{}
	m := newTestModel(api, contract.GenerateConfig{})

	ctx := usage.WithSampleScope(context.Background(), usage.Limits{Messages: 5})
	ctx = WithActiveModel(ctx, m, contract.GenerateConfig{})

	messages := make([]contract.ChatMessage, 5)
	for i := range messages {
		messages[i] = contract.UserMessage("m")
	}

	_, err := m.Generate(ctx, messages, GenerateOptions{})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.ErrLimitExceeded))
	assert.Equal(t, 0, api.callCount())

	_, err = m.Generate(ctx, messages[:4], GenerateOptions{})
	require.NoError(t, err)
}

func TestGenerate_MessageLimitIgnoredForNonActiveModel(t *testing.T) {
	api := &stubAPI{}
	m := newTestModel(api, contract.GenerateConfig{})

	ctx := usage.WithSampleScope(context.Background(), usage.Limits{Messages: 1})

	_, err := m.Generate(ctx, []contract.ChatMessage{
		contract.UserMessage("a"),
		contract.UserMessage("b"),
	}, GenerateOptions{})
	require.NoError(t, err)
}

func TestGenerate_TokenLimitOvershootsByOneCall(t *testing.T) {
	api := &stubAPI{
		generate: func(call int) (*contract.ModelOutput, *contract.ModelCall, error) {
			output := contract.OutputFromContent("stub/test-model", "big answer")
			output.Usage = &contract.ModelUsage{InputTokens: 20, OutputTokens: 100, TotalTokens: 120}
			return output, nil, nil
		},
	}
	m := newTestModel(api, contract.GenerateConfig{})

	ctx := usage.WithRunScope(context.Background())
	ctx = usage.WithSampleScope(ctx, usage.Limits{Tokens: 100})

	_, err := m.GenerateText(ctx, "hi", GenerateOptions{})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.ErrLimitExceeded))

	// The triggering call still ran and its usage is recorded everywhere.
	assert.Equal(t, 1, api.callCount())
	assert.Equal(t, 120, usage.SampleTotalTokens(ctx))
	assert.Equal(t, 120, usage.RunScope(ctx).TotalTokens())
}

func TestGenerate_AdmissionBoundsConcurrency(t *testing.T) {
	api := &stubAPI{holdFor: 20 * time.Millisecond}
	m := newTestModel(api, contract.GenerateConfig{})

	config := contract.GenerateConfig{MaxConnections: contract.Int(1)}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.GenerateText(context.Background(), "hi", GenerateOptions{Config: config})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 4, api.callCount())
	assert.Equal(t, 1, api.maxInflight)
}

func TestGenerate_AdapterMaxTokensFillsUnsetConfig(t *testing.T) {
	api := &stubAPI{maxTokens: 4096}
	m := newTestModel(api, contract.GenerateConfig{})

	_, err := m.GenerateText(context.Background(), "hi", GenerateOptions{})
	require.NoError(t, err)
	require.NotNil(t, api.lastConfig.MaxTokens)
	assert.Equal(t, 4096, *api.lastConfig.MaxTokens)

	_, err = m.GenerateText(context.Background(), "hi", GenerateOptions{
		Config: contract.GenerateConfig{MaxTokens: contract.Int(100)},
	})
	require.NoError(t, err)
	assert.Equal(t, 100, *api.lastConfig.MaxTokens)
}

func TestGenerate_SystemMessagePrepended(t *testing.T) {
	api := &stubAPI{}
	m := newTestModel(api, contract.GenerateConfig{SystemMessage: contract.String("be terse")})

	_, err := m.GenerateText(context.Background(), "hi", GenerateOptions{})
	require.NoError(t, err)

	require.Len(t, api.lastInput, 2)
	assert.Equal(t, contract.RoleSystem, api.lastInput[0].Role)
	assert.Equal(t, "be terse", api.lastInput[0].Content.Text)
}

func TestGenerate_ToolChoiceFunctionFiltersTools(t *testing.T) {
	api := &stubAPI{}
	m := newTestModel(api, contract.GenerateConfig{})

	choice := contract.ChooseFunction("weather")
	_, err := m.GenerateText(context.Background(), "hi", GenerateOptions{
		Tools: []contract.ToolDef{
			{Name: "search"},
			{Name: "weather"},
		},
		ToolChoice: &choice,
	})
	require.NoError(t, err)

	require.Len(t, api.lastTools, 1)
	assert.Equal(t, "weather", api.lastTools[0].Name)
	assert.Equal(t, contract.ToolChoiceFunction, api.lastToolChoice.Mode)
}

func TestGenerate_ToolChoiceNonePurgesToolsUnlessRequired(t *testing.T) {
	choice := contract.ChooseNone()
	tools := []contract.ToolDef{{Name: "search"}}

	api := &stubAPI{}
	m := newTestModel(api, contract.GenerateConfig{})
	_, err := m.GenerateText(context.Background(), "hi", GenerateOptions{Tools: tools, ToolChoice: &choice})
	require.NoError(t, err)
	assert.Nil(t, api.lastTools)
	assert.Equal(t, contract.ToolChoiceNone, api.lastToolChoice.Mode)

	required := &stubAPI{toolsRequired: true}
	mr := newTestModel(required, contract.GenerateConfig{})
	_, err = mr.GenerateText(context.Background(), "hi", GenerateOptions{Tools: tools, ToolChoice: &choice})
	require.NoError(t, err)
	require.Len(t, required.lastTools, 1)
	assert.Equal(t, contract.ToolChoiceNone, required.lastToolChoice.Mode)
}

func TestGenerate_DisableParallelToolCalls(t *testing.T) {
	api := &stubAPI{}
	m := newTestModel(api, contract.GenerateConfig{})

	_, err := m.GenerateText(context.Background(), "hi", GenerateOptions{
		Tools: []contract.ToolDef{{Name: "stateful", DisableParallel: true}},
	})
	require.NoError(t, err)

	require.NotNil(t, api.lastConfig.ParallelToolCalls)
	assert.False(t, *api.lastConfig.ParallelToolCalls)
}

func TestGenerate_AttachesToolCallViews(t *testing.T) {
	api := &stubAPI{
		generate: func(call int) (*contract.ModelOutput, *contract.ModelCall, error) {
			output := contract.OutputFromContent("stub/test-model", "")
			output.Choices[0].Message.ToolCalls = []contract.ToolCall{
				{ID: "1", Function: "search", Arguments: `{"q":"go"}`},
			}
			return output, nil, nil
		},
	}
	m := newTestModel(api, contract.GenerateConfig{})

	output, err := m.GenerateText(context.Background(), "hi", GenerateOptions{
		Tools: []contract.ToolDef{{
			Name:   "search",
			Viewer: func(call contract.ToolCall) string { return "searching: " + call.Arguments },
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, `searching: {"q":"go"}`, output.Choices[0].Message.ToolCalls[0].View)
}

func TestGenerate_ActiveConfigMergeOrder(t *testing.T) {
	api := &stubAPI{}
	m := newTestModel(api, contract.GenerateConfig{
		Temperature: contract.Float64(0.1),
		TopP:        contract.Float64(0.5),
	})

	ctx := WithActiveModel(context.Background(), m, contract.GenerateConfig{
		Temperature: contract.Float64(0.2),
		MaxTokens:   contract.Int(64),
	})

	_, err := m.GenerateText(ctx, "hi", GenerateOptions{
		Config: contract.GenerateConfig{Temperature: contract.Float64(0.3)},
	})
	require.NoError(t, err)

	// Per-call beats run-level beats construction-time.
	assert.Equal(t, 0.3, *api.lastConfig.Temperature)
	assert.Equal(t, 64, *api.lastConfig.MaxTokens)
	assert.Equal(t, 0.5, *api.lastConfig.TopP)
}

func TestClose_MarksContextBound(t *testing.T) {
	api := &stubAPI{}
	m := newTestModel(api, contract.GenerateConfig{})

	assert.False(t, m.isContextBound())
	require.NoError(t, m.Close())
	assert.True(t, m.isContextBound())
	// Idempotent.
	require.NoError(t, m.Close())
}
