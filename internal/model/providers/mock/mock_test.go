package mock

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginmihq/ginmi/internal/model"
	"github.com/ginmihq/ginmi/internal/model/contract"
)

func TestNew_ScriptedStringOutputs(t *testing.T) {
	api, err := New(model.APIOptions{
		ModelName: "scripted",
		Args:      map[string]any{OutputsArg: []string{"first", "second"}},
	})
	require.NoError(t, err)

	ctx := context.Background()
	input := []contract.ChatMessage{contract.UserMessage("hi")}

	out, call, err := api.Generate(ctx, input, nil, contract.ChooseNone(), contract.GenerateConfig{})
	require.NoError(t, err)
	require.NotNil(t, call)
	assert.Equal(t, "first", out.Completion())

	out, _, err = api.Generate(ctx, input, nil, contract.ChooseNone(), contract.GenerateConfig{})
	require.NoError(t, err)
	assert.Equal(t, "second", out.Completion())

	// Script exhausted: falls back to the fixed default.
	out, _, err = api.Generate(ctx, input, nil, contract.ChooseNone(), contract.GenerateConfig{})
	require.NoError(t, err)
	assert.Equal(t, defaultCompletion, out.Completion())
}

func TestNew_ScriptedModelOutputs(t *testing.T) {
	scripted := contract.OutputFromContent("mockllm/scripted", "canned")
	scripted.Usage = &contract.ModelUsage{InputTokens: 1, OutputTokens: 2, TotalTokens: 3}

	api, err := New(model.APIOptions{
		ModelName: "scripted",
		Args:      map[string]any{OutputsArg: []*contract.ModelOutput{scripted}},
	})
	require.NoError(t, err)

	out, _, err := api.Generate(context.Background(), nil, nil, contract.ChooseNone(), contract.GenerateConfig{})
	require.NoError(t, err)
	assert.Equal(t, "canned", out.Completion())
	assert.Equal(t, 3, out.Usage.TotalTokens)
}

func TestNew_RejectsUnknownOutputsType(t *testing.T) {
	_, err := New(model.APIOptions{
		ModelName: "scripted",
		Args:      map[string]any{OutputsArg: 42},
	})
	require.Error(t, err)
}

func TestGenerate_NoScriptServesDefault(t *testing.T) {
	api, err := New(model.APIOptions{ModelName: "plain"})
	require.NoError(t, err)

	out, call, err := api.Generate(context.Background(), nil, nil, contract.ChooseNone(), contract.GenerateConfig{})
	require.NoError(t, err)
	assert.Equal(t, defaultCompletion, out.Completion())
	assert.NotEmpty(t, call.Request["id"])
}
