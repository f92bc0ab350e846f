// Package mock provides the scripted adapter used by tests and offline
// runs. It registers under the "mockllm" family, which the orchestrator
// exempts from the API kill switch and never memoizes (replay position is
// per-instance state).
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/ginmihq/ginmi/internal/errors"
	"github.com/ginmihq/ginmi/internal/model"
	"github.com/ginmihq/ginmi/internal/model/contract"

	"github.com/google/uuid"
)

// OutputsArg is the constructor argument carrying scripted outputs: either
// []*contract.ModelOutput or []string (each coerced to a single-choice
// output). When the script runs out, a fixed default completion is served.
const OutputsArg = "outputs"

const defaultCompletion = "Default output from mockllm"

type API struct {
	model.BaseAPI

	mu      sync.Mutex
	outputs []*contract.ModelOutput
	next    int
}

func init() {
	model.RegisterAPI(model.MockFamily, New)
}

func New(opts model.APIOptions) (model.ModelAPI, error) {
	api := &API{
		BaseAPI: model.BaseAPI{
			Name:    opts.ModelName,
			BaseURL: opts.BaseURL,
			APIKey:  opts.APIKey,
			Config:  opts.Config,
		},
	}

	raw, ok := opts.Args[OutputsArg]
	if !ok {
		return api, nil
	}
	switch outputs := raw.(type) {
	case []*contract.ModelOutput:
		api.outputs = outputs
	case []string:
		for _, text := range outputs {
			api.outputs = append(api.outputs, contract.OutputFromContent(api.qualifiedName(), text))
		}
	default:
		return nil, errors.Configuration(fmt.Sprintf("mockllm %q argument must be []*ModelOutput or []string", OutputsArg))
	}
	return api, nil
}

func (a *API) Generate(ctx context.Context, input []contract.ChatMessage, tools []contract.ToolInfo,
	toolChoice contract.ToolChoice, config contract.GenerateConfig) (*contract.ModelOutput, *contract.ModelCall, error) {

	a.mu.Lock()
	var output *contract.ModelOutput
	if a.next < len(a.outputs) {
		output = a.outputs[a.next]
		a.next++
	} else {
		output = contract.OutputFromContent(a.qualifiedName(), defaultCompletion)
	}
	a.mu.Unlock()

	call := contract.NewModelCall(map[string]any{
		"id":       uuid.NewString(),
		"model":    a.Name,
		"messages": len(input),
		"tools":    len(tools),
	}, map[string]any{
		"completion": output.Completion(),
	}, nil)

	return output, call, nil
}

func (a *API) qualifiedName() string {
	return model.MockFamily + "/" + a.Name
}
