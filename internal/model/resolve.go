package model

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/ginmihq/ginmi/internal/admission"
	"github.com/ginmihq/ginmi/internal/cache"
	"github.com/ginmihq/ginmi/internal/errors"
	"github.com/ginmihq/ginmi/internal/model/contract"
)

// EvalModelEnvVar names the ambient default model spec: a comma-separated
// list of which the first entry is used.
const EvalModelEnvVar = "INSPECT_EVAL_MODEL"

// MockFamily is the scripted test family. It is exempt from the kill
// switch and never memoized (its outputs are deliberately stateful).
const MockFamily = "mockllm"

// GetModelOptions configure model resolution.
type GetModelOptions struct {
	Config  contract.GenerateConfig
	BaseURL string
	APIKey  string

	// NoMemoize disables reuse of a previously resolved instance with the
	// same inputs.
	NoMemoize bool

	// Args carries provider-specific constructor arguments.
	Args map[string]any

	// CacheStore and Admission override the process defaults, mainly for
	// tests.
	CacheStore cache.Store
	Admission  *admission.Controller

	// Getenv is swappable for tests; defaults to os.Getenv.
	Getenv func(string) string
}

type memoTable struct {
	mu     sync.Mutex
	models map[string]*Model
}

// resolve sweeps context-bound entries before every lookup, then returns
// the memoized instance if one survives. The sweep runs on each access, not
// just on insert; with the small number of distinct resolutions in a run
// the linear pass is cheap.
func (t *memoTable) resolve(key string) (*Model, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for k, m := range t.models {
		if m.isContextBound() {
			delete(t.models, k)
		}
	}

	m, ok := t.models[key]
	return m, ok
}

func (t *memoTable) store(key string, m *Model) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.models[key] = m
}

func (t *memoTable) flush() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.models = make(map[string]*Model)
}

var models = &memoTable{models: make(map[string]*Model)}

// FlushModelCache clears the resolution memo table.
func FlushModelCache() {
	models.flush()
}

// GetModel resolves a model spec ("family/name") to an orchestrator
// instance. An empty spec falls back to the context's active model, then to
// the first entry of EvalModelEnvVar. Resolutions memoize by default on the
// full set of inputs.
func GetModel(ctx context.Context, spec string, opts GetModelOptions) (*Model, error) {
	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	if spec == "" {
		if active := ActiveModel(ctx); active != nil {
			return active, nil
		}
		ambient := getenv(EvalModelEnvVar)
		if ambient == "" {
			return nil, errors.Configuration("no model specified (and no " + EvalModelEnvVar + " defined)")
		}
		spec = strings.TrimSpace(strings.Split(ambient, ",")[0])
	}

	memoize := !opts.NoMemoize
	if strings.HasPrefix(spec, MockFamily+"/") {
		memoize = false
	}

	var memoKey string
	if memoize {
		memoKey = resolveMemoKey(spec, opts)
		if cached, ok := models.resolve(memoKey); ok {
			return cached, nil
		}
	}

	name, err := ParseModelName(spec)
	if err != nil {
		return nil, err
	}

	factory, err := lookupFactory(name.API)
	if err != nil {
		return nil, err
	}

	api, err := factory(APIOptions{
		ModelName: name.Name,
		BaseURL:   opts.BaseURL,
		APIKey:    opts.APIKey,
		Config:    opts.Config,
		Args:      opts.Args,
	})
	if err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("create %s adapter", name.API))
	}

	modelOpts := []ModelOption{}
	if opts.CacheStore != nil {
		modelOpts = append(modelOpts, WithCacheStore(opts.CacheStore))
	}
	if opts.Admission != nil {
		modelOpts = append(modelOpts, WithAdmission(opts.Admission))
	}
	m := NewModel(name.API, api, opts.Config, modelOpts...)

	if memoize {
		models.store(memoKey, m)
	}
	return m, nil
}

// resolveMemoKey serializes every resolution input into the memo key so
// differently configured instances never alias.
func resolveMemoKey(spec string, opts GetModelOptions) string {
	config, _ := json.Marshal(opts.Config)
	args, _ := json.Marshal(opts.Args)
	return spec + "|" + string(config) + "|" + opts.BaseURL + "|" + opts.APIKey + "|" + string(args)
}
