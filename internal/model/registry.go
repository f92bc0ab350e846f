package model

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ginmihq/ginmi/internal/errors"
	"github.com/ginmihq/ginmi/internal/model/contract"
)

// APIOptions are the inputs to an adapter constructor.
type APIOptions struct {
	ModelName string
	BaseURL   string
	APIKey    string
	Config    contract.GenerateConfig

	// Args carries provider-specific arguments (-M flags, mock scripts).
	Args map[string]any
}

// Factory constructs an adapter for one backend family.
type Factory func(opts APIOptions) (ModelAPI, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// RegisterAPI adds an adapter family to the registry. Provider packages
// call this from init; registering a family twice panics.
func RegisterAPI(family string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[family]; exists {
		panic(fmt.Sprintf("model: adapter family %q registered twice", family))
	}
	registry[family] = factory
}

func lookupFactory(family string) (Factory, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	factory, ok := registry[family]
	if !ok {
		return nil, errors.Configuration(fmt.Sprintf("model family %q not recognized", family))
	}
	return factory, nil
}

// RegisteredFamilies lists the known adapter families, sorted.
func RegisteredFamilies() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	families := make([]string, 0, len(registry))
	for family := range registry {
		families = append(families, family)
	}
	sort.Strings(families)
	return families
}
