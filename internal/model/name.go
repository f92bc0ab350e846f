package model

import (
	"strings"

	"github.com/ginmihq/ginmi/internal/errors"
)

// ModelName is a parsed (adapter family, model name) pair. It supports
// pattern-style matching against string specifications: a full spec
// ("openai/gpt-4o"), a bare name ("gpt-4o"), or a fragment ("gpt").
type ModelName struct {
	API  string
	Name string
}

// ParseModelName parses a "family/name" spec. The family half is required.
func ParseModelName(spec string) (ModelName, error) {
	api, name := splitModelSpec(spec)
	if api == "" {
		return ModelName{}, errors.Configuration("no model family specified in " + strings.TrimSpace(spec))
	}
	return ModelName{API: api, Name: name}, nil
}

// splitModelSpec splits a spec on the first slash; the family half is empty
// when the spec carries no slash.
func splitModelSpec(spec string) (api, name string) {
	parts := strings.SplitN(spec, "/", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return "", spec
}

func (n ModelName) String() string {
	return n.API + "/" + n.Name
}

// Matches reports whether the candidate pattern selects this model: either
// the pattern carries a family that is a substring of the family while its
// name half is a substring of the name, or the whole pattern is a substring
// of the name.
func (n ModelName) Matches(pattern string) bool {
	api, name := splitModelSpec(pattern)
	if api != "" && strings.Contains(n.API, api) && strings.Contains(n.Name, name) {
		return true
	}
	return strings.Contains(n.Name, pattern)
}
