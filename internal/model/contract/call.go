package contract

import "strings"

// RedactFilter maps a request/response field to its redacted form. Return
// the value unchanged to keep it.
type RedactFilter func(key string, value any) any

const redactedPlaceholder = "<redacted>"

// DefaultRedactFilter replaces inline binary payloads (base64 data URLs)
// with a placeholder so call records stay readable in logs.
func DefaultRedactFilter(key string, value any) any {
	if s, ok := value.(string); ok && strings.HasPrefix(s, "data:") {
		return redactedPlaceholder
	}
	return value
}

// ModelCall is a raw request/response snapshot of one adapter invocation,
// captured for audit events.
type ModelCall struct {
	Request  map[string]any `json:"request"`
	Response map[string]any `json:"response,omitempty"`
}

// NewModelCall builds a call record with the redaction filter applied to
// every leaf of the request and response trees. A nil filter uses
// DefaultRedactFilter.
func NewModelCall(request, response map[string]any, filter RedactFilter) *ModelCall {
	if filter == nil {
		filter = DefaultRedactFilter
	}
	return &ModelCall{
		Request:  redactTree(request, filter),
		Response: redactTree(response, filter),
	}
}

func redactTree(tree map[string]any, filter RedactFilter) map[string]any {
	if tree == nil {
		return nil
	}
	out := make(map[string]any, len(tree))
	for key, value := range tree {
		out[key] = redactValue(key, value, filter)
	}
	return out
}

func redactValue(key string, value any, filter RedactFilter) any {
	switch v := value.(type) {
	case map[string]any:
		return redactTree(v, filter)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = redactValue(key, item, filter)
		}
		return out
	default:
		return filter(key, value)
	}
}
