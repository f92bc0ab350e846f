package errors

import (
	"errors"
)

// Sentinel errors for the generation pipeline taxonomy
var (
	// ErrConfiguration - unresolvable model spec, unknown adapter family, bad settings
	ErrConfiguration = errors.New("configuration error")

	// ErrAPIDisabled - model APIs disabled by kill switch and the family is not the mock one
	ErrAPIDisabled = errors.New("model api disabled")

	// ErrRateLimit - transient provider throttling, classified per-adapter, retried with backoff
	ErrRateLimit = errors.New("rate limit")

	// ErrProvider - adapter returned a failure value; terminal, carries the raw request for diagnosis
	ErrProvider = errors.New("provider error")

	// ErrLimitExceeded - sample message or token budget overflow, terminal for the sample
	ErrLimitExceeded = errors.New("limit exceeded")

	// ErrMessageShape - adjacent same-role messages with incompatible content shapes
	ErrMessageShape = errors.New("invalid message shape")

	// ErrInternal - internal error
	ErrInternal = errors.New("internal error")
)
