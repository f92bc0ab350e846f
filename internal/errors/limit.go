package errors

import "fmt"

// LimitKind identifies which sample budget overflowed.
type LimitKind string

const (
	LimitMessage LimitKind = "message"
	LimitToken   LimitKind = "token"
)

// LimitExceededError reports a sample budget overflow with the measured
// value and the configured limit. It matches ErrLimitExceeded via errors.Is.
type LimitExceededError struct {
	Kind  LimitKind
	Value int
	Limit int
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("sample %s limit exceeded: %d of %d", e.Kind, e.Value, e.Limit)
}

func (e *LimitExceededError) Unwrap() error {
	return ErrLimitExceeded
}

// LimitExceeded creates a limit-exceeded error for the given budget kind.
func LimitExceeded(kind LimitKind, value, limit int) error {
	return &LimitExceededError{Kind: kind, Value: value, Limit: limit}
}
