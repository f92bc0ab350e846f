// Package usage is the ledger of token and message consumption across
// nested evaluation scopes. Two scopes exist: run-wide and per-sample, each
// threaded through the context so that concurrent independent runs never
// interfere. Accumulators only ever grow.
package usage

import (
	"context"
	"sync"

	"github.com/ginmihq/ginmi/internal/errors"
	"github.com/ginmihq/ginmi/internal/model/contract"
)

type contextKey string

const (
	runScopeKey    contextKey = "usage_run_scope"
	sampleScopeKey contextKey = "usage_sample_scope"
)

// Limits are the externally supplied sample budgets. Zero means unbounded.
type Limits struct {
	Messages int
	Tokens   int
}

// Scope accumulates per-model usage for one logical scope.
type Scope struct {
	mu     sync.Mutex
	models map[string]*contract.ModelUsage
	limits Limits

	totalMessages int
}

func newScope(limits Limits) *Scope {
	return &Scope{models: make(map[string]*contract.ModelUsage), limits: limits}
}

func (s *Scope) add(model string, u contract.ModelUsage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	total, ok := s.models[model]
	if !ok {
		total = &contract.ModelUsage{}
		s.models[model] = total
	}
	total.Add(u)
}

// Usage returns a copy of the per-model accumulators.
func (s *Scope) Usage() map[string]contract.ModelUsage {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]contract.ModelUsage, len(s.models))
	for model, u := range s.models {
		out[model] = *u
	}
	return out
}

// TotalTokens returns the token total across all models in the scope.
func (s *Scope) TotalTokens() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	for _, u := range s.models {
		total += u.TotalTokens
	}
	return total
}

// WithRunScope attaches a fresh run-wide accumulator to the context.
func WithRunScope(ctx context.Context) context.Context {
	return context.WithValue(ctx, runScopeKey, newScope(Limits{}))
}

// WithSampleScope attaches a fresh per-sample accumulator with the given
// budgets to the context.
func WithSampleScope(ctx context.Context, limits Limits) context.Context {
	return context.WithValue(ctx, sampleScopeKey, newScope(limits))
}

// RunScope returns the run-wide scope, or nil if none is attached.
func RunScope(ctx context.Context) *Scope {
	scope, _ := ctx.Value(runScopeKey).(*Scope)
	return scope
}

// SampleScope returns the per-sample scope, or nil if none is attached.
func SampleScope(ctx context.Context) *Scope {
	scope, _ := ctx.Value(sampleScopeKey).(*Scope)
	return scope
}

// Record adds a successful call's usage to every scope present on the
// context, then checks the sample token budget. The overshoot is detected
// only after the triggering call has completed, so a sample can run at most
// one call over budget.
func Record(ctx context.Context, model string, u contract.ModelUsage) error {
	if run := RunScope(ctx); run != nil {
		run.add(model, u)
	}

	sample := SampleScope(ctx)
	if sample == nil {
		return nil
	}
	sample.add(model, u)

	if sample.limits.Tokens > 0 {
		total := sample.TotalTokens()
		if total > sample.limits.Tokens {
			return errors.LimitExceeded(errors.LimitToken, total, sample.limits.Tokens)
		}
	}
	return nil
}

// CheckMessageLimit enforces the sample message budget before a call is
// issued: it fails when the outbound conversation is already at or over the
// limit. It also records the observed message count on the scope.
func CheckMessageLimit(ctx context.Context, messages int) error {
	sample := SampleScope(ctx)
	if sample == nil {
		return nil
	}

	sample.mu.Lock()
	limit := sample.limits.Messages
	sample.totalMessages = messages
	sample.mu.Unlock()

	if limit > 0 && messages >= limit {
		return errors.LimitExceeded(errors.LimitMessage, messages, limit)
	}
	return nil
}

// SampleTotalTokens returns the sample scope's token total, or zero when no
// scope is attached.
func SampleTotalTokens(ctx context.Context) int {
	if sample := SampleScope(ctx); sample != nil {
		return sample.TotalTokens()
	}
	return 0
}
