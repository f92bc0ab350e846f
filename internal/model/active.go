package model

import (
	"context"

	"github.com/ginmihq/ginmi/internal/model/contract"
)

type contextKey string

const (
	activeModelKey  contextKey = "active_model"
	activeConfigKey contextKey = "active_generate_config"
)

// WithActiveModel designates the model currently being evaluated plus the
// run's generate config. The active model is the target of ambient limit
// enforcement and the default for resolution when no spec is given.
func WithActiveModel(ctx context.Context, m *Model, config contract.GenerateConfig) context.Context {
	ctx = context.WithValue(ctx, activeModelKey, m)
	return context.WithValue(ctx, activeConfigKey, config)
}

// ActiveModel returns the model currently being evaluated, or nil.
func ActiveModel(ctx context.Context) *Model {
	m, _ := ctx.Value(activeModelKey).(*Model)
	return m
}

// ActiveGenerateConfig returns the run-level generate config, or the zero
// config when none is set.
func ActiveGenerateConfig(ctx context.Context) contract.GenerateConfig {
	config, _ := ctx.Value(activeConfigKey).(contract.GenerateConfig)
	return config
}
