// Package providers links every adapter family into the registry. Import
// it for side effects wherever models get resolved from specs.
package providers

import (
	_ "github.com/ginmihq/ginmi/internal/model/providers/anthropic"
	_ "github.com/ginmihq/ginmi/internal/model/providers/gemini"
	_ "github.com/ginmihq/ginmi/internal/model/providers/mock"
	_ "github.com/ginmihq/ginmi/internal/model/providers/openai"
)
