// Package transcript carries the audit trail of model interactions. The
// orchestrator emits a pending event before each non-cache-hit call and
// completes it with the result afterward; the sink that persists events is
// external and pluggable.
package transcript

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/ginmihq/ginmi/internal/model/contract"
)

// CacheDisposition records how the cache participated in a call.
type CacheDisposition string

const (
	CacheRead  CacheDisposition = "read"
	CacheWrite CacheDisposition = "write"
)

// ModelEvent is one model interaction. It is emitted pending, then mutated
// to complete by the orchestrator via Complete.
type ModelEvent struct {
	ID         string                  `json:"id"`
	Timestamp  time.Time               `json:"timestamp"`
	Model      string                  `json:"model"`
	Input      []contract.ChatMessage  `json:"input"`
	Tools      []contract.ToolInfo     `json:"tools,omitempty"`
	ToolChoice contract.ToolChoice     `json:"tool_choice"`
	Config     contract.GenerateConfig `json:"config"`
	Output     *contract.ModelOutput   `json:"output,omitempty"`
	Error      string                  `json:"error,omitempty"`
	Call       *contract.ModelCall     `json:"call,omitempty"`
	Cache      CacheDisposition        `json:"cache,omitempty"`
	Pending    bool                    `json:"pending"`
}

// NewModelEvent creates a pending event with a fresh ULID.
func NewModelEvent(model string) *ModelEvent {
	return &ModelEvent{
		ID:        ulid.Make().String(),
		Timestamp: time.Now(),
		Model:     model,
		Pending:   true,
	}
}

// Complete finalizes the event with the call outcome.
func (e *ModelEvent) Complete(output *contract.ModelOutput, err error, call *contract.ModelCall) {
	if output != nil {
		e.Output = output
	}
	if err != nil {
		e.Error = err.Error()
	}
	e.Call = call
	e.Pending = false
}

// Recorder is the external event sink.
type Recorder interface {
	Event(event *ModelEvent)
}

type contextKey string

const recorderKey contextKey = "transcript_recorder"

// WithRecorder attaches an event sink to the context.
func WithRecorder(ctx context.Context, recorder Recorder) context.Context {
	return context.WithValue(ctx, recorderKey, recorder)
}

// RecorderFrom returns the context's sink, or a no-op one.
func RecorderFrom(ctx context.Context) Recorder {
	if recorder, ok := ctx.Value(recorderKey).(Recorder); ok {
		return recorder
	}
	return noopRecorder{}
}

type noopRecorder struct{}

func (noopRecorder) Event(*ModelEvent) {}

// MemoryRecorder collects events in memory, for tests and one-shot CLI use.
type MemoryRecorder struct {
	mu     sync.Mutex
	events []*ModelEvent
}

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

func (r *MemoryRecorder) Event(event *ModelEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Events returns the recorded events in emission order.
func (r *MemoryRecorder) Events() []*ModelEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*ModelEvent(nil), r.events...)
}
