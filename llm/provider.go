// Package llm is the provider-independent chat engine: it drives calls,
// streams, tool loops, and structured output against any backend that
// implements the Adapter contract.
package llm

import (
	"context"

	"github.com/Mirascope/mirascope-sub001/content"
	"github.com/Mirascope/mirascope-sub001/format"
	"github.com/Mirascope/mirascope-sub001/toolkit"
)

// Usage counts tokens for a single assistant turn. Counts are never summed
// across turns served by different backends, since their tokenizers disagree.
type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
}

// Add accumulates counts from another usage report of the same turn.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

// FinishReason records why the backend stopped generating. A refusal is a
// finish state of the turn, not an error: the partial content remains
// available.
type FinishReason string

const (
	FinishReasonUnset     FinishReason = ""
	FinishReasonStop      FinishReason = "stop"
	FinishReasonMaxTokens FinishReason = "max_tokens"
	FinishReasonToolUse   FinishReason = "tool_use"
	FinishReasonRefusal   FinishReason = "refusal"
)

// Request is the normalized form of one generation request handed to an
// adapter. The adapter owns translating it to the provider wire format.
type Request struct {
	Model       string
	Messages    []content.Message
	Tools       []*toolkit.Tool
	Format      *format.Spec
	Temperature *float32
	MaxTokens   int
}

// Reply is the normalized form of one non-streaming backend response.
type Reply struct {
	Id           string
	Model        string
	Message      content.Message
	FinishReason FinishReason
	Usage        Usage
}

// Delta is one streaming event. Content deltas set Kind plus the matching
// payload fields; usage and finish events may arrive on their own with an
// empty Kind.
type Delta struct {
	Kind content.Kind

	// Text carries a text or thought fragment.
	Text string

	// ToolCallId and ToolCallName are set on the first delta of a tool
	// call; Args carries an arguments fragment.
	ToolCallId   string
	ToolCallName string
	Args         string

	Usage        *Usage
	FinishReason FinishReason
}

// DeltaStream is a pull-based stream of deltas from one backend response.
type DeltaStream interface {
	// Next returns the next delta, or io.EOF when the response is complete.
	Next() (Delta, error)
	// Close releases the underlying connection. It is idempotent.
	Close() error
}

// Adapter translates between the normalized request/reply model and one
// provider's wire format. Implementations must be safe for concurrent use.
type Adapter interface {
	// Name identifies the provider, e.g. "anthropic" or "openai".
	Name() string
	Call(ctx context.Context, req Request) (*Reply, error)
	Stream(ctx context.Context, req Request) (DeltaStream, error)
}
