package llm

import (
	"fmt"

	"github.com/Mirascope/mirascope-sub001/content"
	"github.com/Mirascope/mirascope-sub001/format"
)

// Response is one completed assistant turn plus the full conversation history
// that produced it. Responses are immutable; resuming builds a new one.
type Response struct {
	Id       string
	Provider string
	Model    string

	// Messages is the history including the final assistant message. When
	// a corrective format retry was spent, the failed assistant turn and
	// the corrective user message are part of the history.
	Messages []content.Message

	FinishReason FinishReason

	// Usage covers this turn only. Turns served by different backends are
	// never summed, since their tokenizers disagree.
	Usage Usage

	model *Model
	opts  *CallOptions
}

// Message returns the final assistant message.
func (r *Response) Message() content.Message {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == content.RoleAssistant {
			return r.Messages[i]
		}
	}
	return content.Message{Role: content.RoleAssistant}
}

// Text returns the concatenated text parts of the final assistant message.
func (r *Response) Text() string {
	return r.Message().Text()
}

// Thoughts returns the reasoning blocks of the final assistant message.
func (r *Response) Thoughts() []content.ThoughtBlock {
	return r.Message().Thoughts()
}

// ToolCalls returns the tool calls of the final assistant message, excluding
// the synthetic structured output call.
func (r *Response) ToolCalls() []content.ToolCallBlock {
	var calls []content.ToolCallBlock
	for _, call := range r.Message().ToolCalls() {
		if call.Name == format.OutputToolName {
			continue
		}
		calls = append(calls, call)
	}
	return calls
}

// Refused reports whether the backend declined to complete the turn. The
// partial content remains available through the usual accessors.
func (r *Response) Refused() bool {
	return r.FinishReason == FinishReasonRefusal
}

// Format extracts and decodes the structured output payload declared for this
// call. The payload location depends on the spec's mode: the synthetic tool
// call's arguments for ModeTool, the reply text otherwise.
func (r *Response) Format() (any, error) {
	spec := r.formatSpec()
	if spec == nil {
		return nil, fmt.Errorf("no format spec was declared for this call")
	}
	payload, err := locatePayload(spec, r.Message())
	if err != nil {
		return nil, err
	}
	return spec.Parse(payload)
}

// Format decodes a response's structured output into T. The response must
// have been produced by a call whose format spec prototype was T.
func Format[T any](r *Response) (T, error) {
	var zero T
	value, err := r.Format()
	if err != nil {
		return zero, err
	}
	typed, ok := value.(*T)
	if !ok {
		return zero, fmt.Errorf("structured output is %T, not %T", value, &zero)
	}
	return *typed, nil
}

func (r *Response) formatSpec() *format.Spec {
	if r.opts == nil {
		return nil
	}
	return r.opts.Format
}

// locatePayload finds the raw structured output payload in an assistant
// message according to the spec's mode.
func locatePayload(spec *format.Spec, msg content.Message) (string, error) {
	if spec.Mode != format.ModeTool {
		return msg.Text(), nil
	}
	for _, call := range msg.ToolCalls() {
		if call.Name == format.OutputToolName {
			return call.Arguments, nil
		}
	}
	return "", &FormatParseError{
		Spec:   spec.Name,
		Reason: fmt.Sprintf("reply contains no %q tool call", format.OutputToolName),
	}
}

func cloneMessages(messages []content.Message) []content.Message {
	out := make([]content.Message, len(messages))
	copy(out, messages)
	return out
}

// cloneMessage deep-copies the pointer payloads of a message so a snapshot
// stays stable while streaming accumulation mutates the original.
func cloneMessage(msg content.Message) content.Message {
	out := content.Message{Role: msg.Role, Content: make([]content.Part, len(msg.Content))}
	for i, part := range msg.Content {
		if part.Thought != nil {
			thought := *part.Thought
			part.Thought = &thought
		}
		if part.ToolCall != nil {
			call := *part.ToolCall
			part.ToolCall = &call
		}
		if part.ToolOutput != nil {
			output := *part.ToolOutput
			part.ToolOutput = &output
		}
		out.Content[i] = part
	}
	return out
}
