package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/segmentio/ksuid"

	"github.com/Mirascope/mirascope-sub001/content"
	"github.com/Mirascope/mirascope-sub001/format"
	"github.com/Mirascope/mirascope-sub001/toolkit"
)

// Params are generation parameters forwarded to the backend. Nil or zero
// fields use the provider default.
type Params struct {
	Temperature *float32
	MaxTokens   int
}

// A Model binds an adapter to one of its model ids. Models are cheap value
// objects; build as many as needed.
type Model struct {
	Adapter Adapter
	Id      string
	Params  Params
}

// NewModel returns a model served by the given adapter.
func NewModel(adapter Adapter, id string) *Model {
	return &Model{Adapter: adapter, Id: id}
}

// Provider returns the adapter's provider name.
func (m *Model) Provider() string {
	return m.Adapter.Name()
}

// CallOptions configure one call or stream. The zero value is valid.
type CallOptions struct {
	// Context carries tool dependencies and scoped model overrides.
	Context *Context

	// Tools the model may call.
	Tools *toolkit.Toolkit

	// Format declares the structured output expected from the reply.
	Format *format.Spec

	// MaxRestarts is the transparent restart budget for an interrupted
	// stream. Unused by Call.
	MaxRestarts int
}

// resolve returns the effective model for a call: the innermost override on
// the context when one is active, the receiver otherwise.
func (m *Model) resolve(lctx *Context) *Model {
	if lctx != nil {
		if active := lctx.ActiveModel(); active != nil {
			return active
		}
	}
	return m
}

// correctiveMessage is sent as a user turn when a structured output payload
// fails to parse, before the single retry.
func correctiveMessage(reason string) content.Message {
	return content.UserMessage(fmt.Sprintf(
		"Your response could not be parsed: %s. Please ensure your response matches the expected format.",
		reason,
	))
}

// Call runs one generation turn. When a ModeJSON format spec is declared and
// the reply payload fails to parse, exactly one corrective retry turn is
// requested from the same backend; if that also fails the response is
// returned together with the terminal FormatParseError so the history stays
// inspectable. Other modes have no corrective channel: strict mode is
// enforced by the backend and tool mode by the tool schema. A turn that
// requests tool execution is not the final turn of its loop, so it skips
// payload validation entirely; extraction waits for the turn that carries no
// outstanding tool calls.
func (m *Model) Call(ctx context.Context, messages []content.Message, opts *CallOptions) (*Response, error) {
	if opts == nil {
		opts = &CallOptions{}
	}
	eff := m.resolve(opts.Context)

	resp, err := eff.callOnce(ctx, messages, opts)
	if err != nil {
		return nil, err
	}
	if opts.Format == nil {
		return resp, nil
	}
	// ToolCalls excludes the synthetic output call, so a ModeTool payload
	// turn still validates here.
	if len(resp.ToolCalls()) > 0 {
		return resp, nil
	}

	_, parseErr := resp.Format()
	var formatErr *FormatParseError
	if parseErr == nil || !errors.As(parseErr, &formatErr) || opts.Format.Mode != format.ModeJSON {
		return resp, parseErr
	}

	retryHistory := append(cloneMessages(resp.Messages), correctiveMessage(formatErr.Reason))
	retry, err := eff.callOnce(ctx, retryHistory, opts)
	if err != nil {
		return nil, err
	}
	// Same backend served both turns, so combining usage is sound.
	retry.Usage.Add(resp.Usage)
	if _, parseErr := retry.Format(); parseErr != nil {
		return retry, parseErr
	}
	return retry, nil
}

// callOnce performs a single request against the receiver's adapter.
func (m *Model) callOnce(ctx context.Context, messages []content.Message, opts *CallOptions) (*Response, error) {
	reply, err := m.Adapter.Call(ctx, m.buildRequest(messages, opts))
	if err != nil {
		return nil, err
	}
	return m.newResponse(messages, reply, opts), nil
}

// buildRequest assembles the normalized request. Format plumbing that is
// request-scoped, like the injected schema instruction and the synthetic
// output tool, lives here and never enters the recorded history.
func (m *Model) buildRequest(messages []content.Message, opts *CallOptions) Request {
	req := Request{
		Model:       m.Id,
		Messages:    messages,
		Temperature: m.Params.Temperature,
		MaxTokens:   m.Params.MaxTokens,
	}
	if opts.Tools != nil {
		req.Tools = opts.Tools.Tools()
	}
	if opts.Format != nil {
		req.Format = opts.Format
		if instructions := opts.Format.Instructions(); instructions != "" {
			req.Messages = append([]content.Message{content.SystemMessage(instructions)}, messages...)
		}
		if opts.Format.Mode == format.ModeTool {
			req.Tools = append(req.Tools, outputTool(opts.Format))
		}
	}
	return req
}

// outputTool is the synthetic tool definition used by format.ModeTool. It is
// never executed locally; its call's arguments are the structured payload.
func outputTool(spec *format.Spec) *toolkit.Tool {
	description := spec.Description
	if description == "" {
		description = "Record the final structured answer."
	}
	return &toolkit.Tool{
		Name:        format.OutputToolName,
		Description: description,
		Parameters:  spec.Schema,
		Strict:      spec.Strict,
	}
}

func (m *Model) newResponse(messages []content.Message, reply *Reply, opts *CallOptions) *Response {
	id := reply.Id
	if id == "" {
		id = ksuid.New().String()
	}
	modelId := reply.Model
	if modelId == "" {
		modelId = m.Id
	}
	return &Response{
		Id:           id,
		Provider:     m.Adapter.Name(),
		Model:        modelId,
		Messages:     append(cloneMessages(messages), reply.Message),
		FinishReason: reply.FinishReason,
		Usage:        reply.Usage,
		model:        m,
		opts:         opts,
	}
}
