package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/Mirascope/mirascope-sub001/content"
	"github.com/Mirascope/mirascope-sub001/toolkit"
)

// Resume continues the conversation with a new user turn built from the given
// parts and returns the next response. The receiver is left untouched.
//
// Tool output parts are validated against the prior assistant turn before
// anything is sent: every output must pair with a tool call by id, no call
// may be answered twice, and once any output is submitted all calls must be
// answered. Violations fail with a PairingError.
//
// The call is served by the model that produced the receiver, unless a model
// override scope is active on the call's Context, which is how a conversation
// continues onto a different backend.
func (r *Response) Resume(ctx context.Context, parts ...content.Part) (*Response, error) {
	if r.model == nil {
		return nil, errors.New("response was not produced by a model and cannot be resumed")
	}
	if len(parts) == 0 {
		return nil, errors.New("resume requires at least one content part")
	}
	if err := r.validatePairing(parts); err != nil {
		return nil, err
	}
	history := append(cloneMessages(r.Messages), content.NewUserMessage(parts...))
	return r.model.Call(ctx, history, r.opts)
}

func (r *Response) validatePairing(parts []content.Part) error {
	calls := r.ToolCalls()
	pending := make(map[string]bool, len(calls))
	for _, call := range calls {
		pending[call.Id] = true
	}

	submitted := false
	for _, part := range parts {
		if part.Type != content.KindToolOutput || part.ToolOutput == nil {
			continue
		}
		submitted = true
		id := part.ToolOutput.ToolCallId
		if !pending[id] {
			return &PairingError{ToolCallId: id}
		}
		pending[id] = false
	}
	if !submitted {
		return nil
	}
	for id, open := range pending {
		if open {
			return &PairingError{ToolCallId: id}
		}
	}
	return nil
}

// ExecuteTools runs every tool call of the final assistant turn against the
// call's toolkit, concurrently, and returns the outputs in call order. The
// synthetic structured output call is never executed.
func (r *Response) ExecuteTools(ctx context.Context) (*toolkit.Execution, error) {
	kit := r.tools()
	if kit == nil {
		return nil, errors.New("no toolkit was declared for this call")
	}
	var deps any
	if r.opts != nil && r.opts.Context != nil {
		deps = r.opts.Context.Deps
	}
	return kit.ExecuteAll(ctx, deps, r.ToolCalls())
}

func (r *Response) tools() *toolkit.Toolkit {
	if r.opts == nil {
		return nil
	}
	return r.opts.Tools
}

// RunTools calls the model and automatically drives the tool loop: as long as
// the assistant requests tool calls, they are executed and their outputs fed
// back. The loop stops when a turn makes no tool calls, a tool hands control
// back, or maxTurns generation turns have run.
//
// On handoff the last response is returned together with the handoff so the
// orchestrating code can take over; the handoff's turn is not resumed.
func (m *Model) RunTools(ctx context.Context, messages []content.Message, opts *CallOptions, maxTurns int) (*Response, *toolkit.Handoff, error) {
	if opts == nil || opts.Tools == nil {
		return nil, nil, errors.New("RunTools requires a toolkit")
	}
	if maxTurns < 1 {
		maxTurns = 1
	}

	resp, err := m.Call(ctx, messages, opts)
	if err != nil {
		return nil, nil, err
	}
	for turn := 1; ; turn++ {
		calls := resp.ToolCalls()
		if len(calls) == 0 {
			return resp, nil, nil
		}
		if turn >= maxTurns {
			return resp, nil, fmt.Errorf("tool loop exceeded %d turns", maxTurns)
		}

		execution, err := resp.ExecuteTools(ctx)
		if err != nil {
			return resp, nil, err
		}
		if execution.Handoff != nil {
			return resp, execution.Handoff, nil
		}
		resp, err = resp.Resume(ctx, execution.Outputs...)
		if err != nil {
			return nil, nil, err
		}
	}
}
