package toolkit

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/invopop/jsonschema"

	"github.com/Mirascope/mirascope-sub001/content"
)

// Func is the body of a plain tool. It receives the raw JSON arguments from
// the model and returns a JSON-marshalable result.
type Func func(ctx context.Context, args json.RawMessage) (any, error)

// ContextFunc is the body of a tool that additionally receives caller-owned
// dependencies, threaded through the call chain as a leading argument.
type ContextFunc func(ctx context.Context, deps any, args json.RawMessage) (any, error)

// Handoff is an intentional refusal to execute automatically: a tool returns
// it as its result to stop the automatic loop and hand control back to the
// orchestrating code. It is a value, not an error.
type Handoff struct {
	Reason string
}

// A Tool is a function the model can request be called, plus the metadata the
// model needs to call it. Tools are value objects built with New or
// NewContextTool; there is no registration side channel.
type Tool struct {
	Name        string
	Description string
	Parameters  *jsonschema.Schema
	Strict      bool

	paramsType reflect.Type
	fn         Func
	ctxFn      ContextFunc
}

// New builds a Tool from a plain function. The parameter schema is reflected
// from the params prototype struct.
func New(name, description string, params any, fn Func) *Tool {
	return &Tool{
		Name:        name,
		Description: description,
		Parameters:  (&jsonschema.Reflector{DoNotReference: true}).Reflect(params),
		paramsType:  reflect.TypeOf(params),
		fn:          fn,
	}
}

// NewContextTool builds a Tool whose body receives caller-owned dependencies
// as a leading argument.
func NewContextTool(name, description string, params any, fn ContextFunc) *Tool {
	return &Tool{
		Name:        name,
		Description: description,
		Parameters:  (&jsonschema.Reflector{DoNotReference: true}).Reflect(params),
		paramsType:  reflect.TypeOf(params),
		fn:          nil,
		ctxFn:       fn,
	}
}

// NeedsDeps reports whether the tool body declares a dependencies argument.
func (t *Tool) NeedsDeps() bool {
	return t.ctxFn != nil
}

// Result is the outcome of executing one tool call. Output is a tool_output
// content part paired with the originating call's id. Handoff is set when the
// tool declined to run automatically.
type Result struct {
	Output  content.Part
	Handoff *Handoff
}

// InvocationError wraps an error raised by a tool body. It is propagated to
// the caller verbatim; Unwrap exposes the original error so callers can match
// on stable error identity.
type InvocationError struct {
	Name string
	Id   string
	Err  error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("tool %q (call %s) failed: %v", e.Name, e.Id, e.Err)
}

func (e *InvocationError) Unwrap() error {
	return e.Err
}

// Execute runs the tool against a model-issued call. The call's arguments are
// JSON-decoded against the tool's parameter schema by the body itself; deps
// is forwarded only when the tool declares a dependencies argument. An error
// from the tool body surfaces as an InvocationError wrapping it.
func (t *Tool) Execute(ctx context.Context, deps any, call content.ToolCallBlock) (Result, error) {
	args := json.RawMessage(call.Arguments)
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	if !json.Valid(args) {
		return Result{}, &InvocationError{Name: t.Name, Id: call.Id, Err: fmt.Errorf("arguments are not valid JSON")}
	}

	var (
		value any
		err   error
	)
	if t.ctxFn != nil {
		value, err = t.ctxFn(ctx, deps, args)
	} else {
		value, err = t.fn(ctx, args)
	}
	if err != nil {
		return Result{}, &InvocationError{Name: t.Name, Id: call.Id, Err: err}
	}

	if handoff, ok := value.(Handoff); ok {
		return Result{Handoff: &handoff}, nil
	}
	if handoff, ok := value.(*Handoff); ok {
		return Result{Handoff: handoff}, nil
	}

	output, err := content.ToolOutputPart(call.Id, t.Name, value)
	if err != nil {
		return Result{}, &InvocationError{Name: t.Name, Id: call.Id, Err: err}
	}
	return Result{Output: output}, nil
}

// DecodeArgs decodes raw JSON arguments into a new instance of the tool's
// parameter prototype. Handy for tool bodies that want typed arguments.
func (t *Tool) DecodeArgs(args json.RawMessage) (any, error) {
	typ := t.paramsType
	for typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	target := reflect.New(typ).Interface()
	if err := json.Unmarshal(args, target); err != nil {
		return nil, fmt.Errorf("decoding arguments for tool %q: %w", t.Name, err)
	}
	return target, nil
}
