package toolkit

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/Mirascope/mirascope-sub001/content"
)

// ToolNotFoundError reports a tool call naming a tool that is not registered
// in the toolkit. It is fatal to the turn that produced the call.
type ToolNotFoundError struct {
	Name string
}

func (e *ToolNotFoundError) Error() string {
	return fmt.Sprintf("tool %q not found in toolkit", e.Name)
}

// A Toolkit is an immutable named registry of tools. It is safe for
// concurrent readers.
type Toolkit struct {
	tools map[string]*Tool
	order []string
}

// NewToolkit builds a toolkit from the given tools. Construction fails if two
// tools share a name.
func NewToolkit(tools ...*Tool) (*Toolkit, error) {
	k := &Toolkit{tools: make(map[string]*Tool, len(tools))}
	for _, tool := range tools {
		if _, exists := k.tools[tool.Name]; exists {
			return nil, fmt.Errorf("duplicate tool name %q", tool.Name)
		}
		k.tools[tool.Name] = tool
		k.order = append(k.order, tool.Name)
	}
	return k, nil
}

// Get resolves a tool call to its tool.
func (k *Toolkit) Get(call content.ToolCallBlock) (*Tool, error) {
	tool, ok := k.tools[call.Name]
	if !ok {
		return nil, &ToolNotFoundError{Name: call.Name}
	}
	return tool, nil
}

// Tools returns the registered tools in registration order.
func (k *Toolkit) Tools() []*Tool {
	out := make([]*Tool, 0, len(k.order))
	for _, name := range k.order {
		out = append(out, k.tools[name])
	}
	return out
}

// Len returns the number of registered tools.
func (k *Toolkit) Len() int {
	return len(k.order)
}

// Execute resolves and runs one tool call.
func (k *Toolkit) Execute(ctx context.Context, deps any, call content.ToolCallBlock) (Result, error) {
	tool, err := k.Get(call)
	if err != nil {
		return Result{}, err
	}
	return tool.Execute(ctx, deps, call)
}

// Execution is the outcome of running every tool call in one assistant turn.
// Outputs are ordered exactly as the originating calls, regardless of
// completion order. Handoff is the first handoff in call order, if any.
type Execution struct {
	Outputs []content.Part
	Handoff *Handoff
}

// ExecuteAll runs all tool calls of one assistant turn concurrently and
// reassembles the outputs in call order. The first tool body error cancels
// the remaining executions and surfaces to the caller.
func (k *Toolkit) ExecuteAll(ctx context.Context, deps any, calls []content.ToolCallBlock) (*Execution, error) {
	// Resolve every tool up front so an unknown name fails before any body runs.
	tools := make([]*Tool, len(calls))
	for i, call := range calls {
		tool, err := k.Get(call)
		if err != nil {
			return nil, err
		}
		tools[i] = tool
	}

	results := make([]Result, len(calls))
	g, gctx := errgroup.WithContext(ctx)
	for i := range calls {
		i := i
		g.Go(func() error {
			result, err := tools[i].Execute(gctx, deps, calls[i])
			if err != nil {
				return err
			}
			results[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	execution := &Execution{Outputs: make([]content.Part, 0, len(calls))}
	for _, result := range results {
		if result.Handoff != nil {
			if execution.Handoff == nil {
				execution.Handoff = result.Handoff
			}
			continue
		}
		execution.Outputs = append(execution.Outputs, result.Output)
	}
	return execution, nil
}
