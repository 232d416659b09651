package llm

import (
	"fmt"
	"sync"
)

// Context carries caller-owned state through a call chain: the dependencies
// handed to context tools and a scoped stack of model overrides. It is
// distinct from context.Context, which handles cancellation only.
type Context struct {
	// Deps is forwarded to every tool built with toolkit.NewContextTool.
	Deps any

	mu        sync.Mutex
	overrides []*Model
}

// NewContext returns a Context carrying the given tool dependencies.
func NewContext(deps any) *Context {
	return &Context{Deps: deps}
}

// ActiveModel returns the innermost model override, or nil when no scope is
// open.
func (c *Context) ActiveModel() *Model {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.overrides) == 0 {
		return nil
	}
	return c.overrides[len(c.overrides)-1]
}

// ModelScope is one entry on the override stack. Scopes must be exited in
// reverse order of entry.
type ModelScope struct {
	ctx    *Context
	model  *Model
	depth  int
	exited bool
}

// UseModel pushes a model override. Until the returned scope is exited, calls
// resolved through this Context are served by the given model instead of the
// one they were built with. The same model may be pushed again in a nested
// scope.
func (c *Context) UseModel(m *Model) *ModelScope {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.overrides = append(c.overrides, m)
	return &ModelScope{ctx: c, model: m, depth: len(c.overrides)}
}

// Exit pops the override. Exiting a scope that is not the innermost open one
// is a programming error and fails without modifying the stack. Exiting twice
// is a no-op.
func (s *ModelScope) Exit() error {
	if s.exited {
		return nil
	}
	s.ctx.mu.Lock()
	defer s.ctx.mu.Unlock()
	if len(s.ctx.overrides) != s.depth || s.ctx.overrides[s.depth-1] != s.model {
		return fmt.Errorf("model scope exited out of order")
	}
	s.ctx.overrides = s.ctx.overrides[:s.depth-1]
	s.exited = true
	return nil
}
