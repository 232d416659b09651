package llm

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/Mirascope/mirascope-sub001/content"
)

// fakeTurn scripts one backend response: either a reply (Call), a delta
// sequence (Stream), or a failure.
type fakeTurn struct {
	reply  *Reply
	deltas []Delta

	// err fails Call, or Stream acquisition when acquireErr is set.
	err        error
	acquireErr error

	// failAfter delivers that many deltas before midErr.
	failAfter int
	midErr    error
}

// fakeAdapter serves scripted turns in order and records every request.
type fakeAdapter struct {
	name string

	mu           sync.Mutex
	turns        []fakeTurn
	requests     []Request
	streamStarts int
}

func newFakeAdapter(name string, turns ...fakeTurn) *fakeAdapter {
	return &fakeAdapter{name: name, turns: turns}
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) script(turns ...fakeTurn) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.turns = append(f.turns, turns...)
}

func (f *fakeAdapter) pop(req Request) (fakeTurn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if len(f.turns) == 0 {
		return fakeTurn{}, fmt.Errorf("adapter %s: no scripted turn for request %d", f.name, len(f.requests))
	}
	turn := f.turns[0]
	f.turns = f.turns[1:]
	return turn, nil
}

func (f *fakeAdapter) recorded() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Request, len(f.requests))
	copy(out, f.requests)
	return out
}

func (f *fakeAdapter) streams() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streamStarts
}

func (f *fakeAdapter) Call(ctx context.Context, req Request) (*Reply, error) {
	turn, err := f.pop(req)
	if err != nil {
		return nil, err
	}
	if turn.err != nil {
		return nil, turn.err
	}
	return turn.reply, nil
}

func (f *fakeAdapter) Stream(ctx context.Context, req Request) (DeltaStream, error) {
	turn, err := f.pop(req)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.streamStarts++
	f.mu.Unlock()
	if turn.acquireErr != nil {
		return nil, turn.acquireErr
	}
	return &fakeStream{turn: turn}, nil
}

type fakeStream struct {
	turn   fakeTurn
	idx    int
	closed bool
}

func (s *fakeStream) Next() (Delta, error) {
	if s.turn.midErr != nil && s.idx >= s.turn.failAfter {
		return Delta{}, s.turn.midErr
	}
	if s.idx >= len(s.turn.deltas) {
		return Delta{}, io.EOF
	}
	d := s.turn.deltas[s.idx]
	s.idx++
	return d, nil
}

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

func textReply(text string) *Reply {
	return &Reply{
		Message:      content.NewAssistantMessage(content.TextPart(text)),
		FinishReason: FinishReasonStop,
		Usage:        Usage{InputTokens: 10, OutputTokens: 5},
	}
}

func toolCallReply(calls ...content.ToolCallBlock) *Reply {
	parts := make([]content.Part, len(calls))
	for i, call := range calls {
		parts[i] = content.ToolCallPart(call.Id, call.Name, call.Arguments)
	}
	return &Reply{
		Message:      content.NewAssistantMessage(parts...),
		FinishReason: FinishReasonToolUse,
		Usage:        Usage{InputTokens: 10, OutputTokens: 5},
	}
}

func textDeltas(chunks ...string) []Delta {
	deltas := make([]Delta, len(chunks))
	for i, chunk := range chunks {
		deltas[i] = Delta{Kind: content.KindText, Text: chunk}
	}
	return deltas
}
