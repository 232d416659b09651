package llm

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/Mirascope/mirascope-sub001/content"
	"github.com/Mirascope/mirascope-sub001/logger"
)

// ErrIncomplete reports that a streaming structured output payload is not yet
// parseable. It is recoverable: pull more deltas and ask again.
var ErrIncomplete = errors.New("structured output is still streaming")

var errStreamClosed = errors.New("stream closed before completion")

// Stream starts a streaming generation turn. The backend connection is only
// acquired on the first pull, so building the stream never fails. The
// effective model is resolved against the context's override stack here, not
// at pull time.
func (m *Model) Stream(ctx context.Context, messages []content.Message, opts *CallOptions) *StreamResponse {
	if opts == nil {
		opts = &CallOptions{}
	}
	eff := m.resolve(opts.Context)
	return &StreamResponse{
		model:        eff,
		opts:         opts,
		input:        cloneMessages(messages),
		req:          eff.buildRequest(messages, opts),
		message:      content.Message{Role: content.RoleAssistant},
		restartsLeft: opts.MaxRestarts,
	}
}

// StreamResponse accumulates a streaming assistant turn. Every delta pulled
// from the backend is retained, so any number of iterators can replay the
// stream while one of them drives it forward; accumulation happens exactly
// once per delta regardless of how the stream is consumed.
//
// A stream interrupted mid-turn restarts transparently while MaxRestarts
// budget remains: the partial turn is discarded, the request is re-sent, and
// Restarted reports true so callers can discard side effects derived from the
// lost partial.
type StreamResponse struct {
	model *Model
	opts  *CallOptions
	input []content.Message
	req   Request

	mu         sync.Mutex
	source     DeltaStream
	acquired   bool
	chunks     []Delta
	chunkPart  []int // index into message.Content; -1 for usage/finish deltas
	message    content.Message
	openKind   content.Kind
	openCallId string
	usage      Usage
	finish     FinishReason
	done       bool
	srcErr     error
	closed     bool

	restartsLeft int
	generation   int
	restarted    bool
}

// pullLocked fetches one delta from the backend and folds it into the
// accumulated message. Returns io.EOF when the turn is complete.
func (s *StreamResponse) pullLocked(ctx context.Context) error {
	for {
		switch {
		case s.done:
			return io.EOF
		case s.srcErr != nil:
			return s.srcErr
		case s.closed:
			return errStreamClosed
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !s.acquired {
			if err := s.acquireLocked(ctx); err != nil {
				return err
			}
		}

		delta, err := s.source.Next()
		if err == io.EOF {
			s.done = true
			_ = s.source.Close()
			return io.EOF
		}
		if err != nil {
			_ = s.source.Close()
			if s.restartsLeft > 0 {
				log := logger.Get()
				log.Warn().Err(err).Str("model", s.model.Id).Msg("stream interrupted, restarting")
				s.restartLocked()
				continue
			}
			s.srcErr = err
			return err
		}
		s.applyLocked(delta)
		return nil
	}
}

func (s *StreamResponse) acquireLocked(ctx context.Context) error {
	source, err := s.model.Adapter.Stream(ctx, s.req)
	if err != nil {
		if s.restartsLeft > 0 {
			log := logger.Get()
			log.Warn().Err(err).Str("model", s.model.Id).Msg("stream acquisition failed, retrying")
			s.restartsLeft--
			return s.acquireLocked(ctx)
		}
		s.srcErr = err
		return err
	}
	s.source = source
	s.acquired = true
	return nil
}

// restartLocked discards the partial turn and arms a fresh acquisition.
func (s *StreamResponse) restartLocked() {
	s.restartsLeft--
	s.generation++
	s.restarted = true
	s.acquired = false
	s.source = nil
	s.chunks = nil
	s.chunkPart = nil
	s.message = content.Message{Role: content.RoleAssistant}
	s.openKind = ""
	s.openCallId = ""
	s.usage = Usage{}
	s.finish = FinishReasonUnset
}

// applyLocked folds one delta into the accumulating message. Contiguous
// same-kind deltas merge into the open part; a kind change, or a fresh tool
// call id, closes it and opens the next.
func (s *StreamResponse) applyLocked(delta Delta) {
	if delta.Usage != nil {
		s.usage.Add(*delta.Usage)
	}
	if delta.FinishReason != "" {
		s.finish = delta.FinishReason
	}

	partIdx := -1
	switch delta.Kind {
	case content.KindText:
		if s.openKind != content.KindText {
			s.message.Content = append(s.message.Content, content.TextPart(""))
			s.openKind = content.KindText
		}
		partIdx = len(s.message.Content) - 1
		s.message.Content[partIdx].Text += delta.Text
	case content.KindThought:
		if s.openKind != content.KindThought {
			s.message.Content = append(s.message.Content, content.ThoughtPart(""))
			s.openKind = content.KindThought
		}
		partIdx = len(s.message.Content) - 1
		s.message.Content[partIdx].Thought.Text += delta.Text
	case content.KindToolCall:
		// Adjacent tool calls share a kind; a new id marks the boundary.
		fresh := s.openKind != content.KindToolCall ||
			(delta.ToolCallId != "" && delta.ToolCallId != s.openCallId)
		if fresh {
			s.message.Content = append(s.message.Content,
				content.ToolCallPart(delta.ToolCallId, delta.ToolCallName, ""))
			s.openKind = content.KindToolCall
			s.openCallId = delta.ToolCallId
		}
		partIdx = len(s.message.Content) - 1
		s.message.Content[partIdx].ToolCall.Arguments += delta.Args
	}

	s.chunks = append(s.chunks, delta)
	s.chunkPart = append(s.chunkPart, partIdx)
}

// chunkAt returns the chunk at *cursor, pulling from the backend when the
// replay buffer is exhausted. A generation change from a restart resets the
// cursor so the iterator replays from the new turn's start.
func (s *StreamResponse) chunkAt(ctx context.Context, cursor *int, gen *int) (Delta, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if *gen != s.generation {
		*gen = s.generation
		*cursor = 0
	}
	for *cursor >= len(s.chunks) {
		if err := s.pullLocked(ctx); err != nil {
			return Delta{}, -1, err
		}
		if *gen != s.generation {
			*gen = s.generation
			*cursor = 0
		}
	}
	return s.chunks[*cursor], s.chunkPart[*cursor], nil
}

// Finish drains the stream to completion.
func (s *StreamResponse) Finish(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		err := s.pullLocked(ctx)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// Close releases the backend connection. Idempotent; a finished stream keeps
// its accumulated state.
func (s *StreamResponse) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.source != nil && !s.done {
		return s.source.Close()
	}
	return nil
}

// Response drains the stream and converts it into a Response, which can then
// be resumed or format-extracted like any non-streaming turn.
func (s *StreamResponse) Response(ctx context.Context) (*Response, error) {
	if err := s.Finish(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	reply := &Reply{
		Model:        s.model.Id,
		Message:      cloneMessage(s.message),
		FinishReason: s.finish,
		Usage:        s.usage,
	}
	return s.model.newResponse(s.input, reply, s.opts), nil
}

// Message returns a stable snapshot of the assistant message accumulated so
// far.
func (s *StreamResponse) Message() content.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneMessage(s.message)
}

// Text returns the text accumulated so far.
func (s *StreamResponse) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.message.Text()
}

// Usage returns the usage reported so far.
func (s *StreamResponse) Usage() Usage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage
}

// FinishReason returns the finish reason, or FinishReasonUnset while the
// stream is open.
func (s *StreamResponse) FinishReason() FinishReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finish
}

// Restarted reports whether a transparent restart discarded a partial turn.
// Callers mirroring deltas into side effects must check this and rebuild.
func (s *StreamResponse) Restarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restarted
}

// Format extracts the structured output from the accumulated payload. While
// the stream is open the payload is completed speculatively, yielding the
// best typed value visible so far, or ErrIncomplete when no parseable prefix
// exists yet. Once the stream is done, full Parse semantics apply.
func (s *StreamResponse) Format() (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	spec := s.opts.Format
	if spec == nil {
		return nil, errors.New("no format spec was declared for this stream")
	}
	payload, err := locatePayload(spec, s.message)
	if s.done {
		if err != nil {
			return nil, err
		}
		return spec.Parse(payload)
	}
	if err != nil {
		// The synthetic tool call may simply not have started yet.
		return nil, ErrIncomplete
	}
	value, ok := spec.ParsePartial(payload)
	if !ok {
		return nil, ErrIncomplete
	}
	return value, nil
}

// Deltas returns a replaying iterator over the raw delta sequence. Multiple
// iterators may run concurrently; whichever is furthest ahead pulls from the
// backend and the rest replay the buffer.
func (s *StreamResponse) Deltas() *Deltas {
	return &Deltas{s: s}
}

// Deltas iterates the raw delta sequence of a stream.
type Deltas struct {
	s      *StreamResponse
	cursor int
	gen    int
}

// Next returns the next delta, or io.EOF when the stream is complete.
func (d *Deltas) Next(ctx context.Context) (Delta, error) {
	delta, _, err := d.s.chunkAt(ctx, &d.cursor, &d.gen)
	if err != nil {
		return Delta{}, err
	}
	d.cursor++
	return delta, nil
}

// Groups returns an iterator over the stream's content parts: each element is
// a nested iterator yielding the deltas of exactly one part. Consuming groups
// and consuming the raw stream are interchangeable; both leave the same
// accumulated message behind.
func (s *StreamResponse) Groups() *Groups {
	return &Groups{s: s, lastPart: -1}
}

// Groups iterates a stream part by part.
type Groups struct {
	s        *StreamResponse
	cursor   int
	gen      int
	lastPart int
}

// Next returns the delta stream of the next content part, or io.EOF when the
// stream is complete.
func (g *Groups) Next(ctx context.Context) (*PartStream, error) {
	for {
		prevGen := g.gen
		_, part, err := g.s.chunkAt(ctx, &g.cursor, &g.gen)
		if err != nil {
			return nil, err
		}
		if g.gen != prevGen {
			g.lastPart = -1
		}
		start := g.cursor
		g.cursor++
		if part >= 0 && part != g.lastPart {
			g.lastPart = part
			return &PartStream{s: g.s, part: part, cursor: start, gen: g.gen}, nil
		}
	}
}

// PartStream yields the deltas of a single content part.
type PartStream struct {
	s      *StreamResponse
	part   int
	cursor int
	gen    int
}

// Kind returns the part's content kind.
func (p *PartStream) Kind() content.Kind {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	if p.gen != p.s.generation || p.part >= len(p.s.message.Content) {
		return ""
	}
	return p.s.message.Content[p.part].Type
}

// Next returns the part's next delta. io.EOF marks the end of this part, not
// necessarily of the stream. A restart invalidates the part and ends it.
func (p *PartStream) Next(ctx context.Context) (Delta, error) {
	for {
		prevGen := p.gen
		delta, part, err := p.s.chunkAt(ctx, &p.cursor, &p.gen)
		if err != nil {
			return Delta{}, err
		}
		if p.gen != prevGen {
			return Delta{}, io.EOF
		}
		if part > p.part {
			return Delta{}, io.EOF
		}
		p.cursor++
		if part == p.part {
			return delta, nil
		}
	}
}

// Collect drains the part and returns its completed form.
func (p *PartStream) Collect(ctx context.Context) (content.Part, error) {
	for {
		_, err := p.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return content.Part{}, err
		}
	}
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	if p.gen != p.s.generation || p.part >= len(p.s.message.Content) {
		return content.Part{}, errors.New("part discarded by stream restart")
	}
	return cloneMessage(content.Message{Content: p.s.message.Content[p.part : p.part+1]}).Content[0], nil
}

// prime forces backend acquisition without consuming a delta, so wrappers can
// surface connection errors eagerly.
func (s *StreamResponse) prime(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.acquired || s.done {
		return nil
	}
	if s.srcErr != nil {
		return s.srcErr
	}
	return s.acquireLocked(ctx)
}
