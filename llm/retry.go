package llm

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/Mirascope/mirascope-sub001/content"
	"github.com/Mirascope/mirascope-sub001/logger"
)

// RetryPolicy bounds how hard a RetryModel tries before moving on.
type RetryPolicy struct {
	// MaxAttempts per model. Defaults to 2.
	MaxAttempts int
	// InitialInterval seeds the exponential backoff between attempts.
	// Defaults to 200ms.
	InitialInterval time.Duration
	// MaxInterval caps the backoff. Defaults to 10s.
	MaxInterval time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 2
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = 200 * time.Millisecond
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = 10 * time.Second
	}
	return p
}

func (p RetryPolicy) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.MaxElapsedTime = 0
	return b
}

// RetryModel serves calls from an ordered list of candidate models. Retryable
// failures are retried against the same model with exponential backoff until
// its attempt budget runs out, then the next candidate takes over. A
// candidate that serves a call successfully stays active for later calls.
type RetryModel struct {
	policy RetryPolicy

	mu     sync.Mutex
	models []*Model
	active int
}

// NewRetryModel builds a RetryModel from the primary model and its fallbacks,
// tried in order.
func NewRetryModel(policy RetryPolicy, models ...*Model) (*RetryModel, error) {
	if len(models) == 0 {
		return nil, errors.New("retry model requires at least one candidate")
	}
	return &RetryModel{policy: policy.withDefaults(), models: models}, nil
}

// Active returns the candidate currently serving calls.
func (rm *RetryModel) Active() *Model {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.models[rm.active]
}

func (rm *RetryModel) activeIndex() int {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.active
}

func (rm *RetryModel) setActive(idx int) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.active = idx
}

// Call runs one generation turn through the candidate chain.
func (rm *RetryModel) Call(ctx context.Context, messages []content.Message, opts *CallOptions) (*Response, error) {
	var resp *Response
	err := rm.run(ctx, func(m *Model) error {
		var err error
		resp, err = m.Call(ctx, messages, opts)
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Stream starts a streaming turn through the candidate chain. The stream is
// primed eagerly so connection failures fall through to the next candidate;
// mid-stream interruptions are the stream's own restart budget's problem.
func (rm *RetryModel) Stream(ctx context.Context, messages []content.Message, opts *CallOptions) (*StreamResponse, error) {
	var stream *StreamResponse
	err := rm.run(ctx, func(m *Model) error {
		stream = m.Stream(ctx, messages, opts)
		return stream.prime(ctx)
	})
	if err != nil {
		return nil, err
	}
	return stream, nil
}

// run drives attempts one candidate at a time. A non-retryable error skips the
// rest of the candidate's budget and falls through to the next model, since
// repeating it against the same backend cannot help.
func (rm *RetryModel) run(ctx context.Context, attempt func(m *Model) error) error {
	var lastErr error
	for idx := rm.activeIndex(); idx < len(rm.models); idx++ {
		m := rm.models[idx]
		bo := rm.policy.newBackOff()
		for n := 0; n < rm.policy.MaxAttempts; n++ {
			err := attempt(m)
			if err == nil {
				rm.setActive(idx)
				return nil
			}
			lastErr = err
			if !IsRetryable(err) {
				log := logger.Get()
				log.Warn().Err(err).Str("model", m.Id).Msg("model failed, falling back")
				break
			}
			if n == rm.policy.MaxAttempts-1 {
				log := logger.Get()
				log.Warn().Err(err).Str("model", m.Id).Msg("attempt budget exhausted, falling back")
				break
			}
			if err := rm.wait(ctx, waitFor(err, bo)); err != nil {
				return err
			}
		}
	}
	return lastErr
}

// waitFor honors a backend-suggested retry-after when it exceeds the backoff.
func waitFor(err error, bo backoff.BackOff) time.Duration {
	wait := bo.NextBackOff()
	var rateLimit *RateLimitError
	if errors.As(err, &rateLimit) && rateLimit.RetryAfter > wait {
		wait = rateLimit.RetryAfter
	}
	return wait
}

func (rm *RetryModel) wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
