// Package retry wraps node functions that call unreliable external collaborators.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/domain"
	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/graph"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 2 * time.Second
)

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Policy classifies node failures and retries transient ones with exponential backoff.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration

	// Sleep defaults to a timer that honours ctx.
	Sleep Sleeper

	// Fallback turns a terminal failure into the empty result of the node.
	// When nil, the failure is returned as an error.
	Fallback func(tag string) domain.Update
}

// Default returns the policy with three attempts and a two second base delay.
func Default() Policy {
	return Policy{MaxAttempts: DefaultMaxAttempts, BaseDelay: DefaultBaseDelay}
}

// Delay returns the backoff applied before retry n (1-based).
func (p Policy) Delay(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	return p.BaseDelay * time.Duration(1<<uint(n-1))
}

// Wrap decorates fn with the policy.
func (p Policy) Wrap(fn graph.NodeFunc) graph.NodeFunc {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = contextSleep
	}

	return func(ctx context.Context, state domain.State) (domain.Output, error) {
		var lastErr error
		for attempt := 1; attempt <= attempts; attempt++ {
			out, err := fn(ctx, state)
			if err == nil {
				return out, nil
			}
			if ctx.Err() != nil {
				return nil, err
			}
			if !errors.Is(err, domain.ErrTransient) {
				return p.fail(domain.Tag(err), err)
			}
			lastErr = err
			if attempt == attempts {
				break
			}

			delay := p.Delay(attempt)
			notify(ctx, attempt, delay, err)
			if err := sleep(ctx, delay); err != nil {
				return nil, err
			}
		}
		return p.fail(domain.TagMaxRetries, &exhaustedError{cause: lastErr})
	}
}

func (p Policy) fail(tag string, err error) (domain.Output, error) {
	if p.Fallback == nil {
		return nil, err
	}
	return p.Fallback(tag), nil
}

func notify(ctx context.Context, attempt int, delay time.Duration, err error) {
	hooks := domain.HooksFrom(ctx)
	if hooks.OnRetry == nil {
		return
	}
	info, _ := domain.RunInfoFrom(ctx)
	hooks.OnRetry(ctx, &domain.RetryEvent{
		EventBase: domain.EventBase{Timestamp: domain.Now(ctx), Type: domain.EventRetry, RunID: info.RunID},
		Node:      info.Node,
		Attempt:   attempt,
		Delay:     delay,
		Err:       err,
	})
}

func contextSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// exhaustedError reports the max-retries tag while keeping the last cause.
type exhaustedError struct {
	cause error
}

func (e *exhaustedError) Error() string { return domain.TagMaxRetries }

func (e *exhaustedError) Unwrap() error { return e.cause }

func (e *exhaustedError) Is(target error) bool { return target == domain.ErrMaxRetries }
