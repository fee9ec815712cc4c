// Package retry drives every external call in the pipeline through one of
// two recovery strategies: time-based exponential backoff for failures
// that resolve on their own (rate limits, transient network, 5xx), and
// geometric context reduction for oversized payloads, where waiting does
// not help and the corrective action is shrinking the input.
package retry

import (
	"context"
	"time"

	"go.uber.org/zap"

	"dossierforge/internal/classify"
)

// Outcome reports how a retried call ended. On failure, Classification
// holds the verdict for the last attempt.
type Outcome[T any] struct {
	Success        bool
	Value          T
	Classification *classify.Classification
	Attempts       int
}

// Policy bounds a time-based retry sequence.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultPolicy matches the provider limits the pipeline typically runs
// against.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 4,
		BaseDelay:   2 * time.Second,
		MaxDelay:    60 * time.Second,
	}
}

// ReductionPolicy bounds a context-reduction sequence. Step is subtracted
// from the reduction factor after each overflow failure.
type ReductionPolicy struct {
	MaxReductions int
	Step          float64
	Retry         Policy
}

// DefaultReductionPolicy shrinks by a quarter per overflow, giving three
// usable factors (1.0, 0.75, 0.5, 0.25) before giving up.
func DefaultReductionPolicy() ReductionPolicy {
	return ReductionPolicy{
		MaxReductions: 4,
		Step:          0.25,
		Retry:         DefaultPolicy(),
	}
}

// Executor runs retry sequences. It holds no mutable state besides its
// sleep hook, so concurrent callers may each construct their own cheaply.
type Executor struct {
	log   *zap.Logger
	sleep func(context.Context, time.Duration)
}

// NewExecutor creates an Executor. A nil logger is replaced with a no-op.
func NewExecutor(log *zap.Logger) *Executor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{log: log, sleep: sleepCtx}
}

// sleepCtx sleeps for d or until ctx is cancelled, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// Do calls fn up to p.MaxAttempts times with time-based backoff. A
// failure is classified; non-retryable kinds stop immediately. The delay
// before attempt n+1 is the classification's suggested delay when it has
// one, otherwise BaseDelay doubled per attempt, capped at MaxDelay.
func Do[T any](ctx context.Context, ex *Executor, p Policy, fn func(context.Context) (T, error)) Outcome[T] {
	var last classify.Classification
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			cls := classify.Classify(err)
			return Outcome[T]{Classification: &cls, Attempts: attempt}
		}

		v, err := fn(ctx)
		if err == nil {
			return Outcome[T]{Success: true, Value: v, Attempts: attempt}
		}

		last = classify.Classify(err)
		if !last.Retryable || attempt == p.MaxAttempts {
			out := last
			return Outcome[T]{Classification: &out, Attempts: attempt}
		}

		delay := backoffDelay(last, p, attempt)
		ex.log.Warn("Retryable failure, backing off",
			zap.String("kind", string(last.Kind)),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay))
		ex.sleep(ctx, delay)
	}
	out := last
	return Outcome[T]{Classification: &out, Attempts: p.MaxAttempts}
}

// backoffDelay prefers the classifier's hint and falls back to
// exponential growth from BaseDelay, capped at MaxDelay.
func backoffDelay(cls classify.Classification, p Policy, attempt int) time.Duration {
	delay := cls.SuggestedDelay
	if delay <= 0 {
		delay = p.BaseDelay << uint(attempt-1)
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

// DoWithContextReduction calls fn with a shrinking reduction factor,
// starting at 1.0. An overflow failure shrinks the factor by Step and
// retries immediately, without sleeping. Any other retryable failure
// hands the remaining attempt budget to Do at the current factor, since
// time-based backoff is the correct remedy there. The sequence stops once
// the factor reaches zero or MaxReductions attempts are spent.
func DoWithContextReduction[T any](ctx context.Context, ex *Executor, p ReductionPolicy, fn func(ctx context.Context, factor float64) (T, error)) Outcome[T] {
	factor := 1.0
	var last classify.Classification
	for attempt := 1; attempt <= p.MaxReductions; attempt++ {
		if err := ctx.Err(); err != nil {
			cls := classify.Classify(err)
			return Outcome[T]{Classification: &cls, Attempts: attempt}
		}

		v, err := fn(ctx, factor)
		if err == nil {
			return Outcome[T]{Success: true, Value: v, Attempts: attempt}
		}

		last = classify.Classify(err)
		if !last.Retryable {
			out := last
			return Outcome[T]{Classification: &out, Attempts: attempt}
		}

		if last.Kind != classify.KindContextOverflow {
			remaining := p.MaxReductions - attempt
			if remaining <= 0 {
				out := last
				return Outcome[T]{Classification: &out, Attempts: attempt}
			}
			ex.log.Warn("Non-overflow failure during reduction, switching to backoff",
				zap.String("kind", string(last.Kind)),
				zap.Int("attempt", attempt))
			sub := p.Retry
			sub.MaxAttempts = remaining
			frozen := factor
			out := Do(ctx, ex, sub, func(ctx context.Context) (T, error) {
				return fn(ctx, frozen)
			})
			out.Attempts += attempt
			return out
		}

		factor -= p.Step
		if factor <= 0 {
			out := last
			return Outcome[T]{Classification: &out, Attempts: attempt}
		}
		ex.log.Warn("Context overflow, shrinking payload",
			zap.Float64("next_factor", factor),
			zap.Int("attempt", attempt))
	}
	out := last
	return Outcome[T]{Classification: &out, Attempts: p.MaxReductions}
}
