// File: internal/services/retry/orchestrator.go
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/iyunix/mcp-openai/internal/services/ai"
	"github.com/iyunix/mcp-openai/internal/services/progress"
)

const tracerName = "github.com/iyunix/mcp-openai/internal/services/retry"

type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
}

// Call performs one upstream round trip. It must honour ctx.
type Call func(ctx context.Context) (Payload, error)

// Invocation identifies one tool call and the policy that governs it.
type Invocation struct {
	RequestID string
	Tool      string
	Policy    RequestPolicy
	Sink      progress.Sink
}

type Option func(*Orchestrator)

func WithBackoff(b Backoff) Option {
	return func(o *Orchestrator) { o.backoff = b }
}

func WithSleep(sleep SleepFunc) Option {
	return func(o *Orchestrator) { o.sleep = sleep }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

func WithNotifierOptions(opts ...progress.Option) Option {
	return func(o *Orchestrator) { o.notifierOpts = opts }
}

// Orchestrator drives the attempt loop. It holds no per-invocation state and
// may serve any number of concurrent invocations.
type Orchestrator struct {
	logger       Logger
	backoff      Backoff
	sleep        SleepFunc
	now          func() time.Time
	tracer       trace.Tracer
	notifierOpts []progress.Option
}

func NewOrchestrator(logger Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		logger:  logger,
		backoff: DefaultBackoff(),
		sleep:   DefaultSleep,
		now:     time.Now,
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Invoke runs call until it succeeds, fails permanently, runs out of retries
// or ctx is cancelled. It always returns exactly one non-nil Outcome.
func (o *Orchestrator) Invoke(ctx context.Context, inv Invocation, call Call) *Outcome {
	started := o.now()
	if err := inv.Policy.Validate(); err != nil {
		out := Rejected(inv.RequestID, inv.Tool, err)
		o.finish(inv, out, started)
		return out
	}

	metricInFlight.Inc()
	defer metricInFlight.Dec()

	ctx, span := o.tracer.Start(ctx, "invoke "+inv.Tool, trace.WithAttributes(
		attribute.String("request.id", inv.RequestID),
		attribute.String("tool", inv.Tool),
		attribute.Int64("policy.timeout_ms", inv.Policy.Timeout.Milliseconds()),
		attribute.Int("policy.max_retries", inv.Policy.MaxRetries),
	))
	defer span.End()

	notifier := progress.Open(ctx, inv.Sink, inv.RequestID, o.logger, o.notifierOpts...)
	defer notifier.Close()

	out := &Outcome{RequestID: inv.RequestID, Tool: inv.Tool}
	maxRetries := inv.Policy.MaxRetries

	for idx := 0; ; idx++ {
		if ctx.Err() != nil {
			o.cancelled(ctx, inv, out)
			break
		}

		payload, attempt := o.attempt(ctx, inv, idx, call)
		out.Attempts = append(out.Attempts, attempt)

		if attempt.Err == nil {
			out.State = StateSucceeded
			out.Payload = payload
			notifier.Report(progress.Event{
				AttemptIndex:      idx,
				RemainingAttempts: maxRetries - idx,
				Message:           fmt.Sprintf("%s completed on attempt %d", inv.Tool, idx+1),
				Percent:           100,
				Final:             true,
			})
			break
		}
		if ctx.Err() != nil {
			o.cancelled(ctx, inv, out)
			break
		}

		failure := attempt.Err
		if !failure.Retryable() {
			o.permanent(out, failure)
			notifier.Report(o.finalEvent(out, idx, maxRetries, started))
			break
		}
		if idx >= maxRetries {
			o.exhausted(out, failure)
			notifier.Report(o.finalEvent(out, idx, maxRetries, started))
			break
		}

		delay, ok := o.backoff.NextDelay(idx, failure.Kind)
		if !ok {
			o.permanent(out, failure)
			notifier.Report(o.finalEvent(out, idx, maxRetries, started))
			break
		}

		remaining := maxRetries - idx
		notifier.Report(progress.Event{
			AttemptIndex:      idx,
			RemainingAttempts: remaining,
			Message: fmt.Sprintf("attempt %d of %d failed (%s); retrying in %s, %d %s left",
				idx+1, inv.Policy.MaxAttempts(), failure.Reason, delay.Round(time.Millisecond), remaining, plural(remaining, "retry", "retries")),
			Percent: 100 * float64(idx+1) / float64(inv.Policy.MaxAttempts()),
		})
		o.logger.Warn("attempt failed, backing off",
			"request_id", inv.RequestID, "tool", inv.Tool, "attempt", idx,
			"reason", failure.Reason, "delay", delay, "remaining", remaining)
		span.AddEvent("backoff", trace.WithAttributes(
			attribute.Int("attempt", idx),
			attribute.Int64("delay_ms", delay.Milliseconds()),
		))

		if err := o.sleep(ctx, delay); err != nil {
			o.cancelled(ctx, inv, out)
			break
		}
	}

	if out.Failed() {
		span.SetStatus(codes.Error, string(out.Reason))
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.SetAttributes(
		attribute.String("outcome.state", string(out.State)),
		attribute.Int("outcome.attempts", out.AttemptCount()),
	)
	o.finish(inv, out, started)
	return out
}

func (o *Orchestrator) attempt(ctx context.Context, inv Invocation, idx int, call Call) (Payload, Attempt) {
	attemptCtx, span := o.tracer.Start(ctx, "attempt", trace.WithAttributes(attribute.Int("attempt", idx)))
	defer span.End()

	start := o.now()
	payload, err := Within(attemptCtx, inv.Policy.Timeout, call)
	attempt := Attempt{Index: idx, StartedAt: start, Duration: o.now().Sub(start)}
	if err == nil {
		recordAttempt(inv.Tool, "ok")
		return payload, attempt
	}

	attempt.Err = o.classify(inv, idx, err)
	recordAttempt(inv.Tool, string(attempt.Err.Reason))
	span.RecordError(attempt.Err)
	span.SetStatus(codes.Error, string(attempt.Err.Reason))
	return Payload{}, attempt
}

// classify accepts the adapter's verdict as is. Anything the adapter did not
// classify is an unexpected failure and ends the invocation.
func (o *Orchestrator) classify(inv Invocation, idx int, err error) *ai.Error {
	if errors.Is(err, ErrTimedOut) {
		return ai.NewTimeoutError(inv.Tool, err)
	}
	var aiErr *ai.Error
	if errors.As(err, &aiErr) {
		return aiErr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ai.Classify(inv.Tool, err)
	}

	var panicErr *PanicError
	if errors.As(err, &panicErr) {
		o.logger.Error("attempt panicked",
			"request_id", inv.RequestID, "tool", inv.Tool, "attempt", idx,
			"panic", fmt.Sprint(panicErr.Value), "stack", string(panicErr.Stack))
	} else {
		o.logger.Error("unclassified attempt failure",
			"request_id", inv.RequestID, "tool", inv.Tool, "attempt", idx,
			"error", err, "type", fmt.Sprintf("%T", err))
	}
	return &ai.Error{
		Kind:    ai.KindPermanent,
		Reason:  ai.ReasonUnexpected,
		Op:      inv.Tool,
		Message: fmt.Sprintf("internal error (request %s)", inv.RequestID),
		Cause:   err,
	}
}

func (o *Orchestrator) permanent(out *Outcome, failure *ai.Error) {
	out.State = StateFailedPermanent
	out.Kind = ai.KindPermanent
	out.Reason = failure.Reason
	out.Err = failure
	out.Message = failure.Message
	out.Hint = HintFor(ai.KindPermanent, failure.Reason)
}

func (o *Orchestrator) exhausted(out *Outcome, last *ai.Error) {
	out.State = StateFailedTransientExhausted
	out.Kind = ai.KindExhausted
	out.Reason = last.Reason
	out.Message = fmt.Sprintf("last error: %s", last.Message)
	out.Err = &ai.Error{
		Kind:       ai.KindExhausted,
		Reason:     last.Reason,
		Op:         last.Op,
		StatusCode: last.StatusCode,
		Message:    fmt.Sprintf("gave up after %s", pluralAttempts(out.AttemptCount())),
		Cause:      last,
	}
	out.Hint = HintFor(ai.KindExhausted, last.Reason)
}

func (o *Orchestrator) cancelled(ctx context.Context, inv Invocation, out *Outcome) {
	out.State = StateCancelled
	out.Kind = ai.KindPermanent
	out.Reason = ai.ReasonCancelled
	out.Message = "invocation cancelled"
	out.Err = &ai.Error{
		Kind:    ai.KindPermanent,
		Reason:  ai.ReasonCancelled,
		Op:      inv.Tool,
		Message: out.Message,
		Cause:   context.Cause(ctx),
	}
	out.Hint = HintFor(ai.KindPermanent, ai.ReasonCancelled)
}

func (o *Orchestrator) finalEvent(out *Outcome, idx, maxRetries int, started time.Time) progress.Event {
	out.Elapsed = o.now().Sub(started)
	return progress.Event{
		AttemptIndex:      idx,
		RemainingAttempts: maxRetries - idx,
		Message:           out.Summary(),
		Percent:           100,
		Final:             true,
	}
}

func (o *Orchestrator) finish(inv Invocation, out *Outcome, started time.Time) {
	out.Elapsed = o.now().Sub(started)
	recordOutcome(inv.Tool, out.State, out.Elapsed)

	fields := []interface{}{
		"request_id", inv.RequestID,
		"tool", inv.Tool,
		"state", out.State,
		"attempts", out.AttemptCount(),
		"elapsed", out.Elapsed,
	}
	switch out.State {
	case StateSucceeded:
		o.logger.Info("invocation succeeded", fields...)
	case StateCancelled:
		o.logger.Info("invocation cancelled", fields...)
	default:
		o.logger.Warn("invocation failed", append(fields, "reason", out.Reason, "error", out.Err)...)
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
