// Package progress delivers ordered lifecycle events for one in-flight
// invocation to a shared sink.
package progress

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const (
	DefaultEnqueueTimeout = 50 * time.Millisecond
	DefaultFlushTimeout   = 2 * time.Second
	DefaultQueueSize      = 16
)

// Event is immutable once reported.
type Event struct {
	RequestID         string    `json:"request_id"`
	Seq               int       `json:"seq"`
	AttemptIndex      int       `json:"attempt_index"`
	RemainingAttempts int       `json:"remaining_attempts"`
	Message           string    `json:"message"`
	Percent           float64   `json:"percent"`
	Final             bool      `json:"final"`
	CreatedAt         time.Time `json:"created_at"`
}

// Sink is the delivery channel. One sink may be shared by many concurrent
// invocations, so implementations must be safe for concurrent use.
type Sink interface {
	Deliver(ctx context.Context, event Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, event Event) error

func (f SinkFunc) Deliver(ctx context.Context, event Event) error {
	return f(ctx, event)
}

type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type Option func(*Notifier)

func WithEnqueueTimeout(d time.Duration) Option {
	return func(n *Notifier) { n.enqueueTimeout = d }
}

func WithFlushTimeout(d time.Duration) Option {
	return func(n *Notifier) { n.flushTimeout = d }
}

func WithQueueSize(size int) Option {
	return func(n *Notifier) {
		if size > 0 {
			n.queueSize = size
		}
	}
}

// Notifier is scoped to a single invocation. Report never blocks longer than
// the enqueue timeout and never fails; events are delivered by one worker in
// the order they were reported.
type Notifier struct {
	ctx       context.Context
	cancel    context.CancelFunc
	requestID string
	sink      Sink
	logger    Logger

	enqueueTimeout time.Duration
	flushTimeout   time.Duration
	queueSize      int

	mu     sync.Mutex
	closed bool
	seq    int
	queue  chan Event
	done   chan struct{}
}

// Open starts the delivery worker. Once ctx is cancelled, queued events are
// dropped instead of delivered. The caller must Close the notifier.
func Open(ctx context.Context, sink Sink, requestID string, logger Logger, opts ...Option) *Notifier {
	deliverCtx, cancel := context.WithCancel(ctx)
	n := &Notifier{
		ctx:            deliverCtx,
		cancel:         cancel,
		requestID:      requestID,
		sink:           sink,
		logger:         logger,
		enqueueTimeout: DefaultEnqueueTimeout,
		flushTimeout:   DefaultFlushTimeout,
		queueSize:      DefaultQueueSize,
	}
	for _, opt := range opts {
		opt(n)
	}
	n.queue = make(chan Event, n.queueSize)
	n.done = make(chan struct{})

	n.logger.Debug("progress notifier opened", "request_id", requestID)
	go n.run()
	return n
}

// Report stamps the event with the request id, a sequence number and the
// creation time, then queues it.
func (n *Notifier) Report(event Event) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		n.logger.Debug("notifier closed, dropping event", "request_id", n.requestID, "message", event.Message)
		return
	}
	if n.sink == nil {
		return
	}

	n.seq++
	event.RequestID = n.requestID
	event.Seq = n.seq
	event.Percent = clampPercent(event.Percent)
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	timer := time.NewTimer(n.enqueueTimeout)
	defer timer.Stop()
	select {
	case n.queue <- event:
	case <-timer.C:
		n.logger.Warn("progress queue full, dropping event",
			"request_id", n.requestID, "seq", event.Seq, "message", event.Message)
	}
}

// Close stops accepting events and waits for queued ones to drain, bounded by
// the flush timeout. When the timeout fires, the delivery context is
// cancelled, whatever is still queued is dropped, and Close waits for the
// worker to exit, so no sink call starts or finishes after Close returns.
// Sinks must honor their context for Close to stay bounded. It is safe to
// call more than once.
func (n *Notifier) Close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	close(n.queue)
	n.mu.Unlock()

	timer := time.NewTimer(n.flushTimeout)
	defer timer.Stop()
	select {
	case <-n.done:
		n.logger.Debug("progress notifier closed", "request_id", n.requestID, "events", n.seq)
	case <-timer.C:
		n.logger.Warn("progress flush timed out, dropping queued events",
			"request_id", n.requestID, "timeout", n.flushTimeout)
		n.cancel()
		<-n.done
	}
	n.cancel()
}

func (n *Notifier) run() {
	defer close(n.done)
	for event := range n.queue {
		if n.ctx.Err() != nil {
			continue
		}
		if err := n.deliver(event); err != nil {
			n.logger.Warn("progress delivery failed",
				"request_id", n.requestID, "seq", event.Seq, "error", err)
		}
	}
}

func (n *Notifier) deliver(event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panicked: %v", r)
		}
	}()
	return n.sink.Deliver(n.ctx, event)
}

func clampPercent(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}
