package progress

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

type recordingSink struct {
	mu     sync.Mutex
	events []Event
	err    error
	block  chan struct{}
}

func (s *recordingSink) Deliver(ctx context.Context, e Event) error {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return s.err
}

func (s *recordingSink) snapshot() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func TestNotifier_DeliversInOrder(t *testing.T) {
	sink := &recordingSink{}
	n := Open(context.Background(), sink, "req-1", nopLogger{})
	for i := 0; i < 5; i++ {
		n.Report(Event{AttemptIndex: i, Percent: float64(i * 20)})
	}
	n.Close()

	events := sink.snapshot()
	require.Len(t, events, 5)
	for i, e := range events {
		assert.Equal(t, i, e.AttemptIndex)
		assert.Equal(t, i+1, e.Seq)
		assert.Equal(t, "req-1", e.RequestID)
		assert.False(t, e.CreatedAt.IsZero())
	}
}

func TestNotifier_ClampsPercent(t *testing.T) {
	sink := &recordingSink{}
	n := Open(context.Background(), sink, "req", nopLogger{})
	n.Report(Event{Percent: -5})
	n.Report(Event{Percent: 150})
	n.Close()

	events := sink.snapshot()
	require.Len(t, events, 2)
	assert.Equal(t, 0.0, events[0].Percent)
	assert.Equal(t, 100.0, events[1].Percent)
}

func TestNotifier_SinkErrorsAndPanicsAreSwallowed(t *testing.T) {
	failing := &recordingSink{err: errors.New("client went away")}
	n := Open(context.Background(), failing, "req", nopLogger{})
	n.Report(Event{Message: "a"})
	n.Report(Event{Message: "b"})
	n.Close()
	assert.Len(t, failing.snapshot(), 2)

	calls := 0
	panicky := SinkFunc(func(context.Context, Event) error {
		calls++
		panic("boom")
	})
	n = Open(context.Background(), panicky, "req", nopLogger{})
	assert.NotPanics(t, func() {
		n.Report(Event{Message: "a"})
		n.Report(Event{Message: "b"})
		n.Close()
	})
	assert.Equal(t, 2, calls)
}

func TestNotifier_ReportDoesNotBlockOnSlowSink(t *testing.T) {
	sink := &recordingSink{block: make(chan struct{})}
	n := Open(context.Background(), sink, "req", nopLogger{},
		WithQueueSize(1), WithEnqueueTimeout(10*time.Millisecond), WithFlushTimeout(20*time.Millisecond))

	start := time.Now()
	for i := 0; i < 5; i++ {
		n.Report(Event{AttemptIndex: i})
	}
	assert.Less(t, time.Since(start), time.Second)

	n.Close()
	close(sink.block)
}

func TestNotifier_NothingDeliveredAfterFlushTimeout(t *testing.T) {
	var (
		mu        sync.Mutex
		closed    bool
		delivered []int
		late      []int
	)
	slow := SinkFunc(func(_ context.Context, e Event) error {
		if e.Seq == 1 {
			time.Sleep(150 * time.Millisecond)
		}
		mu.Lock()
		defer mu.Unlock()
		delivered = append(delivered, e.Seq)
		if closed {
			late = append(late, e.Seq)
		}
		return nil
	})

	n := Open(context.Background(), slow, "req", nopLogger{}, WithFlushTimeout(50*time.Millisecond))
	n.Report(Event{Message: "first"})
	n.Report(Event{Message: "second"})
	n.Close()
	mu.Lock()
	closed = true
	mu.Unlock()

	time.Sleep(200 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Empty(t, late, "events delivered after Close returned")
	assert.Equal(t, []int{1}, delivered)
}

func TestNotifier_FlushTimeoutCancelsDeliveryContext(t *testing.T) {
	sink := &recordingSink{block: make(chan struct{})}
	defer close(sink.block)
	n := Open(context.Background(), sink, "req", nopLogger{}, WithFlushTimeout(20*time.Millisecond))
	n.Report(Event{Message: "stuck"})
	n.Report(Event{Message: "queued"})

	start := time.Now()
	n.Close()
	assert.Less(t, time.Since(start), time.Second)
	assert.Empty(t, sink.snapshot())
}

func TestNotifier_DropsAfterCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sink := &recordingSink{}
	n := Open(ctx, sink, "req", nopLogger{})
	cancel()
	n.Report(Event{Message: "late"})
	n.Close()
	assert.Empty(t, sink.snapshot())
}

func TestNotifier_CloseIsIdempotent(t *testing.T) {
	sink := &recordingSink{}
	n := Open(context.Background(), sink, "req", nopLogger{})
	n.Report(Event{Message: "only"})
	n.Close()
	n.Close()
	n.Report(Event{Message: "after close"})
	assert.Len(t, sink.snapshot(), 1)
}

func TestNotifier_NilSinkIsNoOp(t *testing.T) {
	n := Open(context.Background(), nil, "req", nopLogger{})
	assert.NotPanics(t, func() {
		n.Report(Event{Message: "nobody listening"})
		n.Close()
	})
}

func TestMultiSink_JoinsErrors(t *testing.T) {
	a := &recordingSink{}
	b := &recordingSink{err: errors.New("b failed")}
	err := MultiSink{a, nil, b}.Deliver(context.Background(), Event{Message: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b failed")
	assert.Len(t, a.snapshot(), 1)
	assert.Len(t, b.snapshot(), 1)
}

func TestLogSink(t *testing.T) {
	assert.NoError(t, LogSink{Logger: nopLogger{}}.Deliver(context.Background(), Event{Message: "x"}))
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "mcp_openai.progress.01HZ", Subject("mcp_openai.progress", "01HZ"))
}
