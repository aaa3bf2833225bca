package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Zhima-Mochi/minishop-catalog/internal/domain/message"
	"github.com/Zhima-Mochi/minishop-catalog/internal/observability"

	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

type fakeReader struct {
	mu        sync.Mutex
	pending   []kafkago.Message
	committed []kafkago.Message
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafkago.Message, error) {
	for {
		r.mu.Lock()
		if len(r.pending) > 0 {
			m := r.pending[0]
			r.pending = r.pending[1:]
			r.mu.Unlock()
			return m, nil
		}
		r.mu.Unlock()
		select {
		case <-ctx.Done():
			return kafkago.Message{}, ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafkago.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeReader) commits() []kafkago.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]kafkago.Message(nil), r.committed...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met in time")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestConsumerCommitsAfterAcknowledgement(t *testing.T) {
	r := &fakeReader{pending: []kafkago.Message{
		{Topic: "stock-reservation-requests", Partition: 1, Offset: 10, Key: []byte("1"), Value: []byte(`{"a":1}`),
			Headers: []kafkago.Header{{Key: "x-test", Value: []byte("yes")}}},
	}}
	var (
		mu   sync.Mutex
		seen []message.Envelope
	)
	c := NewConsumer(message.ChannelReservationRequest, []Reader{r}, func(_ context.Context, env message.Envelope) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, env)
		return nil
	}, observability.NopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { c.Run(ctx); close(done) }()

	waitFor(t, func() bool { return len(r.commits()) == 1 })
	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 1 {
		t.Fatalf("handled %d messages", len(seen))
	}
	env := seen[0]
	if env.Channel != message.ChannelReservationRequest || env.Topic != "stock-reservation-requests" ||
		env.Offset != 10 || env.Partition != 1 || env.Headers["x-test"] != "yes" || string(env.Payload) != `{"a":1}` {
		t.Fatalf("envelope = %+v", env)
	}
}

func TestConsumerRedeliversUntilAcknowledged(t *testing.T) {
	r := &fakeReader{pending: []kafkago.Message{{Offset: 1}}}
	var (
		mu    sync.Mutex
		calls int
	)
	c := NewConsumer(message.ChannelRollbackRequest, []Reader{r}, func(context.Context, message.Envelope) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	}, nil)
	c.RedeliveryDelay = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	waitFor(t, func() bool { return len(r.commits()) == 1 })
	mu.Lock()
	defer mu.Unlock()
	if calls != 3 {
		t.Fatalf("handler calls = %d, want 3", calls)
	}
}

func TestConsumerLeavesMessageUncommittedOnShutdown(t *testing.T) {
	r := &fakeReader{pending: []kafkago.Message{{Offset: 1}}}
	started := make(chan struct{})
	var once sync.Once
	c := NewConsumer(message.ChannelFlashSale, []Reader{r}, func(ctx context.Context, _ message.Envelope) error {
		once.Do(func() { close(started) })
		<-ctx.Done()
		return ctx.Err()
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { c.Run(ctx); close(done) }()
	<-started
	cancel()
	<-done

	if n := len(r.commits()); n != 0 {
		t.Fatalf("committed %d messages after shutdown", n)
	}
	if err := c.Close(); err != nil || !r.closed {
		t.Fatalf("Close: %v closed=%v", err, r.closed)
	}
}

func TestConsumerExtractsTraceContext(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	const traceparent = "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"
	r := &fakeReader{pending: []kafkago.Message{{Headers: []kafkago.Header{{Key: "traceparent", Value: []byte(traceparent)}}}}}
	got := make(chan trace.SpanContext, 1)
	c := NewConsumer(message.ChannelStockUpdate, []Reader{r}, func(ctx context.Context, _ message.Envelope) error {
		got <- trace.SpanContextFromContext(ctx)
		return nil
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	sc := <-got
	if sc.TraceID().String() != "4bf92f3577b34da6a3ce929d0e0e4736" || !sc.IsRemote() {
		t.Fatalf("span context = %+v", sc)
	}
}
