package outbox

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	domoutbox "github.com/Zhima-Mochi/minishop-catalog/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-catalog/internal/observability"
	"github.com/Zhima-Mochi/minishop-catalog/internal/observability/logctx"

	"go.opentelemetry.io/otel/trace"
)

const (
	componentOutbox       = "outbox"
	defaultQueueSize      = 1024
	defaultConcurrency    = 8
	defaultHandlerTimeout = 30 * time.Second
)

// Bus is the in-memory transport used when no broker is configured. Events are fanned out by
// name to subscribers; the publisher's span context travels with each event. It is not durable.
//
// Handlers may publish back into the bus. Such publishes never wait for queue space: when the
// queue is full they go to a backlog the dispatcher drains before taking new events.
type Bus struct {
	mu             sync.RWMutex
	subs           map[string][]domoutbox.Handler
	queueMu        sync.RWMutex
	queue          chan queued
	closed         bool
	backlogMu      sync.Mutex
	backlog        []queued
	startOnce      sync.Once
	stopOnce       sync.Once
	cancel         context.CancelFunc
	done           chan struct{}
	concurrency    int
	handlerTimeout time.Duration
	log            observability.Logger
}

type queued struct {
	event domoutbox.Event
	span  trace.SpanContext
}

// dispatchKey marks contexts handed to this bus's handlers.
type dispatchKey struct{}

type Option func(*Bus)

func WithQueueSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.queue = make(chan queued, n)
		}
	}
}

// WithConcurrency caps the number of handlers running for one event.
func WithConcurrency(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

func WithHandlerTimeout(d time.Duration) Option {
	return func(b *Bus) {
		if d > 0 {
			b.handlerTimeout = d
		}
	}
}

func NewBus(logger observability.Logger, opts ...Option) *Bus {
	if logger == nil {
		logger = observability.NopLogger()
	}
	b := &Bus{
		subs:           make(map[string][]domoutbox.Handler),
		queue:          make(chan queued, defaultQueueSize),
		done:           make(chan struct{}),
		concurrency:    defaultConcurrency,
		handlerTimeout: defaultHandlerTimeout,
		log:            logger.With(observability.F("component", componentOutbox)),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

var (
	_ domoutbox.Publisher  = (*Bus)(nil)
	_ domoutbox.Subscriber = (*Bus)(nil)
)

func (b *Bus) Subscribe(eventName string, h domoutbox.Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[eventName] = append(b.subs[eventName], h)
}

func (b *Bus) Start(ctx context.Context) {
	b.startOnce.Do(func() {
		bg, cancel := context.WithCancel(context.WithoutCancel(ctx))
		b.cancel = cancel
		go b.dispatchLoop(bg)
		logctx.FromOr(ctx, b.log).Info("event_bus_started")
	})
}

// Stop stops accepting events, drains what is already queued and waits for the dispatcher.
func (b *Bus) Stop(ctx context.Context) {
	b.stopOnce.Do(func() {
		b.queueMu.Lock()
		b.closed = true
		close(b.queue)
		b.queueMu.Unlock()

		if b.cancel != nil {
			select {
			case <-b.done:
			case <-ctx.Done():
				b.cancel()
			}
		}
		logctx.FromOr(ctx, b.log).Info("event_bus_stopped")
	})
}

func (b *Bus) Publish(ctx context.Context, e domoutbox.Event) error {
	if e == nil {
		return nil
	}
	logger := logctx.FromOr(ctx, b.log).With(observability.F("event", e.EventName()))

	q := queued{event: e, span: trace.SpanContextFromContext(ctx)}
	reentrant := ctx.Value(dispatchKey{}) == b

	b.queueMu.RLock()
	defer b.queueMu.RUnlock()
	if b.closed {
		if !reentrant {
			return ErrBusStopped
		}
		b.pushBacklog(q)
		logger.Debug("event_backlogged")
		return nil
	}

	select {
	case b.queue <- q:
		logger.Debug("event_enqueued")
		return nil
	default:
	}
	if reentrant {
		b.pushBacklog(q)
		logger.Debug("event_backlogged")
		return nil
	}

	select {
	case b.queue <- q:
		logger.Debug("event_enqueued")
		return nil
	case <-ctx.Done():
		logger.Warn("event_enqueue_aborted", observability.Err(ctx.Err()))
		return ctx.Err()
	}
}

func (b *Bus) dispatchLoop(ctx context.Context) {
	defer close(b.done)
	for {
		if q, ok := b.popBacklog(); ok {
			b.fanout(ctx, q)
			continue
		}
		select {
		case <-ctx.Done():
			return
		case q, ok := <-b.queue:
			if !ok {
				b.drainBacklog(ctx)
				return
			}
			b.fanout(ctx, q)
		}
	}
}

func (b *Bus) pushBacklog(q queued) {
	b.backlogMu.Lock()
	b.backlog = append(b.backlog, q)
	b.backlogMu.Unlock()
}

func (b *Bus) popBacklog() (queued, bool) {
	b.backlogMu.Lock()
	defer b.backlogMu.Unlock()
	if len(b.backlog) == 0 {
		return queued{}, false
	}
	q := b.backlog[0]
	b.backlog[0] = queued{}
	b.backlog = b.backlog[1:]
	return q, true
}

func (b *Bus) drainBacklog(ctx context.Context) {
	for ctx.Err() == nil {
		q, ok := b.popBacklog()
		if !ok {
			return
		}
		b.fanout(ctx, q)
	}
}

func (b *Bus) fanout(ctx context.Context, q queued) {
	name := q.event.EventName()

	b.mu.RLock()
	handlers := append([]domoutbox.Handler(nil), b.subs[name]...)
	b.mu.RUnlock()

	logger := b.log.With(observability.F("event", name))
	if len(handlers) == 0 {
		logger.Debug("event_dropped_no_subscriber")
		return
	}

	if q.span.IsValid() {
		ctx = trace.ContextWithRemoteSpanContext(ctx, q.span)
	}

	sem := make(chan struct{}, b.concurrency)
	var wg sync.WaitGroup

	for _, h := range handlers {
		sem <- struct{}{}
		wg.Add(1)
		go func(h domoutbox.Handler) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("event_handler_panic",
						observability.F("panic", r),
						observability.F("stack", string(debug.Stack())),
					)
				}
				<-sem
				wg.Done()
			}()

			hctx, cancel := context.WithTimeout(context.WithValue(ctx, dispatchKey{}, b), b.handlerTimeout)
			defer cancel()
			if err := h(logctx.With(hctx, logger), q.event); err != nil {
				logger.Warn("event_handler_error", observability.Err(err))
			}
		}(h)
	}

	wg.Wait()
	logger.Debug("event_fanned_out", observability.F("handlers", len(handlers)))
}
