package kafka

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Zhima-Mochi/minishop-catalog/internal/domain/message"
	"github.com/Zhima-Mochi/minishop-catalog/internal/observability"

	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

const (
	defaultRedeliveryDelay = time.Second
	fetchErrorBackoff      = time.Second
)

// Reader is the subset of *kafka.Reader the consumer drives.
type Reader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Handler processes one delivery. A nil error acknowledges it; any error leaves it
// unacknowledged.
type Handler func(ctx context.Context, env message.Envelope) error

// Consumer runs one worker per reader for a single channel. Each worker handles one message at
// a time and commits its offset only after the handler acknowledged it.
type Consumer struct {
	channel message.Channel
	readers []Reader
	handler Handler
	log     observability.Logger

	// RedeliveryDelay spaces out re-runs of an unacknowledged message.
	RedeliveryDelay time.Duration
}

func NewConsumer(channel message.Channel, readers []Reader, handler Handler, logger observability.Logger) *Consumer {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Consumer{
		channel:         channel,
		readers:         readers,
		handler:         handler,
		log:             logger.With(observability.F("component", "kafka_consumer"), observability.F("channel", string(channel))),
		RedeliveryDelay: defaultRedeliveryDelay,
	}
}

// Run blocks until ctx is done and every worker has stopped.
func (c *Consumer) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i, r := range c.readers {
		wg.Add(1)
		go func(worker int, r Reader) {
			defer wg.Done()
			c.loop(ctx, worker, r)
		}(i, r)
	}
	c.log.Info("consumer_started", observability.F("workers", len(c.readers)))
	wg.Wait()
	c.log.Info("consumer_stopped")
}

// Close closes every reader.
func (c *Consumer) Close() error {
	var errs []error
	for _, r := range c.readers {
		errs = append(errs, r.Close())
	}
	return errors.Join(errs...)
}

func (c *Consumer) loop(ctx context.Context, worker int, r Reader) {
	logger := c.log.With(observability.F("worker", worker))
	for {
		msg, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("kafka_fetch_failed", observability.Err(err))
			if !sleep(ctx, fetchErrorBackoff) {
				return
			}
			continue
		}

		if !c.deliver(ctx, logger, msg) {
			return
		}
		if err := r.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return
			}
			// The offset stays uncommitted; the group redelivers after a rebalance.
			logger.Warn("kafka_commit_failed",
				observability.F("partition", msg.Partition),
				observability.F("offset", msg.Offset),
				observability.Err(err),
			)
		}
	}
}

// deliver runs the handler until it acknowledges the message. It reports false when ctx ended
// first, leaving the message uncommitted.
func (c *Consumer) deliver(ctx context.Context, logger observability.Logger, msg kafkago.Message) bool {
	env := toEnvelope(c.channel, msg)
	msgCtx := extractTraceContext(ctx, msg.Headers)
	for attempt := 1; ; attempt++ {
		err := c.handler(msgCtx, env)
		if err == nil {
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		logger.Warn("delivery_unacknowledged",
			observability.F("partition", msg.Partition),
			observability.F("offset", msg.Offset),
			observability.F("redelivery", attempt),
			observability.Err(err),
		)
		if !sleep(ctx, c.RedeliveryDelay) {
			return false
		}
	}
}

func toEnvelope(ch message.Channel, msg kafkago.Message) message.Envelope {
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	return message.Envelope{
		Channel:   ch,
		Topic:     msg.Topic,
		Key:       msg.Key,
		Payload:   msg.Value,
		Headers:   headers,
		Partition: msg.Partition,
		Offset:    msg.Offset,
	}
}

// extractTraceContext continues the producer's trace from the message headers.
func extractTraceContext(ctx context.Context, headers []kafkago.Header) context.Context {
	carrier := propagation.MapCarrier{}
	for _, h := range headers {
		carrier[h.Key] = string(h.Value)
	}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
