package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/minishop-catalog/internal/domain/message"
	domoutbox "github.com/Zhima-Mochi/minishop-catalog/internal/domain/outbox"

	otelkafka "github.com/Trendyol/otel-kafka-konsumer"
	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// MessageWriter is satisfied by the traced otel-kafka-konsumer writer.
type MessageWriter interface {
	WriteMessage(ctx context.Context, msg kafkago.Message) error
	Close() error
}

// NewWriter builds a traced writer that injects the W3C trace context into message headers.
// Topics are set per message.
func NewWriter(brokers []string, clientID string, tp trace.TracerProvider) (*otelkafka.Writer, error) {
	base := &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	w, err := otelkafka.NewWriter(base,
		otelkafka.WithTracerProvider(tp),
		otelkafka.WithPropagator(propagation.TraceContext{}),
		otelkafka.WithAttributes([]attribute.KeyValue{
			attribute.String("messaging.kafka.client_id", clientID),
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka: new writer: %w", err)
	}
	return w, nil
}

// Producer publishes outbound events and dead letters to Kafka topics.
type Producer struct {
	w         MessageWriter
	topics    map[message.Channel]string
	dlqSuffix string
}

func NewProducer(w MessageWriter, topics map[message.Channel]string, dlqSuffix string) *Producer {
	if topics == nil {
		topics = DefaultTopics()
	}
	if dlqSuffix == "" {
		dlqSuffix = DefaultDeadLetterSuffix
	}
	return &Producer{w: w, topics: topics, dlqSuffix: dlqSuffix}
}

var _ domoutbox.Publisher = (*Producer)(nil)

func (p *Producer) Publish(ctx context.Context, e domoutbox.Event) error {
	msg, err := p.encode(e)
	if err != nil {
		return err
	}
	if err := p.w.WriteMessage(ctx, msg); err != nil {
		return fmt.Errorf("kafka: write %s: %w", msg.Topic, err)
	}
	return nil
}

func (p *Producer) Close() error { return p.w.Close() }

// Topic resolves the topic for a logical channel.
func (p *Producer) Topic(ch message.Channel) string {
	if t, ok := p.topics[ch]; ok && t != "" {
		return t
	}
	return string(ch)
}

func (p *Producer) encode(e domoutbox.Event) (kafkago.Message, error) {
	switch ev := e.(type) {
	case message.DeadLetter:
		source := ev.Original.Topic
		if source == "" {
			source = p.Topic(ev.Original.Channel)
		}
		return kafkago.Message{
			Topic:   source + p.dlqSuffix,
			Key:     ev.Original.Key,
			Value:   ev.Original.Payload,
			Headers: toHeaders(ev.Headers()),
		}, nil
	case message.Envelope:
		return kafkago.Message{
			Topic:   p.Topic(ev.Channel),
			Key:     ev.Key,
			Value:   ev.Payload,
			Headers: toHeaders(ev.Headers),
		}, nil
	case message.Outbound:
		body, err := json.Marshal(ev)
		if err != nil {
			return kafkago.Message{}, fmt.Errorf("kafka: encode %s: %w", ev.EventName(), err)
		}
		return kafkago.Message{
			Topic: p.Topic(message.Channel(ev.EventName())),
			Key:   []byte(ev.MessageKey()),
			Value: body,
		}, nil
	default:
		return kafkago.Message{}, fmt.Errorf("kafka: unsupported event %T", e)
	}
}

func toHeaders(h map[string]string) []kafkago.Header {
	if len(h) == 0 {
		return nil
	}
	out := make([]kafkago.Header, 0, len(h))
	for k, v := range h {
		out = append(out, kafkago.Header{Key: k, Value: []byte(v)})
	}
	return out
}
