package workerpresentation

import (
	"context"
	"strconv"

	"github.com/Zhima-Mochi/minishop-catalog/internal/domain/message"
	"github.com/Zhima-Mochi/minishop-catalog/internal/observability"
	"github.com/Zhima-Mochi/minishop-catalog/internal/observability/logctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// HeaderEventID carries a producer-assigned id that is reused as the log event_id.
const HeaderEventID = "x-event-id"

// WithDeliveryContext injects a delivery-scoped logger for one inbound message.
// Dynamic fields only: event_id (header or generated), channel, topic/partition/offset when the
// delivery came from a broker, trace_id/span_id when valid.
func WithDeliveryContext(
	ctx context.Context,
	base observability.Logger,
	env message.Envelope,
	sc trace.SpanContext,
) (context.Context, observability.Logger) {
	evtID := env.Headers[HeaderEventID]
	if evtID == "" {
		evtID = uuid.NewString()
	}

	fields := make([]observability.Field, 0, 7)
	fields = append(fields,
		observability.F("event_id", evtID),
		observability.F("channel", string(env.Channel)),
	)
	if env.Topic != "" {
		fields = append(fields,
			observability.F("topic", env.Topic),
			observability.F("partition", strconv.Itoa(env.Partition)),
			observability.F("offset", env.Offset),
		)
	}
	if sc.TraceID().IsValid() {
		fields = append(fields, observability.F("trace_id", sc.TraceID().String()))
	}
	if sc.SpanID().IsValid() {
		fields = append(fields, observability.F("span_id", sc.SpanID().String()))
	}

	return logctx.Scoped(ctx, base, fields...)
}
