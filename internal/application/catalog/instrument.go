package catalog

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/Zhima-Mochi/minishop-catalog/internal/application"
	domoutbox "github.com/Zhima-Mochi/minishop-catalog/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-catalog/internal/observability"
	"github.com/Zhima-Mochi/minishop-catalog/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	catalogService = "catalog-service"
	spanPrefix     = "UC."
	publishPeer    = "broker"
	publishTimeout = 5 * time.Second
)

// instruments bundles the logger, tracer and RED metrics every use case records.
type instruments struct {
	log          observability.Logger
	tracer       observability.Tracer
	reqCounter   observability.Counter
	durHistogram observability.Histogram
	extCounter   observability.Counter
	extHistogram observability.Histogram
}

func newInstruments(tel observability.Observability) instruments {
	if tel == nil {
		tel = observability.Nop()
	}
	m := tel.Metrics()
	return instruments{
		log:          tel.Logger().With(observability.F("service", catalogService)),
		tracer:       tel.Tracer(),
		reqCounter:   m.Counter(observability.MUsecaseRequests),
		durHistogram: m.Histogram(observability.MUsecaseDuration),
		extCounter:   m.Counter(observability.MExternalRequests),
		extHistogram: m.Histogram(observability.MExternalRequestDuration),
	}
}

// run executes fn inside a span, records usecase_requests_total/usecase_duration_seconds and
// writes one use_case_done line. Panics are recovered into a retryable outcome.
func (in instruments) run(
	ctx context.Context,
	useCase, spanName string,
	attrs []attribute.KeyValue,
	fields []observability.Field,
	fn func(ctx context.Context, logger observability.Logger) application.Outcome,
) (out application.Outcome) {
	ctx, span := in.tracer.Start(ctx, spanPrefix+spanName,
		append([]attribute.KeyValue{attribute.String("use_case", useCase)}, attrs...)...)
	ctx, logger := logctx.Scoped(ctx, in.log,
		append([]observability.Field{observability.F("use_case", useCase)}, fields...)...)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("use_case_panic",
				observability.F("panic", r),
				observability.F("stack", string(debug.Stack())),
			)
			out = application.RetryLater(application.ReasonPanic, fmt.Errorf("catalog: panic: %v", r))
		}

		latency := time.Since(start).Seconds()
		outcome := string(out.Disposition)
		in.reqCounter.Add(1,
			observability.L("use_case", useCase),
			observability.L("outcome", outcome),
		)
		in.durHistogram.Observe(latency, observability.L("use_case", useCase))

		if span != nil {
			span.SetAttributes(attribute.String("outcome", outcome))
			if out.Reason != "" {
				span.SetAttributes(attribute.String("reason", out.Reason))
			}
			if out.Err != nil && out.Disposition != application.Rejected {
				span.RecordError(out.Err)
				span.SetStatus(codes.Error, out.Reason)
			} else {
				span.SetStatus(codes.Ok, outcome)
			}
			span.End()
		}

		done := []observability.Field{
			observability.F("outcome", outcome),
			observability.F("latency_seconds", latency),
		}
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			done = append(done,
				observability.F("trace_id", sc.TraceID().String()),
				observability.F("span_id", sc.SpanID().String()),
			)
		}
		if out.Reason != "" {
			done = append(done, observability.F("reason", out.Reason))
		}
		if out.Err != nil {
			done = append(done, observability.Err(out.Err))
		}
		logger.Info("use_case_done", done...)
	}()

	return fn(ctx, logger)
}

// publish emits one event with a bounded timeout and records external_requests_total.
func (in instruments) publish(ctx context.Context, publisher domoutbox.Publisher, event domoutbox.Event) error {
	if publisher == nil || event == nil {
		return nil
	}
	endpoint := event.EventName()
	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	start := time.Now()
	err := publisher.Publish(pubCtx, event)
	outcome := "success"
	if err != nil {
		outcome = "error"
		if pubCtx.Err() != nil {
			outcome = "canceled"
		}
	}
	in.extCounter.Add(1,
		observability.L("peer", publishPeer),
		observability.L("endpoint", endpoint),
		observability.L("outcome", outcome),
	)
	in.extHistogram.Observe(time.Since(start).Seconds(),
		observability.L("peer", publishPeer),
		observability.L("endpoint", endpoint),
	)
	if err != nil {
		return fmt.Errorf("catalog: publish %s: %w", endpoint, err)
	}
	return nil
}

func reject(logger observability.Logger, err error) application.Outcome {
	logger.Warn("message_rejected", observability.Err(err))
	return application.Classify(err)
}
