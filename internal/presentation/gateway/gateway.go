// Package gateway turns raw deliveries into typed messages, runs them through the catalog
// dispatcher and decides whether each delivery is acknowledged, retried or dead-lettered.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/Zhima-Mochi/minishop-catalog/internal/application"
	"github.com/Zhima-Mochi/minishop-catalog/internal/domain/message"
	domoutbox "github.com/Zhima-Mochi/minishop-catalog/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-catalog/internal/observability"
	workerpresentation "github.com/Zhima-Mochi/minishop-catalog/internal/presentation/worker"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	componentGateway = "gateway"
	spanPrefix       = "Gateway."

	DefaultMaxRetries = 3
	DefaultBackoff    = time.Second

	dispositionDeadLettered   = "dead_lettered"
	dispositionUnacknowledged = "unacknowledged"
)

// Dispatcher routes a decoded message to the use case that owns it.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg message.Message) application.Outcome
}

// Policy controls retries and dead-lettering.
type Policy struct {
	// MaxRetries is the number of re-executions after the first retryable outcome.
	MaxRetries int
	// Backoff is the fixed pause between executions.
	Backoff time.Duration
	// NonRetryable lists outcome reasons that go straight to the dead-letter channel.
	NonRetryable []string
	// DeadLetterNotFound also dead-letters messages about unknown items before acknowledging them.
	DeadLetterNotFound bool
}

func DefaultPolicy() Policy {
	return Policy{MaxRetries: DefaultMaxRetries, Backoff: DefaultBackoff}
}

type Gateway struct {
	dispatcher  Dispatcher
	deadLetters domoutbox.Publisher
	policy      Policy
	skipRetry   map[string]struct{}

	log        observability.Logger
	tracer     observability.Tracer
	msgCounter observability.Counter
	dlqCounter observability.Counter
	bound      map[message.Channel]map[string]observability.BoundCounter
	now        func() time.Time
}

// dispositions are the values of the disposition label on gateway_messages_total.
var dispositions = []string{
	string(application.Committed),
	string(application.Skipped),
	string(application.Rejected),
	string(application.NotFound),
	string(application.Retry),
	dispositionDeadLettered,
	dispositionUnacknowledged,
}

func New(dispatcher Dispatcher, deadLetters domoutbox.Publisher, policy Policy, tel observability.Observability) *Gateway {
	if tel == nil {
		tel = observability.Nop()
	}
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	skip := make(map[string]struct{}, len(policy.NonRetryable))
	for _, r := range policy.NonRetryable {
		skip[r] = struct{}{}
	}
	m := tel.Metrics()
	msgCounter := m.Counter(observability.MGatewayMessages)
	bound := make(map[message.Channel]map[string]observability.BoundCounter, len(message.Inbound))
	for _, ch := range message.Inbound {
		byDisposition := make(map[string]observability.BoundCounter, len(dispositions))
		for _, d := range dispositions {
			byDisposition[d] = msgCounter.Bind(
				observability.L("channel", string(ch)),
				observability.L("disposition", d),
			)
		}
		bound[ch] = byDisposition
	}
	return &Gateway{
		dispatcher:  dispatcher,
		deadLetters: deadLetters,
		policy:      policy,
		skipRetry:   skip,
		log:         tel.Logger().With(observability.F("component", componentGateway)),
		tracer:      tel.Tracer(),
		msgCounter:  msgCounter,
		dlqCounter:  m.Counter(observability.MDeadLetters),
		bound:       bound,
		now:         time.Now,
	}
}

// Handle processes one delivery. A nil return means the delivery may be acknowledged: the
// business effect committed, the message was dropped as malformed, or it was dead-lettered.
// Any error leaves the delivery for redelivery.
func (g *Gateway) Handle(ctx context.Context, env message.Envelope) (err error) {
	ctx, span := g.tracer.Start(ctx, spanPrefix+string(env.Channel),
		attribute.String("messaging.destination", env.Topic),
		attribute.Int("messaging.partition", env.Partition),
		attribute.Int64("messaging.offset", env.Offset),
	)
	defer span.End()

	ctx, logger := workerpresentation.WithDeliveryContext(ctx, g.log, env, span.SpanContext())

	disposition := dispositionUnacknowledged
	defer func() {
		if r := recover(); r != nil {
			logger.Error("gateway_panic",
				observability.F("panic", r),
				observability.F("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("gateway: panic: %v", r)
			disposition = dispositionUnacknowledged
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.String("disposition", disposition))
		g.countMessage(env.Channel, disposition)
	}()

	msg, decodeErr := message.Decode(env.Channel, env.Payload)
	if decodeErr != nil {
		logger.Warn("message_rejected",
			observability.F("topic", env.Topic),
			observability.F("offset", env.Offset),
			observability.Err(decodeErr),
		)
		disposition = string(application.Rejected)
		return nil
	}
	span.SetAttributes(attribute.Int64("item_key", msg.ItemKey()))

	out, attempts, err := g.execute(ctx, logger, msg)
	if err != nil {
		return err
	}

	switch {
	case out.Retryable():
		if err := g.deadLetter(ctx, logger, env, out, attempts); err != nil {
			return err
		}
		disposition = dispositionDeadLettered
	case out.Disposition == application.NotFound && g.policy.DeadLetterNotFound:
		if err := g.deadLetter(ctx, logger, env, out, attempts); err != nil {
			return err
		}
		disposition = dispositionDeadLettered
	default:
		disposition = string(out.Disposition)
	}
	return nil
}

// countMessage uses the instruments bound in New for inbound channels. Unknown channels are
// counted with ad-hoc labels.
func (g *Gateway) countMessage(ch message.Channel, disposition string) {
	if c, ok := g.bound[ch][disposition]; ok {
		c.Add(1)
		return
	}
	g.msgCounter.Add(1,
		observability.L("channel", string(ch)),
		observability.L("disposition", disposition),
	)
}

// execute dispatches msg until the outcome is terminal or retries run out. Reasons listed as
// non-retryable stop at once. It fails only when ctx ends first.
func (g *Gateway) execute(ctx context.Context, logger observability.Logger, msg message.Message) (application.Outcome, int, error) {
	var out application.Outcome
	attempt := 0
	for {
		attempt++
		out = g.dispatcher.Dispatch(ctx, msg)
		if !out.Retryable() {
			return out, attempt, nil
		}
		if ctx.Err() != nil {
			return out, attempt, fmt.Errorf("gateway: %w", ctx.Err())
		}
		if _, ok := g.skipRetry[out.Reason]; ok {
			return out, attempt, nil
		}
		if attempt > g.policy.MaxRetries {
			return out, attempt, nil
		}
		logger.Warn("message_retry",
			observability.F("attempt", attempt),
			observability.F("reason", out.Reason),
			observability.Err(out.Err),
		)
		if !sleep(ctx, g.policy.Backoff) {
			return out, attempt, fmt.Errorf("gateway: %w", ctx.Err())
		}
	}
}

func (g *Gateway) deadLetter(ctx context.Context, logger observability.Logger, env message.Envelope, out application.Outcome, attempts int) error {
	if g.deadLetters == nil {
		return errors.New("gateway: no dead-letter publisher configured")
	}
	dl := message.DeadLetter{
		ID:       uuid.NewString(),
		Original: env,
		Reason:   out.Reason,
		Attempts: attempts,
		FailedAt: g.now(),
	}
	if out.Err != nil {
		dl.Err = out.Err.Error()
	}
	if err := g.deadLetters.Publish(ctx, dl); err != nil {
		logger.Error("dead_letter_failed",
			observability.F("reason", out.Reason),
			observability.Err(err),
		)
		return fmt.Errorf("gateway: dead-letter %s: %w", env.Channel, err)
	}
	g.dlqCounter.Add(1,
		observability.L("channel", string(env.Channel)),
		observability.L("reason", out.Reason),
	)
	logger.Warn("message_dead_lettered",
		observability.F("dead_letter_id", dl.ID),
		observability.F("reason", out.Reason),
		observability.F("attempts", attempts),
		observability.F("error", dl.Err),
	)
	return nil
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
