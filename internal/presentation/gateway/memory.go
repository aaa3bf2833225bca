package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Zhima-Mochi/minishop-catalog/internal/domain/message"
	domoutbox "github.com/Zhima-Mochi/minishop-catalog/internal/domain/outbox"
)

// Subscribe wires every inbound channel of an in-process bus to the gateway. Errors returned to
// the bus are logged by it; the in-process transport does not redeliver.
func (g *Gateway) Subscribe(sub domoutbox.Subscriber, channels ...message.Channel) {
	if len(channels) == 0 {
		channels = message.Inbound
	}
	for _, ch := range channels {
		sub.Subscribe(string(ch), func(ctx context.Context, e domoutbox.Event) error {
			env, err := ToEnvelope(ch, e)
			if err != nil {
				return err
			}
			return g.Handle(ctx, env)
		})
	}
}

// ToEnvelope converts an event published on the in-process bus into the delivery shape the
// broker consumers produce.
func ToEnvelope(ch message.Channel, e domoutbox.Event) (message.Envelope, error) {
	switch ev := e.(type) {
	case message.Envelope:
		if ev.Channel == "" {
			ev.Channel = ch
		}
		return ev, nil
	case message.Outbound:
		body, err := json.Marshal(ev)
		if err != nil {
			return message.Envelope{}, fmt.Errorf("gateway: encode %s: %w", ev.EventName(), err)
		}
		return message.Envelope{
			Channel: ch,
			Key:     []byte(ev.MessageKey()),
			Payload: body,
		}, nil
	default:
		return message.Envelope{}, fmt.Errorf("gateway: unsupported event %T on %s", e, ch)
	}
}
