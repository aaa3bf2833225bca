package message

import (
	"encoding/json"
	"strconv"
	"time"

	domoutbox "github.com/Zhima-Mochi/minishop-catalog/internal/domain/outbox"
)

// Outbound is an event the service emits to a channel.
type Outbound interface {
	domoutbox.Event
	MessageKey() string
}

type ReservationStatus string

const (
	ReservationSucceeded ReservationStatus = "SUCCESS"
	ReservationFailed    ReservationStatus = "FAILED"
)

// ReservationResponse answers a ReservationRequest. ResultingStock is the stock after the
// decrement on success and the unchanged current stock on failure.
type ReservationResponse struct {
	OrderID        int64             `json:"orderId"`
	ItemID         int64             `json:"itemId"`
	Status         ReservationStatus `json:"status"`
	ResultingStock int               `json:"resultingStock"`
	Source         string            `json:"source,omitempty"`
}

func (ReservationResponse) EventName() string { return string(ChannelReservationResponse) }

func (r ReservationResponse) MessageKey() string { return strconv.FormatInt(r.OrderID, 10) }

// MarshalJSON also writes productId and currentStock, the field names order services built
// against the product-service contract read.
func (r ReservationResponse) MarshalJSON() ([]byte, error) {
	type plain ReservationResponse
	return json.Marshal(struct {
		plain
		ProductID    int64 `json:"productId"`
		CurrentStock int   `json:"currentStock"`
	}{plain(r), r.ItemID, r.ResultingStock})
}

// Envelope is a raw delivery as seen by a transport, before decoding.
type Envelope struct {
	Channel   Channel
	Topic     string
	Key       []byte
	Payload   []byte
	Headers   map[string]string
	Partition int
	Offset    int64
}

func (e Envelope) EventName() string { return string(e.Channel) }

func (e Envelope) MessageKey() string { return string(e.Key) }

// Dead-letter header names.
const (
	HeaderDeadLetterID     = "x-dlq-id"
	HeaderDeadLetterReason = "x-dlq-reason"
	HeaderDeadLetterError  = "x-dlq-error"
	HeaderAttempts         = "x-dlq-attempts"
	HeaderSourceChannel    = "x-dlq-source-channel"
	HeaderSourceTopic      = "x-dlq-source-topic"
	HeaderSourcePartition  = "x-dlq-source-partition"
	HeaderSourceOffset     = "x-dlq-source-offset"
	HeaderFailedAt         = "x-dlq-failed-at"
)

// DeadLetter wraps a delivery that could not be processed. The original payload travels
// unchanged; failure metadata goes into headers.
type DeadLetter struct {
	ID       string
	Original Envelope
	Reason   string
	Err      string
	Attempts int
	FailedAt time.Time
}

func (d DeadLetter) EventName() string { return string(d.Original.Channel.DeadLetter()) }

func (d DeadLetter) MessageKey() string { return string(d.Original.Key) }

// Headers returns the original headers merged with the failure metadata.
func (d DeadLetter) Headers() map[string]string {
	h := make(map[string]string, len(d.Original.Headers)+9)
	for k, v := range d.Original.Headers {
		h[k] = v
	}
	h[HeaderDeadLetterID] = d.ID
	h[HeaderDeadLetterReason] = d.Reason
	h[HeaderAttempts] = strconv.Itoa(d.Attempts)
	h[HeaderSourceChannel] = string(d.Original.Channel)
	h[HeaderFailedAt] = d.FailedAt.UTC().Format(time.RFC3339Nano)
	if d.Err != "" {
		h[HeaderDeadLetterError] = d.Err
	}
	if d.Original.Topic != "" {
		h[HeaderSourceTopic] = d.Original.Topic
		h[HeaderSourcePartition] = strconv.Itoa(d.Original.Partition)
		h[HeaderSourceOffset] = strconv.FormatInt(d.Original.Offset, 10)
	}
	return h
}
