package message

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestDecodeReservationRequest(t *testing.T) {
	msg, err := Decode(ChannelReservationRequest, []byte(`{"orderId":7,"itemId":42,"quantity":4}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	got, ok := msg.(ReservationRequest)
	if !ok {
		t.Fatalf("got %T, want ReservationRequest", msg)
	}
	want := ReservationRequest{OrderID: 7, ItemID: 42, Quantity: 4}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestDecodeAcceptsProductIDAlias(t *testing.T) {
	msg, err := Decode(ChannelRollbackRequest, []byte(`{"productId":42,"quantity":3}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got := msg.(RollbackRequest); got.ItemID != 42 || got.Quantity != 3 {
		t.Fatalf("unexpected %+v", got)
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	tests := []struct {
		name    string
		channel Channel
		payload string
	}{
		{"empty payload", ChannelReservationRequest, ``},
		{"not json", ChannelReservationRequest, `{"orderId":`},
		{"missing order id", ChannelReservationRequest, `{"itemId":1,"quantity":1}`},
		{"missing item id", ChannelReservationRequest, `{"orderId":1,"quantity":1}`},
		{"fractional quantity", ChannelReservationRequest, `{"orderId":1,"itemId":1,"quantity":1.5}`},
		{"zero quantity", ChannelReservationRequest, `{"orderId":1,"itemId":1,"quantity":0}`},
		{"quantity wrong type", ChannelReservationRequest, `{"orderId":1,"itemId":1,"quantity":true}`},
		{"negative rollback", ChannelRollbackRequest, `{"itemId":1,"quantity":-2}`},
		{"negative stock", ChannelStockUpdate, `{"itemId":1,"stock":-1}`},
		{"missing stock", ChannelStockUpdate, `{"itemId":1}`},
		{"unknown flash-sale type", ChannelFlashSale, `{"itemId":1,"eventType":"PAUSE"}`},
		{"start without price", ChannelFlashSale, `{"itemId":1,"eventType":"START"}`},
		{"start negative price", ChannelFlashSale, `{"itemId":1,"eventType":"START","salePrice":-5}`},
		{"bad end time", ChannelFlashSale, `{"itemId":1,"eventType":"END","endTime":"tomorrow"}`},
		{"unknown channel", Channel("nope"), `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.channel, []byte(tt.payload))
			if !errors.Is(err, ErrInvalidMessage) {
				t.Fatalf("expected ErrInvalidMessage, got %v", err)
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected *ValidationError, got %T", err)
			}
		})
	}
}

func TestDecodeRollbackAllowsZero(t *testing.T) {
	if _, err := Decode(ChannelRollbackRequest, []byte(`{"itemId":1,"quantity":0}`)); err != nil {
		t.Fatalf("zero rollback must be accepted: %v", err)
	}
}

func TestDecodeStockUpdateTrimsSource(t *testing.T) {
	msg, err := Decode(ChannelStockUpdate, []byte(`{"productId":5,"stock":12,"source":" vendor "}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got := msg.(StockUpdate); got != (StockUpdate{ItemID: 5, Stock: 12, Source: "vendor"}) {
		t.Fatalf("unexpected %+v", got)
	}
}

func TestDecodeFlashSaleStart(t *testing.T) {
	payload := `{"flashSaleId":9,"productId":3,"eventType":"start","salePrice":49.99,"endTime":"2026-05-01T10:00:00+02:00"}`
	msg, err := Decode(ChannelFlashSale, []byte(payload))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	e := msg.(FlashSaleEvent)
	if e.FlashSaleID != 9 || e.ItemID != 3 || e.Type != FlashSaleStart {
		t.Fatalf("unexpected %+v", e)
	}
	if !e.SalePrice.Valid || !e.SalePrice.Decimal.Equal(decimal.RequireFromString("49.99")) {
		t.Fatalf("sale price = %+v", e.SalePrice)
	}
	want := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	if e.EndTime == nil || !e.EndTime.Equal(want) {
		t.Fatalf("end time = %v, want %v", e.EndTime, want)
	}
}

func TestDecodeFlashSaleEpochEndTime(t *testing.T) {
	msg, err := Decode(ChannelFlashSale, []byte(`{"itemId":3,"eventType":"END","endTime":1700000000.5}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	e := msg.(FlashSaleEvent)
	want := time.Unix(1700000000, 500000000).UTC()
	if e.EndTime == nil || !e.EndTime.Equal(want) {
		t.Fatalf("end time = %v, want %v", e.EndTime, want)
	}
	if e.SalePrice.Valid {
		t.Fatalf("END without price should leave SalePrice unset")
	}
}

func TestDeadLetterHeaders(t *testing.T) {
	failedAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	dl := DeadLetter{
		ID: "dl-1",
		Original: Envelope{
			Channel:   ChannelReservationRequest,
			Topic:     "stock-reservation-requests",
			Key:       []byte("42"),
			Payload:   []byte(`{"orderId":1}`),
			Headers:   map[string]string{"traceparent": "00-abc"},
			Partition: 2,
			Offset:    17,
		},
		Reason:   "retries_exhausted",
		Err:      "item: version conflict",
		Attempts: 4,
		FailedAt: failedAt,
	}
	if dl.EventName() != "reservation-request-dlq" {
		t.Fatalf("event name = %q", dl.EventName())
	}
	h := dl.Headers()
	checks := map[string]string{
		"traceparent":          "00-abc",
		HeaderDeadLetterID:     "dl-1",
		HeaderDeadLetterReason: "retries_exhausted",
		HeaderDeadLetterError:  "item: version conflict",
		HeaderAttempts:         "4",
		HeaderSourceChannel:    "reservation-request",
		HeaderSourceTopic:      "stock-reservation-requests",
		HeaderSourcePartition:  "2",
		HeaderSourceOffset:     "17",
		HeaderFailedAt:         "2026-01-01T00:00:00Z",
	}
	for k, want := range checks {
		if h[k] != want {
			t.Errorf("header %s = %q, want %q", k, h[k], want)
		}
	}
	if _, ok := dl.Original.Headers[HeaderDeadLetterID]; ok {
		t.Fatalf("Headers must not mutate the original envelope")
	}
}
