package message

import (
	"encoding/json"
	"testing"
)

func TestReservationResponseWritesLegacyAliases(t *testing.T) {
	body, err := json.Marshal(ReservationResponse{
		OrderID:        7,
		ItemID:         42,
		Status:         ReservationFailed,
		ResultingStock: 3,
		Source:         "catalog-service",
	})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	want := map[string]any{
		"orderId":        float64(7),
		"itemId":         float64(42),
		"productId":      float64(42),
		"status":         "FAILED",
		"resultingStock": float64(3),
		"currentStock":   float64(3),
		"source":         "catalog-service",
	}
	if len(got) != len(want) {
		t.Fatalf("body = %s", body)
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("%s = %v, want %v (body %s)", k, got[k], v, body)
		}
	}
}

func TestStockUpdateFanoutDecodesBack(t *testing.T) {
	body, err := json.Marshal(StockUpdate{ItemID: 5, Stock: 12, Source: "reservation"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	msg, err := Decode(ChannelStockUpdate, body)
	if err != nil {
		t.Fatalf("Decode(%s): %v", body, err)
	}
	if got := msg.(StockUpdate); got != (StockUpdate{ItemID: 5, Stock: 12, Source: "reservation"}) {
		t.Fatalf("decoded %+v", got)
	}
}
