package message

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type reservationWire struct {
	OrderID   *json.Number `json:"orderId"`
	ItemID    *json.Number `json:"itemId"`
	ProductID *json.Number `json:"productId"`
	Quantity  *json.Number `json:"quantity"`
}

type rollbackWire struct {
	ItemID    *json.Number `json:"itemId"`
	ProductID *json.Number `json:"productId"`
	Quantity  *json.Number `json:"quantity"`
}

type stockUpdateWire struct {
	ItemID    *json.Number `json:"itemId"`
	ProductID *json.Number `json:"productId"`
	Stock     *json.Number `json:"stock"`
	Source    *string      `json:"source"`
}

type flashSaleWire struct {
	FlashSaleID *json.Number        `json:"flashSaleId"`
	ItemID      *json.Number        `json:"itemId"`
	ProductID   *json.Number        `json:"productId"`
	EventType   *string             `json:"eventType"`
	SalePrice   decimal.NullDecimal `json:"salePrice"`
	EndTime     json.RawMessage     `json:"endTime"`
}

// Decode parses and shape-validates a payload received on ch. Every failure is a
// *ValidationError.
func Decode(ch Channel, payload []byte) (Message, error) {
	var (
		msg Message
		err error
	)
	switch ch {
	case ChannelReservationRequest:
		msg, err = decodeReservation(payload)
	case ChannelRollbackRequest:
		msg, err = decodeRollback(payload)
	case ChannelStockUpdate:
		msg, err = decodeStockUpdate(payload)
	case ChannelFlashSale:
		msg, err = decodeFlashSale(payload)
	default:
		return nil, invalid("", fmt.Sprintf("unsupported channel %q", ch))
	}
	if err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return msg, nil
}

func unmarshal(payload []byte, v any) error {
	if len(bytes.TrimSpace(payload)) == 0 {
		return invalid("", "empty payload")
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return invalid("", "malformed json: "+err.Error())
	}
	return nil
}

func decodeReservation(payload []byte) (Message, error) {
	var w reservationWire
	if err := unmarshal(payload, &w); err != nil {
		return nil, err
	}
	orderID, err := requiredInt64("orderId", w.OrderID)
	if err != nil {
		return nil, err
	}
	itemID, err := itemID(w.ItemID, w.ProductID)
	if err != nil {
		return nil, err
	}
	qty, err := requiredInt("quantity", w.Quantity)
	if err != nil {
		return nil, err
	}
	return ReservationRequest{OrderID: orderID, ItemID: itemID, Quantity: qty}, nil
}

func decodeRollback(payload []byte) (Message, error) {
	var w rollbackWire
	if err := unmarshal(payload, &w); err != nil {
		return nil, err
	}
	itemID, err := itemID(w.ItemID, w.ProductID)
	if err != nil {
		return nil, err
	}
	qty, err := requiredInt("quantity", w.Quantity)
	if err != nil {
		return nil, err
	}
	return RollbackRequest{ItemID: itemID, Quantity: qty}, nil
}

func decodeStockUpdate(payload []byte) (Message, error) {
	var w stockUpdateWire
	if err := unmarshal(payload, &w); err != nil {
		return nil, err
	}
	itemID, err := itemID(w.ItemID, w.ProductID)
	if err != nil {
		return nil, err
	}
	stock, err := requiredInt("stock", w.Stock)
	if err != nil {
		return nil, err
	}
	u := StockUpdate{ItemID: itemID, Stock: stock}
	if w.Source != nil {
		u.Source = strings.TrimSpace(*w.Source)
	}
	return u, nil
}

func decodeFlashSale(payload []byte) (Message, error) {
	var w flashSaleWire
	if err := unmarshal(payload, &w); err != nil {
		return nil, err
	}
	itemID, err := itemID(w.ItemID, w.ProductID)
	if err != nil {
		return nil, err
	}
	if w.EventType == nil {
		return nil, invalid("eventType", "is required")
	}
	e := FlashSaleEvent{
		ItemID:    itemID,
		Type:      FlashSaleEventType(strings.ToUpper(strings.TrimSpace(*w.EventType))),
		SalePrice: w.SalePrice,
	}
	if w.FlashSaleID != nil {
		id, err := requiredInt64("flashSaleId", w.FlashSaleID)
		if err != nil {
			return nil, err
		}
		e.FlashSaleID = id
	}
	end, err := parseTime("endTime", w.EndTime)
	if err != nil {
		return nil, err
	}
	e.EndTime = end
	return e, nil
}

// itemID resolves the item id, accepting productId as an alias.
func itemID(item, product *json.Number) (int64, error) {
	if item != nil {
		return positiveInt64("itemId", item)
	}
	if product != nil {
		return positiveInt64("productId", product)
	}
	return 0, invalid("itemId", "is required")
}

func positiveInt64(field string, n *json.Number) (int64, error) {
	v, err := requiredInt64(field, n)
	if err != nil {
		return 0, err
	}
	if v <= 0 {
		return 0, invalid(field, "must be positive")
	}
	return v, nil
}

func requiredInt64(field string, n *json.Number) (int64, error) {
	if n == nil {
		return 0, invalid(field, "is required")
	}
	v, err := n.Int64()
	if err != nil {
		return 0, invalid(field, "must be an integer")
	}
	return v, nil
}

func requiredInt(field string, n *json.Number) (int, error) {
	v, err := requiredInt64(field, n)
	if err != nil {
		return 0, err
	}
	if v > math.MaxInt32 || v < math.MinInt32 {
		return 0, invalid(field, "out of range")
	}
	return int(v), nil
}

// parseTime accepts an RFC 3339 string or epoch seconds, possibly fractional.
func parseTime(field string, raw json.RawMessage) (*time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, invalid(field, "malformed string")
		}
		if s == "" {
			return nil, nil
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, invalid(field, "must be RFC 3339 or epoch seconds")
		}
		t = t.UTC()
		return &t, nil
	}
	secs, err := decimal.NewFromString(string(raw))
	if err != nil {
		return nil, invalid(field, "must be RFC 3339 or epoch seconds")
	}
	whole := secs.Truncate(0)
	nanos := secs.Sub(whole).Shift(9).IntPart()
	t := time.Unix(whole.IntPart(), nanos).UTC()
	return &t, nil
}
