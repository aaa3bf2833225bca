package message

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Channel is a logical message channel. Transports map channels to concrete topics.
type Channel string

const (
	ChannelReservationRequest  Channel = "reservation-request"
	ChannelReservationResponse Channel = "reservation-response"
	ChannelRollbackRequest     Channel = "rollback-request"
	ChannelStockUpdate         Channel = "absolute-stock-update"
	ChannelFlashSale           Channel = "flash-sale-event"
)

// Inbound lists the channels the service consumes.
var Inbound = []Channel{
	ChannelReservationRequest,
	ChannelRollbackRequest,
	ChannelStockUpdate,
	ChannelFlashSale,
}

// DeadLetter is the logical dead-letter channel paired with c.
func (c Channel) DeadLetter() Channel { return c + "-dlq" }

// Message is the closed set of inbound message kinds.
type Message interface {
	Channel() Channel
	// ItemKey identifies the item the message targets; used for logging and partition keys.
	ItemKey() int64
	Validate() error
	isMessage()
}

type ReservationRequest struct {
	OrderID  int64
	ItemID   int64
	Quantity int
}

func (ReservationRequest) Channel() Channel { return ChannelReservationRequest }
func (r ReservationRequest) ItemKey() int64 { return r.ItemID }
func (ReservationRequest) isMessage()       {}

func (r ReservationRequest) Validate() error {
	if r.Quantity <= 0 {
		return invalid("quantity", "must be greater than zero")
	}
	return nil
}

type RollbackRequest struct {
	ItemID   int64
	Quantity int
}

func (RollbackRequest) Channel() Channel { return ChannelRollbackRequest }
func (r RollbackRequest) ItemKey() int64 { return r.ItemID }
func (RollbackRequest) isMessage()       {}

func (r RollbackRequest) Validate() error {
	if r.Quantity < 0 {
		return invalid("quantity", "must not be negative")
	}
	return nil
}

// StockUpdate carries an absolute stock value. It is consumed from the vendor path and emitted as
// fanout after every saga-driven stock change.
type StockUpdate struct {
	ItemID int64  `json:"itemId"`
	Stock  int    `json:"stock"`
	Source string `json:"source,omitempty"`
}

func (StockUpdate) Channel() Channel     { return ChannelStockUpdate }
func (u StockUpdate) ItemKey() int64     { return u.ItemID }
func (StockUpdate) isMessage()           {}
func (StockUpdate) EventName() string    { return string(ChannelStockUpdate) }
func (u StockUpdate) MessageKey() string { return strconv.FormatInt(u.ItemID, 10) }

// MarshalJSON also writes productId for consumers of the product-service contract. Decode
// prefers itemId, so the fanout round-trips unchanged.
func (u StockUpdate) MarshalJSON() ([]byte, error) {
	type plain StockUpdate
	return json.Marshal(struct {
		plain
		ProductID int64 `json:"productId"`
	}{plain(u), u.ItemID})
}

func (u StockUpdate) Validate() error {
	if u.Stock < 0 {
		return invalid("stock", "must not be negative")
	}
	return nil
}

type FlashSaleEventType string

const (
	FlashSaleStart     FlashSaleEventType = "START"
	FlashSaleEnd       FlashSaleEventType = "END"
	FlashSaleCancelled FlashSaleEventType = "CANCELLED"
)

type FlashSaleEvent struct {
	FlashSaleID int64
	ItemID      int64
	Type        FlashSaleEventType
	SalePrice   decimal.NullDecimal
	EndTime     *time.Time
}

func (FlashSaleEvent) Channel() Channel { return ChannelFlashSale }
func (e FlashSaleEvent) ItemKey() int64 { return e.ItemID }
func (FlashSaleEvent) isMessage()       {}

func (e FlashSaleEvent) Validate() error {
	switch e.Type {
	case FlashSaleStart:
		if !e.SalePrice.Valid {
			return invalid("salePrice", "is required for START")
		}
		if e.SalePrice.Decimal.IsNegative() {
			return invalid("salePrice", "must not be negative")
		}
	case FlashSaleEnd, FlashSaleCancelled:
	default:
		return invalid("eventType", "unknown value "+strconv.Quote(string(e.Type)))
	}
	return nil
}
