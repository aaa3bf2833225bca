package item

import (
	"time"

	"github.com/shopspring/decimal"
)

type PriceState string

const (
	StateNormal          PriceState = "NORMAL"
	StateFlashSaleActive PriceState = "FLASH_SALE_ACTIVE"
)

// Transition describes what a flash-sale event did to an item.
type Transition struct {
	From    PriceState
	To      PriceState
	Applied bool
	// MissingSnapshot is set when a sale ended without a stored pre-sale price; the current
	// price is kept and the anomaly must be surfaced to operators.
	MissingSnapshot bool
}

// priceState implements the state pattern for the flash-sale lifecycle.
type priceState interface {
	Status() PriceState
	OnStart(i *Item, salePrice decimal.Decimal, endTime *time.Time) priceState
	OnEnd(i *Item) (next priceState, missingSnapshot bool)
}

type normalState struct{}

func (normalState) Status() PriceState { return StateNormal }

func (normalState) OnStart(i *Item, salePrice decimal.Decimal, endTime *time.Time) priceState {
	i.OriginalPriceBeforeFlashSale = decimal.NewNullDecimal(i.Price)
	i.Price = salePrice
	i.FlashSaleActive = true
	i.FlashSaleEndTime = nil
	if endTime != nil {
		end := endTime.UTC()
		i.FlashSaleEndTime = &end
	}
	return flashSaleActiveState{}
}

func (normalState) OnEnd(*Item) (priceState, bool) {
	return nil, false
}

type flashSaleActiveState struct{}

func (flashSaleActiveState) Status() PriceState { return StateFlashSaleActive }

// OnStart is a no-op so a redelivered START cannot overwrite the snapshot with the sale price.
func (flashSaleActiveState) OnStart(*Item, decimal.Decimal, *time.Time) priceState {
	return nil
}

func (flashSaleActiveState) OnEnd(i *Item) (priceState, bool) {
	missing := !i.OriginalPriceBeforeFlashSale.Valid
	if !missing {
		i.Price = i.OriginalPriceBeforeFlashSale.Decimal
	}
	i.OriginalPriceBeforeFlashSale = decimal.NullDecimal{}
	i.FlashSaleActive = false
	i.FlashSaleEndTime = nil
	return normalState{}, missing
}

func (i *Item) state() priceState {
	if i.FlashSaleActive {
		return flashSaleActiveState{}
	}
	return normalState{}
}

// PriceState reports the current flash-sale state.
func (i *Item) PriceState() PriceState { return i.state().Status() }

// StartFlashSale moves a NORMAL item to FLASH_SALE_ACTIVE. Starting an active sale is a no-op.
func (i *Item) StartFlashSale(salePrice decimal.Decimal, endTime *time.Time) (Transition, error) {
	if salePrice.IsNegative() {
		return Transition{}, ErrNegativePrice
	}
	from := i.state()
	next := from.OnStart(i, salePrice, endTime)
	if next == nil {
		return Transition{From: from.Status(), To: from.Status()}, nil
	}
	i.touch()
	return Transition{From: from.Status(), To: next.Status(), Applied: true}, nil
}

// EndFlashSale restores the pre-sale price. Ending a sale that is not active is a no-op.
func (i *Item) EndFlashSale() Transition {
	from := i.state()
	next, missing := from.OnEnd(i)
	if next == nil {
		return Transition{From: from.Status(), To: from.Status()}
	}
	i.touch()
	return Transition{From: from.Status(), To: next.Status(), Applied: true, MissingSnapshot: missing}
}
