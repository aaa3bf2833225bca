package item

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound          = errors.New("item: not found")
	ErrVersionConflict   = errors.New("item: version conflict")
	ErrInvalidQuantity   = errors.New("item: quantity must be greater than zero")
	ErrNegativeQuantity  = errors.New("item: quantity must not be negative")
	ErrNegativeStock     = errors.New("item: stock must not be negative")
	ErrNegativePrice     = errors.New("item: price must not be negative")
	ErrInsufficientStock = errors.New("item: insufficient stock")
)

// Item is the system-of-record entry for a catalog item. Descriptive fields are owned by the
// vendor CRUD path; the saga only mutates stock, price and the flash-sale fields.
type Item struct {
	ID          int64
	OwnerID     string
	Name        string
	Description string
	Category    string
	ImageURL    string

	Stock int
	Price decimal.Decimal

	OriginalPriceBeforeFlashSale decimal.NullDecimal
	FlashSaleActive              bool
	FlashSaleEndTime             *time.Time

	Deleted   bool
	Version   int64
	UpdatedAt time.Time
}

func (i *Item) Clone() *Item {
	if i == nil {
		return nil
	}
	clone := *i
	if i.FlashSaleEndTime != nil {
		end := *i.FlashSaleEndTime
		clone.FlashSaleEndTime = &end
	}
	return &clone
}

// Reserve takes quantity units out of stock. Stock is never driven below zero.
func (i *Item) Reserve(quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if quantity > i.Stock {
		return ErrInsufficientStock
	}
	i.Stock -= quantity
	i.touch()
	return nil
}

// Restock is the compensating action for a reservation; it never checks sufficiency.
func (i *Item) Restock(quantity int) error {
	if quantity < 0 {
		return ErrNegativeQuantity
	}
	i.Stock += quantity
	i.touch()
	return nil
}

// SetStock overwrites stock with an absolute value and reports whether it changed.
func (i *Item) SetStock(stock int) (bool, error) {
	if stock < 0 {
		return false, ErrNegativeStock
	}
	if stock == i.Stock {
		return false, nil
	}
	i.Stock = stock
	i.touch()
	return true, nil
}

func (i *Item) touch() {
	i.UpdatedAt = time.Now().UTC()
}
