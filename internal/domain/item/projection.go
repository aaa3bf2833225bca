package item

import (
	"time"

	"github.com/shopspring/decimal"
)

// Projection is the read-optimised copy of an Item held by the search store. It has no version
// of its own; the last write wins.
type Projection struct {
	ID                           int64            `json:"id"`
	OwnerID                      string           `json:"ownerId"`
	Name                         string           `json:"name"`
	Description                  string           `json:"description"`
	Category                     string           `json:"category"`
	ImageURL                     string           `json:"imageUrl"`
	Stock                        int              `json:"stock"`
	Price                        decimal.Decimal  `json:"price"`
	OriginalPriceBeforeFlashSale *decimal.Decimal `json:"originalPriceBeforeFlashSale"`
	FlashSaleActive              bool             `json:"isFlashSaleActive"`
	FlashSaleEndTime             *time.Time       `json:"flashSaleEndTime"`
	Deleted                      bool             `json:"isDeleted"`
}

func NewProjection(i *Item) Projection {
	p := Projection{
		ID:               i.ID,
		OwnerID:          i.OwnerID,
		Name:             i.Name,
		Description:      i.Description,
		Category:         i.Category,
		ImageURL:         i.ImageURL,
		Stock:            i.Stock,
		Price:            i.Price,
		FlashSaleActive:  i.FlashSaleActive,
		FlashSaleEndTime: i.FlashSaleEndTime,
		Deleted:          i.Deleted,
	}
	if i.OriginalPriceBeforeFlashSale.Valid {
		original := i.OriginalPriceBeforeFlashSale.Decimal
		p.OriginalPriceBeforeFlashSale = &original
	}
	return p
}
