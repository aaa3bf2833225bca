package item

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestReserve(t *testing.T) {
	tests := []struct {
		name      string
		stock     int
		quantity  int
		wantStock int
		wantErr   error
	}{
		{name: "enough stock", stock: 10, quantity: 4, wantStock: 6},
		{name: "exact stock", stock: 4, quantity: 4, wantStock: 0},
		{name: "insufficient", stock: 6, quantity: 20, wantStock: 6, wantErr: ErrInsufficientStock},
		{name: "zero quantity", stock: 6, quantity: 0, wantStock: 6, wantErr: ErrInvalidQuantity},
		{name: "negative quantity", stock: 6, quantity: -1, wantStock: 6, wantErr: ErrInvalidQuantity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			it := &Item{ID: 1, Stock: tt.stock}
			err := it.Reserve(tt.quantity)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if it.Stock != tt.wantStock {
				t.Fatalf("stock = %d, want %d", it.Stock, tt.wantStock)
			}
		})
	}
}

func TestRestockIsAdditiveAndUnconditional(t *testing.T) {
	it := &Item{ID: 1, Stock: 6}
	if err := it.Restock(3); err != nil {
		t.Fatalf("Restock: %v", err)
	}
	if it.Stock != 9 {
		t.Fatalf("stock = %d, want 9", it.Stock)
	}
	if err := it.Restock(0); err != nil {
		t.Fatalf("Restock(0): %v", err)
	}
	if err := it.Restock(-1); !errors.Is(err, ErrNegativeQuantity) {
		t.Fatalf("expected ErrNegativeQuantity, got %v", err)
	}
	if it.Stock != 9 {
		t.Fatalf("negative restock mutated stock: %d", it.Stock)
	}
}

func TestSetStock(t *testing.T) {
	it := &Item{ID: 1, Stock: 5}
	changed, err := it.SetStock(5)
	if err != nil || changed {
		t.Fatalf("same value: changed=%v err=%v", changed, err)
	}
	changed, err = it.SetStock(12)
	if err != nil || !changed || it.Stock != 12 {
		t.Fatalf("new value: changed=%v err=%v stock=%d", changed, err, it.Stock)
	}
	if _, err := it.SetStock(-1); !errors.Is(err, ErrNegativeStock) {
		t.Fatalf("expected ErrNegativeStock, got %v", err)
	}
}

func TestFlashSaleStartThenEndRestoresPrice(t *testing.T) {
	it := &Item{ID: 1, Price: decimal.NewFromInt(100)}
	end := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	tr, err := it.StartFlashSale(decimal.NewFromInt(50), &end)
	if err != nil {
		t.Fatalf("StartFlashSale: %v", err)
	}
	if !tr.Applied || tr.From != StateNormal || tr.To != StateFlashSaleActive {
		t.Fatalf("unexpected transition %+v", tr)
	}
	if !it.Price.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("price = %s, want 50", it.Price)
	}
	if !it.OriginalPriceBeforeFlashSale.Valid || !it.OriginalPriceBeforeFlashSale.Decimal.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("snapshot = %+v, want 100", it.OriginalPriceBeforeFlashSale)
	}
	if !it.FlashSaleActive || it.FlashSaleEndTime == nil || !it.FlashSaleEndTime.Equal(end) {
		t.Fatalf("flags not set: %+v", it)
	}

	tr = it.EndFlashSale()
	if !tr.Applied || tr.MissingSnapshot || tr.To != StateNormal {
		t.Fatalf("unexpected transition %+v", tr)
	}
	if !it.Price.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("price = %s, want 100", it.Price)
	}
	if it.OriginalPriceBeforeFlashSale.Valid || it.FlashSaleActive || it.FlashSaleEndTime != nil {
		t.Fatalf("flash-sale fields not cleared: %+v", it)
	}
}

func TestFlashSaleStartIsIdempotent(t *testing.T) {
	it := &Item{ID: 1, Price: decimal.NewFromInt(100)}
	if _, err := it.StartFlashSale(decimal.NewFromInt(50), nil); err != nil {
		t.Fatalf("first start: %v", err)
	}
	once := it.Clone()

	tr, err := it.StartFlashSale(decimal.NewFromInt(50), nil)
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	if tr.Applied {
		t.Fatalf("second START must be a no-op")
	}
	if !it.Price.Equal(once.Price) || !it.OriginalPriceBeforeFlashSale.Decimal.Equal(once.OriginalPriceBeforeFlashSale.Decimal) {
		t.Fatalf("second START changed state: %+v vs %+v", it, once)
	}
}

func TestFlashSaleEndWhenInactiveIsNoop(t *testing.T) {
	it := &Item{ID: 1, Price: decimal.NewFromInt(80)}
	tr := it.EndFlashSale()
	if tr.Applied {
		t.Fatalf("END on a normal item must be a no-op")
	}
	if !it.Price.Equal(decimal.NewFromInt(80)) {
		t.Fatalf("price changed: %s", it.Price)
	}
}

func TestFlashSaleEndWithoutSnapshotKeepsPrice(t *testing.T) {
	it := &Item{ID: 1, Price: decimal.NewFromInt(50), FlashSaleActive: true}
	tr := it.EndFlashSale()
	if !tr.Applied || !tr.MissingSnapshot {
		t.Fatalf("expected applied transition with missing snapshot, got %+v", tr)
	}
	if !it.Price.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("price = %s, want 50", it.Price)
	}
	if it.FlashSaleActive {
		t.Fatalf("flag not cleared")
	}
}

func TestFlashSaleRejectsNegativePrice(t *testing.T) {
	it := &Item{ID: 1, Price: decimal.NewFromInt(50)}
	if _, err := it.StartFlashSale(decimal.NewFromInt(-1), nil); !errors.Is(err, ErrNegativePrice) {
		t.Fatalf("expected ErrNegativePrice, got %v", err)
	}
	if it.FlashSaleActive {
		t.Fatalf("rejected start mutated the item")
	}
}

func TestNewProjectionCopiesSnapshot(t *testing.T) {
	it := &Item{ID: 3, Name: "lamp", Stock: 2, Price: decimal.NewFromInt(50),
		OriginalPriceBeforeFlashSale: decimal.NewNullDecimal(decimal.NewFromInt(100)), FlashSaleActive: true}
	p := NewProjection(it)
	if p.ID != 3 || p.Stock != 2 || !p.FlashSaleActive {
		t.Fatalf("unexpected projection %+v", p)
	}
	if p.OriginalPriceBeforeFlashSale == nil || !p.OriginalPriceBeforeFlashSale.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("snapshot not projected: %+v", p.OriginalPriceBeforeFlashSale)
	}
}
