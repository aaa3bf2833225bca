package catalog

import (
	"context"
	"testing"

	"github.com/Zhima-Mochi/minishop-catalog/internal/application"
	"github.com/Zhima-Mochi/minishop-catalog/internal/domain/message"
)

func TestSetStock(t *testing.T) {
	ignored := []string{"catalog-service", SourceReservation, SourceRollback, "order-service"}

	tests := []struct {
		name        string
		update      message.StockUpdate
		disposition application.Disposition
		reason      string
		wantStock   int
		wantVersion int64
	}{
		{"vendor update", message.StockUpdate{ItemID: 1, Stock: 25, Source: "vendor"}, application.Committed, "", 25, 1},
		{"no source", message.StockUpdate{ItemID: 1, Stock: 25}, application.Committed, "", 25, 1},
		{"unchanged", message.StockUpdate{ItemID: 1, Stock: 10}, application.Skipped, application.ReasonUnchanged, 10, 0},
		{"own fanout", message.StockUpdate{ItemID: 1, Stock: 3, Source: SourceReservation}, application.Skipped, application.ReasonIgnoredSource, 10, 0},
		{"order service", message.StockUpdate{ItemID: 1, Stock: 3, Source: "order-service"}, application.Skipped, application.ReasonIgnoredSource, 10, 0},
		{"negative", message.StockUpdate{ItemID: 1, Stock: -1}, application.Rejected, application.ReasonInvalidMessage, 10, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(priced(1, 10, 100))
			uc := NewSetStock(f.ledger, f.sync, ignored, f.tel)

			out, _ := uc.Execute(context.Background(), tt.update)
			if out.Disposition != tt.disposition || out.Reason != tt.reason {
				t.Fatalf("outcome = %+v, want %s/%s", out, tt.disposition, tt.reason)
			}
			got := f.item(1)
			if got.Stock != tt.wantStock || got.Version != tt.wantVersion {
				t.Fatalf("ledger = stock %d version %d, want %d/%d", got.Stock, got.Version, tt.wantStock, tt.wantVersion)
			}
		})
	}
}

func TestSetStockResolvesSoftDeletedItems(t *testing.T) {
	it := priced(1, 10, 100)
	it.Deleted = true
	f := newFixture(it)
	uc := NewSetStock(f.ledger, f.sync, nil, f.tel)

	out, _ := uc.Execute(context.Background(), message.StockUpdate{ItemID: 1, Stock: 4})
	if out.Disposition != application.Committed {
		t.Fatalf("outcome = %+v", out)
	}
	p, ok := f.projections.Get(1)
	if !ok || p.Stock != 4 || !p.Deleted {
		t.Fatalf("projection = %+v", p)
	}
}

func TestSetStockUnchangedStillSyncsProjection(t *testing.T) {
	f := newFixture(priced(1, 10, 100))
	uc := NewSetStock(f.ledger, f.sync, nil, f.tel)

	_, _ = uc.Execute(context.Background(), message.StockUpdate{ItemID: 1, Stock: 10})
	if p, ok := f.projections.Get(1); !ok || p.Stock != 10 {
		t.Fatalf("projection = %+v (%v)", p, ok)
	}
}

func TestSetStockNotFound(t *testing.T) {
	f := newFixture()
	uc := NewSetStock(f.ledger, f.sync, nil, f.tel)
	out, _ := uc.Execute(context.Background(), message.StockUpdate{ItemID: 5, Stock: 1})
	if out.Disposition != application.NotFound {
		t.Fatalf("outcome = %+v", out)
	}
}
