package catalog

import (
	"context"
	"testing"

	"github.com/Zhima-Mochi/minishop-catalog/internal/application"
	"github.com/Zhima-Mochi/minishop-catalog/internal/domain/message"
)

func newDispatcher(f *fixture) *Dispatcher {
	return NewDispatcher(
		NewReserveStock(f.ledger, f.sync, f.publisher, "catalog-service", f.tel),
		NewRollbackStock(f.ledger, f.sync, f.publisher, f.tel),
		NewSetStock(f.ledger, f.sync, []string{SourceReservation, SourceRollback}, f.tel),
		NewApplyFlashSale(f.ledger, f.sync, f.tel),
	)
}

func TestDispatcherRoutesEveryKind(t *testing.T) {
	f := newFixture(priced(1, 10, 100))
	d := newDispatcher(f)
	ctx := context.Background()

	steps := []struct {
		msg       message.Message
		wantStock int
	}{
		{message.ReservationRequest{OrderID: 1, ItemID: 1, Quantity: 4}, 6},
		{message.RollbackRequest{ItemID: 1, Quantity: 3}, 9},
		{message.StockUpdate{ItemID: 1, Stock: 20, Source: "vendor"}, 20},
		{start(1, 50, nil), 20},
	}
	for _, s := range steps {
		out := d.Dispatch(ctx, s.msg)
		if out.Disposition != application.Committed {
			t.Fatalf("%T: outcome = %+v", s.msg, out)
		}
		if got := f.item(1).Stock; got != s.wantStock {
			t.Fatalf("%T: stock = %d, want %d", s.msg, got, s.wantStock)
		}
	}
	if !f.item(1).FlashSaleActive {
		t.Fatalf("flash sale not applied")
	}
}

func TestDispatcherSkipsOwnFanout(t *testing.T) {
	f := newFixture(priced(1, 10, 100))
	d := newDispatcher(f)
	ctx := context.Background()

	_ = d.Dispatch(ctx, message.ReservationRequest{OrderID: 1, ItemID: 1, Quantity: 4})
	for _, e := range f.publisher.published() {
		u, ok := e.(message.StockUpdate)
		if !ok {
			continue
		}
		if out := d.Dispatch(ctx, u); out.Disposition != application.Skipped {
			t.Fatalf("own fanout outcome = %+v", out)
		}
	}
	if got := f.item(1).Stock; got != 6 {
		t.Fatalf("stock = %d, want 6", got)
	}
}
