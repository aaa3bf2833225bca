package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	domain "github.com/Zhima-Mochi/minishop-catalog/internal/domain/item"
)

func TestItemLedgerCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	l := NewItemLedger(0)
	l.Put(&domain.Item{ID: 1, Stock: 10})

	it, err := l.Get(ctx, 1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	stale := it.Clone()

	it.Stock = 6
	if err := l.CompareAndSwap(ctx, it, 0); err != nil {
		t.Fatalf("CompareAndSwap: %v", err)
	}
	if it.Version != 1 {
		t.Fatalf("version = %d, want 1", it.Version)
	}

	stale.Stock = 2
	if err := l.CompareAndSwap(ctx, stale, 0); !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}
	if stale.Version != 0 {
		t.Fatalf("failed swap must not bump the caller's version")
	}

	got, _ := l.Get(ctx, 1)
	if got.Stock != 6 || got.Version != 1 {
		t.Fatalf("stored %+v, want stock 6 version 1", got)
	}
}

func TestItemLedgerGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	l := NewItemLedger(0)
	l.Put(&domain.Item{ID: 1, Stock: 10})

	it, _ := l.Get(ctx, 1)
	it.Stock = 0
	again, _ := l.Get(ctx, 1)
	if again.Stock != 10 {
		t.Fatalf("caller mutation leaked into the store")
	}
}

func TestItemLedgerNotFound(t *testing.T) {
	ctx := context.Background()
	l := NewItemLedger(0)
	if _, err := l.Get(ctx, 99); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Get: expected ErrNotFound, got %v", err)
	}
	if err := l.CompareAndSwap(ctx, &domain.Item{ID: 99}, 0); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("CompareAndSwap: expected ErrNotFound, got %v", err)
	}
}

func TestItemLedgerConcurrentReservationsNeverOversell(t *testing.T) {
	ctx := context.Background()
	l := NewItemLedger(0)
	l.Put(&domain.Item{ID: 1, Stock: 50})

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		reserved int
	)
	for w := 0; w < 20; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				for {
					it, err := l.Get(ctx, 1)
					if err != nil {
						t.Errorf("Get: %v", err)
						return
					}
					expected := it.Version
					if err := it.Reserve(1); err != nil {
						break
					}
					err = l.CompareAndSwap(ctx, it, expected)
					if errors.Is(err, domain.ErrVersionConflict) {
						continue
					}
					if err != nil {
						t.Errorf("CompareAndSwap: %v", err)
						return
					}
					mu.Lock()
					reserved++
					mu.Unlock()
					break
				}
			}
		}()
	}
	wg.Wait()

	it, _ := l.Get(ctx, 1)
	if reserved != 50 || it.Stock != 0 {
		t.Fatalf("reserved=%d stock=%d, want 50 and 0", reserved, it.Stock)
	}
	if it.Version != 50 {
		t.Fatalf("version = %d, want one bump per accepted write", it.Version)
	}
}

func TestItemLedgerReservationRecordedWithSwap(t *testing.T) {
	ctx := context.Background()
	l := NewItemLedger(0)
	l.Put(&domain.Item{ID: 1, Stock: 10})

	it, _ := l.Get(ctx, 1)
	_ = it.Reserve(4)
	r := domain.Reservation{OrderID: 7, ItemID: 1, Quantity: 4, ResultingStock: 6, AppliedAt: time.Now()}

	if err := l.CompareAndSwapReservation(ctx, it, 5, r); !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if got, _ := l.FindReservation(ctx, 7, 1); got != nil {
		t.Fatalf("conflicting write must not record the reservation")
	}

	if err := l.CompareAndSwapReservation(ctx, it, 0, r); err != nil {
		t.Fatalf("CompareAndSwapReservation: %v", err)
	}
	got, err := l.FindReservation(ctx, 7, 1)
	if err != nil || got == nil || got.ResultingStock != 6 {
		t.Fatalf("FindReservation = %+v, %v", got, err)
	}
}

func TestItemLedgerDedupWindowEvictsOldest(t *testing.T) {
	ctx := context.Background()
	l := NewItemLedger(2)
	l.Put(&domain.Item{ID: 1, Stock: 10})

	for order := int64(1); order <= 3; order++ {
		it, _ := l.Get(ctx, 1)
		_ = it.Reserve(1)
		r := domain.Reservation{OrderID: order, ItemID: 1, Quantity: 1, ResultingStock: it.Stock}
		if err := l.CompareAndSwapReservation(ctx, it, it.Version, r); err != nil {
			t.Fatalf("order %d: %v", order, err)
		}
	}
	if got, _ := l.FindReservation(ctx, 1, 1); got != nil {
		t.Fatalf("oldest reservation should have been evicted")
	}
	for _, order := range []int64{2, 3} {
		if got, _ := l.FindReservation(ctx, order, 1); got == nil {
			t.Fatalf("order %d should still be recorded", order)
		}
	}
}

func TestItemLedgerPruneReservations(t *testing.T) {
	ctx := context.Background()
	l := NewItemLedger(0)
	l.Put(&domain.Item{ID: 1, Stock: 10})
	now := time.Now()

	for i, at := range []time.Time{now.Add(-2 * time.Hour), now} {
		it, _ := l.Get(ctx, 1)
		_ = it.Reserve(1)
		r := domain.Reservation{OrderID: int64(i + 1), ItemID: 1, Quantity: 1, AppliedAt: at}
		if err := l.CompareAndSwapReservation(ctx, it, it.Version, r); err != nil {
			t.Fatalf("reserve: %v", err)
		}
	}

	pruned, err := l.PruneReservations(ctx, now.Add(-time.Hour))
	if err != nil || pruned != 1 {
		t.Fatalf("PruneReservations = %d, %v; want 1", pruned, err)
	}
	if got, _ := l.FindReservation(ctx, 1, 1); got != nil {
		t.Fatalf("old reservation survived pruning")
	}
	if got, _ := l.FindReservation(ctx, 2, 1); got == nil {
		t.Fatalf("recent reservation was pruned")
	}
}

func TestItemLedgerListIDs(t *testing.T) {
	ctx := context.Background()
	l := NewItemLedger(0)
	for _, id := range []int64{5, 1, 3, 9} {
		l.Put(&domain.Item{ID: id})
	}
	ids, err := l.ListIDs(ctx, 1, 2)
	if err != nil {
		t.Fatalf("ListIDs: %v", err)
	}
	if len(ids) != 2 || ids[0] != 3 || ids[1] != 5 {
		t.Fatalf("ids = %v, want [3 5]", ids)
	}
	ids, _ = l.ListIDs(ctx, 5, 10)
	if len(ids) != 1 || ids[0] != 9 {
		t.Fatalf("ids = %v, want [9]", ids)
	}
}
