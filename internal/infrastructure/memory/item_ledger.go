package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	domain "github.com/Zhima-Mochi/minishop-catalog/internal/domain/item"
)

const DefaultDedupWindow = 10000

type reservationKey struct{ orderID, itemID int64 }

// ItemLedger is an in-memory item.Ledger. The version compare and the write happen under one
// lock, which is the store-level atomicity the ledger contract asks for.
type ItemLedger struct {
	mu    sync.RWMutex
	items map[int64]*domain.Item

	reservations map[reservationKey]domain.Reservation
	order        []reservationKey
	window       int
}

// NewItemLedger keeps at most window applied reservations, evicting the oldest first.
func NewItemLedger(window int) *ItemLedger {
	if window <= 0 {
		window = DefaultDedupWindow
	}
	return &ItemLedger{
		items:        make(map[int64]*domain.Item),
		reservations: make(map[reservationKey]domain.Reservation),
		window:       window,
	}
}

// Put seeds or replaces an item, bypassing the version check. The stored version is kept as given.
func (l *ItemLedger) Put(it *domain.Item) {
	if it == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items[it.ID] = it.Clone()
}

func (l *ItemLedger) Get(ctx context.Context, id int64) (*domain.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	it, ok := l.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return it.Clone(), nil
}

func (l *ItemLedger) CompareAndSwap(ctx context.Context, it *domain.Item, expected int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.swapLocked(it, expected)
}

func (l *ItemLedger) CompareAndSwapReservation(ctx context.Context, it *domain.Item, expected int64, r domain.Reservation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.swapLocked(it, expected); err != nil {
		return err
	}
	l.recordLocked(r)
	return nil
}

func (l *ItemLedger) swapLocked(it *domain.Item, expected int64) error {
	current, ok := l.items[it.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if current.Version != expected {
		return domain.ErrVersionConflict
	}
	it.Version = expected + 1
	l.items[it.ID] = it.Clone()
	return nil
}

func (l *ItemLedger) recordLocked(r domain.Reservation) {
	key := reservationKey{orderID: r.OrderID, itemID: r.ItemID}
	if _, ok := l.reservations[key]; !ok {
		l.order = append(l.order, key)
	}
	l.reservations[key] = r
	for len(l.order) > l.window {
		delete(l.reservations, l.order[0])
		l.order = l.order[1:]
	}
}

func (l *ItemLedger) FindReservation(ctx context.Context, orderID, itemID int64) (*domain.Reservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	r, ok := l.reservations[reservationKey{orderID: orderID, itemID: itemID}]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

// PruneReservations drops reservations applied before the cutoff.
func (l *ItemLedger) PruneReservations(ctx context.Context, before time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.order[:0]
	var pruned int64
	for _, key := range l.order {
		if l.reservations[key].AppliedAt.Before(before) {
			delete(l.reservations, key)
			pruned++
			continue
		}
		kept = append(kept, key)
	}
	l.order = kept
	return pruned, nil
}

func (l *ItemLedger) ListIDs(ctx context.Context, after int64, limit int) ([]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	ids := make([]int64, 0, len(l.items))
	for id := range l.items {
		if id > after {
			ids = append(ids, id)
		}
	}
	l.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}
