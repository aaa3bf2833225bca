package item

import (
	"context"
	"time"
)

// Reservation records that a reservation request was applied to an item, so a redelivered
// request can be answered without decrementing stock twice.
type Reservation struct {
	OrderID        int64
	ItemID         int64
	Quantity       int
	ResultingStock int
	AppliedAt      time.Time
}

// Ledger is the authoritative, version-guarded store of items. Implementations must perform
// the compare-and-swap atomically at the store level and must never retry on conflict.
type Ledger interface {
	// Get resolves an item regardless of its soft-delete marker.
	Get(ctx context.Context, id int64) (*Item, error)
	// CompareAndSwap writes item if the stored version still equals expected and bumps the
	// version by one. On success item.Version holds the new version.
	CompareAndSwap(ctx context.Context, item *Item, expected int64) error
	// CompareAndSwapReservation is CompareAndSwap plus recording r in the same atomic write.
	CompareAndSwapReservation(ctx context.Context, item *Item, expected int64, r Reservation) error
	// FindReservation returns nil, nil when the pair was never applied or has been pruned.
	FindReservation(ctx context.Context, orderID, itemID int64) (*Reservation, error)
	// ListIDs pages through item ids in ascending order, starting after the given id.
	ListIDs(ctx context.Context, after int64, limit int) ([]int64, error)
}

// ReservationPruner bounds the reservation dedup window.
type ReservationPruner interface {
	PruneReservations(ctx context.Context, before time.Time) (int64, error)
}

// ProjectionStore is the read-optimised search index; only upsert and delete by id are needed.
type ProjectionStore interface {
	Upsert(ctx context.Context, p Projection) error
	Delete(ctx context.Context, id int64) error
}
