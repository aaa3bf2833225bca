package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/Zhima-Mochi/minishop-catalog/internal/domain/item"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const selectItem = `
SELECT id, owner_id, name, description, category, image_url, stock, price::text,
       original_price_before_flash_sale::text, is_flash_sale_active, flash_sale_end_time,
       is_deleted, version, updated_at
FROM items WHERE id = $1`

// Only saga-owned columns are written; descriptive fields belong to the CRUD path.
const updateItem = `
UPDATE items SET
	stock = $3,
	price = $4::numeric,
	original_price_before_flash_sale = $5::numeric,
	is_flash_sale_active = $6,
	flash_sale_end_time = $7,
	updated_at = $8,
	version = version + 1
WHERE id = $1 AND version = $2`

const insertReservation = `
INSERT INTO item_reservations (order_id, item_id, quantity, resulting_stock, applied_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (order_id, item_id) DO NOTHING`

// execer is the subset of pgxpool.Pool and pgx.Tx the ledger writes through.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Ledger is the Postgres item.Ledger. Compare-and-swap is a single conditional UPDATE.
type Ledger struct {
	db *pgxpool.Pool
}

func NewLedger(db *pgxpool.Pool) *Ledger {
	return &Ledger{db: db}
}

func (l *Ledger) Get(ctx context.Context, id int64) (*domain.Item, error) {
	var (
		it       domain.Item
		price    string
		original *string
		end      *time.Time
	)
	err := l.db.QueryRow(ctx, selectItem, id).Scan(
		&it.ID, &it.OwnerID, &it.Name, &it.Description, &it.Category, &it.ImageURL,
		&it.Stock, &price, &original, &it.FlashSaleActive, &end,
		&it.Deleted, &it.Version, &it.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get item %d: %w", id, err)
	}

	if it.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("postgres: item %d price: %w", id, err)
	}
	if original != nil {
		d, err := decimal.NewFromString(*original)
		if err != nil {
			return nil, fmt.Errorf("postgres: item %d original price: %w", id, err)
		}
		it.OriginalPriceBeforeFlashSale = decimal.NewNullDecimal(d)
	}
	if end != nil {
		t := end.UTC()
		it.FlashSaleEndTime = &t
	}
	it.UpdatedAt = it.UpdatedAt.UTC()
	return &it, nil
}

func (l *Ledger) CompareAndSwap(ctx context.Context, it *domain.Item, expected int64) error {
	if err := swap(ctx, l.db, it, expected); err != nil {
		return err
	}
	it.Version = expected + 1
	return nil
}

func (l *Ledger) CompareAndSwapReservation(ctx context.Context, it *domain.Item, expected int64, r domain.Reservation) error {
	err := pgx.BeginFunc(ctx, l.db, func(tx pgx.Tx) error {
		if err := swap(ctx, tx, it, expected); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, insertReservation, r.OrderID, r.ItemID, r.Quantity, r.ResultingStock, r.AppliedAt)
		if err != nil {
			return fmt.Errorf("postgres: record reservation: %w", err)
		}
		if tag.RowsAffected() == 0 {
			// A concurrent delivery of the same request won; roll back and let redelivery replay it.
			return domain.ErrVersionConflict
		}
		return nil
	})
	if err != nil {
		return err
	}
	it.Version = expected + 1
	return nil
}

func swap(ctx context.Context, db execer, it *domain.Item, expected int64) error {
	var original *string
	if it.OriginalPriceBeforeFlashSale.Valid {
		s := it.OriginalPriceBeforeFlashSale.Decimal.String()
		original = &s
	}
	updatedAt := it.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	tag, err := db.Exec(ctx, updateItem,
		it.ID, expected, it.Stock, it.Price.String(), original,
		it.FlashSaleActive, it.FlashSaleEndTime, updatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update item %d: %w", it.ID, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM items WHERE id = $1)`, it.ID).Scan(&exists); err != nil {
		return fmt.Errorf("postgres: check item %d: %w", it.ID, err)
	}
	if !exists {
		return domain.ErrNotFound
	}
	return domain.ErrVersionConflict
}

func (l *Ledger) FindReservation(ctx context.Context, orderID, itemID int64) (*domain.Reservation, error) {
	r := domain.Reservation{OrderID: orderID, ItemID: itemID}
	err := l.db.QueryRow(ctx,
		`SELECT quantity, resulting_stock, applied_at FROM item_reservations WHERE order_id = $1 AND item_id = $2`,
		orderID, itemID,
	).Scan(&r.Quantity, &r.ResultingStock, &r.AppliedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: find reservation: %w", err)
	}
	r.AppliedAt = r.AppliedAt.UTC()
	return &r, nil
}

func (l *Ledger) PruneReservations(ctx context.Context, before time.Time) (int64, error) {
	tag, err := l.db.Exec(ctx, `DELETE FROM item_reservations WHERE applied_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: prune reservations: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (l *Ledger) ListIDs(ctx context.Context, after int64, limit int) ([]int64, error) {
	rows, err := l.db.Query(ctx, `SELECT id FROM items WHERE id > $1 ORDER BY id LIMIT $2`, after, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list ids: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("postgres: list ids: %w", err)
	}
	return ids, nil
}
