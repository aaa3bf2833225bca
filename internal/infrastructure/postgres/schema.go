package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS items (
	id BIGINT PRIMARY KEY,
	owner_id TEXT NOT NULL DEFAULT '',
	name TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	category TEXT NOT NULL DEFAULT '',
	image_url TEXT NOT NULL DEFAULT '',
	stock INT NOT NULL CHECK (stock >= 0),
	price NUMERIC(19,4) NOT NULL CHECK (price >= 0),
	original_price_before_flash_sale NUMERIC(19,4),
	is_flash_sale_active BOOLEAN NOT NULL DEFAULT FALSE,
	flash_sale_end_time TIMESTAMPTZ,
	is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
	version BIGINT NOT NULL DEFAULT 0,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS item_reservations (
	order_id BIGINT NOT NULL,
	item_id BIGINT NOT NULL REFERENCES items(id),
	quantity INT NOT NULL,
	resulting_stock INT NOT NULL,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (order_id, item_id)
);

CREATE INDEX IF NOT EXISTS idx_item_reservations_applied_at ON item_reservations(applied_at);
`

// InitializeSchema creates the ledger tables when they are missing.
func InitializeSchema(ctx context.Context, db *pgxpool.Pool) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres: initialize schema: %w", err)
	}
	return nil
}
