package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

const schema = `
CREATE TABLE IF NOT EXISTS products (
	id             BIGSERIAL PRIMARY KEY,
	name           TEXT          NOT NULL CHECK (name <> ''),
	description    TEXT          NOT NULL DEFAULT '',
	price          NUMERIC(12,2) NOT NULL CHECK (price >= 0),
	stock_quantity INTEGER       NOT NULL CHECK (stock_quantity >= 0),
	created_at     TIMESTAMPTZ   NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ   NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS orders (
	id               BIGSERIAL PRIMARY KEY,
	customer_name    TEXT        NOT NULL CHECK (customer_name <> ''),
	customer_email   TEXT        NOT NULL CHECK (customer_email <> ''),
	shipping_address TEXT        NOT NULL CHECK (shipping_address <> ''),
	order_date       TIMESTAMPTZ NOT NULL,
	status           TEXT        NOT NULL CHECK (status IN ('Pending','Processing','Shipped','Delivered','Cancelled')),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

-- one line per product per order
CREATE TABLE IF NOT EXISTS order_items (
	order_id   BIGINT        NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
	product_id BIGINT        NOT NULL REFERENCES products(id),
	quantity   INTEGER       NOT NULL CHECK (quantity >= 1),
	unit_price NUMERIC(12,2) NOT NULL CHECK (unit_price >= 0),
	PRIMARY KEY (order_id, product_id)
);

CREATE INDEX IF NOT EXISTS idx_order_items_product ON order_items(product_id);
`

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Migrate creates the tables when missing. The schema goes out as one
// argument-free Exec, which pgx sends over the simple protocol.
func Migrate(ctx context.Context, db execer) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres: apply schema: %w", err)
	}
	return nil
}
