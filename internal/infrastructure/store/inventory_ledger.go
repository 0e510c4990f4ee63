package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/example/ec-checkout/internal/domain/inventory"
)

// PostgresLedger keeps stock counters in the inventory table. Every write is
// a single statement so Postgres row locking serialises concurrent callers.
type PostgresLedger struct {
	db *sql.DB
}

func NewPostgresLedger(db *sql.DB) *PostgresLedger {
	return &PostgresLedger{db: db}
}

func (l *PostgresLedger) TryDecrement(ctx context.Context, productID string, quantity int) (bool, error) {
	if err := inventory.ValidateQuantity(quantity); err != nil {
		return false, err
	}
	res, err := l.db.ExecContext(ctx,
		`UPDATE inventory SET available = available - $2, updated_at = NOW()
		 WHERE product_id = $1 AND available >= $2`,
		productID, quantity,
	)
	if err != nil {
		return false, fmt.Errorf("decrement stock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (l *PostgresLedger) Increment(ctx context.Context, productID string, quantity int) error {
	if err := inventory.ValidateQuantity(quantity); err != nil {
		return err
	}
	res, err := l.db.ExecContext(ctx,
		`UPDATE inventory SET available = available + $2, updated_at = NOW() WHERE product_id = $1`,
		productID, quantity,
	)
	if err != nil {
		return fmt.Errorf("increment stock: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", inventory.ErrUnknownProduct, productID)
	}
	return nil
}

func (l *PostgresLedger) Available(ctx context.Context, productID string) (int, error) {
	var available int
	err := l.db.QueryRowContext(ctx,
		`SELECT available FROM inventory WHERE product_id = $1`, productID,
	).Scan(&available)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", inventory.ErrUnknownProduct, productID)
	}
	if err != nil {
		return 0, err
	}
	return available, nil
}

// Snapshot returns every product's available stock.
func (l *PostgresLedger) Snapshot(ctx context.Context) (map[string]int, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT product_id, available FROM inventory`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stock := make(map[string]int)
	for rows.Next() {
		var id string
		var available int
		if err := rows.Scan(&id, &available); err != nil {
			return nil, err
		}
		stock[id] = available
	}
	return stock, rows.Err()
}
