package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/example/ec-checkout/internal/domain/product"
)

func (p *Postgres) GetProduct(ctx context.Context, id string) (*product.Product, error) {
	var pr product.Product
	err := p.db.QueryRowContext(ctx,
		`SELECT id, name, price, active FROM products WHERE id = $1`, id,
	).Scan(&pr.ID, &pr.Name, &pr.Price, &pr.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, product.ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	return &pr, nil
}

// SaveProduct upserts a catalog entry together with its stock counter. The
// catalog is owned elsewhere; this is used to seed and sync it.
func (p *Postgres) SaveProduct(ctx context.Context, pr *product.Product, stock int) error {
	return p.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO products (id, name, price, active)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (id) DO UPDATE
			 SET name = EXCLUDED.name, price = EXCLUDED.price, active = EXCLUDED.active, updated_at = NOW()`,
			pr.ID, pr.Name, pr.Price, pr.Active,
		); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO inventory (product_id, available)
			 VALUES ($1, $2)
			 ON CONFLICT (product_id) DO UPDATE SET available = EXCLUDED.available, updated_at = NOW()`,
			pr.ID, stock,
		)
		return err
	})
}
