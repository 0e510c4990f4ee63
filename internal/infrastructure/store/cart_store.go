package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/example/ec-checkout/internal/domain/cart"
)

func (p *Postgres) GetCart(ctx context.Context, userID string) (*cart.Cart, error) {
	c := &cart.Cart{UserID: userID}

	// version and lines must come from the same snapshot
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx,
		`SELECT id, version, created_at, updated_at FROM carts WHERE user_id = $1`, userID,
	).Scan(&c.ID, &c.Version, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return c, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT id, product_id, quantity, unit_price
		 FROM cart_lines
		 WHERE cart_id = $1
		 ORDER BY created_at, id`,
		c.ID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		l := cart.Line{CartID: c.ID, UserID: userID}
		if err := rows.Scan(&l.ID, &l.ProductID, &l.Quantity, &l.UnitPrice); err != nil {
			return nil, err
		}
		c.Lines = append(c.Lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return c, tx.Commit()
}

func (p *Postgres) GetLine(ctx context.Context, lineID string) (*cart.Line, error) {
	var l cart.Line
	err := p.db.QueryRowContext(ctx,
		`SELECT l.id, l.cart_id, c.user_id, l.product_id, l.quantity, l.unit_price
		 FROM cart_lines l JOIN carts c ON c.id = l.cart_id
		 WHERE l.id = $1`,
		lineID,
	).Scan(&l.ID, &l.CartID, &l.UserID, &l.ProductID, &l.Quantity, &l.UnitPrice)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, cart.ErrLineNotFound
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (p *Postgres) AddLine(ctx context.Context, userID, productID string, quantity int, unitPrice decimal.Decimal) (*cart.Line, error) {
	l := &cart.Line{UserID: userID, ProductID: productID}
	err := p.withTx(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx,
			`INSERT INTO carts (id, user_id, version)
			 VALUES ($1, $2, 1)
			 ON CONFLICT (user_id) DO UPDATE SET version = carts.version + 1, updated_at = NOW()
			 RETURNING id`,
			uuid.New().String(), userID,
		).Scan(&l.CartID); err != nil {
			return fmt.Errorf("upsert cart: %w", err)
		}

		// an existing line keeps its original price snapshot
		if err := tx.QueryRowContext(ctx,
			`INSERT INTO cart_lines (id, cart_id, product_id, quantity, unit_price)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (cart_id, product_id) DO UPDATE
			 SET quantity = cart_lines.quantity + EXCLUDED.quantity, updated_at = NOW()
			 RETURNING id, quantity, unit_price`,
			uuid.New().String(), l.CartID, productID, quantity, unitPrice,
		).Scan(&l.ID, &l.Quantity, &l.UnitPrice); err != nil {
			return fmt.Errorf("upsert cart line: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return l, nil
}

func (p *Postgres) UpdateLine(ctx context.Context, lineID string, quantity int, unitPrice decimal.Decimal) error {
	return p.withTx(ctx, func(tx *sql.Tx) error {
		var cartID string
		err := tx.QueryRowContext(ctx,
			`UPDATE cart_lines SET quantity = $2, unit_price = $3, updated_at = NOW()
			 WHERE id = $1
			 RETURNING cart_id`,
			lineID, quantity, unitPrice,
		).Scan(&cartID)
		if errors.Is(err, sql.ErrNoRows) {
			return cart.ErrLineNotFound
		}
		if err != nil {
			return err
		}
		return bumpCart(ctx, tx, cartID)
	})
}

func (p *Postgres) DeleteLine(ctx context.Context, lineID string) error {
	return p.withTx(ctx, func(tx *sql.Tx) error {
		var cartID string
		err := tx.QueryRowContext(ctx,
			`DELETE FROM cart_lines WHERE id = $1 RETURNING cart_id`, lineID,
		).Scan(&cartID)
		if errors.Is(err, sql.ErrNoRows) {
			return cart.ErrLineNotFound
		}
		if err != nil {
			return err
		}
		if err := bumpCart(ctx, tx, cartID); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`DELETE FROM carts
			 WHERE id = $1 AND NOT EXISTS (SELECT 1 FROM cart_lines WHERE cart_id = $1)`,
			cartID,
		)
		return err
	})
}

func (p *Postgres) DeleteCart(ctx context.Context, userID string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM carts WHERE user_id = $1`, userID)
	return err
}

func bumpCart(ctx context.Context, tx *sql.Tx, cartID string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE carts SET version = version + 1, updated_at = NOW() WHERE id = $1`, cartID)
	if err != nil {
		return fmt.Errorf("bump cart version: %w", err)
	}
	return nil
}
