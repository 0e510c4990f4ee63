package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/example/ec-checkout/internal/domain/cart"
	"github.com/example/ec-checkout/internal/domain/order"
)

const orderColumns = `id, user_id, COALESCE(checkout_key, ''), total, status, created_at, updated_at`

// PlaceOrder inserts the order and its lines and deletes the source cart, all
// in one transaction. The cart is only deleted if its version is unchanged.
func (p *Postgres) PlaceOrder(ctx context.Context, o *order.Order, cartID string, cartVersion int) error {
	return p.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM carts WHERE id = $1 AND version = $2`, cartID, cartVersion)
		if err != nil {
			return fmt.Errorf("delete cart: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n != 1 {
			return cart.ErrCartChanged
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO orders (id, user_id, checkout_key, total, status, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			o.ID, o.UserID, nullString(o.CheckoutKey), o.Total, o.Status, o.CreatedAt, o.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return order.ErrDuplicateCheckout
			}
			return fmt.Errorf("insert order: %w", err)
		}

		for _, l := range o.Lines {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO order_lines (id, order_id, product_id, quantity, unit_price)
				 VALUES ($1, $2, $3, $4, $5)`,
				l.ID, o.ID, l.ProductID, l.Quantity, l.UnitPrice,
			); err != nil {
				return fmt.Errorf("insert order line: %w", err)
			}
		}
		return nil
	})
}

func (p *Postgres) GetOrder(ctx context.Context, id string) (*order.Order, error) {
	o, err := scanOrder(p.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	if err := p.loadLines(ctx, []*order.Order{o}); err != nil {
		return nil, err
	}
	return o, nil
}

func (p *Postgres) FindOrderByCheckoutKey(ctx context.Context, userID, key string) (*order.Order, error) {
	o, err := scanOrder(p.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 AND checkout_key = $2`, userID, key))
	if err != nil {
		return nil, err
	}
	if err := p.loadLines(ctx, []*order.Order{o}); err != nil {
		return nil, err
	}
	return o, nil
}

func (p *Postgres) ListOrdersByUser(ctx context.Context, userID string) ([]*order.Order, error) {
	return p.queryOrders(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC, id`, userID)
}

func (p *Postgres) ListPendingOrders(ctx context.Context, createdBefore time.Time) ([]*order.Order, error) {
	return p.queryOrders(ctx,
		`SELECT `+orderColumns+` FROM orders
		 WHERE status = 'pending' AND created_at < $1
		 ORDER BY created_at`,
		createdBefore)
}

// TransitionOrder is a compare-and-set on status.
func (p *Postgres) TransitionOrder(ctx context.Context, id string, from, to order.Status) (bool, error) {
	if !order.CanTransition(from, to) {
		return false, order.TransitionError(from, to)
	}
	res, err := p.db.ExecContext(ctx,
		`UPDATE orders SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`,
		id, from, to)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (p *Postgres) queryOrders(ctx context.Context, query string, args ...any) ([]*order.Order, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*order.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := p.loadLines(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// loadLines fills Lines for every order with one query.
func (p *Postgres) loadLines(ctx context.Context, orders []*order.Order) error {
	if len(orders) == 0 {
		return nil
	}
	byID := make(map[string]*order.Order, len(orders))
	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		byID[o.ID] = o
		ids = append(ids, o.ID)
	}

	rows, err := p.db.QueryContext(ctx,
		`SELECT id, order_id, product_id, quantity, unit_price
		 FROM order_lines
		 WHERE order_id = ANY($1)
		 ORDER BY order_id, id`,
		pq.Array(ids))
	if err != nil {
		return fmt.Errorf("load order lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var l order.Line
		if err := rows.Scan(&l.ID, &l.OrderID, &l.ProductID, &l.Quantity, &l.UnitPrice); err != nil {
			return err
		}
		if o := byID[l.OrderID]; o != nil {
			o.Lines = append(o.Lines, l)
		}
	}
	return rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(s scanner) (*order.Order, error) {
	var o order.Order
	var status string
	err := s.Scan(&o.ID, &o.UserID, &o.CheckoutKey, &o.Total, &status, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, order.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	if o.Status, err = order.ParseStatus(status); err != nil {
		return nil, err
	}
	return &o, nil
}
