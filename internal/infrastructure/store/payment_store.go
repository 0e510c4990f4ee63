package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/example/ec-checkout/internal/domain/payment"
)

const attemptColumns = `id, order_id, reference, method, status, buyer_email, gateway_code, created_at, settled_at`

func (p *Postgres) CreateAttempt(ctx context.Context, a *payment.Attempt) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO payment_attempts (id, order_id, reference, method, status, buyer_email, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, a.OrderID, a.Reference, a.Method, a.Status, a.BuyerEmail, a.CreatedAt)
	return err
}

func (p *Postgres) GetAttemptByReference(ctx context.Context, reference string) (*payment.Attempt, error) {
	return scanAttempt(p.db.QueryRowContext(ctx,
		`SELECT `+attemptColumns+` FROM payment_attempts WHERE reference = $1`, reference))
}

func (p *Postgres) ListAttemptsByOrder(ctx context.Context, orderID string) ([]*payment.Attempt, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+attemptColumns+` FROM payment_attempts WHERE order_id = $1 ORDER BY created_at, id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []*payment.Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// SettleAttempt moves a created attempt to its final status exactly once.
func (p *Postgres) SettleAttempt(ctx context.Context, reference string, status payment.AttemptStatus, code string) (bool, error) {
	res, err := p.db.ExecContext(ctx,
		`UPDATE payment_attempts SET status = $2, gateway_code = $3, settled_at = NOW()
		 WHERE reference = $1 AND status = 'created'`,
		reference, status, code)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func scanAttempt(s scanner) (*payment.Attempt, error) {
	var a payment.Attempt
	var settled sql.NullTime
	err := s.Scan(&a.ID, &a.OrderID, &a.Reference, &a.Method, &a.Status, &a.BuyerEmail, &a.GatewayCode, &a.CreatedAt, &settled)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, payment.ErrAttemptNotFound
	}
	if err != nil {
		return nil, err
	}
	if settled.Valid {
		a.SettledAt = &settled.Time
	}
	return &a, nil
}
