package store

import (
	"context"

	"github.com/example/ec-checkout/internal/notification"
)

// SaveNotification stores m unless a message with its id already exists.
func (p *Postgres) SaveNotification(ctx context.Context, m notification.Message) (bool, error) {
	res, err := p.db.ExecContext(ctx,
		`INSERT INTO notifications (id, user_id, order_id, kind, message, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO NOTHING`,
		m.ID, m.UserID, nullString(m.OrderID), m.Kind, m.Text, m.CreatedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
