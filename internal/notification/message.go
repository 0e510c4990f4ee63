package notification

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrInvalidMessage = errors.New("invalid notification message")

type Kind string

const (
	KindOrderPaid      Kind = "order_paid"
	KindOrderCancelled Kind = "order_cancelled"
	KindOrderExpired   Kind = "order_expired"
)

// Message is a user-facing notice. ID is the dedupe key on the consumer side.
type Message struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email,omitempty"`
	OrderID   string    `json:"order_id,omitempty"`
	Kind      Kind      `json:"kind"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

func NewMessage(userID, orderID string, kind Kind, text string) Message {
	return Message{
		ID:        uuid.New().String(),
		UserID:    userID,
		OrderID:   orderID,
		Kind:      kind,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
}

func (m Message) Validate() error {
	if m.ID == "" || m.UserID == "" || m.Text == "" {
		return ErrInvalidMessage
	}
	return nil
}
