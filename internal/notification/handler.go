package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// Store persists delivered messages. SaveNotification reports false when a
// message with the same id was already stored.
type Store interface {
	SaveNotification(ctx context.Context, m Message) (bool, error)
}

// Mailer sends a message by email.
type Mailer interface {
	SendOrderUpdate(to, orderID, subject, text string) error
}

// Handler consumes notification messages from Kafka.
type Handler struct {
	store  Store
	mailer Mailer
	logger *slog.Logger
}

// NewHandler builds a consumer handler; mailer may be nil.
func NewHandler(store Store, mailer Mailer, logger *slog.Logger) *Handler {
	return &Handler{
		store:  store,
		mailer: mailer,
		logger: logger.With("component", "notifier"),
	}
}

// HandleMessage stores the message once and mails it when the buyer's address
// is known. Redelivered messages are acknowledged without side effects.
func (h *Handler) HandleMessage(ctx context.Context, key, value []byte) error {
	var m Message
	if err := json.Unmarshal(value, &m); err != nil {
		h.logger.Error("failed to unmarshal message", "key", string(key), "error", err)
		return err
	}
	if err := m.Validate(); err != nil {
		h.logger.Warn("dropping invalid message", "key", string(key), "message_id", m.ID)
		return err
	}

	inserted, err := h.store.SaveNotification(ctx, m)
	if err != nil {
		return fmt.Errorf("save notification %s: %w", m.ID, err)
	}
	if !inserted {
		h.logger.Debug("duplicate message ignored", "message_id", m.ID)
		return nil
	}

	h.logger.Info("notification stored", "message_id", m.ID, "user_id", m.UserID, "kind", m.Kind)

	if h.mailer == nil || m.Email == "" {
		return nil
	}
	if err := h.mailer.SendOrderUpdate(m.Email, m.OrderID, subject(m.Kind), m.Text); err != nil {
		// stored already; a redelivery would not retry the mail
		h.logger.Error("failed to send email", "message_id", m.ID, "error", err)
		return nil
	}
	h.logger.Info("email sent", "message_id", m.ID, "order_id", m.OrderID)
	return nil
}

func subject(k Kind) string {
	switch k {
	case KindOrderPaid:
		return "Payment received"
	case KindOrderCancelled:
		return "Order cancelled"
	case KindOrderExpired:
		return "Order expired"
	default:
		return "Order update"
	}
}
