package order

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/example/ec-checkout/internal/domain/inventory"
	"github.com/example/ec-checkout/internal/domain/issue"
)

// Service exposes the order operations that do not involve payment. Moving an
// order to paid is reserved for payment reconciliation.
type Service struct {
	repo   Repository
	ledger inventory.Ledger
	issues issue.Recorder
	logger *slog.Logger
}

func NewService(repo Repository, ledger inventory.Ledger, issues issue.Recorder, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		ledger: ledger,
		issues: issues,
		logger: logger.With("component", "order"),
	}
}

func (s *Service) Get(ctx context.Context, orderID string) (*Order, error) {
	return s.repo.GetOrder(ctx, orderID)
}

// GetForUser returns the order only if userID owns it.
func (s *Service) GetForUser(ctx context.Context, userID, orderID string) (*Order, error) {
	o, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, ErrNotOwner
	}
	return o, nil
}

func (s *Service) ListForUser(ctx context.Context, userID string) ([]*Order, error) {
	return s.repo.ListOrdersByUser(ctx, userID)
}

// Cancel moves a pending order to cancelled and restocks its lines. It
// reports false without side effects when the order was already cancelled.
func (s *Service) Cancel(ctx context.Context, orderID, reason string) (bool, error) {
	o, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return false, err
	}
	if o.Status == StatusCancelled {
		return false, nil
	}
	if !o.CanTransitionTo(StatusCancelled) {
		return false, TransitionError(o.Status, StatusCancelled)
	}

	ok, err := s.repo.TransitionOrder(ctx, o.ID, o.Status, StatusCancelled)
	if err != nil {
		return false, fmt.Errorf("cancel order %s: %w", o.ID, err)
	}
	if !ok {
		// lost the race; report what the winner did
		current, err := s.repo.GetOrder(ctx, o.ID)
		if err != nil {
			return false, err
		}
		if current.Status == StatusCancelled {
			return false, nil
		}
		return false, TransitionError(current.Status, StatusCancelled)
	}

	s.logger.Info("order cancelled", "order_id", o.ID, "reason", reason)
	s.release(ctx, o)
	return true, nil
}

// release restocks every line of a cancelled order. Failures are recorded,
// not returned: the status change has already happened. It runs detached from
// ctx cancellation so a timed-out request cannot strand the stock.
func (s *Service) release(ctx context.Context, o *Order) {
	ctx = context.WithoutCancel(ctx)
	for _, l := range o.Lines {
		if err := s.ledger.Increment(ctx, l.ProductID, l.Quantity); err != nil {
			issue.Record(ctx, s.issues, s.logger, issue.Issue{
				OrderID: o.ID,
				Kind:    issue.KindReleaseFailed,
				Detail: map[string]any{
					"product_id": l.ProductID,
					"quantity":   l.Quantity,
					"error":      err.Error(),
				},
			})
		}
	}
}

// Ship marks a paid order as shipped.
func (s *Service) Ship(ctx context.Context, orderID string) error {
	o, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if !o.CanTransitionTo(StatusShipped) {
		return TransitionError(o.Status, StatusShipped)
	}

	ok, err := s.repo.TransitionOrder(ctx, o.ID, o.Status, StatusShipped)
	if err != nil {
		return fmt.Errorf("ship order %s: %w", o.ID, err)
	}
	if !ok {
		current, err := s.repo.GetOrder(ctx, o.ID)
		if err != nil {
			return err
		}
		return TransitionError(current.Status, StatusShipped)
	}

	s.logger.Info("order shipped", "order_id", o.ID)
	return nil
}
