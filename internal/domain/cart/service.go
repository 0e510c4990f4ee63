package cart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/example/ec-checkout/internal/domain/inventory"
	"github.com/example/ec-checkout/internal/domain/product"
)

// Service implements the user-facing cart operations. Stock is checked here
// only as advice; nothing is reserved until checkout.
type Service struct {
	repo    Repository
	catalog product.Catalog
	ledger  inventory.Ledger
	logger  *slog.Logger
}

func NewService(repo Repository, catalog product.Catalog, ledger inventory.Ledger, logger *slog.Logger) *Service {
	return &Service{
		repo:    repo,
		catalog: catalog,
		ledger:  ledger,
		logger:  logger.With("component", "cart"),
	}
}

func (s *Service) Get(ctx context.Context, userID string) (*Cart, error) {
	return s.repo.GetCart(ctx, userID)
}

func (s *Service) AddLine(ctx context.Context, userID, productID string, quantity int) (*Line, error) {
	if productID == "" {
		return nil, ErrInvalidProduct
	}
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	p, err := s.purchasable(ctx, productID)
	if err != nil {
		return nil, err
	}

	c, err := s.repo.GetCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.checkStock(ctx, productID, c.QuantityOf(productID)+quantity); err != nil {
		return nil, err
	}

	line, err := s.repo.AddLine(ctx, userID, productID, quantity, p.Price)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("line added", "user_id", userID, "product_id", productID, "quantity", line.Quantity)
	return line, nil
}

// UpdateLine sets the quantity of a line and refreshes its price snapshot.
// A quantity of zero or less removes the line.
func (s *Service) UpdateLine(ctx context.Context, userID, lineID string, quantity int) error {
	line, err := s.ownedLine(ctx, userID, lineID)
	if err != nil {
		return err
	}
	if quantity <= 0 {
		return s.repo.DeleteLine(ctx, line.ID)
	}

	p, err := s.purchasable(ctx, line.ProductID)
	if err != nil {
		return err
	}
	if err := s.checkStock(ctx, line.ProductID, quantity); err != nil {
		return err
	}

	return s.repo.UpdateLine(ctx, line.ID, quantity, p.Price)
}

func (s *Service) RemoveLine(ctx context.Context, userID, lineID string) error {
	line, err := s.ownedLine(ctx, userID, lineID)
	if err != nil {
		return err
	}
	return s.repo.DeleteLine(ctx, line.ID)
}

// Clear drops the user's cart and all of its lines.
func (s *Service) Clear(ctx context.Context, userID string) error {
	return s.repo.DeleteCart(ctx, userID)
}

func (s *Service) ownedLine(ctx context.Context, userID, lineID string) (*Line, error) {
	line, err := s.repo.GetLine(ctx, lineID)
	if err != nil {
		return nil, err
	}
	if line.UserID != userID {
		return nil, ErrNotOwner
	}
	return line, nil
}

func (s *Service) purchasable(ctx context.Context, productID string) (*product.Product, error) {
	p, err := s.catalog.GetProduct(ctx, productID)
	if errors.Is(err, product.ErrProductNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrProductUnavailable, productID)
	}
	if err != nil {
		return nil, err
	}
	if !p.Purchasable() {
		return nil, fmt.Errorf("%w: %s", ErrProductUnavailable, productID)
	}
	return p, nil
}

func (s *Service) checkStock(ctx context.Context, productID string, wanted int) error {
	available, err := s.ledger.Available(ctx, productID)
	if errors.Is(err, inventory.ErrUnknownProduct) {
		available = 0
	} else if err != nil {
		return err
	}
	if wanted > available {
		return fmt.Errorf("%w: %s wants %d, %d available", ErrOutOfStock, productID, wanted, available)
	}
	return nil
}
