package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ornate/go-jewelry-api/internal/inventory"
	"github.com/ornate/go-jewelry-api/internal/model"
	"github.com/ornate/go-jewelry-api/internal/repository"
)

type CartService struct {
	cartRepo    repository.CartRepository
	productRepo repository.ProductRepository
}

func NewCartService(cartRepo repository.CartRepository, productRepo repository.ProductRepository) *CartService {
	return &CartService{cartRepo: cartRepo, productRepo: productRepo}
}

func (s *CartService) GetCart(ctx context.Context, userID uuid.UUID) (*model.Cart, error) {
	cart, err := s.cartRepo.GetOrCreateCart(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get or create cart: %w", err)
	}
	return s.cartRepo.GetCartWithItems(ctx, cart.ID)
}

// AddItem validates availability and merges with an existing
// (product, size, color) line instead of duplicating it. The quantity
// checked against stock is the combined one, so a merge cannot push a
// line past what is purchasable.
func (s *CartService) AddItem(ctx context.Context, userID, productID uuid.UUID, quantity int, size, color string) error {
	product, err := s.productRepo.GetByID(ctx, productID)
	if err != nil {
		return fmt.Errorf("get product: %w", err)
	}
	if product == nil {
		return ErrProductNotFound
	}
	if !product.Active {
		return ErrProductInactive
	}

	cart, err := s.cartRepo.GetOrCreateCart(ctx, userID)
	if err != nil {
		return fmt.Errorf("get or create cart: %w", err)
	}
	cartWithItems, err := s.cartRepo.GetCartWithItems(ctx, cart.ID)
	if err != nil {
		return fmt.Errorf("get cart items: %w", err)
	}

	combined := quantity
	for _, item := range cartWithItems.Items {
		if item.Matches(productID, size, color) {
			combined += item.Quantity
			break
		}
	}

	avail, err := inventory.Available(product, size, color)
	if err != nil {
		if errors.Is(err, inventory.ErrVariantNotFound) || errors.Is(err, inventory.ErrVariantUnavailable) {
			return &InsufficientStockError{ProductName: product.Name, Requested: combined, Available: 0}
		}
		return fmt.Errorf("check availability: %w", err)
	}
	if avail < combined {
		return &InsufficientStockError{ProductName: product.Name, Requested: combined, Available: avail}
	}

	return s.cartRepo.AddItem(ctx, &model.CartItem{
		CartID:    cart.ID,
		ProductID: productID,
		Name:      product.Name,
		ImageURL:  product.ImageURL,
		Price:     product.Price,
		Quantity:  quantity,
		Size:      size,
		Color:     color,
	})
}

// UpdateItem sets a line's quantity; zero or negative removes the
// line. This path intentionally does not re-validate against stock;
// checkout re-validates everything anyway.
func (s *CartService) UpdateItem(ctx context.Context, userID, itemID uuid.UUID, quantity int) error {
	if err := s.ownItem(ctx, userID, itemID); err != nil {
		return err
	}
	if quantity <= 0 {
		return s.cartRepo.DeleteItem(ctx, itemID)
	}
	return s.cartRepo.UpdateItemQuantity(ctx, itemID, quantity)
}

func (s *CartService) DeleteItem(ctx context.Context, userID, itemID uuid.UUID) error {
	if err := s.ownItem(ctx, userID, itemID); err != nil {
		return err
	}
	return s.cartRepo.DeleteItem(ctx, itemID)
}

func (s *CartService) Clear(ctx context.Context, userID uuid.UUID) error {
	cart, err := s.cartRepo.GetOrCreateCart(ctx, userID)
	if err != nil {
		return fmt.Errorf("get cart: %w", err)
	}
	return s.cartRepo.ClearCart(ctx, cart.ID)
}

func (s *CartService) ownItem(ctx context.Context, userID, itemID uuid.UUID) error {
	cart, err := s.cartRepo.GetOrCreateCart(ctx, userID)
	if err != nil {
		return fmt.Errorf("get cart: %w", err)
	}
	cartWithItems, err := s.cartRepo.GetCartWithItems(ctx, cart.ID)
	if err != nil {
		return fmt.Errorf("get cart items: %w", err)
	}
	for _, item := range cartWithItems.Items {
		if item.ID == itemID {
			return nil
		}
	}
	return ErrCartItemNotFound
}
