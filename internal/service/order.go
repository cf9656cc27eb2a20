package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"

	"github.com/ornate/go-jewelry-api/internal/dto"
	"github.com/ornate/go-jewelry-api/internal/inventory"
	"github.com/ornate/go-jewelry-api/internal/model"
	"github.com/ornate/go-jewelry-api/internal/repository"
)

const ConfirmationQueue = "order.confirmations"

type OrderService struct {
	orderRepo   repository.OrderRepository
	cartRepo    repository.CartRepository
	productRepo repository.ProductRepository
	amqpCh      *amqp.Channel
	log         *slog.Logger
}

func NewOrderService(
	orderRepo repository.OrderRepository,
	cartRepo repository.CartRepository,
	productRepo repository.ProductRepository,
	amqpCh *amqp.Channel,
	log *slog.Logger,
) *OrderService {
	return &OrderService{
		orderRepo:   orderRepo,
		cartRepo:    cartRepo,
		productRepo: productRepo,
		amqpCh:      amqpCh,
		log:         log,
	}
}

// Create places an order. Every item is re-validated against the
// current catalog even though the cart already did so, since stock
// moves between the two steps. Validation failures abort before any
// mutation; the order insert and all stock decrements then commit or
// roll back together. Cart clearing and the confirmation message come
// after the commit and are best-effort.
func (s *OrderService) Create(ctx context.Context, userID uuid.UUID, req dto.CreateOrderRequest) (*model.Order, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyOrder
	}

	itemsPrice := decimal.Zero
	items := make([]model.OrderItem, 0, len(req.Items))
	for _, ir := range req.Items {
		product, err := s.productRepo.GetByID(ctx, ir.ProductID)
		if err != nil {
			return nil, fmt.Errorf("get product: %w", err)
		}
		if product == nil {
			return nil, fmt.Errorf("product %s: %w", ir.ProductID, ErrProductNotFound)
		}
		if !product.Active {
			return nil, fmt.Errorf("%s: %w", product.Name, ErrProductInactive)
		}

		avail, err := inventory.Available(product, ir.Size, ir.Color)
		if err != nil {
			if errors.Is(err, inventory.ErrVariantNotFound) || errors.Is(err, inventory.ErrVariantUnavailable) {
				return nil, &InsufficientStockError{ProductName: product.Name, Requested: ir.Quantity, Available: 0}
			}
			return nil, fmt.Errorf("check availability: %w", err)
		}
		if avail < ir.Quantity {
			return nil, &InsufficientStockError{ProductName: product.Name, Requested: ir.Quantity, Available: avail}
		}

		itemsPrice = itemsPrice.Add(product.Price.Mul(decimal.NewFromInt(int64(ir.Quantity))))
		items = append(items, model.OrderItem{
			ProductID: product.ID,
			Name:      product.Name,
			ImageURL:  product.ImageURL,
			Price:     product.Price,
			Quantity:  ir.Quantity,
			Size:      ir.Size,
			Color:     ir.Color,
		})
	}

	order := &model.Order{
		UserID: userID,
		Items:  items,
		ShippingAddress: model.ShippingAddress{
			FullName:   req.ShippingAddress.FullName,
			Line1:      req.ShippingAddress.Line1,
			Line2:      req.ShippingAddress.Line2,
			City:       req.ShippingAddress.City,
			State:      req.ShippingAddress.State,
			PostalCode: req.ShippingAddress.PostalCode,
			Country:    req.ShippingAddress.Country,
			Phone:      req.ShippingAddress.Phone,
		},
		PaymentMethod: req.PaymentMethod,
		ItemsPrice:    itemsPrice,
		TaxPrice:      req.TaxPrice,
		ShippingPrice: req.ShippingPrice,
		TotalPrice:    itemsPrice.Add(req.TaxPrice).Add(req.ShippingPrice),
		Status:        model.OrderStatusPending,
	}

	if err := s.orderRepo.CreateWithStock(ctx, order); err != nil {
		var stockErr *inventory.StockError
		if errors.As(err, &stockErr) {
			// Lost a race between validation and commit.
			return nil, &InsufficientStockError{
				ProductName: stockErr.Product,
				Requested:   stockErr.Requested,
				Available:   stockErr.Available,
			}
		}
		return nil, fmt.Errorf("create order: %w", err)
	}

	if cart, err := s.cartRepo.GetOrCreateCart(ctx, userID); err != nil {
		s.log.Error("get cart after order", "order_id", order.ID, "error", err)
	} else if err := s.cartRepo.ClearCart(ctx, cart.ID); err != nil {
		s.log.Error("clear cart after order", "order_id", order.ID, "error", err)
	}

	s.publishConfirmation(ctx, order)
	return order, nil
}

func (s *OrderService) publishConfirmation(ctx context.Context, order *model.Order) {
	if s.amqpCh == nil {
		return
	}
	msg, _ := json.Marshal(model.ConfirmationMessage{OrderID: order.ID, UserID: order.UserID})
	err := s.amqpCh.PublishWithContext(ctx, "", ConfirmationQueue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         msg,
		DeliveryMode: amqp.Persistent,
	})
	if err != nil {
		// The order stands regardless.
		s.log.Error("publish order confirmation", "order_id", order.ID, "error", err)
	}
}

// Cancel restores stock item by item before flipping the status. The
// restore loop is best-effort: one item's failure is logged and the
// loop keeps going, so a bad product record cannot strand the rest of
// the inventory.
func (s *OrderService) Cancel(ctx context.Context, orderID, userID uuid.UUID) (*model.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if order.UserID != userID {
		return nil, ErrOrderAccessDenied
	}
	if !order.Status.CanTransitionTo(model.OrderStatusCancelled) {
		return nil, fmt.Errorf("cannot cancel %s order: %w", order.Status, ErrInvalidTransition)
	}

	for _, item := range order.Items {
		if err := s.productRepo.RestoreStock(ctx, item.ProductID, item.Size, item.Color, item.Quantity); err != nil {
			s.log.Error("restore stock on cancel",
				"order_id", order.ID, "product_id", item.ProductID, "error", err)
		}
	}

	if err := s.orderRepo.UpdateStatus(ctx, orderID, model.OrderStatusCancelled, nil); err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	order.Status = model.OrderStatusCancelled
	return order, nil
}

// UpdateStatus is the privileged transition path. It goes through the
// same transition table as everything else, so an admin cannot force
// an illegal jump.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID uuid.UUID, status model.OrderStatus) (*model.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if !status.Valid() || !order.Status.CanTransitionTo(status) {
		return nil, fmt.Errorf("%s -> %s: %w", order.Status, status, ErrInvalidTransition)
	}

	var deliveredAt *time.Time
	if status == model.OrderStatusDelivered {
		now := time.Now()
		deliveredAt = &now
	}
	if err := s.orderRepo.UpdateStatus(ctx, orderID, status, deliveredAt); err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	order.Status = status
	order.Delivered = deliveredAt != nil
	order.DeliveredAt = deliveredAt
	return order, nil
}

func (s *OrderService) GetByID(ctx context.Context, orderID, userID uuid.UUID, isAdmin bool) (*model.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if !isAdmin && order.UserID != userID {
		return nil, ErrOrderAccessDenied
	}
	return order, nil
}

func (s *OrderService) ListByUserID(ctx context.Context, userID uuid.UUID) ([]model.Order, error) {
	return s.orderRepo.ListByUserID(ctx, userID)
}

func (s *OrderService) ListAll(ctx context.Context, req dto.ListOrdersRequest) ([]model.Order, int, error) {
	offset := (req.Page - 1) * req.Limit
	return s.orderRepo.List(ctx, req.Status, req.Limit, offset)
}
