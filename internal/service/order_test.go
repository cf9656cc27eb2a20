package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ornate/go-jewelry-api/internal/dto"
	"github.com/ornate/go-jewelry-api/internal/inventory"
	"github.com/ornate/go-jewelry-api/internal/model"
)

type mockOrderRepo struct {
	orders      map[uuid.UUID]*model.Order
	productRepo *mockProductRepo

	// beforeCreate runs at the top of CreateWithStock, standing in for
	// stock moving between the service's validation and the commit.
	beforeCreate func()
}

func newMockOrderRepo(productRepo *mockProductRepo) *mockOrderRepo {
	return &mockOrderRepo{orders: make(map[uuid.UUID]*model.Order), productRepo: productRepo}
}

// CreateWithStock mirrors the transactional repo: decrements run
// against copies and only commit when every item succeeds, so a failed
// order leaves no stock mutation behind.
func (m *mockOrderRepo) CreateWithStock(_ context.Context, order *model.Order) error {
	if m.beforeCreate != nil {
		m.beforeCreate()
	}
	staged := make(map[uuid.UUID]*model.Product)
	for _, item := range order.Items {
		p, ok := staged[item.ProductID]
		if !ok {
			orig, found := m.productRepo.products[item.ProductID]
			if !found {
				return ErrProductNotFound
			}
			p = cloneProduct(orig)
			staged[item.ProductID] = p
		}
		if err := inventory.Decrement(p, item.Size, item.Color, item.Quantity); err != nil {
			return err
		}
	}
	for id, p := range staged {
		m.productRepo.products[id] = p
	}

	order.ID = uuid.New()
	order.CreatedAt = time.Now()
	order.UpdatedAt = order.CreatedAt
	for i := range order.Items {
		order.Items[i].ID = uuid.New()
		order.Items[i].OrderID = order.ID
	}
	m.orders[order.ID] = order
	return nil
}

func (m *mockOrderRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (m *mockOrderRepo) ListByUserID(_ context.Context, userID uuid.UUID) ([]model.Order, error) {
	var orders []model.Order
	for _, o := range m.orders {
		if o.UserID == userID {
			orders = append(orders, *o)
		}
	}
	return orders, nil
}

func (m *mockOrderRepo) List(_ context.Context, status model.OrderStatus, limit, offset int) ([]model.Order, int, error) {
	var orders []model.Order
	for _, o := range m.orders {
		if status == "" || o.Status == status {
			orders = append(orders, *o)
		}
	}
	return orders, len(orders), nil
}

func (m *mockOrderRepo) UpdateStatus(_ context.Context, id uuid.UUID, status model.OrderStatus, deliveredAt *time.Time) error {
	if o, ok := m.orders[id]; ok {
		o.Status = status
		o.Delivered = deliveredAt != nil
		o.DeliveredAt = deliveredAt
	}
	return nil
}

var testLog = slog.New(slog.NewTextHandler(io.Discard, nil))

func testAddress() dto.ShippingAddressRequest {
	return dto.ShippingAddressRequest{
		FullName: "Asha Rao", Line1: "12 Temple St", City: "Mysore",
		State: "KA", PostalCode: "570001", Country: "IN", Phone: "9900000000",
	}
}

func orderFixture() (*OrderService, *mockOrderRepo, *mockCartRepo, *mockProductRepo) {
	productRepo := newMockProductRepo()
	cartRepo := newMockCartRepo()
	orderRepo := newMockOrderRepo(productRepo)
	svc := NewOrderService(orderRepo, cartRepo, productRepo, nil, testLog)
	return svc, orderRepo, cartRepo, productRepo
}

func TestOrderService_Create_Empty(t *testing.T) {
	svc, _, _, _ := orderFixture()
	_, err := svc.Create(context.Background(), uuid.New(), dto.CreateOrderRequest{
		Items: nil, ShippingAddress: testAddress(), PaymentMethod: "cod",
	})
	assert.ErrorIs(t, err, ErrEmptyOrder)
}

func TestOrderService_Create_DecrementsFlatStock(t *testing.T) {
	svc, _, cartRepo, productRepo := orderFixture()
	p := newFlatProduct(productRepo, "Ring-A", 5)
	userID := uuid.New()

	cart, _ := cartRepo.GetOrCreateCart(context.Background(), userID)
	require.NoError(t, cartRepo.AddItem(context.Background(), &model.CartItem{
		CartID: cart.ID, ProductID: p.ID, Quantity: 1, Price: p.Price,
	}))

	order, err := svc.Create(context.Background(), userID, dto.CreateOrderRequest{
		Items:           []dto.OrderItemRequest{{ProductID: p.ID, Quantity: 1}},
		ShippingAddress: testAddress(),
		PaymentMethod:   "cod",
	})
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPending, order.Status)
	assert.Equal(t, 4, productRepo.products[p.ID].Stock)
	assert.Empty(t, cartRepo.items, "cart cleared after order")

	// Items are denormalized, not references.
	require.Len(t, order.Items, 1)
	assert.Equal(t, "Ring-A", order.Items[0].Name)
	assert.True(t, order.Items[0].Price.Equal(p.Price))
}

func TestOrderService_Create_TotalsFromBreakdown(t *testing.T) {
	svc, _, _, productRepo := orderFixture()
	p := newFlatProduct(productRepo, "Ring-A", 5)

	order, err := svc.Create(context.Background(), uuid.New(), dto.CreateOrderRequest{
		Items:           []dto.OrderItemRequest{{ProductID: p.ID, Quantity: 2}},
		ShippingAddress: testAddress(),
		PaymentMethod:   "card",
		TaxPrice:        decimal.NewFromFloat(5),
		ShippingPrice:   decimal.NewFromFloat(10),
	})
	require.NoError(t, err)
	assert.True(t, order.ItemsPrice.Equal(decimal.NewFromFloat(50)))
	assert.True(t, order.TotalPrice.Equal(decimal.NewFromFloat(65)))
}

func TestOrderService_Create_InsufficientStock_NoMutation(t *testing.T) {
	svc, orderRepo, _, productRepo := orderFixture()
	ok := newFlatProduct(productRepo, "Ring-A", 5)
	low := newFlatProduct(productRepo, "Ring-B", 1)

	_, err := svc.Create(context.Background(), uuid.New(), dto.CreateOrderRequest{
		Items: []dto.OrderItemRequest{
			{ProductID: ok.ID, Quantity: 2},
			{ProductID: low.ID, Quantity: 3},
		},
		ShippingAddress: testAddress(),
		PaymentMethod:   "cod",
	})
	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "Ring-B", stockErr.ProductName)
	assert.Equal(t, 3, stockErr.Requested)
	assert.Equal(t, 1, stockErr.Available)

	assert.Equal(t, 5, productRepo.products[ok.ID].Stock, "no partial decrement")
	assert.Equal(t, 1, productRepo.products[low.ID].Stock)
	assert.Empty(t, orderRepo.orders)
}

func TestOrderService_Create_RaceLostAfterValidation(t *testing.T) {
	svc, orderRepo, _, productRepo := orderFixture()
	p := newFlatProduct(productRepo, "Ring-A", 1)

	// Someone else takes the last unit after validation passes.
	orderRepo.beforeCreate = func() {
		productRepo.products[p.ID].Stock = 0
	}

	_, err := svc.Create(context.Background(), uuid.New(), dto.CreateOrderRequest{
		Items:           []dto.OrderItemRequest{{ProductID: p.ID, Quantity: 1}},
		ShippingAddress: testAddress(),
		PaymentMethod:   "cod",
	})
	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "Ring-A", stockErr.ProductName)
	assert.Equal(t, 1, stockErr.Requested)
	assert.Equal(t, 0, stockErr.Available)
	assert.Empty(t, orderRepo.orders)
}

func TestOrderService_Create_InactiveProduct(t *testing.T) {
	svc, _, _, productRepo := orderFixture()
	p := newFlatProduct(productRepo, "Ring-A", 5)
	productRepo.products[p.ID].Active = false

	_, err := svc.Create(context.Background(), uuid.New(), dto.CreateOrderRequest{
		Items:           []dto.OrderItemRequest{{ProductID: p.ID, Quantity: 1}},
		ShippingAddress: testAddress(),
		PaymentMethod:   "cod",
	})
	assert.ErrorIs(t, err, ErrProductInactive)
}

func TestOrderService_Create_SizeVariant(t *testing.T) {
	svc, _, _, productRepo := orderFixture()
	b := newBangle(productRepo)

	_, err := svc.Create(context.Background(), uuid.New(), dto.CreateOrderRequest{
		Items:           []dto.OrderItemRequest{{ProductID: b.ID, Quantity: 1, Size: "M"}},
		ShippingAddress: testAddress(),
		PaymentMethod:   "cod",
	})
	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)

	order, err := svc.Create(context.Background(), uuid.New(), dto.CreateOrderRequest{
		Items:           []dto.OrderItemRequest{{ProductID: b.ID, Quantity: 2, Size: "S"}},
		ShippingAddress: testAddress(),
		PaymentMethod:   "cod",
	})
	require.NoError(t, err)
	assert.Equal(t, "S", order.Items[0].Size)
	assert.Equal(t, 0, productRepo.products[b.ID].Sizes[0].Stock)
	assert.False(t, productRepo.products[b.ID].Sizes[0].Available)
}

func TestOrderService_CancelRestoresStock(t *testing.T) {
	svc, _, _, productRepo := orderFixture()
	p := newFlatProduct(productRepo, "Ring-A", 5)
	userID := uuid.New()

	order, err := svc.Create(context.Background(), userID, dto.CreateOrderRequest{
		Items:           []dto.OrderItemRequest{{ProductID: p.ID, Quantity: 1}},
		ShippingAddress: testAddress(),
		PaymentMethod:   "cod",
	})
	require.NoError(t, err)
	require.Equal(t, 4, productRepo.products[p.ID].Stock)

	cancelled, err := svc.Cancel(context.Background(), order.ID, userID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusCancelled, cancelled.Status)
	assert.Equal(t, 5, productRepo.products[p.ID].Stock, "exact round trip")
}

func TestOrderService_Cancel_WrongUser(t *testing.T) {
	svc, _, _, productRepo := orderFixture()
	p := newFlatProduct(productRepo, "Ring-A", 5)
	userID := uuid.New()

	order, err := svc.Create(context.Background(), userID, dto.CreateOrderRequest{
		Items:           []dto.OrderItemRequest{{ProductID: p.ID, Quantity: 1}},
		ShippingAddress: testAddress(),
		PaymentMethod:   "cod",
	})
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), order.ID, uuid.New())
	assert.ErrorIs(t, err, ErrOrderAccessDenied)
}

func TestOrderService_Cancel_TerminalStates(t *testing.T) {
	for _, status := range []model.OrderStatus{
		model.OrderStatusShipped, model.OrderStatusDelivered, model.OrderStatusCancelled,
	} {
		t.Run(string(status), func(t *testing.T) {
			svc, orderRepo, _, productRepo := orderFixture()
			p := newFlatProduct(productRepo, "Ring-A", 5)
			userID := uuid.New()

			order, err := svc.Create(context.Background(), userID, dto.CreateOrderRequest{
				Items:           []dto.OrderItemRequest{{ProductID: p.ID, Quantity: 1}},
				ShippingAddress: testAddress(),
				PaymentMethod:   "cod",
			})
			require.NoError(t, err)
			orderRepo.orders[order.ID].Status = status

			_, err = svc.Cancel(context.Background(), order.ID, userID)
			assert.ErrorIs(t, err, ErrInvalidTransition)
			assert.Equal(t, 4, productRepo.products[p.ID].Stock, "no stock mutation")
		})
	}
}

func TestOrderService_Cancel_RestoreIsBestEffort(t *testing.T) {
	svc, orderRepo, _, productRepo := orderFixture()
	good := newFlatProduct(productRepo, "Ring-A", 5)
	doomed := newFlatProduct(productRepo, "Ring-B", 5)
	userID := uuid.New()

	order, err := svc.Create(context.Background(), userID, dto.CreateOrderRequest{
		Items: []dto.OrderItemRequest{
			{ProductID: doomed.ID, Quantity: 1},
			{ProductID: good.ID, Quantity: 1},
		},
		ShippingAddress: testAddress(),
		PaymentMethod:   "cod",
	})
	require.NoError(t, err)

	// Product deleted between order and cancel: its restore fails but
	// the other item's restore still happens.
	delete(productRepo.products, doomed.ID)

	cancelled, err := svc.Cancel(context.Background(), order.ID, userID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusCancelled, cancelled.Status)
	assert.Equal(t, 5, productRepo.products[good.ID].Stock)
	assert.Equal(t, model.OrderStatusCancelled, orderRepo.orders[order.ID].Status)
}

func TestOrderService_UpdateStatus_ValidTransition(t *testing.T) {
	svc, _, _, productRepo := orderFixture()
	p := newFlatProduct(productRepo, "Ring-A", 5)

	order, err := svc.Create(context.Background(), uuid.New(), dto.CreateOrderRequest{
		Items:           []dto.OrderItemRequest{{ProductID: p.ID, Quantity: 1}},
		ShippingAddress: testAddress(),
		PaymentMethod:   "cod",
	})
	require.NoError(t, err)

	updated, err := svc.UpdateStatus(context.Background(), order.ID, model.OrderStatusProcessing)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusProcessing, updated.Status)
}

func TestOrderService_UpdateStatus_RejectsIllegalJump(t *testing.T) {
	svc, _, _, productRepo := orderFixture()
	p := newFlatProduct(productRepo, "Ring-A", 5)

	order, err := svc.Create(context.Background(), uuid.New(), dto.CreateOrderRequest{
		Items:           []dto.OrderItemRequest{{ProductID: p.ID, Quantity: 1}},
		ShippingAddress: testAddress(),
		PaymentMethod:   "cod",
	})
	require.NoError(t, err)

	_, err = svc.UpdateStatus(context.Background(), order.ID, model.OrderStatusDelivered)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestOrderService_UpdateStatus_DeliveredSetsTimestamp(t *testing.T) {
	svc, orderRepo, _, productRepo := orderFixture()
	p := newFlatProduct(productRepo, "Ring-A", 5)

	order, err := svc.Create(context.Background(), uuid.New(), dto.CreateOrderRequest{
		Items:           []dto.OrderItemRequest{{ProductID: p.ID, Quantity: 1}},
		ShippingAddress: testAddress(),
		PaymentMethod:   "cod",
	})
	require.NoError(t, err)
	orderRepo.orders[order.ID].Status = model.OrderStatusShipped

	updated, err := svc.UpdateStatus(context.Background(), order.ID, model.OrderStatusDelivered)
	require.NoError(t, err)
	assert.True(t, updated.Delivered)
	require.NotNil(t, updated.DeliveredAt)
}

func TestOrderService_GetByID_Ownership(t *testing.T) {
	svc, orderRepo, _, _ := orderFixture()
	owner := uuid.New()
	orderID := uuid.New()
	orderRepo.orders[orderID] = &model.Order{ID: orderID, UserID: owner, Status: model.OrderStatusPending}

	_, err := svc.GetByID(context.Background(), orderID, uuid.New(), false)
	assert.ErrorIs(t, err, ErrOrderAccessDenied)

	got, err := svc.GetByID(context.Background(), orderID, uuid.New(), true)
	require.NoError(t, err)
	assert.Equal(t, orderID, got.ID)
}

func TestOrderService_GetByID_NotFound(t *testing.T) {
	svc, _, _, _ := orderFixture()
	_, err := svc.GetByID(context.Background(), uuid.New(), uuid.New(), false)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}
