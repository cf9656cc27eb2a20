package repository

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ornate/go-jewelry-api/internal/inventory"
	"github.com/ornate/go-jewelry-api/internal/model"
)

func allTables() []string {
	return []string{"order_items", "orders", "cart_items", "carts", "reviews", "addresses", "products", "users"}
}

func makeUser(t *testing.T, email string) *model.User {
	t.Helper()
	user := &model.User{
		Email: email, Password: "hashed",
		FirstName: "Asha", LastName: "Rao", Role: "customer",
	}
	require.NoError(t, NewUserRepository(testPool).Create(context.Background(), user))
	return user
}

func TestUserRepo_CreateAndGetByEmail(t *testing.T) {
	cleanupTable(t, allTables()...)

	repo := NewUserRepository(testPool)
	ctx := context.Background()

	user := makeUser(t, "test@example.com")
	assert.NotEqual(t, uuid.Nil, user.ID)

	found, err := repo.GetByEmail(ctx, "test@example.com")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, user.ID, found.ID)
}

func TestProductRepo_CRUD_VariantRoundTrip(t *testing.T) {
	cleanupTable(t, allTables()...)

	repo := NewProductRepository(testPool)
	ctx := context.Background()

	product := &model.Product{
		Name: "Bangle-B", Description: "gold plated", Category: "bangles",
		Price: decimal.NewFromFloat(49.99), Active: true,
		InventoryKind: model.InventoryBySize,
		Sizes: []model.SizeOption{
			{Label: "S", Stock: 2, Available: true},
			{Label: "M", Stock: 0, Available: false},
		},
	}
	require.NoError(t, repo.Create(ctx, product))
	assert.NotEqual(t, uuid.Nil, product.ID)

	found, err := repo.GetByID(ctx, product.ID)
	require.NoError(t, err)
	require.Len(t, found.Sizes, 2)
	assert.Equal(t, "S", found.Sizes[0].Label)
	assert.False(t, found.Sizes[1].Available)

	found.Name = "Bangle-B2"
	require.NoError(t, repo.Update(ctx, found))

	found, _ = repo.GetByID(ctx, product.ID)
	assert.Equal(t, "Bangle-B2", found.Name)

	require.NoError(t, repo.Delete(ctx, product.ID))
	found, _ = repo.GetByID(ctx, product.ID)
	assert.Nil(t, found)
}

func TestCartRepo_UpsertMergesVariantLine(t *testing.T) {
	cleanupTable(t, allTables()...)

	productRepo := NewProductRepository(testPool)
	cartRepo := NewCartRepository(testPool)
	ctx := context.Background()

	user := makeUser(t, "cart@example.com")
	product := &model.Product{
		Name: "Bangle-B", Description: "d", Category: "bangles",
		Price: decimal.NewFromFloat(15), Active: true,
		InventoryKind: model.InventoryBySize,
		Sizes:         []model.SizeOption{{Label: "S", Stock: 10, Available: true}},
	}
	require.NoError(t, productRepo.Create(ctx, product))

	cart, err := cartRepo.GetOrCreateCart(ctx, user.ID)
	require.NoError(t, err)

	item := &model.CartItem{
		CartID: cart.ID, ProductID: product.ID, Name: product.Name,
		Price: product.Price, Quantity: 2, Size: "S",
	}
	require.NoError(t, cartRepo.AddItem(ctx, item))
	require.NoError(t, cartRepo.AddItem(ctx, &model.CartItem{
		CartID: cart.ID, ProductID: product.ID, Name: product.Name,
		Price: product.Price, Quantity: 1, Size: "S",
	}))

	cartWithItems, err := cartRepo.GetCartWithItems(ctx, cart.ID)
	require.NoError(t, err)
	require.Len(t, cartWithItems.Items, 1)
	assert.Equal(t, 3, cartWithItems.Items[0].Quantity)
}

func TestOrderRepo_CreateWithStock_DecrementsAndRollsBack(t *testing.T) {
	cleanupTable(t, allTables()...)

	productRepo := NewProductRepository(testPool)
	orderRepo := NewOrderRepository(testPool)
	ctx := context.Background()

	user := makeUser(t, "order@example.com")
	product := &model.Product{
		Name: "Ring-A", Description: "d", Category: "rings",
		Price: decimal.NewFromFloat(25), Active: true,
		InventoryKind: model.InventoryFlat, Stock: 5,
	}
	require.NoError(t, productRepo.Create(ctx, product))

	order := &model.Order{
		UserID: user.ID, Status: model.OrderStatusPending,
		ShippingAddress: model.ShippingAddress{FullName: "Asha Rao", Line1: "12 Temple St", City: "Mysore", State: "KA", PostalCode: "570001", Country: "IN", Phone: "99"},
		PaymentMethod:   "cod",
		ItemsPrice:      decimal.NewFromFloat(50), TotalPrice: decimal.NewFromFloat(50),
		Items: []model.OrderItem{
			{ProductID: product.ID, Name: product.Name, Price: product.Price, Quantity: 2},
		},
	}
	require.NoError(t, orderRepo.CreateWithStock(ctx, order))

	found, err := productRepo.GetByID(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, found.Stock)

	// Over-ask rolls the whole order back.
	over := &model.Order{
		UserID: user.ID, Status: model.OrderStatusPending,
		ShippingAddress: order.ShippingAddress, PaymentMethod: "cod",
		ItemsPrice: decimal.NewFromFloat(100), TotalPrice: decimal.NewFromFloat(100),
		Items: []model.OrderItem{
			{ProductID: product.ID, Name: product.Name, Price: product.Price, Quantity: 4},
		},
	}
	err = orderRepo.CreateWithStock(ctx, over)
	require.Error(t, err)
	assert.True(t, errors.Is(err, inventory.ErrInsufficientStock))

	found, _ = productRepo.GetByID(ctx, product.ID)
	assert.Equal(t, 3, found.Stock, "failed order must not touch stock")

	got, err := orderRepo.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPending, got.Status)
	require.Len(t, got.Items, 1)
}

func TestOrderRepo_CreateWithStock_ConcurrentLastUnit(t *testing.T) {
	cleanupTable(t, allTables()...)

	productRepo := NewProductRepository(testPool)
	orderRepo := NewOrderRepository(testPool)
	ctx := context.Background()

	user := makeUser(t, "race@example.com")
	product := &model.Product{
		Name: "Ring-A", Description: "d", Category: "rings",
		Price: decimal.NewFromFloat(25), Active: true,
		InventoryKind: model.InventoryFlat, Stock: 1,
	}
	require.NoError(t, productRepo.Create(ctx, product))

	addr := model.ShippingAddress{FullName: "Asha Rao", Line1: "12 Temple St", City: "Mysore", State: "KA", PostalCode: "570001", Country: "IN", Phone: "99"}

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- orderRepo.CreateWithStock(ctx, &model.Order{
				UserID: user.ID, Status: model.OrderStatusPending,
				ShippingAddress: addr, PaymentMethod: "cod",
				ItemsPrice: product.Price, TotalPrice: product.Price,
				Items: []model.OrderItem{
					{ProductID: product.ID, Name: product.Name, Price: product.Price, Quantity: 1},
				},
			})
		}()
	}
	wg.Wait()
	close(errs)

	var failures []error
	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
		} else {
			failures = append(failures, err)
		}
	}
	assert.Equal(t, 1, succeeded, "exactly one order may take the last unit")
	require.Len(t, failures, 1)
	assert.True(t, errors.Is(failures[0], inventory.ErrInsufficientStock))

	found, err := productRepo.GetByID(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, found.Stock)
}

func TestProductRepo_RestoreStock(t *testing.T) {
	cleanupTable(t, allTables()...)

	repo := NewProductRepository(testPool)
	ctx := context.Background()

	product := &model.Product{
		Name: "Pendant-C", Description: "d", Category: "pendants",
		Price: decimal.NewFromFloat(30), Active: true,
		InventoryKind: model.InventoryByColor,
		Colors:        []model.ColorOption{{Name: "gold", Stock: 0, Available: false}},
	}
	require.NoError(t, repo.Create(ctx, product))

	require.NoError(t, repo.RestoreStock(ctx, product.ID, "", "gold", 2))

	found, err := repo.GetByID(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, found.Colors[0].Stock)
	assert.True(t, found.Colors[0].Available)
}
