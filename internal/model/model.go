package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type User struct {
	ID        uuid.UUID
	Email     string
	Password  string
	FirstName string
	LastName  string
	Role      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// InventoryKind selects which stock representation is authoritative
// for a product: a single flat count, per-size entries, or per-color
// entries. Exactly one applies to any given product.
type InventoryKind string

const (
	InventoryFlat    InventoryKind = "flat"
	InventoryBySize  InventoryKind = "size"
	InventoryByColor InventoryKind = "color"
)

type SizeOption struct {
	Label     string `json:"label"`
	Stock     int    `json:"stock"`
	Available bool   `json:"available"`
}

type ColorOption struct {
	Name      string `json:"name"`
	Stock     int    `json:"stock"`
	Available bool   `json:"available"`
}

type Product struct {
	ID            uuid.UUID
	Name          string
	Description   string
	Category      string
	ImageURL      string
	Price         decimal.Decimal
	Active        bool
	InventoryKind InventoryKind
	Stock         int
	Sizes         []SizeOption
	Colors        []ColorOption
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Cart struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Items     []CartItem
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CartItem snapshots name, image and unit price at add time. At most
// one item exists per (product, size, color); adding the same triple
// again merges quantities.
type CartItem struct {
	ID        uuid.UUID
	CartID    uuid.UUID
	ProductID uuid.UUID
	Name      string
	ImageURL  string
	Price     decimal.Decimal
	Quantity  int
	Size      string
	Color     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Matches reports whether the item refers to the same purchasable
// variant as the given (product, size, color) triple.
func (ci CartItem) Matches(productID uuid.UUID, size, color string) bool {
	return ci.ProductID == productID && ci.Size == size && ci.Color == color
}

// TotalItems is always derived from the items, never stored.
func (c *Cart) TotalItems() int {
	n := 0
	for _, it := range c.Items {
		n += it.Quantity
	}
	return n
}

// TotalAmount folds the snapshotted unit prices over quantities.
func (c *Cart) TotalAmount() decimal.Decimal {
	total := decimal.Zero
	for _, it := range c.Items {
		total = total.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total
}

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusDelivered},
	OrderStatusDelivered:  {},
	OrderStatusCancelled:  {},
}

func (s OrderStatus) Valid() bool {
	_, ok := orderTransitions[s]
	return ok
}

// CanTransitionTo consults the transition table. Every status change,
// including the admin path, goes through this check.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s OrderStatus) Terminal() bool {
	return len(orderTransitions[s]) == 0
}

// ShippingAddress is copied into the order at creation time so later
// edits to the user's address book do not change order history.
type ShippingAddress struct {
	FullName   string `json:"full_name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Phone      string `json:"phone"`
}

type Order struct {
	ID              uuid.UUID
	UserID          uuid.UUID
	Items           []OrderItem
	ShippingAddress ShippingAddress
	PaymentMethod   string
	ItemsPrice      decimal.Decimal
	TaxPrice        decimal.Decimal
	ShippingPrice   decimal.Decimal
	TotalPrice      decimal.Decimal
	Status          OrderStatus
	Delivered       bool
	DeliveredAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// OrderItem denormalizes product name, image and unit price at
// creation time.
type OrderItem struct {
	ID        uuid.UUID
	OrderID   uuid.UUID
	ProductID uuid.UUID
	Name      string
	ImageURL  string
	Price     decimal.Decimal
	Quantity  int
	Size      string
	Color     string
}

type Address struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	FullName   string
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
	Phone      string
	IsDefault  bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Review struct {
	ID        uuid.UUID
	ProductID uuid.UUID
	UserID    uuid.UUID
	UserName  string
	Rating    int
	Comment   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ConfirmationMessage is published after an order commits and consumed
// by the confirmation worker.
type ConfirmationMessage struct {
	OrderID uuid.UUID `json:"order_id"`
	UserID  uuid.UUID `json:"user_id"`
}
