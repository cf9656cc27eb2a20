package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ornate/go-jewelry-api/internal/model"
)

// --- Auth ---

type RegisterRequest struct {
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=8"`
	FirstName string `json:"first_name" binding:"required"`
	LastName  string `json:"last_name" binding:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type AuthResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

type UserResponse struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Role      string    `json:"role"`
}

// --- Product ---

type SizeOptionRequest struct {
	Label string `json:"label" binding:"required"`
	Stock int    `json:"stock" binding:"min=0"`
}

type ColorOptionRequest struct {
	Name  string `json:"name" binding:"required"`
	Stock int    `json:"stock" binding:"min=0"`
}

type CreateProductRequest struct {
	Name          string               `json:"name" binding:"required"`
	Description   string               `json:"description" binding:"required"`
	Category      string               `json:"category" binding:"required"`
	ImageURL      string               `json:"image_url"`
	Price         decimal.Decimal      `json:"price" binding:"required"`
	InventoryKind model.InventoryKind  `json:"inventory_kind" binding:"required,oneof=flat size color"`
	Stock         int                  `json:"stock" binding:"min=0"`
	Sizes         []SizeOptionRequest  `json:"sizes"`
	Colors        []ColorOptionRequest `json:"colors"`
}

type UpdateProductRequest struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Category    *string          `json:"category"`
	ImageURL    *string          `json:"image_url"`
	Price       *decimal.Decimal `json:"price"`
	Active      *bool            `json:"active"`
	Stock       *int             `json:"stock"`
	Sizes       []SizeOptionRequest  `json:"sizes"`
	Colors      []ColorOptionRequest `json:"colors"`
}

type ListProductsRequest struct {
	Page     int    `form:"page,default=1" binding:"min=1"`
	Limit    int    `form:"limit,default=20" binding:"min=1,max=100"`
	Search   string `form:"search"`
	Category string `form:"category"`
	Sort     string `form:"sort,default=created_at" binding:"oneof=name price created_at"`
	Order    string `form:"order,default=desc" binding:"oneof=asc desc"`
}

type ProductResponse struct {
	ID            uuid.UUID           `json:"id"`
	Name          string              `json:"name"`
	Description   string              `json:"description"`
	Category      string              `json:"category"`
	ImageURL      string              `json:"image_url,omitempty"`
	Price         decimal.Decimal     `json:"price"`
	Active        bool                `json:"active"`
	InventoryKind model.InventoryKind `json:"inventory_kind"`
	Stock         int                 `json:"stock"`
	Sizes         []model.SizeOption  `json:"sizes,omitempty"`
	Colors        []model.ColorOption `json:"colors,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

type ProductListResponse struct {
	Products []ProductResponse `json:"products"`
	Total    int               `json:"total"`
	Page     int               `json:"page"`
	Limit    int               `json:"limit"`
}

// --- Cart ---

type AddCartItemRequest struct {
	ProductID uuid.UUID `json:"product_id" binding:"required"`
	Quantity  int       `json:"quantity" binding:"required,min=1"`
	Size      string    `json:"size"`
	Color     string    `json:"color"`
}

// Quantity may be zero or negative; the service removes the item then.
type UpdateCartItemRequest struct {
	Quantity int `json:"quantity"`
}

type CartResponse struct {
	ID         uuid.UUID          `json:"id"`
	Items      []CartItemResponse `json:"items"`
	TotalItems int                `json:"total_items"`
	Total      decimal.Decimal    `json:"total_amount"`
}

type CartItemResponse struct {
	ID        uuid.UUID       `json:"id"`
	ProductID uuid.UUID       `json:"product_id"`
	Name      string          `json:"name"`
	ImageURL  string          `json:"image_url,omitempty"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	Size      string          `json:"size,omitempty"`
	Color     string          `json:"color,omitempty"`
}

// --- Order ---

type OrderItemRequest struct {
	ProductID uuid.UUID `json:"product_id" binding:"required"`
	Quantity  int       `json:"quantity" binding:"required,min=1"`
	Size      string    `json:"size"`
	Color     string    `json:"color"`
}

type ShippingAddressRequest struct {
	FullName   string `json:"full_name" binding:"required"`
	Line1      string `json:"line1" binding:"required"`
	Line2      string `json:"line2"`
	City       string `json:"city" binding:"required"`
	State      string `json:"state" binding:"required"`
	PostalCode string `json:"postal_code" binding:"required"`
	Country    string `json:"country" binding:"required"`
	Phone      string `json:"phone" binding:"required"`
}

type CreateOrderRequest struct {
	Items           []OrderItemRequest     `json:"items" binding:"required"`
	ShippingAddress ShippingAddressRequest `json:"shipping_address" binding:"required"`
	PaymentMethod   string                 `json:"payment_method" binding:"required,oneof=cod card"`
	TaxPrice        decimal.Decimal        `json:"tax_price"`
	ShippingPrice   decimal.Decimal        `json:"shipping_price"`
}

type UpdateOrderStatusRequest struct {
	Status model.OrderStatus `json:"status" binding:"required,oneof=pending processing shipped delivered cancelled"`
}

type ListOrdersRequest struct {
	Page   int               `form:"page,default=1" binding:"min=1"`
	Limit  int               `form:"limit,default=20" binding:"min=1,max=100"`
	Status model.OrderStatus `form:"status" binding:"omitempty,oneof=pending processing shipped delivered cancelled"`
}

type OrderResponse struct {
	ID              uuid.UUID             `json:"id"`
	UserID          uuid.UUID             `json:"user_id"`
	Items           []OrderItemResponse   `json:"items"`
	ShippingAddress model.ShippingAddress `json:"shipping_address"`
	PaymentMethod   string                `json:"payment_method"`
	ItemsPrice      decimal.Decimal       `json:"items_price"`
	TaxPrice        decimal.Decimal       `json:"tax_price"`
	ShippingPrice   decimal.Decimal       `json:"shipping_price"`
	TotalPrice      decimal.Decimal       `json:"total_price"`
	Status          model.OrderStatus     `json:"status"`
	Delivered       bool                  `json:"delivered"`
	DeliveredAt     *time.Time            `json:"delivered_at,omitempty"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

type OrderItemResponse struct {
	ID        uuid.UUID       `json:"id"`
	ProductID uuid.UUID       `json:"product_id"`
	Name      string          `json:"name"`
	ImageURL  string          `json:"image_url,omitempty"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	Size      string          `json:"size,omitempty"`
	Color     string          `json:"color,omitempty"`
}

type OrderListResponse struct {
	Orders []OrderResponse `json:"orders"`
	Total  int             `json:"total"`
	Page   int             `json:"page,omitempty"`
	Limit  int             `json:"limit,omitempty"`
}

// --- Address ---

type AddressRequest struct {
	FullName   string `json:"full_name" binding:"required"`
	Line1      string `json:"line1" binding:"required"`
	Line2      string `json:"line2"`
	City       string `json:"city" binding:"required"`
	State      string `json:"state" binding:"required"`
	PostalCode string `json:"postal_code" binding:"required"`
	Country    string `json:"country" binding:"required"`
	Phone      string `json:"phone" binding:"required"`
	IsDefault  bool   `json:"is_default"`
}

type AddressResponse struct {
	ID         uuid.UUID `json:"id"`
	FullName   string    `json:"full_name"`
	Line1      string    `json:"line1"`
	Line2      string    `json:"line2,omitempty"`
	City       string    `json:"city"`
	State      string    `json:"state"`
	PostalCode string    `json:"postal_code"`
	Country    string    `json:"country"`
	Phone      string    `json:"phone"`
	IsDefault  bool      `json:"is_default"`
}

// --- Review ---

type CreateReviewRequest struct {
	Rating  int    `json:"rating" binding:"required,min=1,max=5"`
	Comment string `json:"comment" binding:"required"`
}

type ReviewResponse struct {
	ID        uuid.UUID `json:"id"`
	ProductID uuid.UUID `json:"product_id"`
	UserID    uuid.UUID `json:"user_id"`
	UserName  string    `json:"user_name"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
}
