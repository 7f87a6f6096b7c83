package services

import (
	"context"

	domain "github.com/campusbite/api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Role          = domain.Role
	Order         = domain.Order
	OrderLine     = domain.OrderLine
	OrderStatus   = domain.OrderStatus
	OrderPage     = domain.OrderPage
	Payment       = domain.Payment
	PaymentMethod = domain.PaymentMethod
	Contract      = domain.Contract
	Commission    = domain.Commission
	FoodItem      = domain.FoodItem
	Lounge        = domain.Lounge
	CartLine      = domain.CartLine
)

// PricingService prices a cart against the live catalog without side effects.
type PricingService interface {
	PriceCart(ctx context.Context, cmd PriceCartCommand) (PricedCart, error)
}

// OrderService orchestrates order creation, settlement, reads, status
// transitions, and QR redemption.
type OrderService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (PlacedOrder, error)
	GetOrder(ctx context.Context, query GetOrderQuery) (OrderDetail, error)
	ListOrders(ctx context.Context, query ListOrdersQuery) (OrderPage, error)
	TransitionStatus(ctx context.Context, cmd TransitionStatusCommand) (Order, error)
	RedeemQR(ctx context.Context, cmd RedeemQRCommand) (Order, error)
}

// OrderEventPublisher accepts order lifecycle notifications for downstream delivery.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event domain.OrderEvent) (string, error)
}

// TokenSigner mints and verifies the signed redemption payload bound to an order.
type TokenSigner interface {
	Mint(orderID string) (string, error)
	Verify(token string) (string, error)
}

// ArtifactRenderer turns the redemption payload into a scannable image artifact.
type ArtifactRenderer func(payload string) (string, error)

// Command and DTO definitions ------------------------------------------------

// Actor identifies the authenticated caller for authorization decisions.
type Actor struct {
	UserID string
	Role   Role
}

type PriceCartCommand struct {
	LoungeID string
	Lines    []CartLine
}

// PricedCart carries the priced lines in cart order plus the frozen total.
type PricedCart struct {
	Lines       []OrderLine
	TotalAmount int64
}

type CreateOrderCommand struct {
	Actor         Actor
	LoungeID      string
	Lines         []CartLine
	PaymentMethod PaymentMethod
	ContractID    string
}

// PlacedOrder reports the artifacts of a successful order creation. CheckoutURL
// is set only for gateway settlements.
type PlacedOrder struct {
	Order       Order
	Payment     Payment
	Commission  Commission
	CheckoutURL string
}

type GetOrderQuery struct {
	Actor   Actor
	OrderID string
}

// OrderDetail embeds the settlement record alongside the order when one exists.
type OrderDetail struct {
	Order   Order
	Payment *Payment
}

type ListOrdersQuery struct {
	Actor     Actor
	LoungeID  string
	Status    *OrderStatus
	PageSize  int
	PageToken string
}

type TransitionStatusCommand struct {
	Actor   Actor
	OrderID string
	Target  OrderStatus
}

type RedeemQRCommand struct {
	Actor   Actor
	Payload string
}
