package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// Role enumerates the caller roles recognised by the platform.
type Role string

const (
	// RoleUser is a regular customer placing orders.
	RoleUser Role = "user"
	// RoleLounge is a lounge operator fulfilling orders.
	RoleLounge Role = "lounge"
	// RoleAdmin has unrestricted access across lounges.
	RoleAdmin Role = "admin"
)

// OrderStatus describes the lifecycle state of an order.
type OrderStatus string

const (
	// OrderStatusPending is the initial state after a successful settlement.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusPreparing indicates the lounge accepted the order.
	OrderStatusPreparing OrderStatus = "preparing"
	// OrderStatusReady indicates the order awaits pickup.
	OrderStatusReady OrderStatus = "ready"
	// OrderStatusDelivered is terminal; reached only through QR redemption or a status update.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled is terminal.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Valid reports whether the status is one of the closed set.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusPreparing, OrderStatusReady, OrderStatusDelivered, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transitions are permitted from the status.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// PaymentMethod identifies how an order was settled.
type PaymentMethod string

const (
	// PaymentMethodContract settles against a prepaid contract balance.
	PaymentMethodContract PaymentMethod = "contract"
	// PaymentMethodGateway settles through the external payment gateway.
	PaymentMethodGateway PaymentMethod = "gateway"
)

// Valid reports whether the method is one of the closed set.
func (m PaymentMethod) Valid() bool {
	return m == PaymentMethodContract || m == PaymentMethodGateway
}

// PaymentStatus tracks settlement completion for a payment record.
type PaymentStatus string

const (
	// PaymentStatusPending means the gateway has not yet confirmed the charge.
	PaymentStatusPending PaymentStatus = "pending"
	// PaymentStatusCompleted means funds are secured.
	PaymentStatusCompleted PaymentStatus = "completed"
)

// OrderLine captures a priced cart entry frozen at order time. Name and unit
// price are snapshots of the catalog row so later menu edits never change the
// historical order.
type OrderLine struct {
	FoodItemID       string
	Name             string
	UnitPrice        int64
	Quantity         int
	Subtotal         int64
	EstimatedMinutes int
}

// Order is the aggregate root of the settlement core. All money fields are
// minor currency units.
type Order struct {
	ID             string
	UserID         string
	LoungeID       string
	LoungeName     string
	Lines          []OrderLine
	TotalAmount    int64
	CommissionRate float64
	Status         OrderStatus
	PaymentID      string
	QRToken        string
	QRImage        string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeliveredAt    *time.Time
}

// Payment records a settlement attempt for exactly one order.
type Payment struct {
	ID          string
	UserID      string
	OrderID     string
	ContractID  *string
	Method      PaymentMethod
	Status      PaymentStatus
	Amount      int64
	Type        string
	GatewayRef  *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// Contract is a prepaid balance a user holds with a specific lounge.
type Contract struct {
	ID               string
	UserID           string
	LoungeID         string
	RemainingBalance int64
	IsActive         bool
	IsExpired        bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Usable reports whether the contract may fund a settlement.
func (c Contract) Usable() bool {
	return c.IsActive && !c.IsExpired
}

// Commission is an immutable ledger row recording the platform's share of an
// order. Amount is rounded half-up to the nearest minor unit.
type Commission struct {
	ID          string
	OrderID     string
	LoungeID    string
	OrderAmount int64
	Rate        float64
	Amount      int64
	CreatedAt   time.Time
}

// FoodItem is the catalog read model used for pricing.
type FoodItem struct {
	ID               string
	LoungeID         string
	Name             string
	Price            int64
	IsAvailable      bool
	EstimatedMinutes int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Lounge is the read-only collaborator used for authorization and order
// summaries.
type Lounge struct {
	ID        string
	Name      string
	OwnerID   string
	LogoURL   string
	CreatedAt time.Time
}

// CartLine is the caller-supplied order intent before pricing.
type CartLine struct {
	FoodItemID string
	Quantity   int
}

// OrderFilter narrows order listings.
type OrderFilter struct {
	UserID   string
	LoungeID string
	Status   *OrderStatus
}

// OrderPage is a cursor page of orders.
type OrderPage struct {
	Orders        []Order
	NextPageToken string
}

// OrderEvent is published to the notification pipeline after state changes.
type OrderEvent struct {
	Type       string
	OrderID    string
	UserID     string
	LoungeID   string
	Status     OrderStatus
	OccurredAt time.Time
	Metadata   map[string]string
}
