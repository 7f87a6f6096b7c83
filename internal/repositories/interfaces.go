package repositories

import (
	"context"
	"time"

	domain "github.com/campusbite/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	FoodItems() FoodItemRepository
	Lounges() LoungeRepository
	Contracts() ContractRepository
	Orders() OrderRepository
	Payments() PaymentRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// FoodItemRepository reads the menu catalog used for pricing.
type FoodItemRepository interface {
	FindByID(ctx context.Context, itemID string) (domain.FoodItem, error)
	ListByIDs(ctx context.Context, itemIDs []string) ([]domain.FoodItem, error)
}

// LoungeRepository reads lounge records for authorization and order summaries.
type LoungeRepository interface {
	FindByID(ctx context.Context, loungeID string) (domain.Lounge, error)
}

// ContractRepository reads prepaid contracts. Balance mutations happen only
// inside OrderRepository.CreateSettled.
type ContractRepository interface {
	FindForUser(ctx context.Context, userID, loungeID string) (domain.Contract, error)
}

// OrderRepository persists orders together with their settlement artifacts.
type OrderRepository interface {
	// CreateSettled atomically writes the order, its payment, its commission
	// row, and, for contract settlements, the contract balance debit. Either
	// every write lands or none do.
	CreateSettled(ctx context.Context, req CreateOrderRequest) (CreateOrderResult, error)
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, query OrderListQuery) (domain.OrderPage, error)
	// UpdateStatus transitions the order only when its stored status still
	// matches From, guarding against concurrent movers.
	UpdateStatus(ctx context.Context, req OrderStatusUpdate) (domain.Order, error)
}

// PaymentRepository reads settlement records linked to orders.
type PaymentRepository interface {
	FindByID(ctx context.Context, paymentID string) (domain.Payment, error)
	FindByOrder(ctx context.Context, orderID string) (domain.Payment, error)
}

// ContractDebit describes the balance deduction performed during contract settlement.
type ContractDebit struct {
	ContractID string
	Amount     int64
}

// CreateOrderRequest bundles every artifact written during order creation.
type CreateOrderRequest struct {
	Order      domain.Order
	Payment    domain.Payment
	Commission domain.Commission
	Debit      *ContractDebit
	Now        time.Time
}

// CreateOrderResult reports the persisted artifacts after a successful settlement.
type CreateOrderResult struct {
	Order      domain.Order
	Payment    domain.Payment
	Commission domain.Commission
}

// OrderListQuery narrows and pages order listings.
type OrderListQuery struct {
	Filter     domain.OrderFilter
	PageSize   int
	StartAfter []any
}

// OrderStatusUpdate describes a guarded status transition.
type OrderStatusUpdate struct {
	OrderID string
	From    domain.OrderStatus
	To      domain.OrderStatus
	Now     time.Time
}
