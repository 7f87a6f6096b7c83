package firestore

import (
	"context"
	"errors"

	pfirestore "github.com/campusbite/api/internal/platform/firestore"
	"github.com/campusbite/api/internal/repositories"
)

// Registry wires every Firestore backed repository over a shared provider.
type Registry struct {
	provider  *pfirestore.Provider
	foodItems *FoodItemRepository
	lounges   *LoungeRepository
	contracts *ContractRepository
	orders    *OrderRepository
	payments  *PaymentRepository
}

var _ repositories.Registry = (*Registry)(nil)

func NewRegistry(provider *pfirestore.Provider) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}

	foodItems, err := NewFoodItemRepository(provider)
	if err != nil {
		return nil, err
	}
	lounges, err := NewLoungeRepository(provider)
	if err != nil {
		return nil, err
	}
	contracts, err := NewContractRepository(provider)
	if err != nil {
		return nil, err
	}
	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, err
	}
	payments, err := NewPaymentRepository(provider)
	if err != nil {
		return nil, err
	}

	return &Registry{
		provider:  provider,
		foodItems: foodItems,
		lounges:   lounges,
		contracts: contracts,
		orders:    orders,
		payments:  payments,
	}, nil
}

func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

func (r *Registry) FoodItems() repositories.FoodItemRepository { return r.foodItems }

func (r *Registry) Lounges() repositories.LoungeRepository { return r.lounges }

func (r *Registry) Contracts() repositories.ContractRepository { return r.contracts }

func (r *Registry) Orders() repositories.OrderRepository { return r.orders }

func (r *Registry) Payments() repositories.PaymentRepository { return r.payments }

// RunInTx invokes fn directly. Repository methods that need atomicity, such as
// OrderRepository.CreateSettled, open their own Firestore transaction, so the
// registry does not impose an outer one.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if fn == nil {
		return errors.New("registry: transaction function is required")
	}
	return fn(ctx)
}
