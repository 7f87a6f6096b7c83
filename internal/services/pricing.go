package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/campusbite/api/internal/repositories"
)

var (
	// ErrPricingInvalidInput signals the caller provided invalid cart input.
	ErrPricingInvalidInput = errors.New("pricing: invalid input")
	// ErrPricingItemNotFound indicates a cart line references a missing catalog item.
	ErrPricingItemNotFound = errors.New("pricing: item not found")
	// ErrPricingItemUnavailable indicates a cart line references an item marked unavailable.
	ErrPricingItemUnavailable = errors.New("pricing: item unavailable")
)

// maxLineQuantity bounds a single cart line so subtotals stay far from int64
// overflow regardless of catalog prices.
const maxLineQuantity = 1000

// PricingServiceDeps bundles the collaborators required to construct a pricing service.
type PricingServiceDeps struct {
	FoodItems repositories.FoodItemRepository
}

type pricingService struct {
	foodItems repositories.FoodItemRepository
}

// NewPricingService wires dependencies into a concrete PricingService implementation.
func NewPricingService(deps PricingServiceDeps) (PricingService, error) {
	if deps.FoodItems == nil {
		return nil, errors.New("pricing service: food item repository is required")
	}
	return &pricingService{foodItems: deps.FoodItems}, nil
}

// PriceCart snapshots the live catalog price of every line. Caller-supplied
// prices are never trusted; line order is preserved from the cart.
func (s *pricingService) PriceCart(ctx context.Context, cmd PriceCartCommand) (PricedCart, error) {
	loungeID := strings.TrimSpace(cmd.LoungeID)
	if loungeID == "" {
		return PricedCart{}, fmt.Errorf("%w: lounge id is required", ErrPricingInvalidInput)
	}
	if len(cmd.Lines) == 0 {
		return PricedCart{}, fmt.Errorf("%w: cart is empty", ErrPricingInvalidInput)
	}

	itemIDs := make([]string, 0, len(cmd.Lines))
	for _, line := range cmd.Lines {
		itemID := strings.TrimSpace(line.FoodItemID)
		if itemID == "" {
			return PricedCart{}, fmt.Errorf("%w: item id is required", ErrPricingInvalidInput)
		}
		if line.Quantity < 1 {
			return PricedCart{}, fmt.Errorf("%w: quantity for %s must be at least 1", ErrPricingInvalidInput, itemID)
		}
		if line.Quantity > maxLineQuantity {
			return PricedCart{}, fmt.Errorf("%w: quantity for %s exceeds the limit of %d", ErrPricingInvalidInput, itemID, maxLineQuantity)
		}
		itemIDs = append(itemIDs, itemID)
	}

	items, err := s.foodItems.ListByIDs(ctx, itemIDs)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return PricedCart{}, fmt.Errorf("%w: %s", ErrPricingItemNotFound, err.Error())
		}
		return PricedCart{}, err
	}

	byID := make(map[string]FoodItem, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}

	priced := PricedCart{Lines: make([]OrderLine, 0, len(cmd.Lines))}
	for _, line := range cmd.Lines {
		itemID := strings.TrimSpace(line.FoodItemID)
		item, ok := byID[itemID]
		if !ok {
			return PricedCart{}, fmt.Errorf("%w: %s", ErrPricingItemNotFound, itemID)
		}
		if item.LoungeID != loungeID {
			return PricedCart{}, fmt.Errorf("%w: item %s does not belong to lounge %s", ErrPricingInvalidInput, itemID, loungeID)
		}
		if !item.IsAvailable {
			return PricedCart{}, fmt.Errorf("%w: %s", ErrPricingItemUnavailable, item.Name)
		}

		subtotal := item.Price * int64(line.Quantity)
		priced.Lines = append(priced.Lines, OrderLine{
			FoodItemID:       item.ID,
			Name:             item.Name,
			UnitPrice:        item.Price,
			Quantity:         line.Quantity,
			Subtotal:         subtotal,
			EstimatedMinutes: item.EstimatedMinutes,
		})
		priced.TotalAmount += subtotal
	}

	return priced, nil
}
