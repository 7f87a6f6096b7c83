package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/campusbite/api/internal/domain"
	pfirestore "github.com/campusbite/api/internal/platform/firestore"
)

const foodItemsCollection = "foodItems"

type FoodItemRepository struct {
	base *pfirestore.BaseRepository[foodItemDocument]
}

func NewFoodItemRepository(provider *pfirestore.Provider) (*FoodItemRepository, error) {
	if provider == nil {
		return nil, errors.New("food item repository requires firestore provider")
	}
	return &FoodItemRepository{
		base: pfirestore.NewBaseRepository[foodItemDocument](provider, foodItemsCollection, nil, nil),
	}, nil
}

func (r *FoodItemRepository) FindByID(ctx context.Context, itemID string) (domain.FoodItem, error) {
	if r == nil || r.base == nil {
		return domain.FoodItem{}, errors.New("food item repository not initialised")
	}
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return domain.FoodItem{}, errors.New("food item find: id is required")
	}

	doc, err := r.base.Get(ctx, itemID)
	if err != nil {
		return domain.FoodItem{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// ListByIDs resolves the given catalog items one by one. Pricing carts are
// small, so sequential point reads stay cheaper than an IN query with its
// thirty-entry ceiling. A missing item surfaces as a not-found error carrying
// that item's ID.
func (r *FoodItemRepository) ListByIDs(ctx context.Context, itemIDs []string) ([]domain.FoodItem, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("food item repository not initialised")
	}

	items := make([]domain.FoodItem, 0, len(itemIDs))
	seen := make(map[string]struct{}, len(itemIDs))
	for _, id := range itemIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, errors.New("food item list: id is required")
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}

		item, err := r.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

type foodItemDocument struct {
	LoungeRef        string    `firestore:"loungeRef"`
	Name             string    `firestore:"name"`
	Price            int64     `firestore:"price"`
	IsAvailable      bool      `firestore:"isAvailable"`
	EstimatedMinutes int       `firestore:"estimatedMinutes"`
	CreatedAt        time.Time `firestore:"createdAt"`
	UpdatedAt        time.Time `firestore:"updatedAt"`
}

func (d foodItemDocument) toDomain(id string) domain.FoodItem {
	return domain.FoodItem{
		ID:               id,
		LoungeID:         d.LoungeRef,
		Name:             d.Name,
		Price:            d.Price,
		IsAvailable:      d.IsAvailable,
		EstimatedMinutes: d.EstimatedMinutes,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
}
