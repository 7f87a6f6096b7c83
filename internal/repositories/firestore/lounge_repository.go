package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/campusbite/api/internal/domain"
	pfirestore "github.com/campusbite/api/internal/platform/firestore"
)

const loungesCollection = "lounges"

type LoungeRepository struct {
	base *pfirestore.BaseRepository[loungeDocument]
}

func NewLoungeRepository(provider *pfirestore.Provider) (*LoungeRepository, error) {
	if provider == nil {
		return nil, errors.New("lounge repository requires firestore provider")
	}
	return &LoungeRepository{
		base: pfirestore.NewBaseRepository[loungeDocument](provider, loungesCollection, nil, nil),
	}, nil
}

func (r *LoungeRepository) FindByID(ctx context.Context, loungeID string) (domain.Lounge, error) {
	if r == nil || r.base == nil {
		return domain.Lounge{}, errors.New("lounge repository not initialised")
	}
	loungeID = strings.TrimSpace(loungeID)
	if loungeID == "" {
		return domain.Lounge{}, errors.New("lounge find: id is required")
	}

	doc, err := r.base.Get(ctx, loungeID)
	if err != nil {
		return domain.Lounge{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

type loungeDocument struct {
	Name      string    `firestore:"name"`
	OwnerRef  string    `firestore:"ownerRef"`
	LogoURL   string    `firestore:"logoUrl"`
	CreatedAt time.Time `firestore:"createdAt"`
}

func (d loungeDocument) toDomain(id string) domain.Lounge {
	return domain.Lounge{
		ID:        id,
		Name:      d.Name,
		OwnerID:   d.OwnerRef,
		LogoURL:   d.LogoURL,
		CreatedAt: d.CreatedAt,
	}
}
