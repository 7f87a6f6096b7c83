package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/campusbite/api/internal/domain"
	pfirestore "github.com/campusbite/api/internal/platform/firestore"
	"github.com/campusbite/api/internal/repositories"
)

const contractsCollection = "contracts"

type ContractRepository struct {
	base *pfirestore.BaseRepository[contractDocument]
}

func NewContractRepository(provider *pfirestore.Provider) (*ContractRepository, error) {
	if provider == nil {
		return nil, errors.New("contract repository requires firestore provider")
	}
	return &ContractRepository{
		base: pfirestore.NewBaseRepository[contractDocument](provider, contractsCollection, nil, nil),
	}, nil
}

// FindForUser returns the contract binding the user to the lounge. At most one
// such contract exists per pair; a missing document is reported as a typed
// not-found error so callers can fall back to gateway settlement.
func (r *ContractRepository) FindForUser(ctx context.Context, userID, loungeID string) (domain.Contract, error) {
	if r == nil || r.base == nil {
		return domain.Contract{}, errors.New("contract repository not initialised")
	}
	userID = strings.TrimSpace(userID)
	loungeID = strings.TrimSpace(loungeID)
	if userID == "" || loungeID == "" {
		return domain.Contract{}, errors.New("contract find: user id and lounge id are required")
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.
			Where("userRef", "==", userID).
			Where("loungeRef", "==", loungeID).
			Limit(1)
	})
	if err != nil {
		return domain.Contract{}, wrapOrderError("contracts.findForUser", err)
	}
	if len(docs) == 0 {
		return domain.Contract{}, repositories.NewOrderError(repositories.OrderErrorContractNotFound, "no contract for user "+userID+" at lounge "+loungeID, nil)
	}
	return docs[0].Data.toDomain(docs[0].ID), nil
}

type contractDocument struct {
	UserRef          string    `firestore:"userRef"`
	LoungeRef        string    `firestore:"loungeRef"`
	TotalBalance     int64     `firestore:"totalBalance"`
	RemainingBalance int64     `firestore:"remainingBalance"`
	IsActive         bool      `firestore:"isActive"`
	IsExpired        bool      `firestore:"isExpired"`
	CreatedAt        time.Time `firestore:"createdAt"`
	UpdatedAt        time.Time `firestore:"updatedAt"`
}

func (d contractDocument) toDomain(id string) domain.Contract {
	return domain.Contract{
		ID:               id,
		UserID:           d.UserRef,
		LoungeID:         d.LoungeRef,
		RemainingBalance: d.RemainingBalance,
		IsActive:         d.IsActive,
		IsExpired:        d.IsExpired,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
}
