package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/campusbite/api/internal/domain"
	"github.com/campusbite/api/internal/payments"
	"github.com/campusbite/api/internal/repositories"
)

const paymentTypeOrder = "ORDER"

var (
	// ErrSettlementNoContract indicates no usable prepaid contract covers the buyer and lounge.
	ErrSettlementNoContract = errors.New("settlement: no usable contract")
	// ErrSettlementInsufficientBalance indicates the order total exceeds the contract balance.
	ErrSettlementInsufficientBalance = errors.New("settlement: insufficient contract balance")
)

// CheckoutGateway opens external PSP checkout sessions for gateway settlements.
type CheckoutGateway interface {
	CreateCheckoutSession(ctx context.Context, paymentCtx payments.PaymentContext, req payments.CheckoutSessionRequest) (payments.CheckoutSession, error)
}

// settlementInput carries everything a strategy needs to plan the payment.
type settlementInput struct {
	UserID     string
	LoungeID   string
	OrderID    string
	PaymentID  string
	ContractID string
	Amount     int64
	Lines      []OrderLine
	Now        time.Time
}

// settlementPlan is the strategy output persisted by the order transaction.
// Debit is non-nil only for contract settlements.
type settlementPlan struct {
	Payment     Payment
	Debit       *repositories.ContractDebit
	CheckoutURL string
}

type settlementStrategy interface {
	Settle(ctx context.Context, in settlementInput) (settlementPlan, error)
}

// contractSettlement debits a prepaid contract. The balance check here is a
// fast precondition; the order transaction re-reads the contract and enforces
// the same rules atomically, so a racing settlement cannot double-spend.
type contractSettlement struct {
	contracts repositories.ContractRepository
}

func (s contractSettlement) Settle(ctx context.Context, in settlementInput) (settlementPlan, error) {
	contract, err := s.contracts.FindForUser(ctx, in.UserID, in.LoungeID)
	if err != nil {
		var orderErr *repositories.OrderError
		if errors.As(err, &orderErr) && orderErr.Code == repositories.OrderErrorContractNotFound {
			return settlementPlan{}, fmt.Errorf("%w: %s", ErrSettlementNoContract, orderErr.Message)
		}
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return settlementPlan{}, fmt.Errorf("%w: no contract for lounge %s", ErrSettlementNoContract, in.LoungeID)
		}
		return settlementPlan{}, err
	}

	if requested := strings.TrimSpace(in.ContractID); requested != "" && requested != contract.ID {
		return settlementPlan{}, fmt.Errorf("%w: contract %s does not cover this lounge", ErrSettlementNoContract, requested)
	}
	if !contract.Usable() {
		return settlementPlan{}, fmt.Errorf("%w: contract %s is inactive or expired", ErrSettlementNoContract, contract.ID)
	}
	if contract.RemainingBalance < in.Amount {
		return settlementPlan{}, fmt.Errorf("%w: contract %s holds %d, order requires %d", ErrSettlementInsufficientBalance, contract.ID, contract.RemainingBalance, in.Amount)
	}

	completedAt := in.Now
	contractID := contract.ID
	return settlementPlan{
		Payment: Payment{
			ID:          in.PaymentID,
			UserID:      in.UserID,
			OrderID:     in.OrderID,
			ContractID:  &contractID,
			Method:      domain.PaymentMethodContract,
			Status:      domain.PaymentStatusCompleted,
			Amount:      in.Amount,
			Type:        paymentTypeOrder,
			CreatedAt:   in.Now,
			UpdatedAt:   in.Now,
			CompletedAt: &completedAt,
		},
		Debit: &repositories.ContractDebit{ContractID: contract.ID, Amount: in.Amount},
	}, nil
}

// gatewaySettlement opens a PSP checkout session and records a pending payment.
// Completion arrives through an external confirmation channel.
type gatewaySettlement struct {
	gateway    CheckoutGateway
	currency   string
	successURL string
	cancelURL  string
}

func (s gatewaySettlement) Settle(ctx context.Context, in settlementInput) (settlementPlan, error) {
	if s.gateway == nil {
		return settlementPlan{}, errors.New("settlement: checkout gateway is not configured")
	}

	items := make([]payments.CheckoutLineItem, 0, len(in.Lines))
	for _, line := range in.Lines {
		items = append(items, payments.CheckoutLineItem{
			Name:     line.Name,
			Quantity: int64(line.Quantity),
			Amount:   line.UnitPrice,
			Currency: s.currency,
		})
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, payments.PaymentContext{}, payments.CheckoutSessionRequest{
		Amount:         in.Amount,
		Currency:       s.currency,
		SuccessURL:     s.successURL,
		CancelURL:      s.cancelURL,
		IdempotencyKey: in.PaymentID,
		Items:          items,
		Metadata: map[string]string{
			"orderId":   in.OrderID,
			"paymentId": in.PaymentID,
		},
	})
	if err != nil {
		return settlementPlan{}, fmt.Errorf("settlement: create checkout session: %w", err)
	}

	gatewayRef := session.IntentID
	if gatewayRef == "" {
		gatewayRef = session.ID
	}

	return settlementPlan{
		Payment: Payment{
			ID:         in.PaymentID,
			UserID:     in.UserID,
			OrderID:    in.OrderID,
			Method:     domain.PaymentMethodGateway,
			Status:     domain.PaymentStatusPending,
			Amount:     in.Amount,
			Type:       paymentTypeOrder,
			GatewayRef: &gatewayRef,
			CreatedAt:  in.Now,
			UpdatedAt:  in.Now,
		},
		CheckoutURL: session.RedirectURL,
	}, nil
}
